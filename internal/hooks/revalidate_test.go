package hooks

import (
	"io"
	"log/slog"
	"testing"

	"github.com/basket/go-claw/internal/skills/registry"
)

func TestNewRevalidatorRejectsBadSchedule(t *testing.T) {
	reg := registry.New("", "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if _, err := NewRevalidator(reg, "not a cron line", nil); err == nil {
		t.Fatal("malformed schedule must be rejected")
	}
}

func TestRevalidatorStartStop(t *testing.T) {
	reg := registry.New("", "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	rv, err := NewRevalidator(reg, "@hourly", nil)
	if err != nil {
		t.Fatalf("new revalidator: %v", err)
	}
	rv.Start()
	rv.Stop()
}
