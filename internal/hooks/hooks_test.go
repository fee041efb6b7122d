package hooks

import (
	"context"
	"os"
	"runtime"
	"strings"
	"testing"

	"github.com/basket/go-claw/internal/policy"
	"github.com/basket/go-claw/internal/sandbox/native"
	"github.com/basket/go-claw/internal/skills/manifest"
)

func TestMain(m *testing.M) {
	native.ReexecEntrypoint()
	os.Exit(m.Run())
}

func TestMatchesNoMatcherMatchesAll(t *testing.T) {
	entry := manifest.HookEntry{Command: "scripts/check.sh"}
	if !matches(Event{Kind: PreToolUse, Tool: "Bash"}, entry) {
		t.Fatal("entry without matcher must match every tool")
	}
	if !matches(Event{Kind: PostToolUse, Tool: "Read"}, entry) {
		t.Fatal("entry without matcher must match every tool")
	}
}

func TestMatchesGlobSemantics(t *testing.T) {
	entry := manifest.HookEntry{Matcher: "Bash*", Command: "c"}
	if !matches(Event{Kind: PreToolUse, Tool: "Bash"}, entry) {
		t.Fatal("Bash must match Bash*")
	}
	if !matches(Event{Kind: PreToolUse, Tool: "BashOutput"}, entry) {
		t.Fatal("BashOutput must match Bash*")
	}
	if matches(Event{Kind: PreToolUse, Tool: "Read"}, entry) {
		t.Fatal("Read must not match Bash*")
	}
}

func TestStopMatchesEveryEntry(t *testing.T) {
	entry := manifest.HookEntry{Matcher: "NeverMatches", Command: "c"}
	if !matches(Event{Kind: Stop, Reason: "done"}, entry) {
		t.Fatal("Stop events match every Stop entry regardless of matcher")
	}
}

func TestDispatchNilConfig(t *testing.T) {
	d := New()
	if out := d.Dispatch(context.Background(), Event{Kind: Stop}, nil, t.TempDir(), policy.Grant{}); out != nil {
		t.Fatalf("nil hooks config must dispatch nothing, got %v", out)
	}
}

func TestDispatchSelectsByEventKind(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		t.Skip("no native sandbox tier on this platform")
	}
	root := t.TempDir()

	// Commands are free-form shell lines, not script paths.
	cfg := &manifest.HooksConfig{
		PreToolUse: []manifest.HookEntry{{Matcher: "Bash", Command: "echo pre-fired"}},
		Stop:       []manifest.HookEntry{{Command: "echo stop-fired"}},
	}

	d := New()
	out := d.Dispatch(context.Background(), Event{Kind: PreToolUse, Tool: "Bash"}, cfg, root, policy.Grant{})
	if len(out) != 1 {
		t.Fatalf("want one PreToolUse outcome, got %d", len(out))
	}
	if out[0].Err != nil {
		t.Fatalf("hook failed: %v", out[0].Err)
	}
	if !strings.Contains(string(out[0].Stdout), "pre-fired") {
		t.Fatalf("stdout = %q", out[0].Stdout)
	}

	out = d.Dispatch(context.Background(), Event{Kind: PreToolUse, Tool: "Read"}, cfg, root, policy.Grant{})
	if len(out) != 0 {
		t.Fatalf("Read must match no PreToolUse entry, got %d outcomes", len(out))
	}

	out = d.Dispatch(context.Background(), Event{Kind: Stop, Reason: "success"}, cfg, root, policy.Grant{})
	if len(out) != 1 || !strings.Contains(string(out[0].Stdout), "stop-fired") {
		t.Fatalf("stop outcome wrong: %+v", out)
	}
}
