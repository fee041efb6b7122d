package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDecisionLogWritesEntry(t *testing.T) {
	home := t.TempDir()
	log, err := OpenDecisionLog(home)
	if err != nil {
		t.Fatalf("open decision log: %v", err)
	}
	t.Cleanup(func() { _ = log.Close() })

	log.RecordDecision("web-fetcher", "Bash", "denied", "deny override")
	log.RecordDecision("web-fetcher", "Read", "approved", "skill allowlist")

	path := filepath.Join(home, "logs", "decisions.jsonl")
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read decision log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two entries, got %d", len(lines))
	}
	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("unmarshal first entry: %v", err)
	}
	if first["decision"] != "denied" {
		t.Fatalf("expected denied decision, got %#v", first["decision"])
	}
	if first["skill_id"] != "web-fetcher" || first["tool"] != "Bash" {
		t.Fatalf("unexpected subject fields: %#v", first)
	}
	if log.DenyCount() != 1 {
		t.Fatalf("expected one deny counted, got %d", log.DenyCount())
	}
}

func TestDecisionLogAppendOnly(t *testing.T) {
	home := t.TempDir()
	log, err := OpenDecisionLog(home)
	if err != nil {
		t.Fatalf("open decision log: %v", err)
	}
	t.Cleanup(func() { _ = log.Close() })

	log.RecordDecision("s", "Read", "approved", "")
	log.RecordDecision("s", "Write", "denied", "fallback")

	path := filepath.Join(home, "logs", "decisions.jsonl")
	info1, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat decision log: %v", err)
	}
	size1 := info1.Size()

	log.RecordDecision("s", "Grep", "approved", "")

	info2, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat decision log after append: %v", err)
	}
	if info2.Size() <= size1 {
		t.Fatalf("expected file to grow, size before=%d after=%d", size1, info2.Size())
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read decision log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	for i, line := range lines {
		var e map[string]any
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", i, err)
		}
		if _, ok := e["timestamp"]; !ok {
			t.Fatalf("line %d missing timestamp", i)
		}
	}
}

func TestDecisionLogRedactsReason(t *testing.T) {
	home := t.TempDir()
	log, err := OpenDecisionLog(home)
	if err != nil {
		t.Fatalf("open decision log: %v", err)
	}
	t.Cleanup(func() { _ = log.Close() })

	log.RecordDecision("s", "Fetch", "approved", "api_key=sk_live_0123456789abcdef0123")

	raw, err := os.ReadFile(filepath.Join(home, "logs", "decisions.jsonl"))
	if err != nil {
		t.Fatalf("read decision log: %v", err)
	}
	if strings.Contains(string(raw), "sk_live_0123456789abcdef0123") {
		t.Fatalf("secret survived redaction: %s", raw)
	}
	if !strings.Contains(string(raw), "[REDACTED]") {
		t.Fatalf("expected redaction placeholder in %s", raw)
	}
}
