package runtime

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	goruntime "runtime"
	"testing"

	"github.com/basket/go-claw/internal/audit"
	"github.com/basket/go-claw/internal/policy"
	"github.com/basket/go-claw/internal/sandbox/native"
	"github.com/basket/go-claw/internal/skillerrors"
)

func TestMain(m *testing.M) {
	native.ReexecEntrypoint()
	os.Exit(m.Run())
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sandboxSupported() bool {
	return goruntime.GOOS == "linux" || goruntime.GOOS == "darwin"
}

func writeSkill(t *testing.T, parent, id, doc string) string {
	t.Helper()
	dir := filepath.Join(parent, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(doc), 0o644); err != nil {
		t.Fatalf("write SKILL.md: %v", err)
	}
	return dir
}

func writeScript(t *testing.T, dir, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "script.sh"), []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
}

func newTestRuntime(t *testing.T, dir string, hp *policy.HostPolicy) *Runtime {
	t.Helper()
	rt := New(Options{
		HomeDir:     t.TempDir(),
		ProjectRoot: t.TempDir(),
		Policy:      hp,
		Logger:      testLogger(),
	})
	rt.LoadFromDirectory(dir)
	return rt
}

func TestExecuteUnknownSkill(t *testing.T) {
	// Seed one skill so the registry is non-empty and the lookup itself
	// fails; an empty registry would trigger implicit discovery instead.
	root := t.TempDir()
	writeSkill(t, root, "present", "---\nname: present\ndescription: ok\n---\nbody")
	rt := newTestRuntime(t, root, nil)

	_, err := rt.Execute(context.Background(), "missing", ExecuteOptions{})
	if !skillerrors.Is(err, skillerrors.SkillNotFound) {
		t.Fatalf("got %v, want SkillNotFound", err)
	}
}

func TestRequireToolAllowed(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "tooled", "---\nname: tooled\ndescription: ok\nallowed-tools: \"Read\"\n---\nbody")

	rt := newTestRuntime(t, root, nil)
	if err := rt.RequireToolAllowed("tooled", "Read"); err != nil {
		t.Fatalf("declared tool must pass: %v", err)
	}
	err := rt.RequireToolAllowed("tooled", "Bash")
	if !skillerrors.Is(err, skillerrors.ToolNotAllowed) {
		t.Fatalf("got %v, want ToolNotAllowed", err)
	}
}

func TestExecuteDeniedToolIsPreExecutionError(t *testing.T) {
	root := t.TempDir()
	dir := writeSkill(t, root, "shelly",
		"---\nname: shelly\ndescription: ok\nallowed-tools: \"Bash\"\n---\nbody")
	writeScript(t, dir, "#!/bin/sh\necho should-not-run\n")

	hp := policy.NewFromConfig(policy.Config{Deny: []string{"Bash"}, Fallback: policy.FallbackAllow})
	rt := newTestRuntime(t, root, hp)

	_, err := rt.Execute(context.Background(), "shelly", ExecuteOptions{TimeoutMs: 5000})
	if !skillerrors.Is(err, skillerrors.PermissionDenied) {
		t.Fatalf("got %v, want PermissionDenied", err)
	}
}

func TestExecuteNativeEndToEnd(t *testing.T) {
	if !sandboxSupported() {
		t.Skip("no native sandbox tier on this platform")
	}
	root := t.TempDir()
	dir := writeSkill(t, root, "greeter", "---\nname: greeter\ndescription: ok\n---\nbody")
	writeScript(t, dir, "#!/bin/sh\ncat >/dev/null\necho '{\"greeting\": \"hello\"}'\n")

	rt := newTestRuntime(t, root, nil)
	result, err := rt.Execute(context.Background(), "greeter", ExecuteOptions{
		Input:     []byte(`{"who": "world"}`),
		TimeoutMs: 10_000,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Audit.ExitStatus.Kind != "success" {
		t.Fatalf("exit status %v, stderr %q", result.Audit.ExitStatus, result.Stderr)
	}
	if result.Audit.SkillID != "greeter" {
		t.Fatalf("audit skill id %q", result.Audit.SkillID)
	}
	if result.Audit.InputHash == "" || result.Audit.OutputHash == "" {
		t.Fatal("hashes must be populated")
	}
	if result.Stdout == "" {
		t.Fatal("captured stdout missing")
	}
}

func TestExecuteAuditInputHashStable(t *testing.T) {
	if !sandboxSupported() {
		t.Skip("no native sandbox tier on this platform")
	}
	root := t.TempDir()
	dir := writeSkill(t, root, "hasher", "---\nname: hasher\ndescription: ok\n---\nbody")
	writeScript(t, dir, "#!/bin/sh\ncat >/dev/null\necho ok\n")

	rt := newTestRuntime(t, root, nil)

	first, err := rt.Execute(context.Background(), "hasher", ExecuteOptions{
		Input: []byte(`{"same": "input", "n": 1}`), TimeoutMs: 10_000,
	})
	if err != nil {
		t.Fatalf("first execute: %v", err)
	}
	// Same value, different key order and whitespace: the canonical hash
	// must not change.
	second, err := rt.Execute(context.Background(), "hasher", ExecuteOptions{
		Input: []byte(`{"n":1,"same":"input"}`), TimeoutMs: 10_000,
	})
	if err != nil {
		t.Fatalf("second execute: %v", err)
	}
	if first.Audit.InputHash != second.Audit.InputHash {
		t.Fatal("JSON-equal inputs must yield identical input_hash")
	}
}

func TestExecuteTimeoutScenario(t *testing.T) {
	if !sandboxSupported() {
		t.Skip("no native sandbox tier on this platform")
	}
	root := t.TempDir()
	dir := writeSkill(t, root, "sleepy", "---\nname: sleepy\ndescription: ok\n---\nbody")
	writeScript(t, dir, "#!/bin/sh\nsleep 60\n")

	rt := newTestRuntime(t, root, nil)
	result, err := rt.Execute(context.Background(), "sleepy", ExecuteOptions{TimeoutMs: 1000})
	if err != nil {
		t.Fatalf("timeouts are results, not errors: %v", err)
	}
	if result.Audit.ExitStatus.Kind != "timeout" {
		t.Fatalf("exit status %v, want timeout", result.Audit.ExitStatus)
	}
	if result.Audit.DurationMs < 1000 || result.Audit.DurationMs > 2000 {
		t.Fatalf("duration %dms outside [1000, 2000]", result.Audit.DurationMs)
	}
}

func TestExecuteWritesAuditSink(t *testing.T) {
	if !sandboxSupported() {
		t.Skip("no native sandbox tier on this platform")
	}
	home := t.TempDir()
	sink, err := audit.NewJSONLSink(home)
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	defer sink.Close()

	root := t.TempDir()
	dir := writeSkill(t, root, "audited", "---\nname: audited\ndescription: ok\n---\nbody")
	writeScript(t, dir, "#!/bin/sh\ncat >/dev/null\necho done\n")

	rt := New(Options{
		HomeDir:     t.TempDir(),
		ProjectRoot: t.TempDir(),
		Logger:      testLogger(),
		AuditSink:   sink,
	})
	rt.LoadFromDirectory(root)

	if _, err := rt.Execute(context.Background(), "audited", ExecuteOptions{TimeoutMs: 10_000}); err != nil {
		t.Fatalf("execute: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(home, "logs", "executions.jsonl"))
	if err != nil {
		t.Fatalf("read sink: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("audit sink must receive the record")
	}
}

func TestExecuteForkContextSummary(t *testing.T) {
	if !sandboxSupported() {
		t.Skip("no native sandbox tier on this platform")
	}
	root := t.TempDir()
	dir := writeSkill(t, root, "forky", "---\nname: forky\ndescription: ok\ncontext: fork\n---\nbody")
	writeScript(t, dir, "#!/bin/sh\ncat >/dev/null\necho final-answer\n")

	rt := newTestRuntime(t, root, nil)
	result, err := rt.Execute(context.Background(), "forky", ExecuteOptions{TimeoutMs: 10_000})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.ForkSummary == nil {
		t.Fatal("context: fork execution must produce a summary")
	}
	if result.ForkSummary.SkillID != "forky" || result.ForkSummary.Final == "" {
		t.Fatalf("summary wrong: %+v", result.ForkSummary)
	}
}

func TestExecuteRecordsDecisions(t *testing.T) {
	if !sandboxSupported() {
		t.Skip("no native sandbox tier on this platform")
	}
	home := t.TempDir()
	decisions, err := audit.OpenDecisionLog(home)
	if err != nil {
		t.Fatalf("decision log: %v", err)
	}
	defer decisions.Close()

	root := t.TempDir()
	dir := writeSkill(t, root, "decided",
		"---\nname: decided\ndescription: ok\nallowed-tools: \"Read\"\n---\nbody")
	writeScript(t, dir, "#!/bin/sh\ncat >/dev/null\necho ok\n")

	rt := New(Options{
		HomeDir:     t.TempDir(),
		ProjectRoot: t.TempDir(),
		Logger:      testLogger(),
		Decisions:   decisions,
	})
	rt.LoadFromDirectory(root)

	if _, err := rt.Execute(context.Background(), "decided", ExecuteOptions{TimeoutMs: 10_000}); err != nil {
		t.Fatalf("execute: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(home, "logs", "decisions.jsonl"))
	if err != nil {
		t.Fatalf("read decisions: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("decision trail must record the Read verdict")
	}
}
