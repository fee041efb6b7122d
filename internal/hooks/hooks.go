// Package hooks dispatches manifest-declared hook entries on PreToolUse,
// PostToolUse, and Stop events, as a thin wrapper over the native backend's
// sandboxed-command primitive.
package hooks

import (
	"context"
	"path/filepath"
	"time"

	"github.com/basket/go-claw/internal/policy"
	"github.com/basket/go-claw/internal/sandbox/native"
	"github.com/basket/go-claw/internal/skills/manifest"
)

// defaultTimeout applies when a hook entry does not declare timeout_ms.
const defaultTimeout = 30 * time.Second

// EventKind is the closed set of lifecycle events a hook entry can match.
type EventKind int

const (
	PreToolUse EventKind = iota
	PostToolUse
	Stop
)

// Event carries the tool/input or tool/output pair (or stop reason) the
// dispatcher matches entries against.
type Event struct {
	Kind   EventKind
	Tool   string // empty for Stop
	Reason string // populated only for Stop
}

// Outcome is one hook entry's execution result.
type Outcome struct {
	Entry      manifest.HookEntry
	ExitStatus native.ExitStatus
	Stdout     []byte
	Stderr     []byte
	Err        error
}

// Dispatcher fires matching hook entries from a skill's manifest.
type Dispatcher struct {
	backend *native.Backend
}

// New creates a Dispatcher backed by the native sandbox primitive.
func New() *Dispatcher {
	return &Dispatcher{backend: native.New()}
}

// Dispatch selects every hooks-block entry matching event and runs each as
// a sandboxed command within skillRoot (or entry.Cwd beneath it), returning
// one Outcome per matched entry in declaration order.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event, hooksCfg *manifest.HooksConfig, skillRoot string, grant policy.Grant) []Outcome {
	if hooksCfg == nil {
		return nil
	}

	var candidates []manifest.HookEntry
	switch ev.Kind {
	case PreToolUse:
		candidates = hooksCfg.PreToolUse
	case PostToolUse:
		candidates = hooksCfg.PostToolUse
	case Stop:
		candidates = hooksCfg.Stop
	}

	var outcomes []Outcome
	for _, entry := range candidates {
		if !matches(ev, entry) {
			continue
		}
		outcomes = append(outcomes, d.run(ctx, entry, skillRoot, grant))
	}
	return outcomes
}

// matches applies the matcher semantics: entries with no matcher match
// everything; entries with a glob matcher match the event's tool name;
// every Stop entry matches every Stop event unconditionally.
func matches(ev Event, entry manifest.HookEntry) bool {
	if ev.Kind == Stop {
		return true
	}
	if entry.Matcher == "" {
		return true
	}
	ok, err := filepath.Match(entry.Matcher, ev.Tool)
	return err == nil && ok
}

func (d *Dispatcher) run(ctx context.Context, entry manifest.HookEntry, skillRoot string, grant policy.Grant) Outcome {
	timeoutMs := entry.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = int(defaultTimeout / time.Millisecond)
	}

	root := skillRoot
	if entry.Cwd != "" {
		root = filepath.Join(skillRoot, entry.Cwd)
	}

	// entry.Command is a free-form command line, run through the shell by
	// the same sandboxed-command primitive the executor uses for scripts.
	req := native.RunRequest{
		SkillRoot: root,
		Command:   entry.Command,
		TimeoutMs: timeoutMs,
		Grant:     grant,
	}
	result, err := d.backend.Run(ctx, req)
	if err != nil {
		return Outcome{Entry: entry, Err: err}
	}
	return Outcome{Entry: entry, ExitStatus: result.ExitStatus, Stdout: result.Stdout, Stderr: result.Stderr}
}
