// Package session implements the fork-context recorder: an isolated
// recording environment for a skill's intermediate outputs, summarized down
// to final results at completion.
package session

import (
	"strings"
	"sync"
	"time"
)

// Entry is one recorded intermediate output within a forked skill's
// execution.
type Entry struct {
	Label     string
	Content   string
	Timestamp time.Time
}

// Context records a single execution's intermediate outputs when the
// skill's manifest declares context: fork (manifest.Manifest.IsForked).
// Safe for concurrent Record calls from the stdout/stderr drain goroutines
// that feed a running backend.
type Context struct {
	mu      sync.Mutex
	skillID string
	entries []Entry
}

// NewContext creates an empty fork context for one execution.
func NewContext(skillID string) *Context {
	return &Context{skillID: skillID}
}

// Record appends one intermediate output. A zero Timestamp is filled in
// with the current time.
func (c *Context) Record(label, content string, ts time.Time) {
	if ts.IsZero() {
		ts = time.Now()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, Entry{Label: label, Content: content, Timestamp: ts})
}

// Entries returns a copy of the recorded entries in insertion order.
func (c *Context) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Summary is the pure transform over a fork context's recorded entries,
// condensing them into the final text handed back to the caller in place
// of the raw per-step trace.
type Summary struct {
	SkillID    string
	EntryCount int
	Final      string
}

// Summarize reduces a Context to its Summary: the final non-empty entry's
// content, or the empty string if nothing was recorded. It does not mutate
// or consume the context; repeated calls are idempotent, matching the
// glossary's "pure transform" framing.
func Summarize(c *Context) Summary {
	entries := c.Entries()
	summary := Summary{SkillID: c.skillID, EntryCount: len(entries)}
	for i := len(entries) - 1; i >= 0; i-- {
		if strings.TrimSpace(entries[i].Content) != "" {
			summary.Final = entries[i].Content
			break
		}
	}
	return summary
}
