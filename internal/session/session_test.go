package session

import (
	"testing"
	"time"
)

func TestRecordAndEntries(t *testing.T) {
	c := NewContext("fork-skill")
	c.Record("step-1", "first output", time.Time{})
	c.Record("step-2", "second output", time.Time{})

	entries := c.Entries()
	if len(entries) != 2 {
		t.Fatalf("got %d entries", len(entries))
	}
	if entries[0].Label != "step-1" || entries[1].Label != "step-2" {
		t.Fatalf("insertion order lost: %+v", entries)
	}
	if entries[0].Timestamp.IsZero() {
		t.Fatal("zero timestamp must be filled in")
	}
}

func TestEntriesReturnsCopy(t *testing.T) {
	c := NewContext("s")
	c.Record("a", "x", time.Time{})
	entries := c.Entries()
	entries[0].Content = "mutated"
	if c.Entries()[0].Content != "x" {
		t.Fatal("Entries must return a copy")
	}
}

func TestSummarizePicksFinalNonEmptyEntry(t *testing.T) {
	c := NewContext("fork-skill")
	c.Record("step-1", "intermediate", time.Time{})
	c.Record("step-2", "final result", time.Time{})
	c.Record("step-3", "   ", time.Time{})

	s := Summarize(c)
	if s.SkillID != "fork-skill" || s.EntryCount != 3 {
		t.Fatalf("summary header wrong: %+v", s)
	}
	if s.Final != "final result" {
		t.Fatalf("final = %q", s.Final)
	}
}

func TestSummarizeEmptyContext(t *testing.T) {
	s := Summarize(NewContext("s"))
	if s.EntryCount != 0 || s.Final != "" {
		t.Fatalf("got %+v, want empty summary", s)
	}
}

func TestSummarizeIsIdempotent(t *testing.T) {
	c := NewContext("s")
	c.Record("a", "result", time.Time{})
	first := Summarize(c)
	second := Summarize(c)
	if first != second {
		t.Fatalf("summarize not idempotent: %+v vs %+v", first, second)
	}
	if len(c.Entries()) != 1 {
		t.Fatal("summarize must not consume the context")
	}
}
