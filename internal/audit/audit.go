package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/basket/go-claw/internal/shared"
)

// decisionEntry is one host-policy verdict as persisted to the decision
// trail: which skill asked for which tool, and what the three-layer pipeline
// answered.
type decisionEntry struct {
	Timestamp string `json:"timestamp"`
	SkillID   string `json:"skill_id"`
	Tool      string `json:"tool"`
	Decision  string `json:"decision"`
	Reason    string `json:"reason"`
}

// DecisionLog records every host-policy tool decision alongside the
// per-execution Records. It appends to homeDir/logs/decisions.jsonl and,
// when a database is attached, mirrors each entry into the tool_decisions
// table.
type DecisionLog struct {
	mu        sync.Mutex
	file      *os.File
	db        *sql.DB
	denyCount atomic.Int64
}

// OpenDecisionLog opens (creating if needed) the append-only decision trail
// under homeDir/logs.
func OpenDecisionLog(homeDir string) (*DecisionLog, error) {
	logDir := filepath.Join(homeDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(logDir, "decisions.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &DecisionLog{file: f}, nil
}

// AttachDB mirrors subsequent entries into db's tool_decisions table.
func (l *DecisionLog) AttachDB(d *sql.DB) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.db = d
}

func (l *DecisionLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// DenyCount returns the total number of deny decisions recorded since open.
func (l *DecisionLog) DenyCount() int64 {
	return l.denyCount.Load()
}

// RecordDecision appends one host-policy verdict. Reasons are redacted
// before persistence so secret-bearing prompt text never lands on disk.
func (l *DecisionLog) RecordDecision(skillID, tool, decision, reason string) {
	if decision == "denied" {
		l.denyCount.Add(1)
	}
	reason = shared.Redact(reason)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		ev := decisionEntry{
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			SkillID:   skillID,
			Tool:      tool,
			Decision:  decision,
			Reason:    reason,
		}
		b, err := json.Marshal(ev)
		if err == nil {
			_, _ = l.file.Write(append(b, '\n'))
		}
	}

	if l.db != nil {
		_, _ = l.db.ExecContext(context.Background(), `
			INSERT INTO tool_decisions (skill_id, tool, decision, reason)
			VALUES (?, ?, ?, ?);
		`, skillID, tool, decision, reason)
	}
}
