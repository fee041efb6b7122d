package audit

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/basket/go-claw/internal/shared"
)

// ExitStatus is the closed set of audit outcomes for a single execution.
type ExitStatus struct {
	Kind    string // "success", "timeout", "permission_denied", "failed"
	Message string // only populated for "failed"
}

func Success() ExitStatus          { return ExitStatus{Kind: "success"} }
func TimeoutStatus() ExitStatus    { return ExitStatus{Kind: "timeout"} }
func PermissionDenied() ExitStatus { return ExitStatus{Kind: "permission_denied"} }
func FailedStatus(msg string) ExitStatus {
	return ExitStatus{Kind: "failed", Message: msg}
}

// MarshalJSON renders exit_status as "success" | "timeout" |
// "permission_denied" | "failed:<msg>".
func (s ExitStatus) MarshalJSON() ([]byte, error) {
	if s.Kind == "failed" {
		return json.Marshal(fmt.Sprintf("failed:%s", s.Message))
	}
	return json.Marshal(s.Kind)
}

// Record is the per-execution audit record.
type Record struct {
	SkillID         string     `json:"skill_id"`
	Version         string     `json:"version"`
	InputHash       string     `json:"input_hash"`
	OutputHash      string     `json:"output_hash"`
	StartTimeMs     int64      `json:"start_time_ms"`
	DurationMs      int64      `json:"duration_ms"`
	PermissionsUsed []string   `json:"permissions_used"`
	ExitStatus      ExitStatus `json:"exit_status"`
	Stdout          string     `json:"stdout"`
	Stderr          string     `json:"stderr"`
}

// HashValue computes the hex-encoded SHA-256 of a canonical serialization
// of an arbitrary value, per the data model's "hashes are hex-encoded
// SHA-256 over a canonical serialization" invariant. Canonicalization is
// JSON encoding with map keys sorted, produced via canonicalJSON.
func HashValue(v any) string {
	data, err := canonicalJSON(v)
	if err != nil {
		data = []byte(fmt.Sprintf("%v", v))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashBytes hashes raw bytes directly (used for stdout/output payloads that
// are not re-serialized).
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// canonicalJSON re-marshals arbitrary JSON-like input with map keys in
// sorted order so two structurally-equal values always hash identically
// regardless of original key order.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		// Not JSON-shaped (already a string/bytes): hash the raw encoding.
		return raw, nil
	}
	return marshalSorted(generic)
}

func marshalSorted(v any) ([]byte, error) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := marshalSorted(t[k])
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	case []any:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			eb, err := marshalSorted(e)
			if err != nil {
				return nil, err
			}
			buf.Write(eb)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	default:
		return json.Marshal(t)
	}
}

// Sink persists completed execution records.
type Sink interface {
	Write(ctx context.Context, rec Record) error
}

// JSONLSink appends one JSON line per record; the default sink.
type JSONLSink struct {
	mu   sync.Mutex
	file *os.File
}

// NewJSONLSink opens (creating if needed) homeDir/logs/executions.jsonl for
// append-only writes.
func NewJSONLSink(homeDir string) (*JSONLSink, error) {
	dir := filepath.Join(homeDir, "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, "executions.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONLSink{file: f}, nil
}

func (s *JSONLSink) Write(_ context.Context, rec Record) error {
	rec.Stdout = shared.Redact(rec.Stdout)
	rec.Stderr = shared.Redact(rec.Stderr)

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.file.Write(append(data, '\n'))
	return err
}

func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// SQLiteSink appends execution records to a local SQLite database, for
// callers who want queryable history instead of JSONL.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (creating if needed) the database at path and ensures
// the executions table exists.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	const schema = `
CREATE TABLE IF NOT EXISTS executions (
	skill_id TEXT NOT NULL,
	version TEXT NOT NULL,
	input_hash TEXT NOT NULL,
	output_hash TEXT NOT NULL,
	start_time_ms INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	permissions_used TEXT NOT NULL,
	exit_status TEXT NOT NULL,
	stdout TEXT NOT NULL,
	stderr TEXT NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteSink{db: db}, nil
}

func (s *SQLiteSink) Write(ctx context.Context, rec Record) error {
	perms, err := json.Marshal(rec.PermissionsUsed)
	if err != nil {
		return err
	}
	statusJSON, err := json.Marshal(rec.ExitStatus)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO executions (skill_id, version, input_hash, output_hash, start_time_ms, duration_ms, permissions_used, exit_status, stdout, stderr)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		rec.SkillID, rec.Version, rec.InputHash, rec.OutputHash, rec.StartTimeMs, rec.DurationMs,
		string(perms), string(statusJSON), shared.Redact(rec.Stdout), shared.Redact(rec.Stderr))
	return err
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
