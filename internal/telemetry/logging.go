// Package telemetry builds the process-wide structured logger. Every
// component receives a child of this logger by constructor injection; none
// construct their own.
package telemetry

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/basket/go-claw/internal/shared"
)

// logFileName is the append-only JSONL log under <home>/logs.
const logFileName = "runtime.jsonl"

// sensitiveKeyTokens mark attribute keys whose values are always replaced
// wholesale, regardless of content.
var sensitiveKeyTokens = []string{
	"token", "secret", "password", "authorization", "api_key", "apikey", "bearer",
}

// NewLogger opens the log file under homeDir/logs and returns a JSON
// slog.Logger writing there (and to stdout unless quiet). Attribute values
// pass through the shared secret redaction before they are persisted.
func NewLogger(homeDir, level string, quiet bool) (*slog.Logger, io.Closer, error) {
	logDir := filepath.Join(homeDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, nil, err
	}

	file, err := os.OpenFile(filepath.Join(logDir, logFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}

	var w io.Writer = file
	if !quiet {
		w = io.MultiWriter(os.Stdout, file)
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       parseLevel(level),
		ReplaceAttr: sanitizeAttr,
	})
	logger := slog.New(handler).With("component", "runtime", "trace_id", "-")
	return logger, file, nil
}

// sanitizeAttr renames the time key and scrubs secret-bearing attributes.
func sanitizeAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		a.Key = "timestamp"
	}
	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, "[REDACTED]")
	}
	if a.Value.Kind() == slog.KindString {
		if redacted, changed := redactValue(a.Value.String()); changed {
			return slog.String(a.Key, redacted)
		}
	}
	return a
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(strings.TrimSpace(key))
	if lower == "" {
		return false
	}
	for _, token := range sensitiveKeyTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

// redactValue fully replaces strings that embed credentials, then falls
// back to the shared pattern-based redaction for anything subtler.
func redactValue(v string) (string, bool) {
	lower := strings.ToLower(v)
	if strings.Contains(lower, "bearer ") || strings.Contains(lower, "api_key") || strings.Contains(lower, "authorization:") {
		return "[REDACTED]", true
	}
	redacted := shared.Redact(v)
	if redacted != v {
		return redacted, true
	}
	return v, false
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
