package shared

import (
	"context"

	"github.com/google/uuid"
)

// traceKey is the private context key for the per-execution trace id.
type traceKey struct{}

// unknownTrace is reported when a context carries no trace id, so log
// lines always have a stable field value to filter on.
const unknownTrace = "-"

// tracePrefix marks ids minted by this runtime, distinguishing them from
// correlation ids an embedding application may attach instead.
const tracePrefix = "run-"

// WithTraceID attaches a per-execution trace id to ctx. The runtime stamps
// one at the top of every execute call so registry lookups, policy
// decisions, and backend logs for a single run can be correlated.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, traceKey{}, traceID)
}

// TraceID extracts the trace id from ctx, or "-" when none was attached.
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceKey{}).(string); ok && v != "" {
		return v
	}
	return unknownTrace
}

// NewTraceID mints a fresh execution trace id.
func NewTraceID() string {
	return tracePrefix + uuid.NewString()
}
