// Package telemetry defines the small logging and metrics surfaces used
// throughout deckpilot. Implementations delegate to Clue and OpenTelemetry;
// the interfaces are intentionally narrow so tests can provide stubs.
package telemetry

import (
	"context"
	"time"
)

// Logger captures structured logging used by the orchestration core.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics exposes counter and timer helpers for instrumentation. Tags are
// flat key/value pairs (k1, v1, k2, v2, ...).
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, duration time.Duration, tags ...string)
}
