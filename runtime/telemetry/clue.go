package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"goa.design/clue/log"
)

type (
	// ClueLogger delegates to goa.design/clue/log. Formatting and debug
	// settings come from the context (set via log.Context and friends).
	ClueLogger struct{}

	// ClueMetrics records counters and timers through the global OTEL
	// MeterProvider. Configure the provider before use, typically via
	// clue.ConfigureOpenTelemetry in the hosting process.
	ClueMetrics struct {
		meter metric.Meter
	}
)

// NewClueLogger constructs a Logger backed by Clue.
func NewClueLogger() Logger {
	return ClueLogger{}
}

// NewClueMetrics constructs a Metrics recorder backed by OTEL metrics.
func NewClueMetrics() Metrics {
	return &ClueMetrics{meter: otel.Meter("github.com/deckpilot/deckpilot")}
}

// Debug emits a debug-level log message with structured key-value pairs.
func (ClueLogger) Debug(ctx context.Context, msg string, keyvals ...any) {
	log.Debug(ctx, fielders(msg, keyvals)...)
}

// Info emits an info-level log message with structured key-value pairs.
func (ClueLogger) Info(ctx context.Context, msg string, keyvals ...any) {
	log.Info(ctx, fielders(msg, keyvals)...)
}

// Warn emits a warning-level log message with structured key-value pairs.
func (ClueLogger) Warn(ctx context.Context, msg string, keyvals ...any) {
	log.Warn(ctx, fielders(msg, keyvals)...)
}

// Error emits an error-level log message with structured key-value pairs.
func (ClueLogger) Error(ctx context.Context, msg string, keyvals ...any) {
	log.Error(ctx, nil, fielders(msg, keyvals)...)
}

// IncCounter increments a counter metric by the given value.
func (m *ClueMetrics) IncCounter(name string, value float64, tags ...string) {
	counter, err := m.meter.Float64Counter(name)
	if err != nil {
		return
	}
	counter.Add(context.Background(), value, metric.WithAttributes(tagAttrs(tags)...))
}

// RecordTimer records a duration histogram metric in seconds.
func (m *ClueMetrics) RecordTimer(name string, duration time.Duration, tags ...string) {
	histogram, err := m.meter.Float64Histogram(name)
	if err != nil {
		return
	}
	histogram.Record(context.Background(), duration.Seconds(), metric.WithAttributes(tagAttrs(tags)...))
}

// fielders converts a message plus variadic key-value pairs into Clue log
// fielders. Non-string keys are skipped; a trailing key without a value is
// paired with nil.
func fielders(msg string, keyvals []any) []log.Fielder {
	fs := []log.Fielder{log.KV{K: "msg", V: msg}}
	for i := 0; i < len(keyvals); i += 2 {
		k, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		var v any
		if i+1 < len(keyvals) {
			v = keyvals[i+1]
		}
		fs = append(fs, log.KV{K: k, V: v})
	}
	return fs
}

// tagAttrs converts flat tag pairs (k1, v1, k2, v2, ...) into OTEL attributes.
// A trailing key without a value is paired with an empty string.
func tagAttrs(tags []string) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for i := 0; i < len(tags); i += 2 {
		v := ""
		if i+1 < len(tags) {
			v = tags[i+1]
		}
		attrs = append(attrs, attribute.String(tags[i], v))
	}
	return attrs
}
