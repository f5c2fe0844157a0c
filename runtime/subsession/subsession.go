// Package subsession runs bounded, isolated AI conversations on a shared
// connection. Each run creates exactly one session, sends one prompt, drains
// the event stream, and guarantees the session is destroyed before returning.
// Failures of any kind, protocol or otherwise, are normalized into the
// returned Result; Run never returns a Go error and never lets a teardown
// failure mask the primary outcome.
package subsession

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/deckpilot/deckpilot/runtime/connection"
	"github.com/deckpilot/deckpilot/runtime/telemetry"
)

type (
	// Result captures the outcome of one sub-session run.
	Result struct {
		// Text is the accumulated assistant text. Delta events append to it;
		// a full assistant.message event replaces it wholesale, which covers
		// backends that resend the complete message instead of streaming.
		Text string
		// Events lists every consumed event in arrival order.
		Events []connection.Event
		// Success reports whether the run completed without error.
		Success bool
		// Err carries the failure detail when Success is false.
		Err string
	}

	// Factory runs sub-sessions. The zero value is not usable; construct
	// with New.
	Factory struct {
		log     telemetry.Logger
		metrics telemetry.Metrics
	}

	// Option configures a Factory.
	Option func(*Factory)
)

// WithLogger overrides the Clue-backed default logger.
func WithLogger(l telemetry.Logger) Option {
	return func(f *Factory) { f.log = l }
}

// WithMetrics overrides the OTEL-backed default metrics recorder.
func WithMetrics(m telemetry.Metrics) Option {
	return func(f *Factory) { f.metrics = m }
}

// New constructs a Factory.
func New(opts ...Option) *Factory {
	f := &Factory{
		log:     telemetry.NewClueLogger(),
		metrics: telemetry.NewClueMetrics(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Run executes one bounded conversation: create a session with cfg, send
// userPrompt, consume events until the stream ends or a session.error
// arrives, and destroy the session.
//
// onEvent, when non-nil, is invoked for every consumed event before the
// accumulation rules are applied, so observers see raw events even when the
// run terminates early. The session is destroyed exactly once on every path;
// a destroy failure is logged and swallowed.
func (f *Factory) Run(
	ctx context.Context,
	conn connection.Connection,
	cfg connection.SessionConfig,
	userPrompt string,
	onEvent func(connection.Event),
) Result {
	id := uuid.NewString()
	start := time.Now()
	f.metrics.IncCounter("subsession.started", 1, "model", cfg.Model)
	defer func() {
		f.metrics.RecordTimer("subsession.duration", time.Since(start), "model", cfg.Model)
	}()

	sess, err := conn.CreateSession(ctx, cfg)
	if err != nil {
		f.log.Error(ctx, "sub-session create failed", "subsession_id", id, "model", cfg.Model, "error", err)
		f.metrics.IncCounter("subsession.failed", 1, "stage", "create")
		return Result{Err: err.Error()}
	}
	defer f.destroy(ctx, sess, id)

	res := f.consume(ctx, sess, userPrompt, onEvent)
	if !res.Success {
		f.log.Warn(ctx, "sub-session failed", "subsession_id", id, "error", res.Err)
		f.metrics.IncCounter("subsession.failed", 1, "stage", "stream")
	}
	return res
}

func (f *Factory) consume(
	ctx context.Context,
	sess connection.Session,
	userPrompt string,
	onEvent func(connection.Event),
) Result {
	stream, err := sess.Query(ctx, userPrompt)
	if err != nil {
		return Result{Err: err.Error()}
	}
	var res Result
	for {
		ev, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				res.Success = true
				return res
			}
			res.Err = err.Error()
			return res
		}
		res.Events = append(res.Events, ev)
		if onEvent != nil {
			onEvent(ev)
		}
		if delta, ok := ev.MessageDelta(); ok {
			res.Text += delta
			continue
		}
		if content, ok := ev.Message(); ok {
			// Full message replaces accumulated delta text.
			res.Text = content
			continue
		}
		if msg, ok := ev.ErrorMessage(); ok {
			if msg == "" {
				msg = "session error"
			}
			res.Err = msg
			return res
		}
		// Unrecognized event types are ignored.
	}
}

// destroy releases the session, detached from any caller cancellation so
// teardown still runs when the surrounding context is done.
func (f *Factory) destroy(ctx context.Context, sess connection.Session, id string) {
	if err := sess.Destroy(context.WithoutCancel(ctx)); err != nil {
		f.log.Warn(ctx, "sub-session destroy failed", "subsession_id", id, "error", err)
	}
}
