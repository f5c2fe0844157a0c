// Package deck turns a free-form deck request into a finished slide deck by
// chaining bounded AI sub-sessions: one planning session that emits a
// structured plan, then one building session per slide, run serially with
// bounded retries and cooperative cancellation between slides.
package deck

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/deckpilot/deckpilot/runtime/connection"
	"github.com/deckpilot/deckpilot/runtime/subsession"
	"github.com/deckpilot/deckpilot/runtime/telemetry"
	"github.com/deckpilot/deckpilot/runtime/tools"
)

// Status tracks a slide through the pipeline.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

type (
	// SlideProgress is the per-slide record returned from Generate and
	// surfaced through Callbacks.OnSlideProgress. Err is set only once the
	// slide has exhausted its attempts.
	SlideProgress struct {
		Plan   SlidePlan
		Status Status
		Err    error
	}

	// Callbacks deliver orchestrator progress to the caller. Every field is
	// optional; nil callbacks are skipped. Callbacks are invoked from the
	// goroutine running Generate, in order.
	Callbacks struct {
		// OnPlan fires once after a valid plan has been extracted.
		OnPlan func(plan Plan)
		// OnSlideProgress fires on every slide state change.
		OnSlideProgress func(index int, progress SlideProgress)
		// OnText carries user-facing narration: planner deltas, per-slide
		// announcements, retry notices and the final summary.
		OnText func(text string)
		// OnWorkerEvent relays raw events from building sub-sessions.
		OnWorkerEvent func(index int, event connection.Event)
		// OnComplete fires once with the final per-slide results, on every
		// path that produced a plan, including cancellation.
		OnComplete func(results []SlideProgress)
		// OnError fires on fatal orchestration failures that abort the run
		// before any slide is built.
		OnError func(message string)
	}

	// Orchestrator drives the planner/worker pipeline. A single Orchestrator
	// is safe for concurrent Generate calls since all run state is local.
	Orchestrator struct {
		factory *subsession.Factory
		model   string
		tools   []tools.Tool
		retry   RetryPolicy
		limiter *rate.Limiter
		log     telemetry.Logger
		metrics telemetry.Metrics
	}

	// Option configures an Orchestrator.
	Option func(*Orchestrator)
)

var tracer = otel.Tracer("github.com/deckpilot/deckpilot/runtime/deck")

// WithTools sets the tool set handed to every building sub-session. The
// planning sub-session never receives tools.
func WithTools(ts []tools.Tool) Option {
	return func(o *Orchestrator) { o.tools = ts }
}

// WithRetryPolicy overrides the per-slide retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *Orchestrator) { o.retry = p }
}

// WithLimiter throttles sub-session creation. When set, Generate waits on
// the limiter before starting each planner or worker session.
func WithLimiter(l *rate.Limiter) Option {
	return func(o *Orchestrator) { o.limiter = l }
}

// WithLogger overrides the default logger.
func WithLogger(l telemetry.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithMetrics overrides the default metrics sink.
func WithMetrics(m telemetry.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithFactory overrides the sub-session factory, mainly for tests.
func WithFactory(f *subsession.Factory) Option {
	return func(o *Orchestrator) { o.factory = f }
}

// New creates an Orchestrator that plans and builds decks with the given
// model.
func New(model string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		model:   model,
		retry:   DefaultRetryPolicy,
		log:     telemetry.NewClueLogger(),
		metrics: telemetry.NewClueMetrics(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.factory == nil {
		o.factory = subsession.New(
			subsession.WithLogger(o.log),
			subsession.WithMetrics(o.metrics),
		)
	}
	return o
}

// Generate runs the full pipeline for one deck request: plan, then build
// each slide in order. It returns the final per-slide results. A non-nil
// error means the run aborted before any slide was built; individual slide
// failures are reported in the results, not as an error. The cancel token
// may be nil.
func (o *Orchestrator) Generate(ctx context.Context, conn connection.Connection, request string, cancel *CancelToken, cb Callbacks) ([]SlideProgress, error) {
	ctx, span := tracer.Start(ctx, "deck.generate")
	defer span.End()

	start := time.Now()
	o.metrics.IncCounter("deck.started", 1)

	plan, err := o.plan(ctx, conn, request, cb)
	if err != nil {
		msg := fmt.Sprintf("deck planning failed: %s", err)
		o.log.Error(ctx, "deck planning failed", "err", err)
		o.metrics.IncCounter("deck.failed", 1, "stage", "planning")
		cb.error(msg)
		return nil, err
	}
	span.SetAttributes(attribute.Int("deck.slides", len(plan.Slides)))
	cb.plan(plan)

	progress := make([]SlideProgress, len(plan.Slides))
	for i, sp := range plan.Slides {
		progress[i] = SlideProgress{Plan: sp, Status: StatusPending}
	}

	canceled := false
	for i := range plan.Slides {
		if cancel.Canceled() {
			canceled = true
			cb.text(fmt.Sprintf("Deck generation canceled after %d of %d slides.", i, len(plan.Slides)))
			o.log.Info(ctx, "deck generation canceled", "completed", i, "total", len(plan.Slides))
			break
		}
		progress[i].Status = StatusRunning
		cb.slideProgress(i, progress[i])
		cb.text(fmt.Sprintf("Working on slide %d of %d: %s", i+1, len(plan.Slides), plan.Slides[i].Title))

		if err := o.runSlide(ctx, conn, plan.Slides[i], len(plan.Slides), cb); err != nil {
			progress[i].Status = StatusFailed
			progress[i].Err = err
			o.metrics.IncCounter("deck.slide.failed", 1)
			o.log.Warn(ctx, "slide failed", "slide", i, "err", err)
		} else {
			progress[i].Status = StatusDone
			o.metrics.IncCounter("deck.slide.done", 1)
		}
		cb.slideProgress(i, progress[i])
	}

	done, failed := 0, 0
	for _, p := range progress {
		switch p.Status {
		case StatusDone:
			done++
		case StatusFailed:
			failed++
		}
	}
	summary := fmt.Sprintf("Completed %d of %d slides.", done, len(plan.Slides))
	if failed > 0 {
		summary += fmt.Sprintf(" %d failed.", failed)
	}
	cb.text(summary)
	cb.complete(progress)

	o.metrics.RecordTimer("deck.duration", time.Since(start))
	o.log.Info(ctx, "deck generation finished",
		"slides", len(plan.Slides), "done", done, "failed", failed, "canceled", canceled)
	return progress, nil
}

// plan runs the planning sub-session and extracts the structured plan from
// its final text. Planner deltas are narrated through OnText as they
// arrive.
func (o *Orchestrator) plan(ctx context.Context, conn connection.Connection, request string, cb Callbacks) (Plan, error) {
	ctx, span := tracer.Start(ctx, "deck.plan")
	defer span.End()

	if err := o.wait(ctx); err != nil {
		return Plan{}, err
	}
	cfg := connection.SessionConfig{
		Model:        o.model,
		SystemPrompt: plannerSystemPrompt,
	}
	res := o.factory.Run(ctx, conn, cfg, plannerPrompt(request), func(ev connection.Event) {
		if delta, ok := ev.MessageDelta(); ok {
			cb.text(delta)
		}
	})
	if !res.Success {
		return Plan{}, fmt.Errorf("planning session: %s", res.Err)
	}
	plan, err := ExtractPlan(res.Text)
	if err != nil {
		return Plan{}, err
	}
	return plan, nil
}

// runSlide builds one slide, retrying per the policy. Each attempt is an
// independent sub-session with an identical prompt and tool set. The error
// from the last attempt wins.
func (o *Orchestrator) runSlide(ctx context.Context, conn connection.Connection, slide SlidePlan, total int, cb Callbacks) error {
	ctx, span := tracer.Start(ctx, "deck.slide")
	span.SetAttributes(attribute.Int("deck.slide.index", slide.Index))
	defer span.End()

	cfg := connection.SessionConfig{
		Model:        o.model,
		SystemPrompt: workerSystemPrompt,
		Tools:        o.tools,
	}
	prompt := workerPrompt(slide, total)

	var lastErr error
	for attempt := 1; attempt <= o.retry.attempts(); attempt++ {
		if attempt > 1 {
			cb.text(fmt.Sprintf("Retrying slide %d...", slide.Index+1))
			o.metrics.IncCounter("deck.slide.retried", 1)
		}
		if err := o.wait(ctx); err != nil {
			return err
		}
		res := o.factory.Run(ctx, conn, cfg, prompt, func(ev connection.Event) {
			cb.workerEvent(slide.Index, ev)
		})
		if res.Success {
			return nil
		}
		if res.Err != "" {
			lastErr = errors.New(res.Err)
		} else {
			lastErr = fmt.Errorf("slide %d attempt %d failed", slide.Index, attempt)
		}
	}
	return lastErr
}

// wait blocks on the session limiter when one is configured.
func (o *Orchestrator) wait(ctx context.Context) error {
	if o.limiter == nil {
		return nil
	}
	if err := o.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("session limiter: %w", err)
	}
	return nil
}

func (c Callbacks) plan(p Plan) {
	if c.OnPlan != nil {
		c.OnPlan(p)
	}
}

func (c Callbacks) slideProgress(i int, p SlideProgress) {
	if c.OnSlideProgress != nil {
		c.OnSlideProgress(i, p)
	}
}

func (c Callbacks) text(s string) {
	if c.OnText != nil && s != "" {
		c.OnText(s)
	}
}

func (c Callbacks) workerEvent(i int, ev connection.Event) {
	if c.OnWorkerEvent != nil {
		c.OnWorkerEvent(i, ev)
	}
}

func (c Callbacks) complete(results []SlideProgress) {
	if c.OnComplete != nil {
		c.OnComplete(results)
	}
}

func (c Callbacks) error(msg string) {
	if c.OnError != nil {
		c.OnError(msg)
	}
}
