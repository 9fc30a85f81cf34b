package activity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/deckhand/internal/logging"
	"github.com/aretw0/deckhand/pkg/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Body is a unit of work supervised by the engine. It must honour ctx
// cancellation; the engine cannot stop a body that ignores it. A body
// abandoned on timeout no longer writes to the history.
type Body func(ctx context.Context) (string, error)

// Activity configures how a body is supervised.
type Activity struct {
	Name string
	// Timeout bounds the whole activity, retries included. Zero is unbounded.
	Timeout time.Duration
	// MaxRetries is how many times a retryable failure re-invokes the body.
	MaxRetries int
	// Retryable lists the failure kinds that count as expected failures.
	// Nil means DefaultRetryable.
	Retryable []domain.Kind
}

// DefaultRetryable is the retryable set used when an Activity leaves it nil.
var DefaultRetryable = []domain.Kind{domain.KindRuntime, domain.KindExec}

// Outcome is how an activity ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeInternal  Outcome = "internal_failure"
	OutcomeTimedOut  Outcome = "timed_out"
	// OutcomeAborted is an activity ended by the failure of a nested activity.
	OutcomeAborted Outcome = "aborted"
)

// Event describes an activity for lifecycle hooks.
type Event struct {
	Name     string
	Path     string
	Outcome  Outcome
	Attempts int
	Duration time.Duration
	Err      error
}

// Hooks observe the activity lifecycle. Nil callbacks are skipped.
type Hooks struct {
	OnStart  func(context.Context, Event)
	OnFinish func(context.Context, Event)
}

// Engine supervises activities: hierarchical naming, retries, deadlines and history.
type Engine struct {
	logger   *slog.Logger
	history  *History
	hooks    Hooks
	tracer   trace.Tracer
	now      func() time.Time
	inflight atomic.Int64
}

// Option configures the Engine.
type Option func(*Engine)

// WithLogger sets the logger activities report to.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithHistory sets the history sink. The engine does not close it.
func WithHistory(h *History) Option {
	return func(e *Engine) {
		e.history = h
	}
}

// WithHooks registers lifecycle hooks.
func WithHooks(h Hooks) Option {
	return func(e *Engine) {
		e.hooks = h
	}
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// NewEngine creates an engine. Without options it logs nowhere and keeps an
// in-memory history.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		logger:  logging.NewNop(),
		history: NewHistory(),
		tracer:  otel.Tracer("github.com/aretw0/deckhand/pkg/activity"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// History returns the engine's history sink.
func (e *Engine) History() *History {
	return e.history
}

// InFlight returns the number of activities currently running.
func (e *Engine) InFlight() int {
	return int(e.inflight.Load())
}

// Run executes body as the activity act nested under the activities of ctx.
//
// Failures come back as *domain.ActivityError: KindTimeout when the deadline
// elapses, KindFatal when a retryable failure exhausts its retries and
// KindInternal for any other failure. An ActivityError raised by a nested
// activity is returned unchanged.
func (e *Engine) Run(ctx context.Context, act Activity, body Body) (string, error) {
	ctx, path := push(ctx, act.Name)
	ctx, span := e.tracer.Start(ctx, act.Name, trace.WithAttributes(attribute.String("activity.path", path)))
	log := e.logger.With("activity", path)

	e.inflight.Add(1)
	start := e.now()
	log.InfoContext(ctx, "Starting activity...")
	e.history.Append(start, fmt.Sprintf("Activity [%s] started.", path))
	if e.hooks.OnStart != nil {
		e.hooks.OnStart(ctx, Event{Name: act.Name, Path: path})
	}

	var state attemptState
	result, err := e.supervise(ctx, act, path, log, body, &state)
	state.close()

	outcome := OutcomeCompleted
	if err != nil {
		outcome = classify(err, path)
	}

	switch outcome {
	case OutcomeCompleted:
		if formatted := formatResult(result); formatted != "" {
			log.InfoContext(ctx, "Completed activity. Result:\n"+formatted)
		} else {
			result = ""
			log.InfoContext(ctx, "Completed activity.")
		}
		span.SetStatus(codes.Ok, "")
	default:
		var ae *domain.ActivityError
		if errors.As(err, &ae) {
			log.InfoContext(ctx, ae.Reason)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, string(outcome))
	}

	e.history.Append(e.now(), terminalMessage(path, outcome))
	span.End()
	e.inflight.Add(-1)
	if e.hooks.OnFinish != nil {
		e.hooks.OnFinish(ctx, Event{
			Name:     act.Name,
			Path:     path,
			Outcome:  outcome,
			Attempts: int(state.attempts.Load()),
			Duration: e.now().Sub(start),
			Err:      err,
		})
	}
	return result, err
}

type attemptResult struct {
	result string
	err    error
}

// attemptState is shared by Run and the retry loop, which may outlive Run
// when a body ignores cancellation.
type attemptState struct {
	attempts atomic.Int32

	mu     sync.Mutex
	closed bool
}

// record appends to the history unless the activity has already ended.
func (s *attemptState) record(e *Engine, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	e.history.Append(e.now(), message)
}

func (s *attemptState) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// supervise enforces the deadline around the retry loop.
func (e *Engine) supervise(ctx context.Context, act Activity, path string, log *slog.Logger, body Body, state *attemptState) (string, error) {
	if act.Timeout <= 0 {
		return e.attempt(ctx, act, path, log, body, state)
	}

	tctx, cancel := context.WithTimeout(ctx, act.Timeout)
	defer cancel()

	done := make(chan attemptResult, 1)
	go func() {
		result, err := e.attempt(tctx, act, path, log, body, state)
		done <- attemptResult{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && ownDeadline(ctx, tctx) {
			return "", timeoutError(act, path, log)
		}
		return out.result, out.err
	case <-tctx.Done():
		if ownDeadline(ctx, tctx) {
			return "", timeoutError(act, path, log)
		}
		// The parent's deadline or cancellation: the enclosing activity reports it.
		return "", &domain.ActivityError{
			Kind:   domain.KindInternal,
			Msg:    ctx.Err().Error(),
			Reason: domain.ReasonInternal,
			Path:   path,
			Err:    ctx.Err(),
		}
	}
}

func ownDeadline(parent, tctx context.Context) bool {
	return parent.Err() == nil && errors.Is(tctx.Err(), context.DeadlineExceeded)
}

func timeoutError(act Activity, path string, log *slog.Logger) error {
	msg := fmt.Sprintf("Activity timed out after %s.", act.Timeout)
	log.Info(msg)
	return &domain.ActivityError{
		Kind:   domain.KindTimeout,
		Msg:    msg,
		Reason: domain.ReasonTimeout,
		Path:   path,
		Err:    context.DeadlineExceeded,
	}
}

// attempt runs body until it succeeds, fails with a non-retryable kind or
// exhausts its retries.
func (e *Engine) attempt(ctx context.Context, act Activity, path string, log *slog.Logger, body Body, state *attemptState) (string, error) {
	retryable := act.Retryable
	if retryable == nil {
		retryable = DefaultRetryable
	}

	retries := 0
	for {
		state.attempts.Add(1)
		result, err := invoke(ctx, body)
		if err == nil {
			return result, nil
		}
		if domain.IsActivityError(err) {
			return "", err
		}
		if domain.KindOf(err) == domain.KindConfig {
			log.Info("Activity has configuration error", "error", err)
			return "", &domain.ActivityError{
				Kind:   domain.KindFatal,
				Msg:    err.Error(),
				Reason: domain.ReasonFailed,
				Path:   path,
				Err:    err,
			}
		}
		if !containsKind(retryable, domain.KindOf(err)) {
			log.Info("Activity has unexpected exception", "error", err)
			return "", &domain.ActivityError{
				Kind:   domain.KindInternal,
				Msg:    err.Error(),
				Reason: domain.ReasonInternal,
				Path:   path,
				Err:    err,
			}
		}

		log.Info("Activity execution failed", "error", err)
		if retries < act.MaxRetries && ctx.Err() == nil {
			retries++
			log.Info(fmt.Sprintf("Retrying %d of %d...", retries, act.MaxRetries))
			state.record(e, fmt.Sprintf("Activity [%s] retrying.", path))
			continue
		}
		if act.MaxRetries > 0 {
			log.Info(fmt.Sprintf("Reached activity retry limit of %d.", act.MaxRetries))
		}
		return "", &domain.ActivityError{
			Kind:   domain.KindFatal,
			Msg:    err.Error(),
			Reason: domain.ReasonFailed,
			Path:   path,
			Err:    err,
		}
	}
}

func invoke(ctx context.Context, body Body) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return body(ctx)
}

func containsKind(kinds []domain.Kind, kind domain.Kind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// classify maps a failure onto an outcome. Failures raised by nested
// activities carry a deeper path.
func classify(err error, path string) Outcome {
	var ae *domain.ActivityError
	if !errors.As(err, &ae) {
		return OutcomeInternal
	}
	if ae.Path != path {
		return OutcomeAborted
	}
	switch ae.Kind {
	case domain.KindTimeout:
		return OutcomeTimedOut
	case domain.KindFatal:
		return OutcomeFailed
	default:
		return OutcomeInternal
	}
}

func terminalMessage(path string, outcome Outcome) string {
	switch outcome {
	case OutcomeCompleted:
		return fmt.Sprintf("Activity [%s] completed.", path)
	case OutcomeTimedOut:
		return fmt.Sprintf("Activity [%s] timed out.", path)
	case OutcomeInternal:
		return fmt.Sprintf("Activity [%s] internal failure.", path)
	default:
		return fmt.Sprintf("Activity [%s] failed.", path)
	}
}

// formatResult indents a non-blank result by two spaces per line and returns
// "" for blank results.
func formatResult(result string) string {
	if strings.TrimSpace(result) == "" {
		return ""
	}
	return "  " + strings.ReplaceAll(result, "\n", "\n  ")
}
