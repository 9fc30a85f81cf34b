// Package processor runs one command request end to end: admission, stage
// bookkeeping, dispatch, event collection and reporting.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aretw0/deckhand/internal/logging"
	"github.com/aretw0/deckhand/internal/redact"
	"github.com/aretw0/deckhand/internal/report"
	"github.com/aretw0/deckhand/pkg/activity"
	"github.com/aretw0/deckhand/pkg/domain"
	"github.com/aretw0/deckhand/pkg/ports"
	"github.com/aretw0/deckhand/pkg/stage"
	"github.com/google/uuid"
)

// Dispatcher runs an admitted request.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *domain.CommandRequest, eventsFile string) *domain.CommandResult
}

// Identifier resolves the identity of the host the agent runs on.
type Identifier interface {
	Refresh(ctx context.Context, requestID, resource string) (ports.MetadataSnapshot, error)
}

// Observer is notified of every processed command.
type Observer interface {
	ObserveCommand(status domain.Status, truncated bool)
}

// Processor executes command requests.
type Processor struct {
	engine     *activity.Engine
	tracker    *stage.Tracker
	dispatcher Dispatcher
	identity   Identifier
	instanceID string
	eventsDir  string
	truncator  report.Truncator
	observer   Observer
	redactor   *redact.Redactor
	logger     *slog.Logger
}

// Option configures the Processor.
type Option func(*Processor)

// WithLogger sets the processor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithIdentity resolves the instance id from host metadata.
func WithIdentity(id Identifier) Option {
	return func(p *Processor) {
		p.identity = id
	}
}

// WithInstanceID pins the instance id, skipping metadata lookups.
func WithInstanceID(id string) Option {
	return func(p *Processor) {
		p.instanceID = id
	}
}

// WithEventsDir sets where events files are created.
func WithEventsDir(dir string) Option {
	return func(p *Processor) {
		if dir != "" {
			p.eventsDir = dir
		}
	}
}

// WithTruncator overrides the report budgets.
func WithTruncator(t report.Truncator) Option {
	return func(p *Processor) {
		p.truncator = t
	}
}

// WithObserver registers a command observer, typically metrics.
func WithObserver(o Observer) Option {
	return func(p *Processor) {
		p.observer = o
	}
}

// WithRedactor masks sensitive request fields in the received-command log line.
func WithRedactor(r *redact.Redactor) Option {
	return func(p *Processor) {
		p.redactor = r
	}
}

// New creates a Processor.
func New(engine *activity.Engine, tracker *stage.Tracker, dispatcher Dispatcher, opts ...Option) *Processor {
	p := &Processor{
		engine:     engine,
		tracker:    tracker,
		dispatcher: dispatcher,
		eventsDir:  filepath.Join(os.TempDir(), "deckhand", "events"),
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Execute runs req when the host and stage checks admit it.
//
// The returned error is domain.ErrInadmissible for a rejected delivery, or a
// failure of the stage store or events file. Failures of the command itself
// are reported in the result.
func (p *Processor) Execute(ctx context.Context, req *domain.CommandRequest) (*domain.CommandResult, error) {
	log := p.logger.With("request_id", req.RequestID)
	log.Info(fmt.Sprintf("Received command %s: %s", req.CanonicalName(), p.redactor.Document(req.String())))

	instanceID, err := p.resolveInstance(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := p.tracker.Admit(ctx, req, instanceID); err != nil {
		return nil, err
	}

	eventsFile, err := p.createEventsFile()
	if err != nil {
		return nil, err
	}
	defer p.removeEventsFile(log, eventsFile)
	log.Debug("Created events file.", "path", eventsFile)

	var result *domain.CommandResult
	_, err = p.engine.Run(ctx, activity.Activity{Name: req.CommandName}, func(ctx context.Context) (string, error) {
		result = p.dispatcher.Dispatch(ctx, req, eventsFile)
		if result.Status == domain.StatusSuccess {
			return fmt.Sprintf("Command %s succeeded.", req.CommandName), nil
		}
		return fmt.Sprintf("Command %s failed.", req.CommandName), nil
	})
	if result == nil {
		result = domain.NewCommandResult()
		result.Fail(domain.ReturnCodePipeline, err)
	}

	events, err := report.CollectEvents(eventsFile)
	if err != nil {
		log.Warn("Failed to collect events.", "err", err)
	}
	result.Events = events

	doc, data, err := p.truncator.Report(result)
	if err != nil {
		log.Warn("Report exceeds the size budget.", "err", err)
	}
	log.Info(fmt.Sprintf("Command %s completed.", req.CanonicalName()), "report", string(data))
	if p.observer != nil {
		p.observer.ObserveCommand(result.Status, doc != nil && doc.IsTruncated())
	}
	return result, nil
}

// Report builds the bounded document for result.
func (p *Processor) Report(result *domain.CommandResult) (*report.Document, []byte, error) {
	return p.truncator.Report(result)
}

func (p *Processor) resolveInstance(ctx context.Context, req *domain.CommandRequest) (string, error) {
	if p.instanceID != "" || p.identity == nil {
		return p.instanceID, nil
	}
	snap, err := p.identity.Refresh(ctx, req.RequestID, req.ResourceName)
	if err != nil {
		return "", fmt.Errorf("failed to resolve instance id: %w", err)
	}
	return snap.Identity().InstanceID, nil
}

func (p *Processor) createEventsFile() (string, error) {
	if err := os.MkdirAll(p.eventsDir, 0755); err != nil {
		return "", fmt.Errorf("failed to ensure events directory: %w", err)
	}
	path := filepath.Join(p.eventsDir, "events-"+uuid.NewString())
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0666)
	if err != nil {
		return "", fmt.Errorf("failed to create events file: %w", err)
	}
	return path, f.Close()
}

func (p *Processor) removeEventsFile(log *slog.Logger, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn("Failed to remove events file.", "path", path, "err", err)
	}
}
