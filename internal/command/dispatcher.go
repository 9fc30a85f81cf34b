// Package command runs a command request: the definition-driven stage
// pipeline when the command has a definition, otherwise a single call
// applying configuration sets.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/aretw0/deckhand/internal/logging"
	"github.com/aretw0/deckhand/pkg/activity"
	"github.com/aretw0/deckhand/pkg/domain"
	"github.com/aretw0/deckhand/pkg/ports"
)

// DefaultHooksRoot is where hook action directories are resolved.
const DefaultHooksRoot = "/opt/deckhand/hooks"

// ActionRunner runs infra and shell actions.
type ActionRunner interface {
	RunInfra(ctx context.Context, name string, env []string) (string, error)
	RunShell(ctx context.Context, command string, env []string) (string, error)
}

// HookRunner runs every eligible executable of a directory.
type HookRunner interface {
	Run(ctx context.Context, dir string, env []string) (string, error)
}

// Dispatcher selects and runs the variant for a request inside the
// activity engine.
type Dispatcher struct {
	engine    *activity.Engine
	metadata  ports.EnvironmentMetadata
	config    ports.ConfigRunner
	addons    ports.Addons
	actions   ActionRunner
	hooks     HookRunner
	hooksRoot string
	logger    *slog.Logger
}

// Option configures the Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithAddons sets the addon collaborator. Without it no addons run.
func WithAddons(addons ports.Addons) Option {
	return func(d *Dispatcher) {
		d.addons = addons
	}
}

// WithHooksRoot overrides DefaultHooksRoot.
func WithHooksRoot(root string) Option {
	return func(d *Dispatcher) {
		if root != "" {
			d.hooksRoot = root
		}
	}
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(engine *activity.Engine, metadata ports.EnvironmentMetadata, config ports.ConfigRunner, actions ActionRunner, hooks HookRunner, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		engine:    engine,
		metadata:  metadata,
		config:    config,
		addons:    noAddons{},
		actions:   actions,
		hooks:     hooks,
		hooksRoot: DefaultHooksRoot,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Definitions refreshes metadata and returns the command definitions with
// addon overrides applied.
func (d *Dispatcher) Definitions(ctx context.Context, req *domain.CommandRequest) (domain.Definitions, error) {
	_, defs, err := d.resolve(ctx, req)
	return defs, err
}

// resolve loads the metadata snapshot req runs against.
func (d *Dispatcher) resolve(ctx context.Context, req *domain.CommandRequest) (ports.MetadataSnapshot, domain.Definitions, error) {
	snap, err := d.metadata.Refresh(ctx, req.RequestID, req.ResourceName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to refresh environment metadata: %w", err)
	}
	d.logger.Debug("Refreshed environment metadata.")

	defs, err := snap.CommandDefinitions(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load command definitions: %w", err)
	}
	defs, err = d.addons.Amend(ctx, defs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to apply addon definitions: %w", err)
	}
	return snap, defs, nil
}

// Dispatch runs req and reports the outcome as a result. Failures never
// escape as errors: they become a FAILURE result whose return code tells a
// pipeline failure (1) from a failed configuration call (2).
func (d *Dispatcher) Dispatch(ctx context.Context, req *domain.CommandRequest, eventsFile string) *domain.CommandResult {
	env := NewEnvironment(req, eventsFile)

	snap, defs, err := d.resolve(ctx, req)
	if err != nil {
		d.logger.Error("Command execution failed", "err", err)
		result := domain.NewCommandResult()
		result.Fail(domain.ReturnCodePipeline, err)
		return result
	}

	if def, ok := defs[req.CommandName]; ok {
		return d.runPipeline(ctx, snap, req, def, env)
	}
	return d.runTemplate(ctx, snap, req, env)
}

func (d *Dispatcher) hookDir(value string) string {
	if filepath.IsAbs(value) {
		return value
	}
	return filepath.Join(d.hooksRoot, value)
}

type noAddons struct{}

func (noAddons) Amend(ctx context.Context, defs domain.Definitions) (domain.Definitions, error) {
	return defs, nil
}

func (noAddons) Before(ctx context.Context, commandName string, env []string) (string, error) {
	return "", nil
}

func (noAddons) After(ctx context.Context, commandName string, env []string) (string, error) {
	return "", nil
}
