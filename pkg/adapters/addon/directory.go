// Package addon loads addons from a directory tree. Each addon is a
// subdirectory that may carry command definition overrides and hook
// directories run around commands:
//
//	<root>/<addon>/definitions.yaml
//	<root>/<addon>/before/<command>/...
//	<root>/<addon>/after/<command>/...
//
// Addons apply in name order; later addons override earlier definitions.
package addon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/deckhand/internal/logging"
	"github.com/aretw0/deckhand/pkg/activity"
	"github.com/aretw0/deckhand/pkg/domain"
	"gopkg.in/yaml.v3"
)

// DefinitionsFile is the per-addon override document.
const DefinitionsFile = "definitions.yaml"

// HookRunner runs a hook directory.
type HookRunner interface {
	Run(ctx context.Context, dir string, env []string) (string, error)
}

// Directory implements ports.Addons.
type Directory struct {
	root   string
	engine *activity.Engine
	hooks  HookRunner
	logger *slog.Logger
}

// Option configures the Directory.
type Option func(*Directory)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Directory) {
		d.logger = logger
	}
}

// NewDirectory creates addons rooted at root. An empty or missing root means
// no addons.
func NewDirectory(root string, engine *activity.Engine, hooks HookRunner, opts ...Option) *Directory {
	d := &Directory{
		root:   root,
		engine: engine,
		hooks:  hooks,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Names returns the installed addons in application order.
func (d *Directory) Names() ([]string, error) {
	if d.root == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(d.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list addons: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Amend merges every addon's definitions over defs.
func (d *Directory) Amend(ctx context.Context, defs domain.Definitions) (domain.Definitions, error) {
	names, err := d.Names()
	if err != nil {
		return nil, err
	}
	merged := domain.Definitions{}.Merge(defs)
	for _, name := range names {
		overrides, err := d.load(name)
		if err != nil {
			return nil, err
		}
		if len(overrides) == 0 {
			continue
		}
		for command := range overrides {
			d.logger.Info("Addon overrides command definition", "addon", name, "command", command)
		}
		merged = merged.Merge(overrides)
	}
	return merged, nil
}

func (d *Directory) load(name string) (domain.Definitions, error) {
	data, err := os.ReadFile(filepath.Join(d.root, name, DefinitionsFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read addon %s definitions: %w", name, err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse addon %s definitions: %w", name, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	defs, err := domain.DecodeDefinitions(raw)
	if err != nil {
		return nil, fmt.Errorf("addon %s: %w", name, err)
	}
	return defs, nil
}

// Before runs every addon's before hooks of commandName.
func (d *Directory) Before(ctx context.Context, commandName string, env []string) (string, error) {
	return d.run(ctx, "before", commandName, env)
}

// After runs every addon's after hooks of commandName.
func (d *Directory) After(ctx context.Context, commandName string, env []string) (string, error) {
	return d.run(ctx, "after", commandName, env)
}

func (d *Directory) run(ctx context.Context, phase, commandName string, env []string) (string, error) {
	names, err := d.Names()
	if err != nil {
		return "", err
	}
	var ran []string
	for _, name := range names {
		dir := filepath.Join(d.root, name, phase, commandName)
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}
		_, err := d.engine.Run(ctx, activity.Activity{Name: name}, func(ctx context.Context) (string, error) {
			return d.hooks.Run(ctx, dir, env)
		})
		if err != nil {
			return "", err
		}
		ran = append(ran, name)
	}
	if len(ran) == 0 {
		return "", nil
	}
	return fmt.Sprintf("Ran %s hooks of addons: %s.", phase, strings.Join(ran, ", ")), nil
}
