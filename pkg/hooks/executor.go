// Package hooks discovers and runs directories of hook executables.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/deckhand/internal/logging"
	"github.com/aretw0/deckhand/pkg/activity"
)

// FileRunner runs one executable file.
type FileRunner interface {
	RunFile(ctx context.Context, path string, env []string) (string, error)
}

// Executor runs every eligible file of a hook directory as its own activity.
type Executor struct {
	engine *activity.Engine
	runner FileRunner
	logger *slog.Logger
}

// Option configures the Executor.
type Option func(*Executor)

// WithLogger sets the executor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// NewExecutor creates an Executor.
func NewExecutor(engine *activity.Engine, runner FileRunner, opts ...Option) *Executor {
	e := &Executor{
		engine: engine,
		runner: runner,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the eligible files of dir in name order, each nested under the
// current activity as an activity named after the file. The first failure
// stops the directory. A missing directory has nothing to run.
func (e *Executor) Run(ctx context.Context, dir string, env []string) (string, error) {
	files, err := Discover(dir)
	if err != nil {
		return "", err
	}
	e.logger.Debug("Discovered hooks", "dir", dir, "count", len(files))

	for _, path := range files {
		_, err := e.engine.Run(ctx, activity.Activity{Name: filepath.Base(path)}, func(ctx context.Context) (string, error) {
			return e.runner.RunFile(ctx, path, env)
		})
		if err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("Successfully execute directory: %s.", dir), nil
}

// Discover returns the eligible files of dir, sorted by name.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read hook directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		// Stat follows symlinks.
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if Eligible(entry.Name(), info) {
			files = append(files, path)
		}
	}
	sort.Strings(files)
	return files, nil
}

// Eligible reports whether a directory entry is a runnable hook: a regular
// executable file that is not hidden and not a .bak or .tmp leftover.
func Eligible(name string, info fs.FileInfo) bool {
	if !info.Mode().IsRegular() || info.Mode().Perm()&0111 == 0 {
		return false
	}
	if strings.HasPrefix(name, ".") {
		return false
	}
	return !strings.HasSuffix(name, ".bak") && !strings.HasSuffix(name, ".tmp")
}
