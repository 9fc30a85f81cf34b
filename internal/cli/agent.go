package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aretw0/deckhand/internal/command"
	"github.com/aretw0/deckhand/internal/config"
	"github.com/aretw0/deckhand/internal/logging"
	"github.com/aretw0/deckhand/internal/metrics"
	"github.com/aretw0/deckhand/internal/processor"
	"github.com/aretw0/deckhand/internal/redact"
	"github.com/aretw0/deckhand/pkg/activity"
	"github.com/aretw0/deckhand/pkg/adapters/addon"
	"github.com/aretw0/deckhand/pkg/adapters/cfn"
	"github.com/aretw0/deckhand/pkg/adapters/file"
	"github.com/aretw0/deckhand/pkg/adapters/memory"
	"github.com/aretw0/deckhand/pkg/adapters/metadata"
	"github.com/aretw0/deckhand/pkg/adapters/process"
	"github.com/aretw0/deckhand/pkg/adapters/redis"
	"github.com/aretw0/deckhand/pkg/adapters/sqlite"
	"github.com/aretw0/deckhand/pkg/hooks"
	"github.com/aretw0/deckhand/pkg/ports"
	"github.com/aretw0/deckhand/pkg/stage"
)

// lockPrefix namespaces distributed request locks.
const lockPrefix = "deckhand:"

// Agent is the wired command processing stack.
type Agent struct {
	Config     config.Config
	Logger     *slog.Logger
	Engine     *activity.Engine
	Metrics    *metrics.Metrics
	Store      ports.StageStore
	Tracker    *stage.Tracker
	Metadata   *metadata.File
	Runner     *process.Runner
	Dispatcher *command.Dispatcher
	Processor  *processor.Processor

	closers []io.Closer
}

// NewAgent builds the agent described by cfg. Close releases its files
// and connections.
func NewAgent(cfg config.Config) (*Agent, error) {
	a := &Agent{Config: cfg}
	if err := a.build(); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *Agent) build() error {
	cfg := a.Config

	logger, closer, err := logging.Open(cfg.LogFile, logging.ParseLevel(cfg.LogLevel))
	if err != nil {
		return err
	}
	a.closers = append(a.closers, closer)
	a.Logger = logger

	history := activity.NewHistory()
	if cfg.HistoryFile != "" {
		if history, err = activity.OpenHistory(cfg.HistoryFile); err != nil {
			return err
		}
		a.closers = append(a.closers, history)
	}

	a.Metrics = metrics.New()
	a.Engine = activity.NewEngine(
		activity.WithLogger(logger),
		activity.WithHistory(history),
		activity.WithHooks(a.Metrics.Hooks()),
	)

	var locker ports.DistributedLocker
	a.Store, locker, err = a.openStore()
	if err != nil {
		return err
	}
	trackerOpts := []stage.Option{stage.WithLogger(logger)}
	if locker != nil {
		trackerOpts = append(trackerOpts, stage.WithLocker(locker))
	}
	a.Tracker = stage.NewTracker(a.Store, trackerOpts...)

	registry, err := process.LoadInfra(cfg.InfraFile)
	if err != nil {
		return err
	}
	a.Runner = process.NewRunner(
		process.WithRegistry(registry),
		process.WithLogger(logger),
	)
	wrapper := cfn.NewWrapper(a.Runner, cfn.WithBinDir(cfg.CfnBinDir), cfn.WithLogger(logger))

	metaOpts := []metadata.Option{metadata.WithElector(wrapper), metadata.WithLogger(logger)}
	if cfg.CfnMetadata {
		metaOpts = append(metaOpts, metadata.WithSource(wrapper))
	}
	a.Metadata = metadata.NewFile(cfg.MetadataFile, metaOpts...)

	executor := hooks.NewExecutor(a.Engine, a.Runner, hooks.WithLogger(logger))
	addons := addon.NewDirectory(cfg.AddonsRoot, a.Engine, executor, addon.WithLogger(logger))

	a.Dispatcher = command.NewDispatcher(a.Engine, a.Metadata, wrapper, a.Runner, executor,
		command.WithAddons(addons),
		command.WithHooksRoot(cfg.HooksRoot),
		command.WithLogger(logger),
	)

	redactor, err := redact.Compile(cfg.RedactPatterns...)
	if err != nil {
		return err
	}
	procOpts := []processor.Option{
		processor.WithLogger(logger),
		processor.WithRedactor(redactor),
		processor.WithEventsDir(cfg.EventsDir),
		processor.WithObserver(a.Metrics),
	}
	if cfg.InstanceID != "" {
		procOpts = append(procOpts, processor.WithInstanceID(cfg.InstanceID))
	} else {
		procOpts = append(procOpts, processor.WithIdentity(a.Metadata))
	}
	a.Processor = processor.New(a.Engine, a.Tracker, a.Dispatcher, procOpts...)
	return nil
}

func (a *Agent) openStore() (ports.StageStore, ports.DistributedLocker, error) {
	cfg := a.Config

	var store ports.StageStore
	switch cfg.StageBackend {
	case config.BackendRedis:
		var opts []redis.Option
		if cfg.StageTTL > 0 {
			opts = append(opts, redis.WithTTL(cfg.StageTTL))
		}
		rs := redis.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, opts...)
		a.closers = append(a.closers, rs)
		store = rs
	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to ensure sqlite directory: %w", err)
		}
		ss, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, ss)
		store = ss
	case config.BackendMemory:
		store = memory.NewStore()
	default:
		store = file.New(cfg.StageDir)
	}

	if !cfg.RedisLock {
		return store, nil, nil
	}
	if rs, ok := store.(*redis.Store); ok {
		return store, redis.NewLocker(rs.Client(), lockPrefix), nil
	}
	rs := redis.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	a.closers = append(a.closers, rs)
	return store, redis.NewLocker(rs.Client(), lockPrefix), nil
}

// Close releases everything the agent opened, most recent first.
func (a *Agent) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
