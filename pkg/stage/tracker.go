package stage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/deckhand/internal/logging"
	"github.com/aretw0/deckhand/pkg/domain"
	"github.com/aretw0/deckhand/pkg/ports"
)

// DefaultLockTTL bounds how long a crashed agent can hold a distributed lock.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Tracker checks stage continuity and persists stage watermarks.
type Tracker struct {
	store ports.StageStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Tracker.
type Option func(*Tracker)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(t *Tracker) {
		t.locker = locker
	}
}

// WithLockTTL overrides DefaultLockTTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(t *Tracker) {
		t.lockTTL = ttl
	}
}

// WithLogger configures a logger for the Tracker.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// NewTracker creates a Tracker over store.
func NewTracker(store ports.StageStore, opts ...Option) *Tracker {
	t := &Tracker{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Store returns the underlying stage store.
func (t *Tracker) Store() ports.StageStore {
	return t.store
}

// Admissible reports whether req should run on the host identified by
// instanceID: the request must target this instance (or no instance in
// particular) and its stage must directly follow the stored watermark.
func (t *Tracker) Admissible(ctx context.Context, req *domain.CommandRequest, instanceID string) (bool, error) {
	t.logger.Debug("Checking if the command processor should execute.")
	if !t.appliesTo(req, instanceID) {
		return false, nil
	}
	return t.validStage(ctx, req)
}

func (t *Tracker) appliesTo(req *domain.CommandRequest, instanceID string) bool {
	if len(req.InstanceIDs) > 0 && !slices.Contains(req.InstanceIDs, instanceID) {
		t.logger.Warn("Command should not be executed on this instance.", "instance_id", instanceID)
		return false
	}
	t.logger.Info("Command is applicable to this instance.", "instance_id", instanceID)
	return true
}

func (t *Tracker) validStage(ctx context.Context, req *domain.CommandRequest) (bool, error) {
	if !req.HasStage() {
		t.logger.Info("No stage_num in command. Valid stage.")
		return true, nil
	}
	current := req.Stage()
	if current == 0 {
		t.logger.Info("Stage_num=0. Valid stage.")
		return true, nil
	}

	prev, err := t.store.Load(ctx, req.RequestID)
	switch {
	case errors.Is(err, domain.ErrStageNotFound):
		t.logger.Warn("Could not find a previous stage. Invalid stage.", "request_id", req.RequestID)
		return false, nil
	case errors.Is(err, domain.ErrInvalidStage):
		t.logger.Warn("Previous stage record does not contain a valid integer. Invalid stage.", "request_id", req.RequestID)
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to read previous stage: %w", err)
	}

	if prev == current-1 {
		t.logger.Info("Previous stage is one less than current stage. Valid stage.", "previous", prev, "current", current)
		return true, nil
	}
	t.logger.Warn("Previous stage is not one less than current stage. Invalid stage.", "previous", prev, "current", current)
	return false, nil
}

// Record persists the stage of req: nothing for unstaged requests, removal
// once the last stage runs, otherwise the stage number as the new watermark.
func (t *Tracker) Record(ctx context.Context, req *domain.CommandRequest) error {
	if !req.HasStage() {
		t.logger.Debug("Stage_num does not exist. Not saving null stage.")
		return nil
	}
	if req.IsLastStage {
		t.logger.Info("This was last stage for the command. Removing saved stage info for request.", "request_id", req.RequestID)
		if err := t.store.Delete(ctx, req.RequestID); err != nil {
			return fmt.Errorf("failed to remove stage record: %w", err)
		}
		return nil
	}

	t.logger.Info(fmt.Sprintf("Saving stage %d.", req.Stage()), "request_id", req.RequestID)
	if err := t.store.Save(ctx, req.RequestID, req.Stage()); err != nil {
		return fmt.Errorf("failed to save stage: %w", err)
	}
	return nil
}

// Admit runs the admission check and records the stage under the request
// lock, so racing deliveries of one request id cannot both pass.
// Returns domain.ErrInadmissible when the delivery must not run.
func (t *Tracker) Admit(ctx context.Context, req *domain.CommandRequest, instanceID string) error {
	return t.WithLock(ctx, req.RequestID, func(ctx context.Context) error {
		ok, err := t.Admissible(ctx, req, instanceID)
		if err != nil {
			return err
		}
		if !ok {
			t.logger.Warn("Command processor shouldn't execute command.")
			return domain.ErrInadmissible
		}
		t.logger.Info("Command processor should execute command.")
		return t.Record(ctx, req)
	})
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(key) after unlocking.
func (t *Tracker) acquire(key string) *lockEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, exists := t.locks[key]
	if !exists {
		entry = &lockEntry{}
		t.locks[key] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (t *Tracker) release(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, exists := t.locks[key]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(t.locks, key)
	}
}

// WithLock executes fn while holding the lock for requestID.
func (t *Tracker) WithLock(ctx context.Context, requestID string, fn func(context.Context) error) error {
	entry := t.acquire(requestID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		t.release(requestID)
	}()

	if t.locker != nil {
		unlock, err := t.locker.Lock(ctx, requestID, t.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				t.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"request_id", requestID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
