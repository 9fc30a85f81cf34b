package ports

import (
	"context"
	"time"
)

// UnlockFunc is a function that releases a distributed lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker serialises work on one key across agent processes.
// The processor uses it to make the admission check and the watermark update
// of a request id atomic when several deliveries race.
type DistributedLocker interface {
	// Lock attempts to acquire a distributed lock for the given key (e.g., request ID).
	// It blocks until the lock is acquired or the context is canceled.
	// The lock expires after ttl if never released.
	// Returns an UnlockFunc that MUST be called to release the lock.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
