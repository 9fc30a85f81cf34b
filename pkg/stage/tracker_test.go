package stage_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/deckhand/pkg/adapters/memory"
	"github.com/aretw0/deckhand/pkg/domain"
	"github.com/aretw0/deckhand/pkg/ports"
	"github.com/aretw0/deckhand/pkg/stage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staged(id string, n int, last bool) *domain.CommandRequest {
	return &domain.CommandRequest{CommandName: "CMD-AppDeploy", RequestID: id, StageNum: &n, IsLastStage: last}
}

func TestTracker_Continuity(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		stored string
		req    *domain.CommandRequest
		want   bool
	}{
		{name: "unstaged", req: &domain.CommandRequest{CommandName: "x", RequestID: "r1"}, want: true},
		{name: "stage zero without record", req: staged("r1", 0, false), want: true},
		{name: "stage zero ignores stale record", stored: "5", req: staged("r1", 0, false), want: true},
		{name: "stage two without record", req: staged("r1", 2, false), want: false},
		{name: "stage two after one", stored: "1", req: staged("r1", 2, false), want: true},
		{name: "stage two after two", stored: "2", req: staged("r1", 2, false), want: false},
		{name: "stage two after zero", stored: "0", req: staged("r1", 2, false), want: false},
		{name: "non numeric record", stored: "one", req: staged("r1", 2, false), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.NewStore()
			if tt.stored != "" {
				store.SetRaw("r1", tt.stored)
			}
			ok, err := stage.NewTracker(store).Admissible(ctx, tt.req, "i-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestTracker_InstanceFilter(t *testing.T) {
	ctx := context.Background()
	tracker := stage.NewTracker(memory.NewStore())

	req := &domain.CommandRequest{CommandName: "x", RequestID: "r1", InstanceIDs: []string{"i-1", "i-2"}}

	ok, err := tracker.Admissible(ctx, req, "i-2")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = tracker.Admissible(ctx, req, "i-9")
	require.NoError(t, err)
	assert.False(t, ok)

	req.InstanceIDs = nil
	ok, err = tracker.Admissible(ctx, req, "i-9")
	require.NoError(t, err)
	assert.True(t, ok, "an empty instance list targets every host")
}

func TestTracker_RecordLifecycle(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	tracker := stage.NewTracker(store)

	ok, err := tracker.Admissible(ctx, staged("r1", 2, false), "")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Save(ctx, "r1", 1))
	ok, err = tracker.Admissible(ctx, staged("r1", 2, false), "")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, tracker.Record(ctx, staged("r1", 2, false)))
	got, err := store.Load(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 2, got)

	require.NoError(t, tracker.Record(ctx, staged("r1", 3, true)))
	_, err = store.Load(ctx, "r1")
	assert.ErrorIs(t, err, domain.ErrStageNotFound)

	require.NoError(t, tracker.Record(ctx, staged("r1", 3, true)), "removal is idempotent")
}

func TestTracker_RecordUnstagedIsNoop(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	require.NoError(t, stage.NewTracker(store).Record(ctx, &domain.CommandRequest{CommandName: "x", RequestID: "r1"}))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestTracker_AdmitRejectsReplay(t *testing.T) {
	ctx := context.Background()
	tracker := stage.NewTracker(memory.NewStore())

	require.NoError(t, tracker.Admit(ctx, staged("r1", 0, false), ""))
	require.NoError(t, tracker.Admit(ctx, staged("r1", 1, false), ""))

	err := tracker.Admit(ctx, staged("r1", 1, false), "")
	assert.ErrorIs(t, err, domain.ErrInadmissible)
}

func TestTracker_AdmitConcurrentDeliveries(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.Save(ctx, "r1", 0))
	tracker := stage.NewTracker(store)

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := tracker.Admit(ctx, staged("r1", 1, false), ""); err == nil {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), admitted.Load(), "only one delivery of a stage may pass")
}

type failingStore struct{ ports.StageStore }

func (failingStore) Load(ctx context.Context, requestID string) (int, error) {
	return 0, errors.New("disk unavailable")
}

func TestTracker_StoreErrorPropagates(t *testing.T) {
	_, err := stage.NewTracker(failingStore{}).Admissible(context.Background(), staged("r1", 1, false), "")
	assert.ErrorContains(t, err, "disk unavailable")
}

type recordingLocker struct {
	mu   sync.Mutex
	keys []string
	ttl  time.Duration
}

func (l *recordingLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, key)
	l.ttl = ttl
	return func(context.Context) error { return nil }, nil
}

func TestTracker_UsesDistributedLocker(t *testing.T) {
	locker := &recordingLocker{}
	tracker := stage.NewTracker(memory.NewStore(), stage.WithLocker(locker), stage.WithLockTTL(time.Minute))

	require.NoError(t, tracker.Admit(context.Background(), staged("r7", 0, false), ""))

	assert.Equal(t, []string{"r7"}, locker.keys)
	assert.Equal(t, time.Minute, locker.ttl)
}
