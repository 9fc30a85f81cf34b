package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/deckhand/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStageStoreContract runs a suite of tests to verify that a StageStore implementation
// adheres to the defined interface contract.
func RunStageStoreContract(t *testing.T, store StageStore) {
	ctx := context.Background()
	requestID := "contract-test-request-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, requestID, 0))

		stage, err := store.Load(ctx, requestID)
		require.NoError(t, err)
		assert.Equal(t, 0, stage)

		require.NoError(t, store.Save(ctx, requestID, 7), "Save should overwrite the watermark")
		stage, err = store.Load(ctx, requestID)
		require.NoError(t, err)
		assert.Equal(t, 7, stage)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+requestID)
		assert.ErrorIs(t, err, domain.ErrStageNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, requestID, 3))

		require.NoError(t, store.Delete(ctx, requestID), "Delete should not return error")

		_, err := store.Load(ctx, requestID)
		assert.ErrorIs(t, err, domain.ErrStageNotFound, "Load after Delete should return ErrStageNotFound")

		assert.NoError(t, store.Delete(ctx, requestID), "Delete of a missing record is idempotent")
	})

	t.Run("List", func(t *testing.T) {
		id1 := requestID + "-1"
		id2 := requestID + "-2"
		require.NoError(t, store.Save(ctx, id1, 1))
		require.NoError(t, store.Save(ctx, id2, 2))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})
}
