package kvstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// runTimestampStoreContract checks the behaviour every TimestampStore must share.
func runTimestampStoreContract(t *testing.T, store TimestampStore) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("missing key returns nil", func(t *testing.T) {
		values, err := store.Get(ctx, "missing-"+uuid.NewString())
		require.NoError(t, err)
		assert.Nil(t, values)
	})

	t.Run("append preserves order", func(t *testing.T) {
		key := "order-" + uuid.NewString()
		want := []time.Time{base, base.Add(time.Second), base.Add(2 * time.Second)}

		for _, v := range want {
			require.NoError(t, store.Append(ctx, key, v, time.Minute))
		}

		got, err := store.Get(ctx, key)
		require.NoError(t, err)
		require.Len(t, got, 3)
		for i := range want {
			assert.True(t, want[i].Equal(got[i]), "index %d: want %v, got %v", i, want[i], got[i])
		}
	})

	t.Run("prune drops entries at or before cutoff", func(t *testing.T) {
		key := "prune-" + uuid.NewString()
		for _, v := range []time.Time{base, base.Add(time.Second), base.Add(5 * time.Second)} {
			require.NoError(t, store.Append(ctx, key, v, time.Minute))
		}

		kept, err := store.Prune(ctx, key, base.Add(time.Second), time.Minute)
		require.NoError(t, err)
		require.Len(t, kept, 1)
		assert.True(t, base.Add(5*time.Second).Equal(kept[0]))

		got, err := store.Get(ctx, key)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.True(t, base.Add(5*time.Second).Equal(got[0]))
	})

	t.Run("prune of every entry deletes key", func(t *testing.T) {
		key := "clear-" + uuid.NewString()
		require.NoError(t, store.Append(ctx, key, base, time.Minute))

		kept, err := store.Prune(ctx, key, base, time.Minute)
		require.NoError(t, err)
		assert.Empty(t, kept)

		got, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("prune of missing key", func(t *testing.T) {
		kept, err := store.Prune(ctx, "missing-"+uuid.NewString(), base, time.Minute)
		require.NoError(t, err)
		assert.Empty(t, kept)
	})

	t.Run("concurrent appends survive pruning", func(t *testing.T) {
		key := "race-" + uuid.NewString()
		require.NoError(t, store.Append(ctx, key, base.Add(-time.Hour), time.Minute))

		const writers = 8
		var g errgroup.Group
		for i := 0; i < writers; i++ {
			g.Go(func() error {
				return store.Append(ctx, key, base.Add(time.Duration(i+1)*time.Second), time.Minute)
			})
			g.Go(func() error {
				_, err := store.Prune(ctx, key, base, time.Minute)
				return err
			})
		}
		require.NoError(t, g.Wait())

		kept, err := store.Prune(ctx, key, base, time.Minute)
		require.NoError(t, err)
		assert.Len(t, kept, writers, "every append must survive, only the stale entry goes")
	})

	t.Run("append creates and extends", func(t *testing.T) {
		key := "append-" + uuid.NewString()

		require.NoError(t, store.Append(ctx, key, base, time.Minute))
		require.NoError(t, store.Append(ctx, key, base.Add(time.Second), time.Minute))

		got, err := store.Get(ctx, key)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.True(t, base.Equal(got[0]))
		assert.True(t, base.Add(time.Second).Equal(got[1]))
	})
}
