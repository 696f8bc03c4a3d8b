package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/friendgraph/pkg/kvstore"
)

var windowStart = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestRateLimitWindow(store kvstore.TimestampStore, max int) RateLimitWindow {
	return NewRateLimitWindow(store, time.Minute, max, zap.NewNop())
}

func TestRateLimitWindow_Defaults(t *testing.T) {
	w := NewRateLimitWindow(kvstore.NewMemoryStore(), 0, -1, zap.NewNop())

	assert.Equal(t, 3, w.Limit())
	assert.Equal(t, time.Minute, w.Window())
}

func TestRateLimitKey(t *testing.T) {
	id := uuid.MustParse("00000000-0000-0000-0000-000000000042")
	assert.Equal(t, "user_00000000-0000-0000-0000-000000000042_requests", rateLimitKey(id))
}

func TestRateLimitWindow_NoHistoryIsAdmitted(t *testing.T) {
	w := newTestRateLimitWindow(kvstore.NewMemoryStore(), 3)

	ok, err := w.Admit(context.Background(), uuid.New(), windowStart)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimitWindow_AdmitDoesNotConsume(t *testing.T) {
	store := kvstore.NewMemoryStore()
	w := newTestRateLimitWindow(store, 3)
	ctx := context.Background()
	userID := uuid.New()

	for i := 0; i < 10; i++ {
		ok, err := w.Admit(ctx, userID, windowStart.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		require.True(t, ok, "admit %d should pass without any recorded requests", i)
	}

	stored, err := store.Get(ctx, rateLimitKey(userID))
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestRateLimitWindow_DeniesAtLimit(t *testing.T) {
	w := newTestRateLimitWindow(kvstore.NewMemoryStore(), 3)
	ctx := context.Background()
	userID := uuid.New()

	for i := 0; i < 3; i++ {
		now := windowStart.Add(time.Duration(i) * time.Second)
		ok, err := w.Admit(ctx, userID, now)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, w.Record(ctx, userID, now))
	}

	ok, err := w.Admit(ctx, userID, windowStart.Add(3*time.Second))
	require.NoError(t, err)
	assert.False(t, ok, "fourth request inside the window should be denied")
}

func TestRateLimitWindow_CutoffIsExclusive(t *testing.T) {
	w := newTestRateLimitWindow(kvstore.NewMemoryStore(), 1)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, w.Record(ctx, userID, windowStart))

	ok, err := w.Admit(ctx, userID, windowStart.Add(59*time.Second))
	require.NoError(t, err)
	assert.False(t, ok, "a timestamp newer than now-window still counts")

	ok, err = w.Admit(ctx, userID, windowStart.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok, "a timestamp equal to now-window no longer counts")
}

func TestRateLimitWindow_PrunesStaleEntries(t *testing.T) {
	store := kvstore.NewMemoryStore()
	w := newTestRateLimitWindow(store, 3)
	ctx := context.Background()
	userID := uuid.New()

	for _, at := range []time.Time{
		windowStart.Add(-2 * time.Minute),
		windowStart.Add(-90 * time.Second),
		windowStart.Add(-10 * time.Second),
	} {
		require.NoError(t, store.Append(ctx, rateLimitKey(userID), at, time.Minute))
	}

	ok, err := w.Admit(ctx, userID, windowStart)
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := store.Get(ctx, rateLimitKey(userID))
	require.NoError(t, err)
	require.Len(t, stored, 1, "only the entry inside the window should be written back")
	assert.True(t, windowStart.Add(-10*time.Second).Equal(stored[0]))
}

func TestRateLimitWindow_UsersAreIndependent(t *testing.T) {
	w := newTestRateLimitWindow(kvstore.NewMemoryStore(), 1)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	require.NoError(t, w.Record(ctx, alice, windowStart))

	ok, err := w.Admit(ctx, bob, windowStart)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimitWindow_StoreErrors(t *testing.T) {
	ctx := context.Background()
	storeErr := errors.New("connection refused")

	t.Run("prune", func(t *testing.T) {
		store := newFailingStore()
		store.pruneErr = storeErr
		w := newTestRateLimitWindow(store, 3)

		ok, err := w.Admit(ctx, uuid.New(), windowStart)
		require.Error(t, err)
		assert.ErrorIs(t, err, storeErr)
		assert.False(t, ok)
	})

	t.Run("record", func(t *testing.T) {
		store := newFailingStore()
		store.appendErr = storeErr
		w := newTestRateLimitWindow(store, 3)

		err := w.Record(ctx, uuid.New(), windowStart)
		assert.ErrorIs(t, err, storeErr)
	})
}

// interleavingStore runs interleave once, right before the first read or prune
// reaches the wrapped store, to model a Record from another process landing
// in the middle of Admit.
type interleavingStore struct {
	*kvstore.MemoryStore
	once       sync.Once
	interleave func()
}

func (s *interleavingStore) Get(ctx context.Context, key string) ([]time.Time, error) {
	s.once.Do(s.interleave)
	return s.MemoryStore.Get(ctx, key)
}

func (s *interleavingStore) Prune(ctx context.Context, key string, cutoff time.Time, ttl time.Duration) ([]time.Time, error) {
	s.once.Do(s.interleave)
	return s.MemoryStore.Prune(ctx, key, cutoff, ttl)
}

func TestRateLimitWindow_AdmitKeepsConcurrentRecord(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	store := &interleavingStore{MemoryStore: kvstore.NewMemoryStore()}
	require.NoError(t, store.Append(ctx, rateLimitKey(userID), windowStart.Add(-2*time.Minute), time.Minute))

	other := newTestRateLimitWindow(store.MemoryStore, 3)
	store.interleave = func() {
		require.NoError(t, other.Record(ctx, userID, windowStart))
	}
	w := newTestRateLimitWindow(store, 3)

	ok, err := w.Admit(ctx, userID, windowStart.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := store.MemoryStore.Get(ctx, rateLimitKey(userID))
	require.NoError(t, err)
	require.Len(t, stored, 1, "the stale entry goes and the concurrent record stays")
	assert.True(t, windowStart.Equal(stored[0]))
}
