package kvstore

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a TimestampStore held in process memory.
// All operations are serialized by a single mutex.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	values    []time.Time
	expiresAt time.Time
}

type MemoryOption func(*MemoryStore)

// WithNowFunc overrides the time source used for expiry.
func WithNowFunc(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.liveEntry(key)
	if !ok {
		return nil, nil
	}
	out := make([]time.Time, len(entry.values))
	copy(out, entry.values)
	return out, nil
}

func (s *MemoryStore) Prune(_ context.Context, key string, cutoff time.Time, ttl time.Duration) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.liveEntry(key)
	if !ok {
		return nil, nil
	}
	kept := keepAfter(entry.values, cutoff)
	if len(kept) != len(entry.values) {
		if len(kept) == 0 || ttl <= 0 {
			delete(s.entries, key)
		} else {
			s.entries[key] = memoryEntry{values: kept, expiresAt: s.now().Add(ttl)}
		}
	}

	out := make([]time.Time, len(kept))
	copy(out, kept)
	return out, nil
}

func (s *MemoryStore) Append(_ context.Context, key string, value time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ttl <= 0 {
		delete(s.entries, key)
		return nil
	}
	entry, _ := s.liveEntry(key)
	entry.values = append(entry.values, value)
	entry.expiresAt = s.now().Add(ttl)
	s.entries[key] = entry
	return nil
}

// liveEntry returns the entry for key, dropping it if it has expired.
// Callers must hold s.mu.
func (s *MemoryStore) liveEntry(key string) (memoryEntry, bool) {
	entry, ok := s.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.entries, key)
		return memoryEntry{}, false
	}
	return entry, true
}

// Cleanup removes every expired entry.
func (s *MemoryStore) Cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, k)
		}
	}
}

// Len returns the number of stored keys, including expired ones not yet cleaned up.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// StartJanitor runs Cleanup every interval until ctx is cancelled.
// Keys of users who stop sending requests would otherwise stay in memory.
func (s *MemoryStore) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

var _ TimestampStore = (*MemoryStore)(nil)
