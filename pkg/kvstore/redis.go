package kvstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// maxPruneAttempts bounds how often Prune retries when the watched key changes
// under it.
const maxPruneAttempts = 10

// RedisStore keeps each timestamp list in a Redis list of RFC 3339 strings.
// Writes go through MULTI/EXEC so other processes never see a half-written list.
// Prune watches the key, so an append from another process between its read
// and its write aborts the write and the prune is retried.
type RedisStore struct {
	rdb    *redis.Client
	prefix string

	// afterPruneRead runs between Prune's read and its write. Tests only.
	afterPruneRead func()
}

type RedisOption func(*RedisStore)

// WithKeyPrefix namespaces every key, e.g. "friendgraph:ratelimit".
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func NewRedisStore(rdb *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{rdb: rdb}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]time.Time, error) {
	raw, err := s.rdb.LRange(ctx, s.key(key), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return parseTimestamps(key, raw)
}

func (s *RedisStore) Prune(ctx context.Context, key string, cutoff time.Time, ttl time.Duration) ([]time.Time, error) {
	k := s.key(key)

	var kept []time.Time
	txf := func(tx *redis.Tx) error {
		raw, err := tx.LRange(ctx, k, 0, -1).Result()
		if err != nil {
			return err
		}
		values, err := parseTimestamps(key, raw)
		if err != nil {
			return err
		}
		kept = keepAfter(values, cutoff)
		if len(kept) == len(values) {
			return nil
		}

		if s.afterPruneRead != nil {
			s.afterPruneRead()
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, k)
			if len(kept) == 0 || ttl <= 0 {
				return nil
			}
			pipe.RPush(ctx, k, timestampMembers(kept)...)
			pipe.PExpire(ctx, k, ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxPruneAttempts; attempt++ {
		err := s.rdb.Watch(ctx, txf, k)
		if err == nil {
			return kept, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, fmt.Errorf("failed to prune %s: %w", key, err)
		}
	}
	return nil, fmt.Errorf("failed to prune %s after %d attempts: %w", key, maxPruneAttempts, redis.TxFailedErr)
}

func (s *RedisStore) Append(ctx context.Context, key string, value time.Time, ttl time.Duration) error {
	k := s.key(key)

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, k, formatTimestamp(value))
		pipe.PExpire(ctx, k, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append to %s: %w", key, err)
	}
	return nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func timestampMembers(values []time.Time) []any {
	members := make([]any, len(values))
	for i, v := range values {
		members[i] = formatTimestamp(v)
	}
	return members
}

func parseTimestamps(key string, raw []string) ([]time.Time, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	values := make([]time.Time, 0, len(raw))
	for _, r := range raw {
		t, err := time.Parse(time.RFC3339Nano, r)
		if err != nil {
			return nil, fmt.Errorf("failed to parse timestamp %q in %s: %w", r, key, err)
		}
		values = append(values, t)
	}
	return values, nil
}

var _ TimestampStore = (*RedisStore)(nil)
