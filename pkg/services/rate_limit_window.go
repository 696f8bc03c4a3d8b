package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/friendgraph/pkg/kvstore"
)

const (
	DefaultRateLimitWindow      = time.Minute
	DefaultRateLimitMaxRequests = 3
)

// RateLimitWindow is a per-user sliding window over admitted friend requests.
// Admit only checks; Record consumes a slot and must be called once the request
// has actually been created.
type RateLimitWindow interface {
	Admit(ctx context.Context, userID uuid.UUID, now time.Time) (bool, error)
	Record(ctx context.Context, userID uuid.UUID, now time.Time) error
	Limit() int
	Window() time.Duration
}

type rateLimitWindow struct {
	store       kvstore.TimestampStore
	window      time.Duration
	maxRequests int
	logger      *zap.Logger
}

// NewRateLimitWindow creates a RateLimitWindow. Non-positive arguments fall back
// to the defaults of 3 requests per 60 seconds.
func NewRateLimitWindow(store kvstore.TimestampStore, window time.Duration, maxRequests int, logger *zap.Logger) RateLimitWindow {
	if window <= 0 {
		window = DefaultRateLimitWindow
	}
	if maxRequests <= 0 {
		maxRequests = DefaultRateLimitMaxRequests
	}
	return &rateLimitWindow{
		store:       store,
		window:      window,
		maxRequests: maxRequests,
		logger:      logger.Named("rate-limit"),
	}
}

func rateLimitKey(userID uuid.UUID) string {
	return fmt.Sprintf("user_%s_requests", userID)
}

func (w *rateLimitWindow) Admit(ctx context.Context, userID uuid.UUID, now time.Time) (bool, error) {
	// Pruning happens in the store so a Record from another process is never overwritten.
	recent, err := w.store.Prune(ctx, rateLimitKey(userID), now.Add(-w.window), w.window)
	if err != nil {
		return false, fmt.Errorf("failed to read request history: %w", err)
	}

	admitted := len(recent) < w.maxRequests
	w.logger.Debug("Rate limit check",
		zap.String("user_id", userID.String()),
		zap.Int("recent", len(recent)),
		zap.Bool("admitted", admitted))
	return admitted, nil
}

func (w *rateLimitWindow) Record(ctx context.Context, userID uuid.UUID, now time.Time) error {
	if err := w.store.Append(ctx, rateLimitKey(userID), now, w.window); err != nil {
		return fmt.Errorf("failed to record request: %w", err)
	}
	return nil
}

func (w *rateLimitWindow) Limit() int {
	return w.maxRequests
}

func (w *rateLimitWindow) Window() time.Duration {
	return w.window
}

var _ RateLimitWindow = (*rateLimitWindow)(nil)
