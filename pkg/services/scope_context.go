package services

import (
	"context"

	"github.com/ekaya-inc/friendgraph/pkg/database"
)

// ScopeContextFunc acquires a scoped database connection.
// Returns the scoped context, a cleanup function (MUST be called), and any error.
type ScopeContextFunc func(ctx context.Context) (context.Context, func(), error)

// NewScopeContextFunc creates a ScopeContextFunc that uses the given database.
func NewScopeContextFunc(db *database.DB) ScopeContextFunc {
	provider := database.NewScopeProvider(db)
	return provider.WithScope
}

// withScope runs fn with a scoped context. A nil fn passes ctx through unchanged,
// which is what unit tests with mock repositories rely on.
func withScope(ctx context.Context, scopeFn ScopeContextFunc, fn func(ctx context.Context) error) error {
	if scopeFn == nil {
		return fn(ctx)
	}
	scopedCtx, cleanup, err := scopeFn(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(scopedCtx)
}
