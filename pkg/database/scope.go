package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Scope wraps a pooled connection that repositories pick up from the context.
// Every repository call made with the same context shares the connection.
type Scope struct {
	Conn *pgxpool.Conn
}

// Close releases the connection back to the pool.
// This MUST be called, usually with defer, once the scope is no longer needed.
func (s *Scope) Close() {
	if s.Conn == nil {
		return
	}
	s.Conn.Release()
}

// Acquire takes a connection from the pool and wraps it in a Scope.
// The returned Scope MUST be closed with defer scope.Close().
func (db *DB) Acquire(ctx context.Context) (*Scope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &Scope{Conn: conn}, nil
}
