// Package migrations holds the PostgreSQL schema for friendgraph.
package migrations

import "embed"

// FS contains the numbered golang-migrate files (NNN_name.up.sql / NNN_name.down.sql).
//
//go:embed *.sql
var FS embed.FS
