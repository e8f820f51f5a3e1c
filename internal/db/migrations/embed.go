package migrations

import "embed"

// Postgres holds the PostgreSQL schema migrations.
//
//go:embed postgres/*.sql
var Postgres embed.FS

// SQLite holds the SQLite schema migrations.
//
//go:embed sqlite/*.sql
var SQLite embed.FS
