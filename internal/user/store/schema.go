package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/changeuikim/vercel-kayce/internal/query"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id           uuid PRIMARY KEY,
		provider     text NOT NULL,
		identity_key text NOT NULL,
		is_deleted   boolean NOT NULL DEFAULT false,
		deleted_at   timestamptz NULL,
		created_at   timestamptz NOT NULL,
		CONSTRAINT users_deleted_consistent CHECK (
			(is_deleted AND deleted_at IS NOT NULL) OR (NOT is_deleted AND deleted_at IS NULL)
		)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_identity_active ON users (identity_key) WHERE NOT is_deleted`,
	`CREATE INDEX IF NOT EXISTS users_created_at ON users (created_at, id)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id           TEXT PRIMARY KEY,
		provider     TEXT NOT NULL,
		identity_key TEXT NOT NULL,
		is_deleted   INTEGER NOT NULL DEFAULT 0,
		deleted_at   TEXT NULL,
		created_at   TEXT NOT NULL,
		CHECK ((is_deleted = 1 AND deleted_at IS NOT NULL) OR (is_deleted = 0 AND deleted_at IS NULL))
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_identity_active ON users (identity_key) WHERE is_deleted = 0`,
	`CREATE INDEX IF NOT EXISTS users_created_at ON users (created_at, id)`,
}

// Bootstrap creates the users table and its indexes when missing.
func Bootstrap(ctx context.Context, db *sql.DB, dialect query.Dialect) error {
	stmts := postgresSchema
	if dialect == query.SQLite {
		stmts = sqliteSchema
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap %s schema: %w", dialect, err)
		}
	}
	return nil
}
