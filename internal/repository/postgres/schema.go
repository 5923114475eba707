package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the engram tables and indexes when they do not
// exist yet. It runs at startup so a fresh database comes up without a
// separate migration step; every statement is idempotent.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, tables *TableNames, prefix string) error {
	for _, stmt := range schemaStatements(tables, prefix) {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// schemaStatements returns the DDL for one table-prefix environment.
// Ids are uuid strings minted in the service layer, so columns are TEXT
// rather than UUID; the composite primary keys provide the uniqueness
// the stores rely on (duplicate turn detection, fact upsert ON CONFLICT).
func schemaStatements(tables *TableNames, prefix string) []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + tables.Sessions + ` (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_activity_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS ` + tables.Turns + ` (
			id TEXT NOT NULL,
			session_id TEXT NOT NULL REFERENCES ` + tables.Sessions + `(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			tier1 TEXT NOT NULL,
			tier2 TEXT NOT NULL,
			tier3 TEXT NOT NULL,
			required_tier SMALLINT NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL,
			metadata JSONB,
			PRIMARY KEY (session_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS ` + tables.Facts + ` (
			user_id TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			last_accessed_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (user_id, key)
		)`,
		`CREATE TABLE IF NOT EXISTS ` + tables.Episodes + ` (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			source_session_id TEXT NOT NULL,
			turn_ids TEXT[] NOT NULL,
			summary TEXT NOT NULL,
			payload TEXT NOT NULL,
			archived_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_` + prefix + `turns_session_created ON ` + tables.Turns + `(session_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_` + prefix + `sessions_user_activity ON ` + tables.Sessions + `(user_id, last_activity_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_` + prefix + `episodes_user_archived ON ` + tables.Episodes + `(user_id, archived_at DESC)`,
	}
}
