package memory

import (
	"context"
	"fmt"
	"log/slog"

	"engram/internal/domain"
	memModels "engram/internal/domain/models/memory"
	memRepo "engram/internal/domain/repositories/memory"
	"engram/internal/repository/postgres"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresFactStore implements the FactStore interface using PostgreSQL
type PostgresFactStore struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewFactStore creates a new PostgresFactStore
func NewFactStore(config *postgres.RepositoryConfig) memRepo.FactStore {
	return &PostgresFactStore{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Upsert inserts or replaces the fact for (user_id, key)
func (r *PostgresFactStore) Upsert(ctx context.Context, fact *memModels.UserFact) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (user_id, key, value, created_at, last_accessed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, key)
		DO UPDATE SET value = EXCLUDED.value, last_accessed_at = EXCLUDED.last_accessed_at
	`, r.tables.Facts)

	executor := postgres.GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query,
		fact.UserID,
		fact.Key,
		fact.Value,
		fact.CreatedAt,
		fact.LastAccessedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert fact: %w", err)
	}

	return nil
}

// List returns all facts for a user sorted by key
func (r *PostgresFactStore) List(ctx context.Context, userID string) ([]memModels.UserFact, error) {
	query := fmt.Sprintf(`
		SELECT user_id, key, value, created_at, last_accessed_at
		FROM %s
		WHERE user_id = $1
		ORDER BY key
	`, r.tables.Facts)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list facts: %w", err)
	}
	defer rows.Close()

	var facts []memModels.UserFact
	for rows.Next() {
		var fact memModels.UserFact
		err := rows.Scan(
			&fact.UserID,
			&fact.Key,
			&fact.Value,
			&fact.CreatedAt,
			&fact.LastAccessedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		facts = append(facts, fact)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate facts: %w", err)
	}

	if facts == nil {
		facts = []memModels.UserFact{}
	}

	return facts, nil
}

// Delete removes the fact with the exact key
func (r *PostgresFactStore) Delete(ctx context.Context, userID, key string) error {
	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE user_id = $1 AND key = $2
	`, r.tables.Facts)

	executor := postgres.GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, userID, key)
	if err != nil {
		return fmt.Errorf("delete fact: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("fact %s: %w", key, domain.ErrNotFound)
	}

	return nil
}

// DeleteMatching removes every fact whose key contains the substring
func (r *PostgresFactStore) DeleteMatching(ctx context.Context, userID, substr string) (int, error) {
	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE user_id = $1 AND key LIKE '%%' || $2 || '%%'
	`, r.tables.Facts)

	executor := postgres.GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, userID, substr)
	if err != nil {
		return 0, fmt.Errorf("delete matching facts: %w", err)
	}

	return int(result.RowsAffected()), nil
}
