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

// PostgresTierStore implements the TierStore interface using PostgreSQL.
// Per-session serialization is provided by the database: appends use a
// single INSERT, and the session manager already serializes whole turns, so
// readers never observe a partial append.
type PostgresTierStore struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewTierStore creates a new PostgresTierStore
func NewTierStore(config *postgres.RepositoryConfig) memRepo.TierStore {
	return &PostgresTierStore{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Append adds a turn at the end of the session's ordered log
func (r *PostgresTierStore) Append(ctx context.Context, sessionID string, turn *memModels.Turn) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (
			id, session_id, user_id, role, tier1, tier2, tier3,
			required_tier, created_at, metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, r.tables.Turns)

	executor := postgres.GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query,
		turn.ID,
		sessionID,
		turn.UserID,
		turn.Role,
		turn.Tier1,
		turn.Tier2,
		turn.Tier3,
		turn.RequiredTier,
		turn.CreatedAt,
		turn.Metadata, // pgx handles map -> JSONB (nil becomes NULL)
	)

	if err != nil {
		if postgres.IsPgDuplicateError(err) {
			return &domain.ConflictError{
				Message:      fmt.Sprintf("turn %s already exists in session %s", turn.ID, sessionID),
				ResourceType: "turn",
				ResourceID:   turn.ID,
			}
		}
		if postgres.IsPgForeignKeyError(err) {
			return fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
		}
		return fmt.Errorf("append turn: %w", err)
	}

	return nil
}

// List returns the session's turns in insertion order
func (r *PostgresTierStore) List(ctx context.Context, sessionID string) ([]memModels.Turn, error) {
	query := fmt.Sprintf(`
		SELECT id, session_id, user_id, role, tier1, tier2, tier3,
		       required_tier, created_at, metadata
		FROM %s
		WHERE session_id = $1
		ORDER BY created_at, id
	`, r.tables.Turns)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	var turns []memModels.Turn
	for rows.Next() {
		var turn memModels.Turn
		err := rows.Scan(
			&turn.ID,
			&turn.SessionID,
			&turn.UserID,
			&turn.Role,
			&turn.Tier1,
			&turn.Tier2,
			&turn.Tier3,
			&turn.RequiredTier,
			&turn.CreatedAt,
			&turn.Metadata, // pgx handles JSONB -> map
		)
		if err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turns = append(turns, turn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}

	if turns == nil {
		turns = []memModels.Turn{}
	}

	return turns, nil
}

// SetRequiredTier raises required_tier to max(current, tier); never lowers it
func (r *PostgresTierStore) SetRequiredTier(ctx context.Context, sessionID, turnID string, tier int) error {
	if !memModels.ValidTier(tier) {
		return fmt.Errorf("tier %d out of range: %w", tier, domain.ErrValidation)
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET required_tier = GREATEST(required_tier, $1)
		WHERE session_id = $2 AND id = $3
	`, r.tables.Turns)

	executor := postgres.GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, tier, sessionID, turnID)
	if err != nil {
		return fmt.Errorf("set required tier: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("turn %s: %w", turnID, domain.ErrNotFound)
	}

	return nil
}

// Remove deletes one turn from the working window (pruner only)
func (r *PostgresTierStore) Remove(ctx context.Context, sessionID, turnID string) error {
	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE session_id = $1 AND id = $2
	`, r.tables.Turns)

	executor := postgres.GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, sessionID, turnID)
	if err != nil {
		return fmt.Errorf("remove turn: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("turn %s: %w", turnID, domain.ErrNotFound)
	}

	return nil
}

// DeleteSession removes every turn of a session
func (r *PostgresTierStore) DeleteSession(ctx context.Context, sessionID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE session_id = $1`, r.tables.Turns)

	executor := postgres.GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, sessionID); err != nil {
		return fmt.Errorf("delete session turns: %w", err)
	}

	return nil
}
