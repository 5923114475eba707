package memory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"engram/internal/domain"
	memModels "engram/internal/domain/models/memory"
	memRepo "engram/internal/domain/repositories/memory"
	"engram/internal/repository/postgres"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSessionStore implements the SessionStore interface using PostgreSQL
type PostgresSessionStore struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewSessionStore creates a new PostgresSessionStore
func NewSessionStore(config *postgres.RepositoryConfig) memRepo.SessionStore {
	return &PostgresSessionStore{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Create inserts a new session row
func (r *PostgresSessionStore) Create(ctx context.Context, session *memModels.Session) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, user_id, title, created_at, last_activity_at)
		VALUES ($1, $2, $3, $4, $5)
	`, r.tables.Sessions)

	executor := postgres.GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.Title,
		session.CreatedAt,
		session.LastActivityAt,
	)
	if err != nil {
		if postgres.IsPgDuplicateError(err) {
			return &domain.ConflictError{
				Message:      fmt.Sprintf("session %s already exists", session.ID),
				ResourceType: "session",
				ResourceID:   session.ID,
			}
		}
		return fmt.Errorf("create session: %w", err)
	}

	return nil
}

// Get returns the session if it exists and belongs to the user
func (r *PostgresSessionStore) Get(ctx context.Context, userID, sessionID string) (*memModels.Session, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, title, created_at, last_activity_at
		FROM %s
		WHERE id = $1 AND user_id = $2
	`, r.tables.Sessions)

	var session memModels.Session
	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, sessionID, userID).Scan(
		&session.ID,
		&session.UserID,
		&session.Title,
		&session.CreatedAt,
		&session.LastActivityAt,
	)
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	return &session, nil
}

// List returns the user's sessions ordered by last_activity_at descending
func (r *PostgresSessionStore) List(ctx context.Context, userID string) ([]memModels.SessionSummary, error) {
	query := fmt.Sprintf(`
		SELECT id, title, last_activity_at
		FROM %s
		WHERE user_id = $1
		ORDER BY last_activity_at DESC, id
	`, r.tables.Sessions)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []memModels.SessionSummary
	for rows.Next() {
		var s memModels.SessionSummary
		if err := rows.Scan(&s.ID, &s.Title, &s.LastActivityAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	if sessions == nil {
		sessions = []memModels.SessionSummary{}
	}

	return sessions, nil
}

// UpdateTitle sets the session's display title
func (r *PostgresSessionStore) UpdateTitle(ctx context.Context, sessionID, title string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET title = $1
		WHERE id = $2
	`, r.tables.Sessions)

	executor := postgres.GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, title, sessionID)
	if err != nil {
		return fmt.Errorf("update session title: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}

	return nil
}

// TouchActivity records activity at the given instant
func (r *PostgresSessionStore) TouchActivity(ctx context.Context, sessionID string, at time.Time) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET last_activity_at = $1
		WHERE id = $2
	`, r.tables.Sessions)

	executor := postgres.GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, at, sessionID)
	if err != nil {
		return fmt.Errorf("touch session activity: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}

	return nil
}

// Delete removes the session row; deleting a missing session is a no-op
func (r *PostgresSessionStore) Delete(ctx context.Context, userID, sessionID string) error {
	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE id = $1 AND user_id = $2
	`, r.tables.Sessions)

	executor := postgres.GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, sessionID, userID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	return nil
}
