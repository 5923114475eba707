package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"engram/internal/domain"
	memModels "engram/internal/domain/models/memory"
	memRepo "engram/internal/domain/repositories/memory"
	"engram/internal/repository/postgres"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresEpisodicStore implements the EpisodicStore interface using
// PostgreSQL. Candidate rows are fetched per user and scored in process so
// that ranking stays identical across backends.
type PostgresEpisodicStore struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewEpisodicStore creates a new PostgresEpisodicStore
func NewEpisodicStore(config *postgres.RepositoryConfig) memRepo.EpisodicStore {
	return &PostgresEpisodicStore{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Archive appends a new episodic entry
func (r *PostgresEpisodicStore) Archive(ctx context.Context, userID string, entry *memModels.EpisodicEntry) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (
			id, user_id, source_session_id, turn_ids, summary, payload, archived_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, r.tables.Episodes)

	executor := postgres.GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query,
		entry.ID,
		userID,
		entry.SourceSessionID,
		entry.TurnIDs, // pgx handles []string -> text[]
		entry.Summary,
		entry.Payload,
		entry.ArchivedAt,
	)
	if err != nil {
		if postgres.IsPgDuplicateError(err) {
			return &domain.ConflictError{
				Message:      fmt.Sprintf("episode %s already exists", entry.ID),
				ResourceType: "episode",
				ResourceID:   entry.ID,
			}
		}
		return fmt.Errorf("archive episode: %w", err)
	}

	return nil
}

// Search returns up to k entries whose summary best matches query
func (r *PostgresEpisodicStore) Search(ctx context.Context, userID, query string, k int) ([]memModels.EpisodicEntry, error) {
	if k <= 0 {
		return []memModels.EpisodicEntry{}, nil
	}

	sql := fmt.Sprintf(`
		SELECT id, user_id, source_session_id, turn_ids, summary, payload, archived_at
		FROM %s
		WHERE user_id = $1
		ORDER BY archived_at DESC, id
	`, r.tables.Episodes)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, sql, userID)
	if err != nil {
		return nil, fmt.Errorf("search episodes: %w", err)
	}
	defer rows.Close()

	var entries []memModels.EpisodicEntry
	for rows.Next() {
		var entry memModels.EpisodicEntry
		err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entry.SourceSessionID,
			&entry.TurnIDs,
			&entry.Summary,
			&entry.Payload,
			&entry.ArchivedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate episodes: %w", err)
	}

	return rankEpisodes(entries, query, k), nil
}

// DeleteForSession removes all entries sourced from one session
func (r *PostgresEpisodicStore) DeleteForSession(ctx context.Context, userID, sessionID string) error {
	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE user_id = $1 AND source_session_id = $2
	`, r.tables.Episodes)

	executor := postgres.GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, userID, sessionID); err != nil {
		return fmt.Errorf("delete episodes for session: %w", err)
	}

	return nil
}

// rankEpisodes scores candidates against the query and keeps the top k with
// a positive score. Candidates must already be ordered archived_at DESC, id
// ASC so that the stable sort preserves the tie-break.
func rankEpisodes(entries []memModels.EpisodicEntry, query string, k int) []memModels.EpisodicEntry {
	type scored struct {
		entry memModels.EpisodicEntry
		score int
	}

	ranked := make([]scored, 0, len(entries))
	for _, e := range entries {
		if s := memModels.SummaryScore(e.Summary, query); s > 0 {
			ranked = append(ranked, scored{entry: e, score: s})
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	if len(ranked) > k {
		ranked = ranked[:k]
	}

	out := make([]memModels.EpisodicEntry, len(ranked))
	for i, s := range ranked {
		out[i] = s.entry
	}
	return out
}
