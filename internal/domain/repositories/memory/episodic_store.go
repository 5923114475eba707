package memory

import (
	"context"

	"engram/internal/domain/models/memory"
)

// EpisodicStore is the per-user append-only archive of pruned turns with a
// summary index for retrieval. Entries are created by the pruner and are
// read-only thereafter.
type EpisodicStore interface {
	// Archive appends a new entry.
	Archive(ctx context.Context, userID string, entry *memory.EpisodicEntry) error

	// Search returns up to k entries whose summary best matches query.
	// Scoring is deterministic for a given (corpus, query); ties break by
	// most recent archived_at, then id.
	Search(ctx context.Context, userID, query string, k int) ([]memory.EpisodicEntry, error)

	// DeleteForSession removes all entries sourced from one session.
	// Idempotent.
	DeleteForSession(ctx context.Context, userID, sessionID string) error
}
