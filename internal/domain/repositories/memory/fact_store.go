package memory

import (
	"context"

	"engram/internal/domain/models/memory"
)

// FactStore is the per-user key/value store of durable facts extracted
// across sessions. (user_id, key) is unique.
type FactStore interface {
	// Upsert inserts or replaces the fact for (fact.UserID, fact.Key).
	Upsert(ctx context.Context, fact *memory.UserFact) error

	// List returns all facts for a user sorted by key.
	List(ctx context.Context, userID string) ([]memory.UserFact, error)

	// Delete removes the fact with the exact key. Returns
	// domain.ErrNotFound (wrapped) if absent.
	Delete(ctx context.Context, userID, key string) error

	// DeleteMatching removes every fact whose key contains the substring.
	// Returns the number removed; zero matches is not an error.
	DeleteMatching(ctx context.Context, userID, substr string) (int, error)
}
