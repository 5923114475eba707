package memory

import (
	"context"
	"time"

	"engram/internal/domain/models/memory"
)

// SessionStore holds the per-user session metadata rows. The turns
// themselves live in the TierStore.
type SessionStore interface {
	// Create inserts a new session row. Returns domain.ErrConflict
	// (wrapped) on duplicate id.
	Create(ctx context.Context, session *memory.Session) error

	// Get returns the session if it exists and belongs to the user.
	Get(ctx context.Context, userID, sessionID string) (*memory.Session, error)

	// List returns the user's sessions ordered by last_activity_at
	// descending.
	List(ctx context.Context, userID string) ([]memory.SessionSummary, error)

	// UpdateTitle sets the session's display title.
	UpdateTitle(ctx context.Context, sessionID, title string) error

	// TouchActivity records activity at the given instant.
	TouchActivity(ctx context.Context, sessionID string, at time.Time) error

	// Delete removes the session row. Deleting a missing session is a
	// no-op, not an error.
	Delete(ctx context.Context, userID, sessionID string) error
}
