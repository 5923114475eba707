package memory

import (
	"time"
)

// Session is the metadata row for one user's conversation. The ordered turns
// themselves live in the tier store; archived overflow lives in the episodic
// store.
type Session struct {
	ID             string    `json:"id" db:"id"`
	UserID         string    `json:"user_id" db:"user_id"`
	Title          string    `json:"title" db:"title"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at" db:"last_activity_at"`
}

// SessionSummary is the listing shape returned to clients.
type SessionSummary struct {
	ID             string    `json:"session_id" db:"id"`
	Title          string    `json:"title" db:"title"`
	LastActivityAt time.Time `json:"last_activity_at" db:"last_activity_at"`
}
