package memory

import (
	"time"
)

// UserFact is a durable key/value pair extracted across sessions, e.g.
// user_name=Jordan. (user_id, key) is unique; an upsert with an existing key
// replaces the value.
type UserFact struct {
	UserID         string    `json:"user_id" db:"user_id"`
	Key            string    `json:"key" db:"key"`
	Value          string    `json:"value" db:"value"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at" db:"last_accessed_at"`
}
