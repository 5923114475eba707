package memory

import (
	"time"
)

// EpisodicEntry is an archived turn or contiguous group of turns, created
// exclusively by the pruner and read-only thereafter. Summary is the
// retrieval key; Payload preserves the full tier3 content in order.
// Source turns are referenced by id only.
type EpisodicEntry struct {
	ID              string    `json:"episode_id" db:"id"`
	UserID          string    `json:"user_id" db:"user_id"`
	SourceSessionID string    `json:"source_session_id" db:"source_session_id"`
	TurnIDs         []string  `json:"turn_ids" db:"turn_ids"`
	Summary         string    `json:"summary" db:"summary"`
	Payload         string    `json:"payload" db:"payload"`
	ArchivedAt      time.Time `json:"archived_at" db:"archived_at"`
}
