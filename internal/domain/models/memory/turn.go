package memory

import (
	"time"
)

// Roles a turn can carry.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Tier levels. Every turn carries all three representations; RequiredTier
// selects which one the prompt builder renders.
const (
	TierCompact = 1 // key/value shorthand or <=20-word distillation
	TierSummary = 2 // one-to-two-sentence summary
	TierFull    = 3 // full original text, byte-equal to what was said
)

// Well-known metadata keys set by the engine.
const (
	MetaTierFallback   = "tier_fallback"
	MetaParseFallback  = "parse_fallback"
	MetaForcedBreak    = "forced_break"
	MetaSearchResults  = "contains_search_results"
)

// Turn is the atomic unit of conversation: one role-labeled message carrying
// three fidelity levels of the same content. A turn is mutated only to raise
// RequiredTier; it leaves the working window when the pruner archives it.
type Turn struct {
	ID           string                 `json:"id" db:"id"`
	SessionID    string                 `json:"session_id" db:"session_id"`
	UserID       string                 `json:"user_id" db:"user_id"`
	Role         string                 `json:"role" db:"role"`
	Tier1        string                 `json:"tier1" db:"tier1"`
	Tier2        string                 `json:"tier2" db:"tier2"`
	Tier3        string                 `json:"tier3" db:"tier3"`
	RequiredTier int                    `json:"required_tier" db:"required_tier"`
	CreatedAt    time.Time              `json:"created_at" db:"created_at"`
	Metadata     map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
}

// TextAt returns the representation for the given tier level.
// Out-of-range levels clamp to the nearest valid tier.
func (t *Turn) TextAt(tier int) string {
	switch {
	case tier <= TierCompact:
		return t.Tier1
	case tier == TierSummary:
		return t.Tier2
	default:
		return t.Tier3
	}
}

// SetMeta sets a metadata tag, allocating the map on first use.
func (t *Turn) SetMeta(key string, value interface{}) {
	if t.Metadata == nil {
		t.Metadata = make(map[string]interface{})
	}
	t.Metadata[key] = value
}

// MetaBool reports whether a metadata tag is set to true.
func (t *Turn) MetaBool(key string) bool {
	if t.Metadata == nil {
		return false
	}
	v, _ := t.Metadata[key].(bool)
	return v
}

// ValidTier reports whether n is a legal tier level.
func ValidTier(n int) bool {
	return n >= TierCompact && n <= TierFull
}
