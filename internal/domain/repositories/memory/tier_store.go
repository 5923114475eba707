package memory

import (
	"context"

	"engram/internal/domain/models/memory"
)

// TierAppender writes new turns into a session's working window.
type TierAppender interface {
	// Append adds a turn at the end of the session's ordered log.
	// Returns domain.ErrConflict (wrapped) if the turn id already exists
	// within the session.
	Append(ctx context.Context, sessionID string, turn *memory.Turn) error
}

// TierReader serves the working window.
type TierReader interface {
	// List returns the session's turns in insertion order.
	List(ctx context.Context, sessionID string) ([]memory.Turn, error)
}

// TierEscalator raises a turn's required tier.
type TierEscalator interface {
	// SetRequiredTier sets required_tier to max(current, tier).
	// Idempotent; never decreases. Returns domain.ErrNotFound (wrapped)
	// if the turn does not exist in the session.
	SetRequiredTier(ctx context.Context, sessionID, turnID string, tier int) error
}

// TierRemover removes turns from the working window. Only the pruner and
// session deletion use it.
type TierRemover interface {
	// Remove deletes one turn. Returns domain.ErrNotFound (wrapped) if absent.
	Remove(ctx context.Context, sessionID, turnID string) error

	// DeleteSession removes every turn of a session. Idempotent.
	DeleteSession(ctx context.Context, sessionID string) error
}

// TierStore is the full per-session ordered log of turns, each carrying all
// three tier representations plus the current required-tier marker.
// Implementations serialize operations within one session; operations on
// different sessions may proceed in parallel.
type TierStore interface {
	TierAppender
	TierReader
	TierEscalator
	TierRemover
}
