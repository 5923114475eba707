// Package memstore provides in-memory implementations of the memory store
// interfaces. They back the dev environment (no DATABASE_URL) and serve as
// test doubles; the durable backend is internal/repository/postgres/memory.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"engram/internal/domain"
	memModels "engram/internal/domain/models/memory"
	memRepo "engram/internal/domain/repositories/memory"
)

// TierStore is an in-memory TierStore. A per-session mutex serializes
// operations within one session while different sessions proceed in
// parallel.
type TierStore struct {
	mu       sync.Mutex // guards sessions map itself
	sessions map[string]*sessionLog
}

type sessionLog struct {
	mu    sync.Mutex
	turns []memModels.Turn
	index map[string]int // turn id -> position in turns
}

// NewTierStore creates an empty in-memory tier store.
func NewTierStore() memRepo.TierStore {
	return &TierStore{sessions: make(map[string]*sessionLog)}
}

func (s *TierStore) log(sessionID string, create bool) *sessionLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.sessions[sessionID]
	if !ok && create {
		l = &sessionLog{index: make(map[string]int)}
		s.sessions[sessionID] = l
	}
	return l
}

// Append adds a turn at the end of the session's ordered log
func (s *TierStore) Append(ctx context.Context, sessionID string, turn *memModels.Turn) error {
	l := s.log(sessionID, true)
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.index[turn.ID]; exists {
		return &domain.ConflictError{
			Message:      fmt.Sprintf("turn %s already exists in session %s", turn.ID, sessionID),
			ResourceType: "turn",
			ResourceID:   turn.ID,
		}
	}

	copied := *turn
	copied.SessionID = sessionID
	copied.Metadata = copyMeta(turn.Metadata)
	l.index[turn.ID] = len(l.turns)
	l.turns = append(l.turns, copied)
	return nil
}

// List returns the session's turns in insertion order
func (s *TierStore) List(ctx context.Context, sessionID string) ([]memModels.Turn, error) {
	l := s.log(sessionID, false)
	if l == nil {
		return []memModels.Turn{}, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]memModels.Turn, len(l.turns))
	for i, t := range l.turns {
		out[i] = t
		out[i].Metadata = copyMeta(t.Metadata)
	}
	return out, nil
}

// SetRequiredTier raises required_tier to max(current, tier)
func (s *TierStore) SetRequiredTier(ctx context.Context, sessionID, turnID string, tier int) error {
	if !memModels.ValidTier(tier) {
		return fmt.Errorf("tier %d out of range: %w", tier, domain.ErrValidation)
	}

	l := s.log(sessionID, false)
	if l == nil {
		return fmt.Errorf("turn %s: %w", turnID, domain.ErrNotFound)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.index[turnID]
	if !ok {
		return fmt.Errorf("turn %s: %w", turnID, domain.ErrNotFound)
	}
	if tier > l.turns[pos].RequiredTier {
		l.turns[pos].RequiredTier = tier
	}
	return nil
}

// Remove deletes one turn from the working window
func (s *TierStore) Remove(ctx context.Context, sessionID, turnID string) error {
	l := s.log(sessionID, false)
	if l == nil {
		return fmt.Errorf("turn %s: %w", turnID, domain.ErrNotFound)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.index[turnID]
	if !ok {
		return fmt.Errorf("turn %s: %w", turnID, domain.ErrNotFound)
	}

	l.turns = append(l.turns[:pos], l.turns[pos+1:]...)
	delete(l.index, turnID)
	for i := pos; i < len(l.turns); i++ {
		l.index[l.turns[i].ID] = i
	}
	return nil
}

// DeleteSession removes every turn of a session
func (s *TierStore) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func copyMeta(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
