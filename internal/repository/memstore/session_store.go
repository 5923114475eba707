package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"engram/internal/domain"
	memModels "engram/internal/domain/models/memory"
	memRepo "engram/internal/domain/repositories/memory"
)

// SessionStore is an in-memory SessionStore.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]memModels.Session // session id -> session
}

// NewSessionStore creates an empty in-memory session store.
func NewSessionStore() memRepo.SessionStore {
	return &SessionStore{sessions: make(map[string]memModels.Session)}
}

// Create inserts a new session row
func (s *SessionStore) Create(ctx context.Context, session *memModels.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return &domain.ConflictError{
			Message:      fmt.Sprintf("session %s already exists", session.ID),
			ResourceType: "session",
			ResourceID:   session.ID,
		}
	}
	s.sessions[session.ID] = *session
	return nil
}

// Get returns the session if it exists and belongs to the user
func (s *SessionStore) Get(ctx context.Context, userID, sessionID string) (*memModels.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok || session.UserID != userID {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	copied := session
	return &copied, nil
}

// List returns the user's sessions ordered by last_activity_at descending
func (s *SessionStore) List(ctx context.Context, userID string) ([]memModels.SessionSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []memModels.SessionSummary{}
	for _, session := range s.sessions {
		if session.UserID != userID {
			continue
		}
		out = append(out, memModels.SessionSummary{
			ID:             session.ID,
			Title:          session.Title,
			LastActivityAt: session.LastActivityAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActivityAt.Equal(out[j].LastActivityAt) {
			return out[i].LastActivityAt.After(out[j].LastActivityAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// UpdateTitle sets the session's display title
func (s *SessionStore) UpdateTitle(ctx context.Context, sessionID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	session.Title = title
	s.sessions[sessionID] = session
	return nil
}

// TouchActivity records activity at the given instant
func (s *SessionStore) TouchActivity(ctx context.Context, sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	session.LastActivityAt = at
	s.sessions[sessionID] = session
	return nil
}

// Delete removes the session row; deleting a missing session is a no-op
func (s *SessionStore) Delete(ctx context.Context, userID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if ok && session.UserID == userID {
		delete(s.sessions, sessionID)
	}
	return nil
}
