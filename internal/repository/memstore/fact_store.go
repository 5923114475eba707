package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"engram/internal/domain"
	memModels "engram/internal/domain/models/memory"
	memRepo "engram/internal/domain/repositories/memory"
)

// FactStore is an in-memory FactStore.
type FactStore struct {
	mu    sync.Mutex
	facts map[string]map[string]memModels.UserFact // user id -> key -> fact
}

// NewFactStore creates an empty in-memory fact store.
func NewFactStore() memRepo.FactStore {
	return &FactStore{facts: make(map[string]map[string]memModels.UserFact)}
}

// Upsert inserts or replaces the fact for (user_id, key)
func (s *FactStore) Upsert(ctx context.Context, fact *memModels.UserFact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byKey, ok := s.facts[fact.UserID]
	if !ok {
		byKey = make(map[string]memModels.UserFact)
		s.facts[fact.UserID] = byKey
	}

	stored := *fact
	if existing, ok := byKey[fact.Key]; ok {
		stored.CreatedAt = existing.CreatedAt
	}
	byKey[fact.Key] = stored
	return nil
}

// List returns all facts for a user sorted by key
func (s *FactStore) List(ctx context.Context, userID string) ([]memModels.UserFact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byKey := s.facts[userID]
	out := make([]memModels.UserFact, 0, len(byKey))
	for _, fact := range byKey {
		out = append(out, fact)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Delete removes the fact with the exact key
func (s *FactStore) Delete(ctx context.Context, userID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byKey := s.facts[userID]
	if _, ok := byKey[key]; !ok {
		return fmt.Errorf("fact %s: %w", key, domain.ErrNotFound)
	}
	delete(byKey, key)
	return nil
}

// DeleteMatching removes every fact whose key contains the substring
func (s *FactStore) DeleteMatching(ctx context.Context, userID, substr string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byKey := s.facts[userID]
	removed := 0
	for key := range byKey {
		if strings.Contains(key, substr) {
			delete(byKey, key)
			removed++
		}
	}
	return removed, nil
}
