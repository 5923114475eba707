package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"engram/internal/domain"
	memModels "engram/internal/domain/models/memory"
	memRepo "engram/internal/domain/repositories/memory"
)

// EpisodicStore is an in-memory EpisodicStore with per-user locking.
type EpisodicStore struct {
	mu    sync.Mutex
	users map[string]*episodeArchive
}

type episodeArchive struct {
	mu      sync.Mutex
	entries []memModels.EpisodicEntry
	ids     map[string]struct{}
}

// NewEpisodicStore creates an empty in-memory episodic store.
func NewEpisodicStore() memRepo.EpisodicStore {
	return &EpisodicStore{users: make(map[string]*episodeArchive)}
}

func (s *EpisodicStore) archive(userID string, create bool) *episodeArchive {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.users[userID]
	if !ok && create {
		a = &episodeArchive{ids: make(map[string]struct{})}
		s.users[userID] = a
	}
	return a
}

// Archive appends a new episodic entry
func (s *EpisodicStore) Archive(ctx context.Context, userID string, entry *memModels.EpisodicEntry) error {
	a := s.archive(userID, true)
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.ids[entry.ID]; exists {
		return &domain.ConflictError{
			Message:      fmt.Sprintf("episode %s already exists", entry.ID),
			ResourceType: "episode",
			ResourceID:   entry.ID,
		}
	}

	copied := *entry
	copied.UserID = userID
	copied.TurnIDs = append([]string(nil), entry.TurnIDs...)
	a.ids[entry.ID] = struct{}{}
	a.entries = append(a.entries, copied)
	return nil
}

// Search returns up to k entries whose summary best matches query.
// Score is the deterministic token-overlap count; ties break by most recent
// archived_at, then id.
func (s *EpisodicStore) Search(ctx context.Context, userID, query string, k int) ([]memModels.EpisodicEntry, error) {
	if k <= 0 {
		return []memModels.EpisodicEntry{}, nil
	}

	a := s.archive(userID, false)
	if a == nil {
		return []memModels.EpisodicEntry{}, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	type scored struct {
		entry memModels.EpisodicEntry
		score int
	}

	ranked := make([]scored, 0, len(a.entries))
	for _, e := range a.entries {
		if sc := memModels.SummaryScore(e.Summary, query); sc > 0 {
			ranked = append(ranked, scored{entry: e, score: sc})
		}
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		if !ranked[i].entry.ArchivedAt.Equal(ranked[j].entry.ArchivedAt) {
			return ranked[i].entry.ArchivedAt.After(ranked[j].entry.ArchivedAt)
		}
		return ranked[i].entry.ID < ranked[j].entry.ID
	})

	if len(ranked) > k {
		ranked = ranked[:k]
	}

	out := make([]memModels.EpisodicEntry, len(ranked))
	for i, sc := range ranked {
		out[i] = sc.entry
		out[i].TurnIDs = append([]string(nil), sc.entry.TurnIDs...)
	}
	return out, nil
}

// DeleteForSession removes all entries sourced from one session
func (s *EpisodicStore) DeleteForSession(ctx context.Context, userID, sessionID string) error {
	a := s.archive(userID, false)
	if a == nil {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	kept := a.entries[:0]
	for _, e := range a.entries {
		if e.SourceSessionID == sessionID {
			delete(a.ids, e.ID)
			continue
		}
		kept = append(kept, e)
	}
	a.entries = kept
	return nil
}
