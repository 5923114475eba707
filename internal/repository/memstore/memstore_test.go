package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"engram/internal/domain"
	memModels "engram/internal/domain/models/memory"
)

func TestTierStoreAppendAndList(t *testing.T) {
	ctx := context.Background()
	store := NewTierStore()

	for i := 0; i < 3; i++ {
		turn := &memModels.Turn{
			ID:           fmt.Sprintf("t%d", i),
			Role:         memModels.RoleUser,
			Tier3:        fmt.Sprintf("message %d", i),
			RequiredTier: memModels.TierCompact,
			CreatedAt:    time.Now(),
		}
		if err := store.Append(ctx, "s1", turn); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	turns, err := store.List(ctx, "s1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	for i, turn := range turns {
		if turn.ID != fmt.Sprintf("t%d", i) {
			t.Errorf("turn %d out of order: got %s", i, turn.ID)
		}
	}
}

func TestTierStoreDuplicateAppend(t *testing.T) {
	ctx := context.Background()
	store := NewTierStore()

	turn := &memModels.Turn{ID: "t1", Role: memModels.RoleUser, Tier3: "hello", RequiredTier: 1}
	if err := store.Append(ctx, "s1", turn); err != nil {
		t.Fatalf("first Append: %v", err)
	}
	err := store.Append(ctx, "s1", turn)
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestTierStoreSetRequiredTierMonotonic(t *testing.T) {
	ctx := context.Background()
	store := NewTierStore()

	turn := &memModels.Turn{ID: "t1", Role: memModels.RoleUser, Tier3: "hello", RequiredTier: 1}
	if err := store.Append(ctx, "s1", turn); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if err := store.SetRequiredTier(ctx, "s1", "t1", 3); err != nil {
		t.Fatalf("SetRequiredTier up: %v", err)
	}
	// Lowering is a no-op, never an error.
	if err := store.SetRequiredTier(ctx, "s1", "t1", 1); err != nil {
		t.Fatalf("SetRequiredTier down: %v", err)
	}

	turns, _ := store.List(ctx, "s1")
	if turns[0].RequiredTier != 3 {
		t.Errorf("required_tier = %d, want 3", turns[0].RequiredTier)
	}

	if err := store.SetRequiredTier(ctx, "s1", "t1", 4); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation for tier 4, got %v", err)
	}
	if err := store.SetRequiredTier(ctx, "s1", "missing", 2); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown turn, got %v", err)
	}
}

func TestTierStoreRemoveReindexes(t *testing.T) {
	ctx := context.Background()
	store := NewTierStore()

	for _, id := range []string{"a", "b", "c"} {
		if err := store.Append(ctx, "s1", &memModels.Turn{ID: id, Role: memModels.RoleUser, Tier3: id, RequiredTier: 1}); err != nil {
			t.Fatalf("Append %s: %v", id, err)
		}
	}
	if err := store.Remove(ctx, "s1", "b"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	turns, _ := store.List(ctx, "s1")
	if len(turns) != 2 || turns[0].ID != "a" || turns[1].ID != "c" {
		t.Fatalf("unexpected turns after remove: %+v", turns)
	}
	if err := store.SetRequiredTier(ctx, "s1", "c", 2); err != nil {
		t.Errorf("SetRequiredTier after remove: %v", err)
	}
}

func TestTierStoreMetadataIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewTierStore()

	turn := &memModels.Turn{ID: "t1", Role: memModels.RoleAssistant, Tier3: "x", RequiredTier: 1}
	turn.SetMeta(memModels.MetaForcedBreak, true)
	if err := store.Append(ctx, "s1", turn); err != nil {
		t.Fatalf("Append: %v", err)
	}

	turns, _ := store.List(ctx, "s1")
	turns[0].Metadata[memModels.MetaForcedBreak] = false

	again, _ := store.List(ctx, "s1")
	if !again[0].MetaBool(memModels.MetaForcedBreak) {
		t.Error("stored metadata mutated through List result")
	}
}

func TestEpisodicStoreSearchRanking(t *testing.T) {
	ctx := context.Background()
	store := NewEpisodicStore()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	entries := []memModels.EpisodicEntry{
		{ID: "e1", SourceSessionID: "s1", Summary: "talked about rust memory safety", ArchivedAt: base},
		{ID: "e2", SourceSessionID: "s1", Summary: "planned a trip to portugal", ArchivedAt: base.Add(time.Hour)},
		{ID: "e3", SourceSessionID: "s2", Summary: "rust borrow checker deep dive", ArchivedAt: base.Add(2 * time.Hour)},
	}
	for i := range entries {
		if err := store.Archive(ctx, "u1", &entries[i]); err != nil {
			t.Fatalf("Archive %s: %v", entries[i].ID, err)
		}
	}

	got, err := store.Search(ctx, "u1", "rust memory", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(got))
	}
	// e1 matches both tokens, e3 only one.
	if got[0].ID != "e1" || got[1].ID != "e3" {
		t.Errorf("ranking = [%s %s], want [e1 e3]", got[0].ID, got[1].ID)
	}

	none, err := store.Search(ctx, "u1", "quantum", 5)
	if err != nil {
		t.Fatalf("Search no match: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no hits, got %d", len(none))
	}
}

func TestEpisodicStoreDeleteForSession(t *testing.T) {
	ctx := context.Background()
	store := NewEpisodicStore()

	now := time.Now()
	for i, sid := range []string{"s1", "s2", "s1"} {
		entry := &memModels.EpisodicEntry{
			ID:              fmt.Sprintf("e%d", i),
			SourceSessionID: sid,
			Summary:         "shared topic",
			ArchivedAt:      now.Add(time.Duration(i) * time.Minute),
		}
		if err := store.Archive(ctx, "u1", entry); err != nil {
			t.Fatalf("Archive: %v", err)
		}
	}

	if err := store.DeleteForSession(ctx, "u1", "s1"); err != nil {
		t.Fatalf("DeleteForSession: %v", err)
	}
	got, _ := store.Search(ctx, "u1", "shared topic", 10)
	if len(got) != 1 || got[0].SourceSessionID != "s2" {
		t.Errorf("expected only the s2 entry to survive, got %+v", got)
	}
}

func TestFactStoreUpsertAndList(t *testing.T) {
	ctx := context.Background()
	store := NewFactStore()

	created := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	if err := store.Upsert(ctx, &memModels.UserFact{UserID: "u1", Key: "favorite_color", Value: "blue", CreatedAt: created}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := store.Upsert(ctx, &memModels.UserFact{UserID: "u1", Key: "allergy", Value: "peanuts", CreatedAt: created}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	// Same key replaces the value but keeps the original created_at.
	if err := store.Upsert(ctx, &memModels.UserFact{UserID: "u1", Key: "favorite_color", Value: "green", CreatedAt: created.AddDate(0, 0, 1)}); err != nil {
		t.Fatalf("Upsert replace: %v", err)
	}

	facts, err := store.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(facts) != 2 {
		t.Fatalf("expected 2 facts, got %d", len(facts))
	}
	if facts[0].Key != "allergy" || facts[1].Key != "favorite_color" {
		t.Errorf("facts not sorted by key: %+v", facts)
	}
	if facts[1].Value != "green" {
		t.Errorf("value = %q, want green", facts[1].Value)
	}
	if !facts[1].CreatedAt.Equal(created) {
		t.Errorf("created_at changed on upsert: %v", facts[1].CreatedAt)
	}
}

func TestFactStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := NewFactStore()

	for _, key := range []string{"travel_pref", "travel_budget", "diet"} {
		if err := store.Upsert(ctx, &memModels.UserFact{UserID: "u1", Key: key, Value: "x"}); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	if err := store.Delete(ctx, "u1", "diet"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, "u1", "diet"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}

	n, err := store.DeleteMatching(ctx, "u1", "travel")
	if err != nil {
		t.Fatalf("DeleteMatching: %v", err)
	}
	if n != 2 {
		t.Errorf("DeleteMatching removed %d, want 2", n)
	}
	facts, _ := store.List(ctx, "u1")
	if len(facts) != 0 {
		t.Errorf("expected empty fact list, got %+v", facts)
	}
}

func TestSessionStoreListOrder(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		session := &memModels.Session{
			ID:             fmt.Sprintf("s%d", i),
			UserID:         "u1",
			Title:          fmt.Sprintf("session %d", i),
			CreatedAt:      base,
			LastActivityAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := store.Create(ctx, session); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	if err := store.TouchActivity(ctx, "s0", base.Add(10*time.Hour)); err != nil {
		t.Fatalf("TouchActivity: %v", err)
	}

	list, err := store.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(list))
	}
	if list[0].ID != "s0" || list[1].ID != "s2" || list[2].ID != "s1" {
		t.Errorf("order = [%s %s %s], want [s0 s2 s1]", list[0].ID, list[1].ID, list[2].ID)
	}
}

func TestSessionStoreOwnershipAndDelete(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	now := time.Now()
	if err := store.Create(ctx, &memModels.Session{ID: "s1", UserID: "u1", Title: "mine", CreatedAt: now, LastActivityAt: now}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := store.Get(ctx, "u2", "s1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound for wrong user, got %v", err)
	}

	// Wrong owner cannot delete.
	if err := store.Delete(ctx, "u2", "s1"); err != nil {
		t.Fatalf("Delete wrong user: %v", err)
	}
	if _, err := store.Get(ctx, "u1", "s1"); err != nil {
		t.Errorf("session removed by non-owner delete: %v", err)
	}

	if err := store.Delete(ctx, "u1", "s1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	// Idempotent.
	if err := store.Delete(ctx, "u1", "s1"); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}

func TestTierStoreConcurrentSessions(t *testing.T) {
	ctx := context.Background()
	store := NewTierStore()

	var wg sync.WaitGroup
	for s := 0; s < 4; s++ {
		sessionID := fmt.Sprintf("s%d", s)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				turn := &memModels.Turn{
					ID:           fmt.Sprintf("%s-t%d", sessionID, i),
					Role:         memModels.RoleUser,
					Tier3:        "hello",
					RequiredTier: 1,
				}
				if err := store.Append(ctx, sessionID, turn); err != nil {
					t.Errorf("Append %s: %v", sessionID, err)
					return
				}
			}
		}()
	}
	wg.Wait()

	for s := 0; s < 4; s++ {
		turns, err := store.List(ctx, fmt.Sprintf("s%d", s))
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(turns) != 50 {
			t.Errorf("session s%d has %d turns, want 50", s, len(turns))
		}
	}
}

func TestTransactionManagerPassThrough(t *testing.T) {
	tm := NewTransactionManager()
	ctx := context.WithValue(context.Background(), struct{ k string }{"k"}, "v")

	ran := false
	err := tm.ExecTx(ctx, func(fnCtx context.Context) error {
		ran = true
		if fnCtx != ctx {
			t.Error("pass-through changed the context")
		}
		return nil
	})
	if err != nil || !ran {
		t.Fatalf("ExecTx err = %v, ran = %v", err, ran)
	}

	want := errors.New("boom")
	if err := tm.ExecTx(ctx, func(context.Context) error { return want }); !errors.Is(err, want) {
		t.Errorf("ExecTx err = %v, want propagated", err)
	}
}
