package actions

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	memModels "engram/internal/domain/models/memory"
	"engram/internal/repository/memstore"
	"engram/internal/service/search"
)

type fakeSearch struct {
	calls   int
	lastQ   string
	results []search.SearchResult
	err     error
}

func (f *fakeSearch) Search(ctx context.Context, query string, opts search.SearchOptions) (*search.SearchResponse, error) {
	f.calls++
	f.lastQ = query
	if f.err != nil {
		return nil, f.err
	}
	return &search.SearchResponse{Results: f.results, Query: query, Timestamp: time.Now()}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHandler(t *testing.T, sc search.SearchClient, enabled bool) (*Handler, *memstore.TierStore, *memstore.FactStore, *memstore.EpisodicStore) {
	t.Helper()
	tiers := memstore.NewTierStore().(*memstore.TierStore)
	facts := memstore.NewFactStore().(*memstore.FactStore)
	episodes := memstore.NewEpisodicStore().(*memstore.EpisodicStore)
	h := NewHandler(Config{
		Tiers:         tiers,
		Episodes:      episodes,
		Facts:         facts,
		SearchClient:  sc,
		SearchEnabled: enabled,
		EpisodicK:     3,
		Logger:        testLogger(),
	})
	return h, tiers, facts, episodes
}

func TestHandlePlainAnswer(t *testing.T) {
	h, _, _, _ := newTestHandler(t, nil, false)

	out := h.Handle(context.Background(), "u1", "s1", "TIER1: says=hi\nTIER2: Greeting.\nTIER3: Hi there!")
	if out.Kind != OutcomeAnswer {
		t.Fatalf("kind = %v, want answer", out.Kind)
	}
	if out.Answer != "Hi there!" {
		t.Errorf("answer = %q", out.Answer)
	}
	if out.Tier1 != "says=hi" || out.Tier2 != "Greeting." {
		t.Errorf("tiers = %q / %q", out.Tier1, out.Tier2)
	}
	if out.ParseFallback {
		t.Error("unexpected parse fallback")
	}
}

func TestHandleRawReplyFallback(t *testing.T) {
	h, _, _, _ := newTestHandler(t, nil, false)

	out := h.Handle(context.Background(), "u1", "s1", "just plain text")
	if out.Kind != OutcomeAnswer || out.Answer != "just plain text" {
		t.Fatalf("outcome = %+v", out)
	}
	if !out.ParseFallback {
		t.Error("expected parse fallback for unstructured reply")
	}
}

func TestHandleSearchDirective(t *testing.T) {
	sc := &fakeSearch{results: []search.SearchResult{
		{Title: "Paris Weather", URL: "https://example.com/w", Snippet: "Sunny, 24C"},
	}}
	h, _, _, _ := newTestHandler(t, sc, true)

	out := h.Handle(context.Background(), "u1", "s1", "Let me look. [SEARCH: weather in Paris today]")
	if out.Kind != OutcomeAnswer {
		t.Fatalf("kind = %v, want answer", out.Kind)
	}
	if sc.calls != 1 {
		t.Errorf("search called %d times, want 1", sc.calls)
	}
	if sc.lastQ != "weather in Paris today" {
		t.Errorf("query = %q", sc.lastQ)
	}
	if !out.ContainsSearchResults {
		t.Error("expected ContainsSearchResults")
	}
	if !out.ParseFallback {
		t.Error("rendered results should trigger tier regeneration")
	}
}

func TestHandleSearchDisabled(t *testing.T) {
	sc := &fakeSearch{}
	h, _, _, _ := newTestHandler(t, sc, false)

	out := h.Handle(context.Background(), "u1", "s1", "I'd check the web. [SEARCH: something]")
	if out.Kind != OutcomeAnswer {
		t.Fatalf("kind = %v, want answer", out.Kind)
	}
	if sc.calls != 0 {
		t.Errorf("search called %d times with search disabled", sc.calls)
	}
	if out.Answer != "I'd check the web." {
		t.Errorf("answer = %q", out.Answer)
	}
	if out.ContainsSearchResults {
		t.Error("should not be marked as search results")
	}
}

func TestHandleSearchFailure(t *testing.T) {
	sc := &fakeSearch{err: fmt.Errorf("connection refused")}
	h, _, _, _ := newTestHandler(t, sc, true)

	out := h.Handle(context.Background(), "u1", "s1", "[SEARCH: anything]")
	if out.Kind != OutcomeFail {
		t.Fatalf("kind = %v, want fail", out.Kind)
	}
	if out.Reason == nil {
		t.Error("expected a failure reason")
	}
}

func TestHandleRequestTier(t *testing.T) {
	h, tiers, _, _ := newTestHandler(t, nil, false)
	ctx := context.Background()

	if err := tiers.Append(ctx, "s1", &memModels.Turn{ID: "turn_4", Role: memModels.RoleUser, Tier3: "my dog is Rex", RequiredTier: 1}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	out := h.Handle(ctx, "u1", "s1", "I need the exact wording. [REQUEST_TIER:3:turn_4]")
	if out.Kind != OutcomeReprompt {
		t.Fatalf("kind = %v, want reprompt", out.Kind)
	}

	turns, _ := tiers.List(ctx, "s1")
	if turns[0].RequiredTier != 3 {
		t.Errorf("required_tier = %d, want 3", turns[0].RequiredTier)
	}
}

func TestHandleRequestTierUnknownTurn(t *testing.T) {
	h, _, _, _ := newTestHandler(t, nil, false)

	out := h.Handle(context.Background(), "u1", "s1", "Hmm. [REQUEST_TIER:3:no_such_turn]")
	if out.Kind != OutcomeAnswer {
		t.Fatalf("kind = %v, want answer for unknown turn id", out.Kind)
	}
	if out.Answer != "Hmm." {
		t.Errorf("answer = %q", out.Answer)
	}
}

func TestHandleEpisodicSearch(t *testing.T) {
	h, _, _, episodes := newTestHandler(t, nil, false)
	ctx := context.Background()

	entry := &memModels.EpisodicEntry{
		ID:              "e1",
		SourceSessionID: "old",
		Summary:         "discussed rust traits",
		Payload:         "full text about rust traits",
		ArchivedAt:      time.Now(),
	}
	if err := episodes.Archive(ctx, "u1", entry); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	out := h.Handle(ctx, "u1", "s1", "[SEARCH_EPISODIC: rust traits]")
	if out.Kind != OutcomeReprompt {
		t.Fatalf("kind = %v, want reprompt", out.Kind)
	}
	if out.Injection == "" {
		t.Fatal("expected an injection block")
	}
	for _, want := range []string{"rust traits", "discussed rust traits", "full text about rust traits"} {
		if !strings.Contains(out.Injection, want) {
			t.Errorf("injection missing %q:\n%s", want, out.Injection)
		}
	}
}

func TestHandleRememberAndForget(t *testing.T) {
	h, _, facts, _ := newTestHandler(t, nil, false)
	ctx := context.Background()

	out := h.Handle(ctx, "u1", "s1", "Got it. [REMEMBER: favorite_color=blue]")
	if out.Kind != OutcomeAnswer || out.Answer != "Got it." {
		t.Fatalf("outcome = %+v", out)
	}

	stored, _ := facts.List(ctx, "u1")
	if len(stored) != 1 || stored[0].Key != "favorite_color" || stored[0].Value != "blue" {
		t.Fatalf("facts = %+v", stored)
	}

	h.Handle(ctx, "u1", "s1", "Sure. [FORGET: favorite_color]")
	stored, _ = facts.List(ctx, "u1")
	if len(stored) != 0 {
		t.Errorf("facts after forget = %+v", stored)
	}
}

func TestHandleRememberWithoutKey(t *testing.T) {
	h, _, facts, _ := newTestHandler(t, nil, false)
	ctx := context.Background()

	h.Handle(ctx, "u1", "s1", "Noted. [REMEMBER: allergic to peanuts]")
	stored, _ := facts.List(ctx, "u1")
	if len(stored) != 1 {
		t.Fatalf("facts = %+v", stored)
	}
	if stored[0].Key != "allergic_to_peanuts" {
		t.Errorf("key = %q", stored[0].Key)
	}
	if stored[0].Value != "allergic to peanuts" {
		t.Errorf("value = %q", stored[0].Value)
	}
}

func TestInterruptingBeatsNonInterrupting(t *testing.T) {
	h, tiers, facts, _ := newTestHandler(t, nil, false)
	ctx := context.Background()

	if err := tiers.Append(ctx, "s1", &memModels.Turn{ID: "t1", Role: memModels.RoleUser, Tier3: "x", RequiredTier: 1}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// REMEMBER appears first by offset but REQUEST_TIER still decides
	// the outcome; the fact is applied either way.
	out := h.Handle(ctx, "u1", "s1", "[REMEMBER: pet=dog] [REQUEST_TIER:2:t1]")
	if out.Kind != OutcomeReprompt {
		t.Fatalf("kind = %v, want reprompt", out.Kind)
	}
	stored, _ := facts.List(ctx, "u1")
	if len(stored) != 1 || stored[0].Key != "pet" {
		t.Errorf("facts = %+v", stored)
	}
}
