package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"engram/internal/domain"
	memModels "engram/internal/domain/models/memory"
	"engram/internal/domain/repositories"
	"engram/internal/engine"
	"engram/internal/engine/actions"
	"engram/internal/engine/prompt"
	"engram/internal/engine/pruner"
	"engram/internal/engine/sessions"
	"engram/internal/engine/tiering"
	"engram/internal/engine/tokens"
	"engram/internal/repository/memstore"
	"engram/internal/service/providers"
)

type echoProvider struct{}

func (echoProvider) Name() string                { return "echo" }
func (echoProvider) SupportsModel(m string) bool { return strings.HasPrefix(m, "echo-") }

func (echoProvider) Complete(ctx context.Context, req *providers.CompletionRequest) (*providers.CompletionResponse, error) {
	return &providers.CompletionResponse{
		Text:  "TIER1: ack\nTIER2: Acknowledged the message.\nTIER3: Understood.",
		Model: req.Model,
	}, nil
}

type fixture struct {
	svc      *Service
	tiers    *memstore.TierStore
	episodes *memstore.EpisodicStore
	sessions *memstore.SessionStore
	tx       *recordingTx
}

// recordingTx counts transactional scopes so tests can assert multi-store
// cascades run inside one.
type recordingTx struct {
	calls int
}

func (r *recordingTx) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	r.calls++
	return fn(ctx)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tiers := memstore.NewTierStore().(*memstore.TierStore)
	facts := memstore.NewFactStore().(*memstore.FactStore)
	episodes := memstore.NewEpisodicStore().(*memstore.EpisodicStore)
	sessionStore := memstore.NewSessionStore().(*memstore.SessionStore)

	registry := providers.NewRegistry()
	registry.Register(echoProvider{})

	templates, err := prompt.LoadTemplates()
	if err != nil {
		t.Fatalf("LoadTemplates: %v", err)
	}

	handler := actions.NewHandler(actions.Config{
		Tiers:    tiers,
		Episodes: episodes,
		Facts:    facts,
		Logger:   logger,
	})
	prn := pruner.NewPruner(pruner.Config{
		Tiers:     tiers,
		Episodes:  episodes,
		Estimator: tokens.HeuristicEstimator{},
		Budget:    30000,
		KeepFloor: 5,
		Logger:    logger,
	})

	factory := func(userID, sessionID string) *engine.Orchestrator {
		return engine.NewOrchestrator(userID, sessionID, engine.Config{
			Tiers:        tiers,
			Sessions:     sessionStore,
			Facts:        facts,
			Generator:    tiering.NewGenerator(nil, "", logger),
			Builder:      prompt.NewBuilder(templates, tokens.HeuristicEstimator{}, 30000),
			Handler:      handler,
			Pruner:       prn,
			Registry:     registry,
			Model:        "echo-1",
			MaxLoop:      2,
			CallTimeout:  time.Second,
			TurnDeadline: 5 * time.Second,
			Logger:       logger,
		})
	}
	manager := sessions.NewManager(factory, 30*time.Minute, logger)
	tx := &recordingTx{}

	return &fixture{
		svc:      NewService(manager, sessionStore, tiers, episodes, tx, logger),
		tiers:    tiers,
		episodes: episodes,
		sessions: sessionStore,
		tx:       tx,
	}
}

func TestChatTurnMintsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.svc.ChatTurn(ctx, "u7", &ChatRequest{SessionID: NewSessionID, Message: "My name is Jordan"})
	if err != nil {
		t.Fatalf("ChatTurn: %v", err)
	}
	if resp.SessionID == "" || resp.SessionID == NewSessionID {
		t.Fatalf("session id not minted: %q", resp.SessionID)
	}
	if resp.Status != engine.StatusOK {
		t.Errorf("status = %q", resp.Status)
	}

	history, err := f.svc.GetHistory(ctx, "u7", resp.SessionID)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history has %d turns, want 2", len(history))
	}
	if history[0].Role != memModels.RoleUser || history[0].Text != "My name is Jordan" {
		t.Errorf("user turn = %+v", history[0])
	}
	if history[1].Role != memModels.RoleAssistant || history[1].Text != "Understood." {
		t.Errorf("assistant turn = %+v", history[1])
	}
}

func TestChatTurnValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, req := range []*ChatRequest{
		{SessionID: "", Message: "hi"},
		{SessionID: NewSessionID, Message: ""},
		{SessionID: NewSessionID, Message: "   \n\t "},
		{SessionID: NewSessionID, Message: strings.Repeat("a", maxMessageLength+1)},
	} {
		if _, err := f.svc.ChatTurn(ctx, "u1", req); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("req %+v: err = %v, want validation error", req, err)
		}
	}
}

func TestChatTurnBlankMessageRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ChatTurn(ctx, "u1", &ChatRequest{SessionID: NewSessionID, Message: "   "})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}

	// Rejected before any state change: no session minted, no turn with
	// empty tiers ingested.
	list, _ := f.svc.ListSessions(ctx, "u1")
	if len(list) != 0 {
		t.Errorf("blank message minted %d sessions", len(list))
	}
}

func TestChatTurnUnknownSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ChatTurn(context.Background(), "u1", &ChatRequest{SessionID: "nope", Message: "hi"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestChatTurnOtherUsersSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.svc.ChatTurn(ctx, "u1", &ChatRequest{SessionID: NewSessionID, Message: "mine"})
	if err != nil {
		t.Fatalf("ChatTurn: %v", err)
	}

	if _, err := f.svc.ChatTurn(ctx, "u2", &ChatRequest{SessionID: resp.SessionID, Message: "theirs"}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want not found for foreign session", err)
	}
}

func TestConcurrentSessionsOneUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r1, err := f.svc.ChatTurn(ctx, "u1", &ChatRequest{SessionID: NewSessionID, Message: "session one"})
	if err != nil {
		t.Fatalf("ChatTurn: %v", err)
	}
	r2, err := f.svc.ChatTurn(ctx, "u1", &ChatRequest{SessionID: NewSessionID, Message: "session two"})
	if err != nil {
		t.Fatalf("ChatTurn: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		for _, sid := range []string{r1.SessionID, r2.SessionID} {
			wg.Add(1)
			go func(sid string) {
				defer wg.Done()
				if _, err := f.svc.ChatTurn(ctx, "u1", &ChatRequest{SessionID: sid, Message: "ping"}); err != nil {
					errs <- err
				}
			}(sid)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent turn failed: %v", err)
	}

	// Each session saw its own appends only: 1 initial + 10 concurrent
	// turns, two turns each.
	for _, sid := range []string{r1.SessionID, r2.SessionID} {
		turns, _ := f.tiers.List(ctx, sid)
		if len(turns) != 22 {
			t.Errorf("session %s has %d turns, want 22", sid, len(turns))
		}
		for i, turn := range turns {
			wantRole := memModels.RoleUser
			if i%2 == 1 {
				wantRole = memModels.RoleAssistant
			}
			if turn.Role != wantRole {
				t.Errorf("session %s turn %d role = %s, want %s (interleaved appends)", sid, i, turn.Role, wantRole)
				break
			}
		}
	}
}

func TestListSessionsOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r1, _ := f.svc.ChatTurn(ctx, "u1", &ChatRequest{SessionID: NewSessionID, Message: "first"})
	time.Sleep(2 * time.Millisecond)
	r2, _ := f.svc.ChatTurn(ctx, "u1", &ChatRequest{SessionID: NewSessionID, Message: "second"})

	list, err := f.svc.ListSessions(ctx, "u1")
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d sessions, want 2", len(list))
	}
	if list[0].ID != r2.SessionID || list[1].ID != r1.SessionID {
		t.Errorf("order = [%s %s], want most recent first", list[0].ID, list[1].ID)
	}
}

func TestDeleteSessionCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.svc.ChatTurn(ctx, "u1", &ChatRequest{SessionID: NewSessionID, Message: "to be deleted"})
	if err != nil {
		t.Fatalf("ChatTurn: %v", err)
	}

	if err := f.episodes.Archive(ctx, "u1", &memModels.EpisodicEntry{
		ID: "e1", SourceSessionID: resp.SessionID,
		Summary: "old stuff", ArchivedAt: time.Now(),
	}); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	if err := f.svc.DeleteSession(ctx, "u1", resp.SessionID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}

	if _, err := f.svc.GetHistory(ctx, "u1", resp.SessionID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("history err = %v, want not found", err)
	}
	turns, _ := f.tiers.List(ctx, resp.SessionID)
	if len(turns) != 0 {
		t.Errorf("%d turns survived deletion", len(turns))
	}
	hits, _ := f.episodes.Search(ctx, "u1", "old stuff", 5)
	if len(hits) != 0 {
		t.Errorf("%d episodes survived deletion", len(hits))
	}

	// Second delete is a no-op.
	if err := f.svc.DeleteSession(ctx, "u1", resp.SessionID); err != nil {
		t.Errorf("second DeleteSession: %v", err)
	}
}

func TestDeleteSessionRunsInTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.svc.ChatTurn(ctx, "u1", &ChatRequest{SessionID: NewSessionID, Message: "to be deleted"})
	if err != nil {
		t.Fatalf("ChatTurn: %v", err)
	}
	if f.tx.calls != 0 {
		t.Fatalf("chat turn opened %d transactions, want 0", f.tx.calls)
	}

	if err := f.svc.DeleteSession(ctx, "u1", resp.SessionID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if f.tx.calls != 1 {
		t.Errorf("cascade ran in %d transactions, want 1", f.tx.calls)
	}

	// Deleting the now-missing session again must not open another.
	if err := f.svc.DeleteSession(ctx, "u1", resp.SessionID); err != nil {
		t.Fatalf("second DeleteSession: %v", err)
	}
	if f.tx.calls != 1 {
		t.Errorf("no-op delete opened a transaction (calls = %d)", f.tx.calls)
	}
}
