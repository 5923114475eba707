// Package engine runs the per-turn conversation loop: ingest, prune,
// prompt, model call, directive handling, persist.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"engram/internal/domain"
	memModels "engram/internal/domain/models/memory"
	memRepo "engram/internal/domain/repositories/memory"
	"engram/internal/engine/actions"
	"engram/internal/engine/prompt"
	"engram/internal/engine/pruner"
	"engram/internal/engine/tiering"
	"engram/internal/service/providers"
)

// Status values for a completed turn.
const (
	StatusOK          = "ok"
	StatusForcedBreak = "forced_break"
)

// apologyLine is delivered when the loop saturates with no usable text.
const apologyLine = "I wasn't able to put together a full answer this time. Could you rephrase or try again?"

const titleMaxRunes = 80

// TurnResult is the outcome of one user turn.
type TurnResult struct {
	Answer      string
	Status      string
	AssistantID string // empty when no assistant turn was appended
}

// Config wires an Orchestrator.
type Config struct {
	Tiers        memRepo.TierStore
	Sessions     memRepo.SessionStore
	Facts        memRepo.FactStore
	Generator    *tiering.Generator
	Builder      *prompt.Builder
	Handler      *actions.Handler
	Pruner       *pruner.Pruner
	Registry     *providers.Registry
	Model        string
	MaxLoop      int
	CallTimeout  time.Duration
	TurnDeadline time.Duration
	Logger       *slog.Logger
}

// Orchestrator drives the loop for one (user_id, session_id). The
// session manager guarantees at most one ChatTurn runs at a time per
// instance, so the staged injection needs no locking.
type Orchestrator struct {
	userID    string
	sessionID string
	cfg       Config
	logger    *slog.Logger

	injection string // staged for the next prompt build, consumed once
}

// NewOrchestrator creates an Orchestrator for one session.
func NewOrchestrator(userID, sessionID string, cfg Config) *Orchestrator {
	return &Orchestrator{
		userID:    userID,
		sessionID: sessionID,
		cfg:       cfg,
		logger:    cfg.Logger.With("user_id", userID, "session_id", sessionID),
	}
}

// ChatTurn processes one user message and returns the user-visible
// answer. On error no assistant turn has been appended; the ingested
// user turn remains so a retry can attach to it.
func (o *Orchestrator) ChatTurn(ctx context.Context, text string) (*TurnResult, error) {
	if err := o.ingestUserTurn(ctx, text); err != nil {
		return nil, err
	}

	if err := o.cfg.Pruner.Prune(ctx, o.userID, o.sessionID); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(o.cfg.TurnDeadline)
	turnCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	loopCount := 0
	best := ""

	for {
		reply, err := o.callModel(turnCtx)
		if err != nil {
			if ctx.Err() != nil {
				// Caller cancelled: abandon without appending.
				return nil, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				if turnCtx.Err() != nil {
					// Overall deadline acts like loop saturation.
					return o.forcedBreak(ctx, best)
				}
				// Per-call timeout with turn budget left: retryable.
				return nil, &domain.TransientError{Message: "model call timed out", Err: err}
			}
			return nil, err
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		outcome := o.cfg.Handler.Handle(turnCtx, o.userID, o.sessionID, reply)
		switch outcome.Kind {
		case actions.OutcomeAnswer:
			return o.deliverAnswer(ctx, outcome)

		case actions.OutcomeReprompt:
			if candidate := strippedBody(reply); candidate != "" {
				best = candidate
			}
			if loopCount >= o.cfg.MaxLoop {
				return o.forcedBreak(ctx, best)
			}
			loopCount++
			o.injection = outcome.Injection

		case actions.OutcomeFail:
			o.touchActivity(ctx)
			return nil, outcome.Reason
		}
	}
}

// ingestUserTurn appends the user's message as a new turn and titles the
// session when it is the first one.
func (o *Orchestrator) ingestUserTurn(ctx context.Context, text string) error {
	existing, err := o.cfg.Tiers.List(ctx, o.sessionID)
	if err != nil {
		return fmt.Errorf("list turns: %w", err)
	}

	turn := &memModels.Turn{
		ID:           uuid.NewString(),
		SessionID:    o.sessionID,
		UserID:       o.userID,
		Role:         memModels.RoleUser,
		Tier3:        text,
		RequiredTier: memModels.TierCompact,
		CreatedAt:    time.Now().UTC(),
	}

	tiers, fallback := o.cfg.Generator.Generate(ctx, turn.ID, memModels.RoleUser, text)
	turn.Tier1 = tiers.Tier1
	turn.Tier2 = tiers.Tier2
	if fallback {
		turn.SetMeta(memModels.MetaTierFallback, true)
	}

	if err := o.cfg.Tiers.Append(ctx, o.sessionID, turn); err != nil {
		return fmt.Errorf("append user turn: %w", err)
	}

	if len(existing) == 0 {
		title := truncateRunes(turn.Tier2, titleMaxRunes)
		if title == "" {
			title = truncateRunes(text, titleMaxRunes)
		}
		if err := o.cfg.Sessions.UpdateTitle(ctx, o.sessionID, title); err != nil {
			o.logger.Warn("failed to title session", "error", err)
		}
	}
	return nil
}

// callModel builds the prompt, consuming any staged injection, and runs
// one bounded model call.
func (o *Orchestrator) callModel(ctx context.Context) (string, error) {
	turns, err := o.cfg.Tiers.List(ctx, o.sessionID)
	if err != nil {
		return "", fmt.Errorf("list turns: %w", err)
	}
	facts, err := o.cfg.Facts.List(ctx, o.userID)
	if err != nil {
		return "", fmt.Errorf("list facts: %w", err)
	}

	injection := o.injection
	o.injection = ""

	system, user := o.cfg.Builder.Build(prompt.Input{
		Turns:     turns,
		Facts:     facts,
		Injection: injection,
	})

	provider, err := o.cfg.Registry.ForModel(o.cfg.Model)
	if err != nil {
		return "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	defer cancel()

	resp, err := provider.Complete(callCtx, &providers.CompletionRequest{
		System:    system,
		Prompt:    user,
		Model:     o.cfg.Model,
		SessionID: o.sessionID,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// deliverAnswer persists the assistant turn and finishes the loop.
func (o *Orchestrator) deliverAnswer(ctx context.Context, outcome *actions.Outcome) (*TurnResult, error) {
	turn, err := o.appendAssistantTurn(ctx, outcome.Answer, outcome.Tier1, outcome.Tier2, outcome.ParseFallback, outcome.ContainsSearchResults, false)
	if err != nil {
		return nil, err
	}
	o.touchActivity(ctx)
	return &TurnResult{Answer: outcome.Answer, Status: StatusOK, AssistantID: turn.ID}, nil
}

// forcedBreak ends a saturated loop with the best stripped text seen so
// far, or the fixed apology line when there is none. The assistant turn
// is appended only when usable text exists.
func (o *Orchestrator) forcedBreak(ctx context.Context, best string) (*TurnResult, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if best == "" {
		o.touchActivity(ctx)
		return &TurnResult{Answer: apologyLine, Status: StatusForcedBreak}, nil
	}

	turn, err := o.appendAssistantTurn(ctx, best, "", "", true, false, true)
	if err != nil {
		return nil, err
	}
	o.touchActivity(ctx)
	return &TurnResult{Answer: best, Status: StatusForcedBreak, AssistantID: turn.ID}, nil
}

func (o *Orchestrator) appendAssistantTurn(ctx context.Context, text, tier1, tier2 string, regenerate, searchResults, forcedBreak bool) (*memModels.Turn, error) {
	turn := &memModels.Turn{
		ID:           uuid.NewString(),
		SessionID:    o.sessionID,
		UserID:       o.userID,
		Role:         memModels.RoleAssistant,
		Tier1:        tier1,
		Tier2:        tier2,
		Tier3:        text,
		RequiredTier: memModels.TierCompact,
		CreatedAt:    time.Now().UTC(),
	}

	if regenerate || tier1 == "" || tier2 == "" {
		tiers, fallback := o.cfg.Generator.Generate(ctx, turn.ID, memModels.RoleAssistant, text)
		turn.Tier1 = tiers.Tier1
		turn.Tier2 = tiers.Tier2
		if regenerate {
			turn.SetMeta(memModels.MetaParseFallback, true)
		}
		if fallback {
			turn.SetMeta(memModels.MetaTierFallback, true)
		}
	}
	if searchResults {
		turn.SetMeta(memModels.MetaSearchResults, true)
	}
	if forcedBreak {
		turn.SetMeta(memModels.MetaForcedBreak, true)
	}

	if err := o.cfg.Tiers.Append(ctx, o.sessionID, turn); err != nil {
		return nil, fmt.Errorf("append assistant turn: %w", err)
	}
	return turn, nil
}

func (o *Orchestrator) touchActivity(ctx context.Context) {
	if err := o.cfg.Sessions.TouchActivity(ctx, o.sessionID, time.Now().UTC()); err != nil {
		o.logger.Warn("failed to touch session activity", "error", err)
	}
}

// strippedBody extracts the answer candidate from a raw reply, for use
// when a saturated loop must fall back to the best text seen.
func strippedBody(reply string) string {
	if structured, ok := actions.ParseStructured(reply); ok {
		return actions.Strip(structured.Tier3)
	}
	return actions.Strip(reply)
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
