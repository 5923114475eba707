package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"engram/internal/domain"
	memModels "engram/internal/domain/models/memory"
	memRepo "engram/internal/domain/repositories/memory"
	"engram/internal/service/search"
)

// OutcomeKind is the handler's decision for one reply.
type OutcomeKind int

const (
	// OutcomeAnswer delivers text to the user and ends the loop.
	OutcomeAnswer OutcomeKind = iota
	// OutcomeReprompt asks the orchestrator to rebuild the prompt and
	// call the model again.
	OutcomeReprompt
	// OutcomeFail surfaces an error as the turn's result.
	OutcomeFail
)

// Outcome is the result of handling one model reply.
type Outcome struct {
	Kind OutcomeKind

	// Answer is the user-visible text, directives stripped. Set for
	// OutcomeAnswer.
	Answer string

	// Tier1 and Tier2 carry the model's own compact and summary fields
	// when the reply was structured. Empty when ParseFallback is true.
	Tier1 string
	Tier2 string

	// ParseFallback is true when the reply lacked the structured fields
	// and the tier generator must derive tier1/tier2.
	ParseFallback bool

	// ContainsSearchResults marks answers whose text is a rendered
	// search results block.
	ContainsSearchResults bool

	// Injection is the staged episodic block for the next prompt build.
	// Set for OutcomeReprompt after an episodic search.
	Injection string

	// Reason is set for OutcomeFail.
	Reason error
}

// Handler executes directives against the stores and the search
// collaborator.
type Handler struct {
	tiers         memRepo.TierEscalator
	episodes      memRepo.EpisodicStore
	facts         memRepo.FactStore
	searchClient  search.SearchClient
	searchEnabled bool
	episodicK     int
	logger        *slog.Logger
}

// Config wires a Handler.
type Config struct {
	Tiers         memRepo.TierEscalator
	Episodes      memRepo.EpisodicStore
	Facts         memRepo.FactStore
	SearchClient  search.SearchClient
	SearchEnabled bool
	EpisodicK     int
	Logger        *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(cfg Config) *Handler {
	k := cfg.EpisodicK
	if k <= 0 {
		k = 3
	}
	return &Handler{
		tiers:         cfg.Tiers,
		episodes:      cfg.Episodes,
		facts:         cfg.Facts,
		searchClient:  cfg.SearchClient,
		searchEnabled: cfg.SearchEnabled && cfg.SearchClient != nil,
		episodicK:     k,
		logger:        cfg.Logger,
	}
}

// Handle parses the raw model reply, applies its directives, and decides
// the loop outcome. Non-interrupting directives are always applied; the
// first interrupting directive by offset determines the outcome.
func (h *Handler) Handle(ctx context.Context, userID, sessionID, reply string) *Outcome {
	structured, ok := ParseStructured(reply)
	body := reply
	if ok {
		body = structured.Tier3
	}

	directives := Parse(body)
	h.applyFactDirectives(ctx, userID, directives)

	for _, d := range directives {
		if !d.Interrupting() {
			continue
		}
		switch d.Kind {
		case KindSearch:
			return h.handleSearch(ctx, sessionID, d, structured, ok, body)
		case KindRequestTier:
			outcome := h.handleRequestTier(ctx, sessionID, d)
			if outcome != nil {
				return outcome
			}
			// Unknown turn id: fall through to the answer path.
		case KindSearchEpisodic:
			return h.handleEpisodic(ctx, userID, d)
		}
		break
	}

	return &Outcome{
		Kind:          OutcomeAnswer,
		Answer:        Strip(body),
		Tier1:         structured.Tier1,
		Tier2:         structured.Tier2,
		ParseFallback: !ok,
	}
}

// applyFactDirectives runs every REMEMBER and FORGET tag. Store
// failures are logged, never fatal to the turn.
func (h *Handler) applyFactDirectives(ctx context.Context, userID string, directives []Directive) {
	for _, d := range directives {
		switch d.Kind {
		case KindRemember:
			key, value := splitFact(d.Query)
			now := time.Now().UTC()
			fact := &memModels.UserFact{
				UserID:         userID,
				Key:            key,
				Value:          value,
				CreatedAt:      now,
				LastAccessedAt: now,
			}
			if err := h.facts.Upsert(ctx, fact); err != nil {
				h.logger.Warn("remember directive failed", "key", key, "error", err)
			}
		case KindForget:
			err := h.facts.Delete(ctx, userID, d.Query)
			if errors.Is(err, domain.ErrNotFound) {
				n, merr := h.facts.DeleteMatching(ctx, userID, d.Query)
				if merr != nil {
					h.logger.Warn("forget directive failed", "key", d.Query, "error", merr)
				} else if n == 0 {
					h.logger.Debug("forget directive matched nothing", "key", d.Query)
				}
			} else if err != nil {
				h.logger.Warn("forget directive failed", "key", d.Query, "error", err)
			}
		}
	}
}

func (h *Handler) handleSearch(ctx context.Context, sessionID string, d Directive, structured StructuredReply, ok bool, body string) *Outcome {
	if !h.searchEnabled {
		h.logger.Debug("search directive ignored, search disabled", "session_id", sessionID)
		return &Outcome{
			Kind:          OutcomeAnswer,
			Answer:        Strip(body),
			Tier1:         structured.Tier1,
			Tier2:         structured.Tier2,
			ParseFallback: !ok,
		}
	}

	resp, err := h.searchClient.Search(ctx, d.Query, search.SearchOptions{MaxResults: 5})
	if err != nil {
		return &Outcome{Kind: OutcomeFail, Reason: fmt.Errorf("web search: %w", err)}
	}

	// The rendered results replace the model's reply, so the tier
	// generator derives the compact forms from the results block.
	return &Outcome{
		Kind:                  OutcomeAnswer,
		Answer:                search.RenderResults(resp),
		ParseFallback:         true,
		ContainsSearchResults: true,
	}
}

// handleRequestTier escalates the referenced turn. Returns nil when the
// turn id is unknown so the caller answers normally instead of looping.
func (h *Handler) handleRequestTier(ctx context.Context, sessionID string, d Directive) *Outcome {
	err := h.tiers.SetRequiredTier(ctx, sessionID, d.TurnID, d.Tier)
	if errors.Is(err, domain.ErrNotFound) {
		h.logger.Warn("tier escalation for unknown turn", "session_id", sessionID, "turn_id", d.TurnID)
		return nil
	}
	if err != nil {
		return &Outcome{Kind: OutcomeFail, Reason: fmt.Errorf("tier escalation: %w", err)}
	}
	return &Outcome{Kind: OutcomeReprompt}
}

func (h *Handler) handleEpisodic(ctx context.Context, userID string, d Directive) *Outcome {
	entries, err := h.episodes.Search(ctx, userID, d.Query, h.episodicK)
	if err != nil {
		return &Outcome{Kind: OutcomeFail, Reason: fmt.Errorf("episodic search: %w", err)}
	}
	return &Outcome{
		Kind:      OutcomeReprompt,
		Injection: renderEpisodes(d.Query, entries),
	}
}

// renderEpisodes formats episodic hits as the injection block for the
// next prompt. An empty hit list still produces a block so the model
// does not re-request the same query.
func renderEpisodes(query string, entries []memModels.EpisodicEntry) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Recalled archived conversations for %q:\n", query))
	if len(entries) == 0 {
		sb.WriteString("(no archived conversations matched)")
		return sb.String()
	}
	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("\n[episode %s, archived %s]\n%s\n%s\n",
			e.ID, e.ArchivedAt.UTC().Format("2006-01-02"), e.Summary, e.Payload))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// splitFact parses a REMEMBER payload. "key=value" splits on the first
// '='; otherwise the key is a slug of the first three words and the
// value is the whole fact.
func splitFact(fact string) (string, string) {
	if i := strings.Index(fact, "="); i > 0 {
		return strings.TrimSpace(fact[:i]), strings.TrimSpace(fact[i+1:])
	}
	words := strings.Fields(strings.ToLower(fact))
	if len(words) > 3 {
		words = words[:3]
	}
	slug := strings.Join(words, "_")
	cleaned := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' {
			return r
		}
		return -1
	}, slug)
	if cleaned == "" {
		cleaned = "fact"
	}
	return cleaned, fact
}
