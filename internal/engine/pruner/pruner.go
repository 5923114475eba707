// Package pruner moves the oldest turns of an oversized working window
// into episodic long-term storage.
package pruner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	memModels "engram/internal/domain/models/memory"
	memRepo "engram/internal/domain/repositories/memory"
	"engram/internal/engine/tokens"
)

// Pruner archives old turns when the working window exceeds the token
// budget. It runs at the start of each user turn, under the session lock.
type Pruner struct {
	tiers     memRepo.TierStore
	episodes  memRepo.EpisodicStore
	estimator tokens.Estimator
	budget    int
	keepFloor int
	margin    int
	logger    *slog.Logger
}

// Config wires a Pruner. KeepFloor is the minimum number of turns that
// must remain in the window. A zero Margin defaults to a tenth of the
// budget.
type Config struct {
	Tiers     memRepo.TierStore
	Episodes  memRepo.EpisodicStore
	Estimator tokens.Estimator
	Budget    int
	KeepFloor int
	Margin    int
	Logger    *slog.Logger
}

// NewPruner creates a Pruner.
func NewPruner(cfg Config) *Pruner {
	margin := cfg.Margin
	if margin <= 0 {
		margin = cfg.Budget / 10
	}
	return &Pruner{
		tiers:     cfg.Tiers,
		episodes:  cfg.Episodes,
		estimator: cfg.Estimator,
		budget:    cfg.Budget,
		keepFloor: cfg.KeepFloor,
		margin:    margin,
		logger:    cfg.Logger,
	}
}

// Prune reduces the session's working window if it exceeds the budget.
// Turns are archived oldest first, as user+assistant pairs where the two
// are adjacent, until the window fits under budget minus the safety
// margin or the keep floor is reached. Archival happens before removal,
// so a crash between the two leaves a duplicate episode rather than
// lost text.
func (p *Pruner) Prune(ctx context.Context, userID, sessionID string) error {
	turns, err := p.tiers.List(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("prune list: %w", err)
	}

	working := 0
	for _, t := range turns {
		working += p.estimator.Count(t.TextAt(t.RequiredTier))
	}
	if working <= p.budget {
		return nil
	}

	target := p.budget - p.margin
	remaining := len(turns)
	idx := 0

	for working > target && remaining > p.keepFloor && idx < len(turns) {
		group := turns[idx : idx+1]
		if idx+1 < len(turns) &&
			turns[idx].Role == memModels.RoleUser &&
			turns[idx+1].Role == memModels.RoleAssistant &&
			remaining-2 >= p.keepFloor {
			group = turns[idx : idx+2]
		}

		if err := p.archiveGroup(ctx, userID, sessionID, group); err != nil {
			return err
		}
		for _, t := range group {
			if err := p.tiers.Remove(ctx, sessionID, t.ID); err != nil {
				return fmt.Errorf("prune remove turn %s: %w", t.ID, err)
			}
			working -= p.estimator.Count(t.TextAt(t.RequiredTier))
			remaining--
		}
		idx += len(group)
	}

	if working > target {
		p.logger.Debug("prune stopped at keep floor",
			"session_id", sessionID, "working_tokens", working, "remaining", remaining)
	}
	return nil
}

func (p *Pruner) archiveGroup(ctx context.Context, userID, sessionID string, group []memModels.Turn) error {
	turnIDs := make([]string, len(group))
	summaries := make([]string, 0, len(group))
	payloads := make([]string, len(group))
	for i, t := range group {
		turnIDs[i] = t.ID
		if t.Tier2 != "" {
			summaries = append(summaries, t.Tier2)
		}
		payloads[i] = t.Tier3
	}

	entry := &memModels.EpisodicEntry{
		ID:              uuid.NewString(),
		UserID:          userID,
		SourceSessionID: sessionID,
		TurnIDs:         turnIDs,
		Summary:         strings.Join(summaries, " "),
		Payload:         strings.Join(payloads, "\n\n"),
		ArchivedAt:      time.Now().UTC(),
	}
	if err := p.episodes.Archive(ctx, userID, entry); err != nil {
		return fmt.Errorf("prune archive: %w", err)
	}
	return nil
}
