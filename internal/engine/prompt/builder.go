// Package prompt assembles the bounded-token prompt for each model call.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	memModels "engram/internal/domain/models/memory"
	"engram/internal/engine/tokens"
)

// Input is everything one prompt build consumes. Turns is the working
// window in insertion order; the final turn is the current user message
// and is always rendered at tier3.
type Input struct {
	Turns     []memModels.Turn
	Facts     []memModels.UserFact
	Injection string
}

// Builder produces deterministic prompts under a token budget.
type Builder struct {
	templates *Templates
	estimator tokens.Estimator
	budget    int
}

// NewBuilder creates a Builder with the given per-prompt token ceiling.
func NewBuilder(templates *Templates, estimator tokens.Estimator, budget int) *Builder {
	return &Builder{
		templates: templates,
		estimator: estimator,
		budget:    budget,
	}
}

// Build assembles the system and user strings. Given identical input it
// returns byte-identical output. When the assembled prompt exceeds the
// budget, older history turns are degraded toward tier1, oldest first;
// turns are never dropped here.
func (b *Builder) Build(in Input) (string, string) {
	system := strings.TrimSpace(b.templates.SystemInstructions) + "\n\n" +
		strings.TrimSpace(b.templates.TierExplainer)

	var history []memModels.Turn
	var current *memModels.Turn
	if n := len(in.Turns); n > 0 {
		history = in.Turns[:n-1]
		current = &in.Turns[n-1]
	}

	// Render tiers start at each turn's required tier and only ever
	// move down during degradation.
	render := make([]int, len(history))
	for i, turn := range history {
		render[i] = turn.RequiredTier
	}

	user := b.renderUser(in, history, render, current)
	for b.estimator.Count(system)+b.estimator.Count(user) > b.budget {
		if !degradeOldest(history, render) {
			break
		}
		user = b.renderUser(in, history, render, current)
	}

	return system, user
}

// degradeOldest lowers the render tier of the oldest turn still above
// tier1. Returns false when every turn is already at tier1.
func degradeOldest(history []memModels.Turn, render []int) bool {
	for i := range history {
		if render[i] > memModels.TierCompact {
			render[i]--
			return true
		}
	}
	return false
}

func (b *Builder) renderUser(in Input, history []memModels.Turn, render []int, current *memModels.Turn) string {
	var sb strings.Builder

	if len(in.Facts) > 0 {
		facts := make([]memModels.UserFact, len(in.Facts))
		copy(facts, in.Facts)
		sort.Slice(facts, func(i, j int) bool { return facts[i].Key < facts[j].Key })

		sb.WriteString("Known facts about the user:\n")
		for _, f := range facts {
			sb.WriteString(f.Key)
			sb.WriteString("=")
			sb.WriteString(f.Value)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	if in.Injection != "" {
		sb.WriteString(in.Injection)
		sb.WriteString("\n\n")
	}

	if len(history) > 0 {
		sb.WriteString("Conversation so far:\n")
		for i, turn := range history {
			tier := render[i]
			sb.WriteString(fmt.Sprintf("[turn %s role=%s tier=%d]\n%s\n", turn.ID, turn.Role, tier, turn.TextAt(tier)))
		}
		sb.WriteString("\n")
	}

	if current != nil {
		sb.WriteString("Current message:\n")
		sb.WriteString(current.Tier3)
	}

	return strings.TrimRight(sb.String(), "\n")
}
