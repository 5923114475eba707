// Package tiering derives the compact (tier1) and summary (tier2)
// renditions of a turn's full text.
package tiering

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	memModels "engram/internal/domain/models/memory"
	"engram/internal/service/providers"
)

const tier1MaxWords = 20

const systemPrompt = `You compress conversation turns for a tiered memory system.
Reply with exactly two lines and nothing else:
TIER1: <key=value pairs or a gist, at most 20 words>
TIER2: <one or two sentence summary>`

// Tiers holds the derived compact and summary forms.
type Tiers struct {
	Tier1 string
	Tier2 string
}

// Generator produces tier1/tier2 for a turn. It prefers a model
// sub-call and falls back to rule-based extraction, so it never fails.
type Generator struct {
	registry *providers.Registry
	model    string
	logger   *slog.Logger

	mu    sync.Mutex
	cache map[string]cachedTiers // turn id -> result
}

// cachedTiers remembers whether the rule fallback produced the result,
// so regeneration for the same turn keeps the tier_fallback signal.
type cachedTiers struct {
	tiers    Tiers
	fallback bool
}

// NewGenerator creates a Generator. An empty model disables the
// sub-call and every turn takes the rule path.
func NewGenerator(registry *providers.Registry, model string, logger *slog.Logger) *Generator {
	return &Generator{
		registry: registry,
		model:    model,
		logger:   logger,
		cache:    make(map[string]cachedTiers),
	}
}

// Generate returns tier1/tier2 for the turn text. The second return is
// true when the rule fallback produced the result. Results are cached
// per turn id; regeneration for the same id is free and identical.
func (g *Generator) Generate(ctx context.Context, turnID, role, text string) (Tiers, bool) {
	g.mu.Lock()
	if c, ok := g.cache[turnID]; ok {
		g.mu.Unlock()
		return c.tiers, c.fallback
	}
	g.mu.Unlock()

	tiers, fallback := g.derive(ctx, role, text)

	g.mu.Lock()
	g.cache[turnID] = cachedTiers{tiers: tiers, fallback: fallback}
	g.mu.Unlock()
	return tiers, fallback
}

// Forget drops the cached result for a turn id.
func (g *Generator) Forget(turnID string) {
	g.mu.Lock()
	delete(g.cache, turnID)
	g.mu.Unlock()
}

func (g *Generator) derive(ctx context.Context, role, text string) (Tiers, bool) {
	if g.model != "" && g.registry != nil {
		if tiers, err := g.subCall(ctx, role, text); err == nil {
			return tiers, false
		} else {
			g.logger.Warn("tier sub-call failed, using rule fallback", "error", err)
		}
	}
	return RuleTiers(role, text), true
}

func (g *Generator) subCall(ctx context.Context, role, text string) (Tiers, error) {
	provider, err := g.registry.ForModel(g.model)
	if err != nil {
		return Tiers{}, err
	}

	resp, err := provider.Complete(ctx, &providers.CompletionRequest{
		System:    systemPrompt,
		Prompt:    fmt.Sprintf("Turn by %s:\n%s", role, text),
		Model:     g.model,
		MaxTokens: 256,
	})
	if err != nil {
		return Tiers{}, err
	}

	tiers, ok := parseReply(resp.Text)
	if !ok {
		return Tiers{}, fmt.Errorf("reply missing TIER1/TIER2 lines")
	}
	return tiers, nil
}

// parseReply extracts the two labeled lines from a sub-call reply.
func parseReply(reply string) (Tiers, bool) {
	var out Tiers
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "TIER1:"):
			out.Tier1 = truncateWords(strings.TrimSpace(strings.TrimPrefix(line, "TIER1:")), tier1MaxWords)
		case strings.HasPrefix(line, "TIER2:"):
			out.Tier2 = strings.TrimSpace(strings.TrimPrefix(line, "TIER2:"))
		}
	}
	if out.Tier1 == "" || out.Tier2 == "" {
		return Tiers{}, false
	}
	return out, true
}

var namePattern = regexp.MustCompile(`(?i)\bmy name is ([A-Za-z][A-Za-z'-]*)`)

// RuleTiers is the deterministic fallback. User turns get a says= gist
// plus a name= pair when the text introduces one; assistant turns get a
// plain word-capped gist. Tier2 is the first sentence.
func RuleTiers(role, text string) Tiers {
	var tier1 string
	if role == memModels.RoleUser {
		gist := truncateWords(text, tier1MaxWords-2)
		tier1 = "says=" + gist
		if m := namePattern.FindStringSubmatch(text); m != nil {
			tier1 = truncateWords("name="+m[1]+" "+tier1, tier1MaxWords)
		}
	} else {
		tier1 = truncateWords(text, tier1MaxWords)
	}

	return Tiers{
		Tier1: tier1,
		Tier2: firstSentence(text),
	}
}

func truncateWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

// firstSentence returns the text up to the first terminator, capped at
// 30 words.
func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			return truncateWords(text[:i+1], 30)
		}
	}
	if s := truncateWords(text, 30); s != "" {
		return s + "."
	}
	return ""
}
