// Package lorem is a mock provider that generates lorem ipsum text.
// Used for development and seeding without real API keys.
package lorem

import (
	"context"
	"fmt"
	"strings"

	loremgen "github.com/bozaro/golorem"

	"engram/internal/service/providers"
)

// Provider generates lorem ipsum completions.
type Provider struct {
	generator *loremgen.Lorem
}

// NewProvider creates a new lorem ipsum provider.
func NewProvider() *Provider {
	return &Provider{
		generator: loremgen.New(),
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "lorem"
}

// SupportsModel returns true if the model name starts with "lorem-".
// Example models: "lorem-fast", "lorem-test"
func (p *Provider) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "lorem-")
}

// Complete generates a lorem ipsum completion. Tier summarization
// sub-calls are answered in the labeled-line format the summarizer
// expects, built from the input text itself, so the full memory path
// works end to end without a real model.
func (p *Provider) Complete(ctx context.Context, req *providers.CompletionRequest) (*providers.CompletionResponse, error) {
	if !p.SupportsModel(req.Model) {
		return nil, fmt.Errorf("model '%s' is not supported by lorem provider", req.Model)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var text string
	if strings.Contains(req.System, "TIER1:") {
		text = p.tierReply(req.Prompt)
	} else {
		text = p.generator.Paragraph(2, 4)
	}

	return &providers.CompletionResponse{
		Text:         text,
		Model:        req.Model,
		InputTokens:  len(strings.Fields(req.System)) + len(strings.Fields(req.Prompt)),
		OutputTokens: len(strings.Fields(text)),
		StopReason:   "end_turn",
	}, nil
}

// tierReply builds labeled TIER1/TIER2 lines from the text being
// summarized.
func (p *Provider) tierReply(text string) string {
	words := strings.Fields(text)

	compact := words
	if len(compact) > 8 {
		compact = compact[:8]
	}

	summary := words
	if len(summary) > 25 {
		summary = summary[:25]
	}

	return fmt.Sprintf("TIER1: gist=%s\nTIER2: %s.",
		strings.Join(compact, " "),
		strings.Join(summary, " "))
}
