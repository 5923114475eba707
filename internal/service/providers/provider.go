// Package providers defines the model provider abstraction and the
// registry that routes model names to providers.
package providers

import (
	"context"
	"fmt"
	"sync"
)

// CompletionRequest is a single request-response model call. SessionID is
// carried for logging and provider-side request tagging only; providers
// must not retain any per-session state.
type CompletionRequest struct {
	System    string
	Prompt    string
	Model     string
	MaxTokens int
	SessionID string
}

// CompletionResponse is the provider's reply.
type CompletionResponse struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
	StopReason   string
}

// Provider generates completions for the models it supports.
type Provider interface {
	// Name returns the provider name (e.g. "anthropic", "lorem").
	Name() string

	// SupportsModel reports whether this provider serves the model.
	SupportsModel(model string) bool

	// Complete performs one blocking model call.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}

// Registry routes model names to registered providers.
type Registry struct {
	mu        sync.RWMutex
	providers []Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a provider. Providers are consulted in registration order.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = append(r.providers, p)
}

// ForModel returns the first registered provider that supports the model.
func (r *Registry) ForModel(model string) (Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("model cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.providers {
		if p.SupportsModel(model) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no provider supports model '%s'", model)
}
