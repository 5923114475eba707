// Package search provides the web-search collaborator used by search
// directives.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// SearchOptions configures a search request.
type SearchOptions struct {
	MaxResults int
	SearchType string // "basic" or "advanced"
	Topic      string // "general", "news", or "finance"
}

// SearchResult is a single result in the common format.
type SearchResult struct {
	Title       string
	URL         string
	Snippet     string
	Score       float64
	PublishedAt *time.Time
}

// SearchResponse is the full result set for one query.
type SearchResponse struct {
	Results   []SearchResult
	Query     string
	Timestamp time.Time
}

// SearchClient is implemented by web-search backends.
type SearchClient interface {
	Search(ctx context.Context, query string, opts SearchOptions) (*SearchResponse, error)
}

// RenderResults formats a response as the results block delivered to the
// user in place of the model's reply.
func RenderResults(resp *SearchResponse) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Search results for %q:\n", resp.Query))
	if len(resp.Results) == 0 {
		sb.WriteString("\nNo results found.")
		return sb.String()
	}
	for i, r := range resp.Results {
		sb.WriteString(fmt.Sprintf("\n%d. %s\n   %s\n   %s\n", i+1, r.Title, r.URL, r.Snippet))
	}
	return strings.TrimRight(sb.String(), "\n")
}
