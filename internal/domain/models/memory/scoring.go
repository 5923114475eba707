package memory

import (
	"strings"
)

// SummaryScore counts how many distinct query tokens occur in the summary.
// Tokenization is lowercase whitespace splitting with basic punctuation
// trimmed. Deterministic for a given (summary, query) pair, which the
// episodic search contract requires.
func SummaryScore(summary, query string) int {
	summaryTokens := make(map[string]struct{})
	for _, tok := range tokenize(summary) {
		summaryTokens[tok] = struct{}{}
	}

	seen := make(map[string]struct{})
	score := 0
	for _, tok := range tokenize(query) {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		if _, ok := summaryTokens[tok]; ok {
			score++
		}
	}
	return score
}

func tokenize(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?\"'()[]")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
