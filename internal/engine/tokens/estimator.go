// Package tokens provides token counting for prompt budgeting.
package tokens

import (
	"log/slog"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator counts the tokens a piece of text will occupy in a prompt.
type Estimator interface {
	Count(text string) int
}

// HeuristicEstimator approximates tokens as len(text)/4. It is the
// fallback when the BPE encoding cannot be loaded and the estimator of
// choice in tests, where determinism matters more than accuracy.
type HeuristicEstimator struct{}

func (HeuristicEstimator) Count(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

// TiktokenEstimator counts tokens with the cl100k_base encoding.
type TiktokenEstimator struct {
	encoding *tiktoken.Tiktoken
}

func (e *TiktokenEstimator) Count(text string) int {
	return len(e.encoding.Encode(text, nil, nil))
}

// NewEstimator returns a tiktoken-backed estimator, falling back to the
// character heuristic if the encoding is unavailable (e.g. offline and
// not cached).
func NewEstimator(logger *slog.Logger) Estimator {
	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		logger.Warn("tiktoken encoding unavailable, using character heuristic", "error", err)
		return HeuristicEstimator{}
	}
	return &TiktokenEstimator{encoding: encoding}
}
