package tokens

import "testing"

func TestHeuristicEstimator(t *testing.T) {
	e := HeuristicEstimator{}

	cases := []struct {
		text string
		want int
	}{
		{"", 0},
		{"hi", 1},
		{"abcd", 1},
		{"abcdefgh", 2},
		{"the quick brown fox jumps over the lazy dog", 10},
	}
	for _, c := range cases {
		if got := e.Count(c.text); got != c.want {
			t.Errorf("Count(%q) = %d, want %d", c.text, got, c.want)
		}
	}
}

func TestHeuristicEstimatorMonotonic(t *testing.T) {
	e := HeuristicEstimator{}
	prev := 0
	text := ""
	for i := 0; i < 100; i++ {
		text += "word "
		n := e.Count(text)
		if n < prev {
			t.Fatalf("count decreased from %d to %d at length %d", prev, n, len(text))
		}
		prev = n
	}
}
