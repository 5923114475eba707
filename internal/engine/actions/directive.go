// Package actions parses model replies for in-band directives and
// executes them against the stores and the search collaborator.
package actions

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Directive kinds.
const (
	KindSearch         = "search"
	KindRequestTier    = "request_tier"
	KindSearchEpisodic = "search_episodic"
	KindRemember       = "remember"
	KindForget         = "forget"
)

// Directive is one in-band tag found in a model reply.
type Directive struct {
	Kind   string
	Offset int    // byte offset of the tag in the reply
	Raw    string // full matched tag, used for stripping

	// Payload fields. Query holds the argument for search, episodic
	// search, remember and forget tags.
	Query  string
	Tier   int    // request_tier only
	TurnID string // request_tier only
}

// Interrupting reports whether the directive replaces the normal answer
// flow.
func (d Directive) Interrupting() bool {
	switch d.Kind {
	case KindSearch, KindRequestTier, KindSearchEpisodic:
		return true
	}
	return false
}

var (
	searchRe         = regexp.MustCompile(`\[SEARCH:\s*([^\]]+)\]`)
	requestTierRe    = regexp.MustCompile(`\[REQUEST_TIER:([123]):([^\]\s]+)\]`)
	searchEpisodicRe = regexp.MustCompile(`\[SEARCH_EPISODIC:\s*([^\]]+)\]`)
	rememberRe       = regexp.MustCompile(`\[REMEMBER:\s*([^\]]+)\]`)
	forgetRe         = regexp.MustCompile(`\[FORGET:\s*([^\]]+)\]`)
)

// Parse extracts every directive from the reply, ordered by offset.
func Parse(reply string) []Directive {
	var out []Directive

	for _, m := range searchRe.FindAllStringSubmatchIndex(reply, -1) {
		out = append(out, Directive{
			Kind:   KindSearch,
			Offset: m[0],
			Raw:    reply[m[0]:m[1]],
			Query:  strings.TrimSpace(reply[m[2]:m[3]]),
		})
	}
	for _, m := range requestTierRe.FindAllStringSubmatchIndex(reply, -1) {
		tier, _ := strconv.Atoi(reply[m[2]:m[3]])
		out = append(out, Directive{
			Kind:   KindRequestTier,
			Offset: m[0],
			Raw:    reply[m[0]:m[1]],
			Tier:   tier,
			TurnID: reply[m[4]:m[5]],
		})
	}
	for _, m := range searchEpisodicRe.FindAllStringSubmatchIndex(reply, -1) {
		out = append(out, Directive{
			Kind:   KindSearchEpisodic,
			Offset: m[0],
			Raw:    reply[m[0]:m[1]],
			Query:  strings.TrimSpace(reply[m[2]:m[3]]),
		})
	}
	for _, m := range rememberRe.FindAllStringSubmatchIndex(reply, -1) {
		out = append(out, Directive{
			Kind:   KindRemember,
			Offset: m[0],
			Raw:    reply[m[0]:m[1]],
			Query:  strings.TrimSpace(reply[m[2]:m[3]]),
		})
	}
	for _, m := range forgetRe.FindAllStringSubmatchIndex(reply, -1) {
		out = append(out, Directive{
			Kind:   KindForget,
			Offset: m[0],
			Raw:    reply[m[0]:m[1]],
			Query:  strings.TrimSpace(reply[m[2]:m[3]]),
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}

// Strip removes every directive tag from the reply and tidies the
// leftover whitespace.
func Strip(reply string) string {
	for _, re := range []*regexp.Regexp{searchRe, requestTierRe, searchEpisodicRe, rememberRe, forgetRe} {
		reply = re.ReplaceAllString(reply, "")
	}
	lines := strings.Split(reply, "\n")
	out := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if trimmed == "" && len(out) > 0 && out[len(out)-1] == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
