package actions

import "strings"

// StructuredReply is the three-field block the model is asked to emit.
type StructuredReply struct {
	Tier1 string
	Tier2 string
	Tier3 string
}

// ParseStructured extracts the labeled TIER1/TIER2/TIER3 fields. TIER3
// consumes everything after its label. Returns ok=false when any field
// is missing, in which case the caller treats the raw reply as tier3.
func ParseStructured(reply string) (StructuredReply, bool) {
	var out StructuredReply

	i1 := strings.Index(reply, "TIER1:")
	i2 := strings.Index(reply, "TIER2:")
	i3 := strings.Index(reply, "TIER3:")
	if i1 < 0 || i2 < 0 || i3 < 0 || !(i1 < i2 && i2 < i3) {
		return out, false
	}

	out.Tier1 = strings.TrimSpace(reply[i1+len("TIER1:") : i2])
	out.Tier2 = strings.TrimSpace(reply[i2+len("TIER2:") : i3])
	out.Tier3 = strings.TrimSpace(reply[i3+len("TIER3:"):])
	if out.Tier3 == "" {
		return StructuredReply{}, false
	}
	return out, true
}
