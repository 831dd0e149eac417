package ingestion

import "strings"

// marketCodeAliases absorbs the upstream representation drift between
// legacy market names (prime/standard/growth) and their current numeric
// codes (0111/0112/0113): each key maps to every equivalent form.
var marketCodeAliases = map[string][]string{
	"prime":    {"prime", "0111"},
	"standard": {"standard", "0112"},
	"growth":   {"growth", "0113"},
	"0111":     {"prime", "0111"},
	"0112":     {"standard", "0112"},
	"0113":     {"growth", "0113"},
}

// ParseRequestedMarketCodes splits a comma-separated markets query string
// into its requested codes. An empty or all-blank input falls back to
// fallback, or to ["prime"] if fallback is nil.
func ParseRequestedMarketCodes(markets string, fallback []string) []string {
	var codes []string
	for _, m := range strings.Split(markets, ",") {
		m = strings.TrimSpace(m)
		if m != "" {
			codes = append(codes, m)
		}
	}
	if len(codes) > 0 {
		return codes
	}
	if fallback != nil {
		out := make([]string, len(fallback))
		copy(out, fallback)
		return out
	}
	return []string{"prime"}
}

// ExpandMarketCodes alias-expands each requested code and deduplicates the
// result, preserving first-seen order.
func ExpandMarketCodes(marketCodes []string) []string {
	expanded := make([]string, 0, len(marketCodes))
	seen := make(map[string]struct{}, len(marketCodes))

	for _, code := range marketCodes {
		candidates, ok := marketCodeAliases[strings.ToLower(code)]
		if !ok {
			candidates = []string{code}
		}
		for _, c := range candidates {
			if _, dup := seen[c]; dup {
				continue
			}
			expanded = append(expanded, c)
			seen[c] = struct{}{}
		}
	}
	return expanded
}

// ResolveMarketCodes parses a markets query string and returns both the
// codes as requested and their alias-expanded form for querying storage.
func ResolveMarketCodes(markets string, fallback []string) (requested []string, expanded []string) {
	requested = ParseRequestedMarketCodes(markets, fallback)
	expanded = ExpandMarketCodes(requested)
	return requested, expanded
}
