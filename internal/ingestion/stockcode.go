package ingestion

import "strings"

// Canonicalize converts a five-character upstream code (legacy four
// characters plus a trailing "0") to its four-character canonical storage
// form. Codes that are already four characters, or don't end in "0", are
// returned unchanged.
func Canonicalize(code string) string {
	if len(code) == 5 && strings.HasSuffix(code, "0") {
		return code[:4]
	}
	return code
}

// Expand converts a four-character canonical code to the five-character
// form upstream expects, by appending a trailing "0". Codes that are not
// four characters are returned unchanged.
func Expand(code string) string {
	if len(code) == 4 {
		return code + "0"
	}
	return code
}

// QueryVariants returns the code forms to try when looking up a stock by
// code in storage, four-character canonical first as the spec's data model
// prefers on ties.
func QueryVariants(code string) []string {
	canonical := Canonicalize(code)
	expanded := Expand(canonical)
	if canonical == expanded {
		return []string{canonical}
	}
	return []string{canonical, expanded}
}
