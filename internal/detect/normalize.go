package detect

import "strings"

var invisible = strings.NewReplacer(
	"\u200b", "", // zero width space
	"\u200c", "", // zero width non-joiner
	"\u200d", "", // zero width joiner
	"\u2060", "", // word joiner
	"\ufeff", "", // byte order mark
)

// Normalize folds a header cell for comparison: trims, drops zero-width
// characters, lowercases and collapses internal whitespace.
func Normalize(s string) string {
	s = invisible.Replace(strings.TrimSpace(s))
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// normalizedSet returns the set of non-empty normalized values.
func normalizedSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if n := Normalize(v); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

func intersect(a, b map[string]struct{}) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

func sameSet(a, b map[string]struct{}) bool {
	return len(a) == len(b) && intersect(a, b) == len(a)
}
