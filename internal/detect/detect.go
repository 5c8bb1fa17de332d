// Package detect recognizes which configured file type a header row belongs
// to and builds the rename mapping from actual headers to configured names.
//
// Matching is fuzzy only in normalization (case, spacing, invisible
// characters); the score is the share of configured names found in the
// header, accepted when it meets an adaptive threshold that shrinks as the
// configured column count grows. Mappings may be written in either
// direction (source to target, or target to source) and both are tried.
package detect

import (
	"sort"

	"github.com/JonMunkholm/sheetload/internal/filetype"
)

// MaxHeaderRows is how many leading rows are considered as the header.
const MaxHeaderRows = 2

// Side records which half of a column map matched the header.
type Side string

const (
	SideIdentity Side = "identity"
	SideKeys     Side = "keys"
	SideValues   Side = "values"
)

// Match is a successful detection.
type Match struct {
	Type      string
	Score     float64
	Threshold float64
	HeaderRow int
	Side      Side
	Matched   int // configured names found in the header
	Total     int // configured names on the scored side
}

// Threshold returns the minimum score for a side with n configured names.
func Threshold(n int) float64 {
	switch {
	case n >= 50:
		return max(0.1, 5/float64(n))
	case n >= 20:
		return max(0.2, 5/float64(n))
	default:
		return 0.3
	}
}

// Score rates one header row against one config. ok is false when the
// config has no usable columns.
func Score(header []string, cfg filetype.Config) (Match, bool) {
	keys := normalizedSet(cfg.Columns.Keys())
	vals := normalizedSet(cfg.Columns.Values())
	if len(keys) == 0 || len(vals) == 0 {
		return Match{}, false
	}
	h := normalizedSet(header)

	m := Match{Type: cfg.Name}
	if sameSet(keys, vals) {
		m.Side = SideIdentity
		m.Matched, m.Total = intersect(h, keys), len(keys)
	} else {
		km, vm := intersect(h, keys), intersect(h, vals)
		if km > vm {
			m.Side = SideKeys
			m.Matched, m.Total = km, len(keys)
		} else {
			m.Side = SideValues
			m.Matched, m.Total = vm, len(vals)
		}
	}

	m.Score = float64(m.Matched) / float64(m.Total)
	m.Threshold = Threshold(m.Total)
	return m, true
}

// Detect scores the leading header rows against every config and returns
// the best acceptor of the first row that has one. Equal scores resolve to
// the lexicographically smallest type name. ok is false when nothing
// matches; detection never fails with an error.
func Detect(rows [][]string, cfgs []filetype.Config) (Match, bool) {
	sorted := make([]filetype.Config, len(cfgs))
	copy(sorted, cfgs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	for r := 0; r < len(rows) && r < MaxHeaderRows; r++ {
		if len(normalizedSet(rows[r])) == 0 {
			continue
		}

		var best Match
		found := false
		for _, cfg := range sorted {
			m, ok := Score(rows[r], cfg)
			if !ok || m.Score < m.Threshold {
				continue
			}
			if !found || m.Score > best.Score {
				best, found = m, true
			}
		}
		if found {
			best.HeaderRow = r
			return best, true
		}
	}
	return Match{}, false
}
