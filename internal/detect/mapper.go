package detect

import "github.com/JonMunkholm/sheetload/internal/filetype"

// BuildRenameMapping maps actual column names to configured names.
//
// For identity mappings, matched columns are standardized to the configured
// key spelling. Otherwise the side matching more actual columns is treated
// as the source (keys win ties) and columns are renamed to the opposite
// side. Columns whose name would not change are left out, so applying the
// result to already renamed columns is a no-op.
func BuildRenameMapping(actual []string, cfg filetype.Config) map[string]string {
	out := make(map[string]string)
	if cfg.IsEmpty() {
		return out
	}

	keyOf := make(map[string]string, len(cfg.Columns))   // normalized key -> key
	valOf := make(map[string]string, len(cfg.Columns))   // normalized value -> value
	toValue := make(map[string]string, len(cfg.Columns)) // key -> value
	toKey := make(map[string]string, len(cfg.Columns))   // value -> key
	for _, e := range cfg.Columns {
		if e.Source == "" || e.Target == "" {
			continue
		}
		keyOf[Normalize(e.Source)] = e.Source
		valOf[Normalize(e.Target)] = e.Target
		toValue[e.Source] = e.Target
		toKey[e.Target] = e.Source
	}

	byNorm := make(map[string]string, len(actual))
	for _, col := range actual {
		byNorm[Normalize(col)] = col
	}

	if sameKeys(keyOf, valOf) {
		for norm, col := range byNorm {
			if key, ok := keyOf[norm]; ok && col != key {
				out[col] = key
			}
		}
		return out
	}

	keysMatched, valsMatched := 0, 0
	for norm := range byNorm {
		if _, ok := keyOf[norm]; ok {
			keysMatched++
		}
		if _, ok := valOf[norm]; ok {
			valsMatched++
		}
	}

	from, rename := keyOf, toValue
	if keysMatched < valsMatched {
		from, rename = valOf, toKey
	}
	for norm, col := range byNorm {
		name, ok := from[norm]
		if !ok {
			continue
		}
		if next := rename[name]; next != "" && col != next {
			out[col] = next
		}
	}
	return out
}

// Apply renames columns through mapping, leaving unmapped names unchanged.
func Apply(columns []string, mapping map[string]string) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		if n, ok := mapping[c]; ok {
			out[i] = n
		} else {
			out[i] = c
		}
	}
	return out
}

func sameKeys(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
