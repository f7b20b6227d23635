package collector

import (
	"strings"

	"image-collector/internal/quality"
)

const defaultMaxTerms = 6

// BuildSearchTerms derives source queries for an item: the name, the name in
// its category, then the singular/plural swap of each. Duplicates are
// dropped and order is kept.
func BuildSearchTerms(name, category string, max int) []string {
	if max <= 0 {
		max = defaultMaxTerms
	}
	name = strings.TrimSpace(name)
	category = strings.TrimSpace(strings.ToLower(category))
	if name == "" {
		return nil
	}

	variants := quality.WordVariants(name)
	var candidates []string
	candidates = append(candidates, variants[0])
	if category != "" && !strings.Contains(variants[0], category) {
		candidates = append(candidates, variants[0]+" "+category)
	}
	for _, v := range variants[1:] {
		candidates = append(candidates, v)
		if category != "" && !strings.Contains(v, category) {
			candidates = append(candidates, v+" "+category)
		}
	}

	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
		if len(out) == max {
			break
		}
	}
	return out
}
