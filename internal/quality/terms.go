package quality

import "strings"

// WordVariants returns the lowercased phrase followed by its singular/plural
// counterpart. Only the last word of a multi-word phrase is inflected.
func WordVariants(phrase string) []string {
	phrase = strings.Join(strings.Fields(strings.ToLower(phrase)), " ")
	if phrase == "" {
		return nil
	}
	head, last := "", phrase
	if i := strings.LastIndexByte(phrase, ' '); i >= 0 {
		head, last = phrase[:i+1], phrase[i+1:]
	}

	out := []string{phrase}
	for _, v := range inflect(last) {
		if v != "" && v != last {
			out = append(out, head+v)
		}
	}
	return out
}

func inflect(w string) []string {
	switch {
	case len(w) > 4 && strings.HasSuffix(w, "ies"):
		return []string{w[:len(w)-3] + "y"}
	case hasSuffix(w, "sses", "xes", "ches", "shes"):
		return []string{w[:len(w)-2]}
	case hasSuffix(w, "ss", "x", "ch", "sh"):
		return []string{w + "es"}
	case strings.HasSuffix(w, "s"):
		return []string{w[:len(w)-1]}
	case len(w) > 1 && strings.HasSuffix(w, "y") && !isVowel(w[len(w)-2]):
		return []string{w[:len(w)-1] + "ies"}
	default:
		return []string{w + "s"}
	}
}

func hasSuffix(w string, suffixes ...string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(w, suf) {
			return true
		}
	}
	return false
}

func isVowel(c byte) bool {
	return strings.IndexByte("aeiou", c) >= 0
}
