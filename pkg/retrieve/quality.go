package retrieve

import "strings"

// placeholderNames are entity names that carry no information; triplets built
// on them rank below fully named ones.
var placeholderNames = map[string]struct{}{
	"unknown": {}, "other": {}, "entity": {}, "thing": {}, "n/a": {}, "none": {},
}

// tripletQuality scores how informative a triplet is, in [0,1]. Placeholder
// or missing endpoint names are penalized, a generic predicate scores lower
// than a specific one, and endpoint descriptions add a small bonus.
func tripletQuality(subject, predicate, object string, hasDescription bool) float64 {
	score := 1.0

	score -= namePenalty(subject)
	score -= namePenalty(object)

	switch strings.TrimSpace(strings.ToLower(predicate)) {
	case "", "related_to", "relates_to", "associated_with":
		score -= 0.2
	}

	if !hasDescription {
		score -= 0.1
	}

	if score < 0 {
		return 0
	}
	return score
}

func namePenalty(name string) float64 {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return 0.35
	}
	if _, ok := placeholderNames[name]; ok {
		return 0.35
	}
	if len(name) == 1 {
		return 0.15
	}
	return 0
}
