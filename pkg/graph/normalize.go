package graph

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// titleSuffixes are honorific and role suffixes stripped when comparing
// person names. The CJK set mirrors common business titles; mention text like
// "张明总经理" and "张明" must resolve to the same person.
var titleSuffixes = []string{
	"董事长", "副董事长", "总经理", "副总经理", "总裁", "副总裁",
	"总监", "副总监", "经理", "副经理", "主任", "副主任",
	"部长", "副部长", "局长", "副局长", "处长", "副处长",
	"科长", "副科长", "主管", "组长", "负责人", "秘书长",
	"书记", "副书记", "委员", "代表", "顾问", "助理",
	"院长", "副院长", "所长", "副所长", "站长",
	"总工程师", "总工", "工程师", "会计师", "律师", "教授",
	"博士", "硕士", "先生", "女士", "老师", "同志", "总",
}

// NormalizeName canonicalizes an entity name for identity comparison:
// Unicode NFC, full-width to half-width, whitespace collapsed, surrounding
// punctuation stripped, and lower-cased unless the name contains Han
// characters (case is meaningless there and aggressive folding loses
// information).
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	name = norm.NFC.String(name)
	name = width.Narrow.String(name)
	name = strings.Join(strings.Fields(name), " ")
	name = strings.Trim(name, ".,;:!?。，；：！？\"'`()[]{}")

	if !hasHan(name) {
		name = strings.ToLower(name)
	}
	return name
}

// CoreName strips the longest matching title suffix from a name, so
// "张明总经理" compares as "张明". Names consisting only of a title are
// returned unchanged.
func CoreName(name string) string {
	longest := ""
	for _, suffix := range titleSuffixes {
		if len(suffix) > len(longest) && strings.HasSuffix(name, suffix) && len(name) > len(suffix) {
			longest = suffix
		}
	}
	if longest == "" {
		return name
	}
	return strings.TrimSuffix(name, longest)
}

func hasHan(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

// NormalizeRelationType folds a free-form relation label to a snake_case
// ASCII edge type: "Works At" and "works-at" both become "works_at".
func NormalizeRelationType(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return "related_to"
	}

	var b strings.Builder
	lastUnderscore := true
	for _, r := range label {
		switch {
		case r >= 'A' && r <= 'Z':
			b.WriteRune(unicode.ToLower(r))
			lastUnderscore = false
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		return "related_to"
	}
	return out
}
