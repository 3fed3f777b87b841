package insight

import (
	"sort"
	"strings"
	"unicode"

	"kbagent/internal/lexical"
)

// NormalizeQuestion canonicalizes a question for dedup matching: diacritics
// folded, lowercased, punctuation stripped, whitespace collapsed. The result
// is idempotent, so "¿Cómo Funciona?" and "como funciona" collapse to the
// same key.
func NormalizeQuestion(question string) string {
	folded := lexical.Fold(question)

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// DeriveTopic reduces a normalized question to a coarse topic: the three
// most frequent non-stopword tokens of length >= 3, joined as a key and a
// title-cased label. Questions with no usable tokens land in "general".
func DeriveTopic(normalizedQuestion string) (key, label string) {
	counts := map[string]int{}
	var order []string
	for _, token := range strings.Fields(normalizedQuestion) {
		if len([]rune(token)) < 3 || lexical.IsStopword(token) {
			continue
		}
		if _, seen := counts[token]; !seen {
			order = append(order, token)
		}
		counts[token]++
	}

	if len(order) == 0 {
		return "general", "General"
	}

	// Frequency first, then first appearance for determinism.
	rank := make(map[string]int, len(order))
	for i, token := range order {
		rank[token] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		if counts[order[i]] != counts[order[j]] {
			return counts[order[i]] > counts[order[j]]
		}
		return rank[order[i]] < rank[order[j]]
	})

	if len(order) > 3 {
		order = order[:3]
	}

	labelWords := make([]string, len(order))
	for i, token := range order {
		runes := []rune(token)
		runes[0] = unicode.ToUpper(runes[0])
		labelWords[i] = string(runes)
	}
	return strings.Join(order, "-"), strings.Join(labelWords, " ")
}
