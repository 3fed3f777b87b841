package lexical

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Vector is a sparse term-frequency vector. For non-empty input the values
// are normalized so they sum to 1 over the whole vector.
type Vector map[string]float64

// spanishStopwords are articles, prepositions and common connectors, stored
// in their diacritic-folded form (the tokenizer folds before filtering).
var spanishStopwords = map[string]struct{}{
	"el": {}, "la": {}, "los": {}, "las": {}, "un": {}, "una": {}, "unos": {}, "unas": {},
	"de": {}, "del": {}, "al": {}, "a": {}, "en": {}, "por": {}, "para": {}, "con": {},
	"sin": {}, "sobre": {}, "entre": {}, "hasta": {}, "desde": {}, "hacia": {}, "segun": {},
	"y": {}, "o": {}, "u": {}, "e": {}, "ni": {}, "que": {}, "como": {}, "cuando": {},
	"donde": {}, "cual": {}, "cuales": {}, "quien": {}, "quienes": {}, "cuanto": {},
	"se": {}, "su": {}, "sus": {}, "mi": {}, "mis": {}, "tu": {}, "tus": {}, "nos": {},
	"lo": {}, "le": {}, "les": {}, "me": {}, "te": {}, "si": {}, "no": {}, "mas": {},
	"pero": {}, "este": {}, "esta": {}, "estos": {}, "estas": {}, "ese": {}, "esa": {},
	"esos": {}, "esas": {}, "eso": {}, "esto": {}, "aqui": {}, "alli": {}, "muy": {},
	"ya": {}, "es": {}, "son": {}, "ser": {}, "estar": {}, "hay": {}, "fue": {},
	"ha": {}, "han": {}, "he": {}, "tambien": {}, "porque": {}, "pues": {}, "asi": {},
}

// suffixes is the ordered stemming suffix list. Only the first matching
// suffix is stripped, and only when the remaining stem is at least two
// characters longer than the suffix, which keeps short words intact.
var suffixes = []string{
	"mente", "ciones", "cion", "siones", "sion", "adores", "adora", "ador",
	"acion", "ando", "iendo", "ados", "adas", "ado", "ada", "idos", "idas",
	"ido", "ida", "ar", "er", "ir", "es", "s",
}

// Fold lowercases s and strips diacritics (NFD decomposition with combining
// marks removed), so "Cómo" and "como" normalize to the same token.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return strings.ToLower(folded)
}

// IsStopword reports whether the (already folded) token is a Spanish stopword.
func IsStopword(token string) bool {
	_, ok := spanishStopwords[token]
	return ok
}

// Tokenize splits text on non-alphanumeric boundaries, folds diacritics and
// case, drops tokens shorter than two characters and Spanish stopwords, and
// applies the one-suffix stemmer. Returns nil for empty input.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}

	fields := strings.FieldsFunc(Fold(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 2 {
			continue
		}
		if IsStopword(f) {
			continue
		}
		tokens = append(tokens, Stem(f))
	}
	if len(tokens) == 0 {
		return nil
	}
	return tokens
}

// Stem strips at most one matching suffix from token. The stem must remain
// at least two characters longer than the suffix, to avoid over-stemming.
func Stem(token string) string {
	for _, suffix := range suffixes {
		if !strings.HasSuffix(token, suffix) {
			continue
		}
		stem := token[:len(token)-len(suffix)]
		if len(stem) >= len(suffix)+2 {
			return stem
		}
	}
	return token
}

// BuildVector turns text into a sparse term-frequency vector whose values
// sum to 1. Empty or stopword-only input yields an empty map.
func BuildVector(text string) Vector {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return Vector{}
	}

	vec := make(Vector, len(tokens))
	for _, token := range tokens {
		vec[token]++
	}
	total := float64(len(tokens))
	for token := range vec {
		vec[token] /= total
	}
	return vec
}

// MainTerm returns the highest-weight token of the vector, the coarse
// "concept" the text is about. Ties break lexicographically so the result
// is deterministic. Returns "" for an empty vector.
func (v Vector) MainTerm() string {
	var main string
	var best float64
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v[k] > best {
			best = v[k]
			main = k
		}
	}
	return main
}
