package ranking

import (
	"sort"
	"strings"

	"kbagent/internal/lexical"
)

// DefaultTopK is the number of chunks returned when the caller does not ask
// for a specific count.
const DefaultTopK = 6

// Weights blends the four ranking signals. Token coverage dominates on
// purpose: it tolerates long chunks without penalizing them for low term
// density.
type Weights struct {
	Semantic float64
	Lexical  float64
	Coverage float64
	Concept  float64
}

// DefaultWeights returns the tuned blend.
func DefaultWeights() Weights {
	return Weights{
		Semantic: 0.30,
		Lexical:  0.25,
		Coverage: 0.35,
		Concept:  0.10,
	}
}

// Query is the scored side of a retrieval: the question text with its dense
// embedding and sparse term vector.
type Query struct {
	Text      string
	Embedding []float32
	Lexical   lexical.Vector
}

// Candidate is one chunk eligible for ranking. Lexical may be nil, in which
// case it is computed on the fly from Content.
type Candidate struct {
	ID            string
	DocumentID    string
	DocumentTitle string
	Content       string
	Embedding     []float32
	Lexical       lexical.Vector
}

// Scored is a ranked projection of a candidate for one query. It is
// ephemeral and never persisted.
type Scored struct {
	ID            string
	DocumentID    string
	DocumentTitle string
	Content       string
	Score         float64

	// Per-signal breakdown, useful for debug output.
	Semantic float64
	Lexical  float64
	Coverage float64
	Concept  float64
}

// Rank scores every candidate against the query with the blended
// semantic+lexical model and returns at most topK results ordered by
// descending score. topK <= 0 means DefaultTopK.
func Rank(query Query, candidates []Candidate, topK int, w Weights) []Scored {
	if topK <= 0 {
		topK = DefaultTopK
	}

	queryLex := query.Lexical
	if queryLex == nil {
		queryLex = lexical.BuildVector(query.Text)
	}
	queryMain := queryLex.MainTerm()

	scored := make([]Scored, 0, len(candidates))
	for _, cand := range candidates {
		chunkLex := cand.Lexical
		if len(chunkLex) == 0 {
			chunkLex = lexical.BuildVector(cand.Content)
		}

		semantic := CosineDense(query.Embedding, cand.Embedding)
		lexScore := CosineSparse(queryLex, chunkLex)
		coverage := tokenCoverage(queryLex, chunkLex)
		concept := conceptScore(queryMain, chunkLex)

		scored = append(scored, Scored{
			ID:            cand.ID,
			DocumentID:    cand.DocumentID,
			DocumentTitle: cand.DocumentTitle,
			Content:       cand.Content,
			Score:         w.Semantic*semantic + w.Lexical*lexScore + w.Coverage*coverage + w.Concept*concept,
			Semantic:      semantic,
			Lexical:       lexScore,
			Coverage:      coverage,
			Concept:       concept,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

// tokenCoverage is the fraction of the query's distinct tokens that appear
// at all in the chunk's vector, regardless of their weight there.
func tokenCoverage(query, chunk lexical.Vector) float64 {
	if len(query) == 0 || len(chunk) == 0 {
		return 0
	}
	var present int
	for token := range query {
		if _, ok := chunk[token]; ok {
			present++
		}
	}
	return float64(present) / float64(len(query))
}

// conceptScore compares the query's main concept with the chunk's: exact
// match, presence anywhere in the chunk vector, or a shared 4-character
// prefix in either direction.
func conceptScore(queryMain string, chunk lexical.Vector) float64 {
	if queryMain == "" || len(chunk) == 0 {
		return 0
	}
	chunkMain := chunk.MainTerm()
	switch {
	case queryMain == chunkMain:
		return 1.0
	case chunk[queryMain] > 0:
		return 0.85
	case sharePrefix(queryMain, chunkMain, 4):
		return 0.65
	default:
		return 0
	}
}

// sharePrefix reports whether either term starts with the first n
// characters of the other.
func sharePrefix(a, b string, n int) bool {
	if len(a) < n || len(b) < n {
		return false
	}
	return strings.HasPrefix(a, b[:n]) || strings.HasPrefix(b, a[:n])
}
