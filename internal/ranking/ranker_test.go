package ranking

import (
	"testing"

	"kbagent/internal/lexical"
)

func embed(vals ...float32) []float32 { return vals }

func TestRankSortedDescendingAndBounded(t *testing.T) {
	query := Query{
		Text:      "protocolo contra phishing",
		Embedding: embed(1, 0, 0),
	}
	candidates := []Candidate{
		{ID: "a", Content: "El protocolo contra phishing exige reportar el correo.", Embedding: embed(0.9, 0.1, 0)},
		{ID: "b", Content: "Calendario de vacaciones del equipo.", Embedding: embed(0, 1, 0)},
		{ID: "c", Content: "Guía de phishing y protocolos de seguridad.", Embedding: embed(0.7, 0.3, 0)},
		{ID: "d", Content: "Recetas de cocina.", Embedding: embed(0, 0, 1)},
	}

	ranked := Rank(query, candidates, 3, DefaultWeights())
	if len(ranked) > 3 {
		t.Fatalf("got %d results, want at most 3", len(ranked))
	}
	for i := 1; i < len(ranked); i++ {
		if ranked[i].Score > ranked[i-1].Score {
			t.Errorf("results not sorted: %f at %d > %f at %d", ranked[i].Score, i, ranked[i-1].Score, i-1)
		}
	}
}

func TestRankIdenticalContentWinsMixedSet(t *testing.T) {
	queryText := "política de vacaciones para empleados nuevos"
	query := Query{Text: queryText, Embedding: embed(1, 1, 0)}
	candidates := []Candidate{
		{ID: "exact", Content: queryText, Embedding: embed(1, 1, 0)},
		{ID: "near", Content: "política de vacaciones", Embedding: embed(1, 0.8, 0)},
		{ID: "far", Content: "inventario de hardware de oficina", Embedding: embed(0, 0, 1)},
	}

	ranked := Rank(query, candidates, 0, DefaultWeights())
	if len(ranked) == 0 {
		t.Fatal("no results")
	}
	if ranked[0].ID != "exact" {
		t.Errorf("top result = %s (%.4f), want the character-identical chunk", ranked[0].ID, ranked[0].Score)
	}
}

func TestRankComputesLexicalVectorWhenMissing(t *testing.T) {
	query := Query{Text: "horario de oficina", Embedding: embed(1, 0)}
	withVec := Candidate{
		ID:        "pre",
		Content:   "El horario de oficina es de 9 a 18.",
		Embedding: embed(1, 0),
		Lexical:   lexical.BuildVector("El horario de oficina es de 9 a 18."),
	}
	withoutVec := withVec
	withoutVec.ID = "raw"
	withoutVec.Lexical = nil

	ranked := Rank(query, []Candidate{withVec, withoutVec}, 2, DefaultWeights())
	if len(ranked) != 2 {
		t.Fatalf("got %d results, want 2", len(ranked))
	}
	if ranked[0].Score != ranked[1].Score {
		t.Errorf("precomputed and on-the-fly lexical vectors disagree: %f vs %f", ranked[0].Score, ranked[1].Score)
	}
}

func TestTokenCoverage(t *testing.T) {
	query := lexical.Vector{"phishing": 0.5, "reporte": 0.5}
	full := lexical.Vector{"phishing": 0.1, "reporte": 0.1, "otros": 0.8}
	half := lexical.Vector{"phishing": 1.0}
	none := lexical.Vector{"nomina": 1.0}

	if got := tokenCoverage(query, full); got != 1.0 {
		t.Errorf("full coverage = %f, want 1", got)
	}
	if got := tokenCoverage(query, half); got != 0.5 {
		t.Errorf("half coverage = %f, want 0.5", got)
	}
	if got := tokenCoverage(query, none); got != 0 {
		t.Errorf("no coverage = %f, want 0", got)
	}
	if got := tokenCoverage(lexical.Vector{}, full); got != 0 {
		t.Errorf("empty query coverage = %f, want 0", got)
	}
}

func TestConceptScore(t *testing.T) {
	tests := []struct {
		name  string
		main  string
		chunk lexical.Vector
		want  float64
	}{
		{"exact main match", "phishing", lexical.Vector{"phishing": 0.9, "correo": 0.1}, 1.0},
		{"present but not main", "correo", lexical.Vector{"phishing": 0.9, "correo": 0.1}, 0.85},
		{"shared 4-char prefix", "nomina", lexical.Vector{"nominas2024": 1.0}, 0.65},
		{"unrelated", "phishing", lexical.Vector{"vacacion": 1.0}, 0},
		{"empty chunk", "phishing", lexical.Vector{}, 0},
		{"empty main", "", lexical.Vector{"x1": 1.0}, 0},
	}
	for _, tt := range tests {
		if got := conceptScore(tt.main, tt.chunk); got != tt.want {
			t.Errorf("%s: conceptScore = %f, want %f", tt.name, got, tt.want)
		}
	}
}
