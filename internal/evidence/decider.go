package evidence

import "kbagent/internal/ranking"

// Mode is the answer mode decided for a question.
type Mode string

const (
	// ModeGrounded means the evidence is strong enough to answer from
	// documents with citations.
	ModeGrounded Mode = "grounded"
	// ModeAmbiguous means several candidates are too close to call; the
	// alternatives are surfaced for the user to disambiguate.
	ModeAmbiguous Mode = "ambiguous"
	// ModeFallback means no sufficient evidence; answer generally, not from
	// documents.
	ModeFallback Mode = "fallback"
)

// Thresholds tunes the decision policy. Values are used exactly as given, so
// a zero floor or a zero margin is a legal tuning (always-grounded, exact
// ties only); defaults come from DefaultThresholds at configuration time.
type Thresholds struct {
	// MinScore is the low-confidence floor below which the decider falls
	// back to a general answer.
	MinScore float64
	// AmbiguityMargin is how close the top two scores must be to call the
	// evidence ambiguous.
	AmbiguityMargin float64
	// GroundedMargin is the score-drop cliff under the top score within
	// which extra chunks are kept as supporting evidence.
	GroundedMargin float64
	// MaxAlternatives caps how many near-tied chunks are offered for
	// disambiguation.
	MaxAlternatives int
	// MaxSelected caps the grounded evidence subset.
	MaxSelected int
}

// DefaultThresholds returns the tuned policy defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinScore:        0.45,
		AmbiguityMargin: 0.12,
		GroundedMargin:  0.08,
		MaxAlternatives: 3,
		MaxSelected:     ranking.DefaultTopK,
	}
}

// Decision is the outcome for one question: a mode, a confidence in [0,1]
// and the evidence subset handed to generation. Ephemeral, never persisted.
type Decision struct {
	Mode       Mode
	Confidence float64
	Selected   []ranking.Scored
	// HasImageContext is passed through so generation knows to also weigh
	// visual evidence; it does not change the thresholds.
	HasImageContext bool
}

// Decide turns a ranked chunk list (already sorted descending) into one of
// the three answer modes. It always returns a valid decision; fallback is
// the graceful give-up path, not an error.
func Decide(ranked []ranking.Scored, hasImageContext bool, th Thresholds) Decision {
	if len(ranked) == 0 {
		return Decision{Mode: ModeFallback, Confidence: 0, Selected: nil, HasImageContext: hasImageContext}
	}

	top := ranked[0].Score
	confidence := clamp01(top)

	if top < th.MinScore {
		return Decision{Mode: ModeFallback, Confidence: confidence, Selected: nil, HasImageContext: hasImageContext}
	}

	if len(ranked) > 1 {
		second := ranked[1].Score
		if top-second <= th.AmbiguityMargin && second >= th.MinScore {
			selected := withinMargin(ranked, top, th.AmbiguityMargin, th.MaxAlternatives)
			return Decision{Mode: ModeAmbiguous, Confidence: confidence, Selected: selected, HasImageContext: hasImageContext}
		}
	}

	selected := withinMargin(ranked, top, th.GroundedMargin, th.MaxSelected)
	return Decision{Mode: ModeGrounded, Confidence: confidence, Selected: selected, HasImageContext: hasImageContext}
}

// withinMargin keeps the leading chunks whose score is within margin of
// top, bounded to max. The input is already sorted, so the first miss ends
// the scan.
func withinMargin(ranked []ranking.Scored, top, margin float64, max int) []ranking.Scored {
	selected := make([]ranking.Scored, 0, max)
	for _, r := range ranked {
		if top-r.Score > margin {
			break
		}
		selected = append(selected, r)
		if len(selected) == max {
			break
		}
	}
	return selected
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
