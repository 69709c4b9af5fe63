package judge

// AdjustDifficulty suggests the next band from the previous band and how the
// student did on it. An empty prev means no question has been asked yet.
func AdjustDifficulty(prev Difficulty, outcome Correctness) Difficulty {
	if !prev.Valid() {
		return DifficultyMedium
	}
	switch outcome {
	case CorrectnessCorrect:
		return shift(prev, 1)
	case CorrectnessIncorrect:
		return shift(prev, -1)
	}
	return prev
}

func shift(d Difficulty, by int) Difficulty {
	idx := 0
	for i, v := range AllDifficulties {
		if v == d {
			idx = i
		}
	}
	idx += by
	if idx < 0 {
		idx = 0
	}
	if idx >= len(AllDifficulties) {
		idx = len(AllDifficulties) - 1
	}
	return AllDifficulties[idx]
}

// Thresholds for the tutor's advisory conclusion hint.
const (
	concludeConfidence = 0.85
	concludeStability  = 2
	concludePlateau    = 3
)

// ShouldConclude is the tutor's own opinion on whether enough evidence has
// been collected. Callers must not treat it as a stop decision.
func ShouldConclude(confidence float64, stability int) bool {
	return (confidence >= concludeConfidence && stability >= concludeStability) ||
		stability >= concludePlateau
}
