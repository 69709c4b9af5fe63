package assessment

import "github.com/abhisek/tutorbench/internal/judge"

// Stats is the read-only progress snapshot handed to the tutor each turn.
type Stats = judge.Stats

// Stats computes a fresh snapshot. Tallies are copied so callers cannot
// mutate session state through it.
func (s *Session) Stats() Stats {
	st := Stats{
		TurnsSoFar:           s.Turn,
		DifficultyTally:      make(map[judge.Difficulty]int, len(s.DifficultyTally)),
		CorrectnessTally:     make(map[judge.Correctness]int, len(s.CorrectnessTally)),
		ConfidenceTrend:      confidenceTrend(s.confidence),
		ConsecutiveCorrect:   s.ConsecutiveCorrect,
		ConsecutiveIncorrect: s.ConsecutiveIncorrect,
		StabilityCount:       s.StabilityCount,
	}
	for k, v := range s.DifficultyTally {
		st.DifficultyTally[k] = v
	}
	for k, v := range s.CorrectnessTally {
		st.CorrectnessTally[k] = v
	}
	if len(s.confidence) > 0 {
		sum := 0
		for _, c := range s.confidence {
			sum += c
		}
		st.AvgConfidence = float64(sum) / float64(len(s.confidence))
	}
	return st
}

// confidenceTrend compares the newest reading in the window to the oldest.
func confidenceTrend(window []int) judge.Trend {
	if len(window) < 2 {
		return judge.TrendUnknown
	}
	first, last := window[0], window[len(window)-1]
	switch {
	case last > first:
		return judge.TrendImproving
	case last < first:
		return judge.TrendDeclining
	}
	return judge.TrendStable
}
