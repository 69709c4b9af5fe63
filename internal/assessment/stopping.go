package assessment

import "fmt"

// StopReason indicates why an assessment ended.
type StopReason string

const (
	// StopNone means no stop condition has been met.
	StopNone StopReason = ""
	// StopLevelPlateau means the estimate held for enough consecutive turns.
	StopLevelPlateau StopReason = "level_plateau"
	// StopHighConfidence means the inferrer is confident and the estimate is
	// reasonably stable.
	StopHighConfidence StopReason = "high_confidence"
	// StopMaxTurns means the turn budget ran out.
	StopMaxTurns StopReason = "max_turns_reached"
)

// StopDecision is the outcome of one policy check.
type StopDecision struct {
	ShouldStop bool
	Reason     StopReason
	Message    string
}

// StoppingConfig holds the early-stopping thresholds.
type StoppingConfig struct {
	// MinTurns is the first turn at which stopping is considered.
	MinTurns int
	// PlateauThreshold is the stability count that ends the session outright.
	PlateauThreshold int
	// HighConfidenceThreshold and HighConfidenceStability must both be met
	// for a high-confidence stop.
	HighConfidenceThreshold float64
	HighConfidenceStability int
}

// DefaultStoppingConfig returns the tuned defaults.
func DefaultStoppingConfig() StoppingConfig {
	return StoppingConfig{
		MinTurns:                2,
		PlateauThreshold:        3,
		HighConfidenceThreshold: 0.9,
		HighConfidenceStability: 2,
	}
}

// EarlyStopping decides whether a session has converged. It holds no state,
// so one value can be shared across sessions.
type EarlyStopping struct {
	cfg StoppingConfig
}

// NewEarlyStopping creates a policy with the given thresholds.
func NewEarlyStopping(cfg StoppingConfig) EarlyStopping {
	return EarlyStopping{cfg: cfg}
}

// Check evaluates the stop rules in priority order. turn is 1-based.
func (e EarlyStopping) Check(turn, stability int, confidence float64, estimate int) StopDecision {
	if turn < e.cfg.MinTurns {
		return StopDecision{}
	}

	if stability >= e.cfg.PlateauThreshold {
		return StopDecision{
			ShouldStop: true,
			Reason:     StopLevelPlateau,
			Message:    fmt.Sprintf("level %d/5 stable for %d turns at turn %d", estimate, stability, turn),
		}
	}

	if confidence >= e.cfg.HighConfidenceThreshold && stability >= e.cfg.HighConfidenceStability {
		return StopDecision{
			ShouldStop: true,
			Reason:     StopHighConfidence,
			Message:    fmt.Sprintf("confidence %.0f%% with stable level %d/5 at turn %d", confidence*100, estimate, turn),
		}
	}

	return StopDecision{}
}

func maxTurnsDecision(turn int) StopDecision {
	return StopDecision{
		ShouldStop: true,
		Reason:     StopMaxTurns,
		Message:    fmt.Sprintf("turn budget exhausted at turn %d", turn),
	}
}
