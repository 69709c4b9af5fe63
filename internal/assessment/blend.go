package assessment

import (
	"math"

	"github.com/abhisek/tutorbench/internal/judge"
)

// BlendConfig weights the per-turn estimates against the final scorer.
// The inferrer weight is Base + Span * mean confidence.
type BlendConfig struct {
	Base float64
	Span float64
}

// DefaultBlendConfig returns weights in [0.5, 0.8] for the inferrer side.
func DefaultBlendConfig() BlendConfig {
	return BlendConfig{Base: 0.5, Span: 0.3}
}

// Blended is the breakdown of a final level.
type Blended struct {
	Level          int
	MeanEstimate   float64
	MeanConfidence float64
	InferrerWeight float64
}

// Blend combines the estimates recorded during a session with the final
// scorer's level. Without estimates the scorer decides alone.
func (b BlendConfig) Blend(estimates []EstimatePoint, scoringLevel int) Blended {
	if len(estimates) == 0 {
		return Blended{Level: clampLevel(scoringLevel), MeanEstimate: float64(scoringLevel)}
	}

	var levels, confs float64
	for _, e := range estimates {
		levels += float64(e.Level)
		confs += e.Confidence
	}
	n := float64(len(estimates))
	meanLevel := levels / n
	meanConf := confs / n

	w := b.Base + b.Span*meanConf
	raw := w*meanLevel + (1-w)*float64(scoringLevel)

	return Blended{
		Level:          clampLevel(int(math.Round(raw))),
		MeanEstimate:   meanLevel,
		MeanConfidence: meanConf,
		InferrerWeight: w,
	}
}

func clampLevel(v int) int {
	return min(max(v, judge.MinLevel), judge.MaxLevel)
}
