package judge

import "context"

// Tutor plans and writes the next tutor message.
type Tutor interface {
	Compose(ctx context.Context, in TutorInput) (*TutorOutput, error)
}

// ResponseAnalyzer grades one student response.
type ResponseAnalyzer interface {
	Analyze(ctx context.Context, in AnalysisInput) (*Analysis, error)
}

// LevelInferrer estimates the student's level from the transcript so far.
type LevelInferrer interface {
	Infer(ctx context.Context, in InferenceInput) (*LevelEstimate, error)
}

// FinalScorer grades a finished transcript.
type FinalScorer interface {
	Score(ctx context.Context, in ScoringInput) (*Score, error)
}

// Config tunes the LLM-backed judgments.
type Config struct {
	MaxTokens int

	StrategyTemperature   float64
	DifficultyTemperature float64
	ComposeTemperature    float64
	AnalysisTemperature   float64
	InferenceTemperature  float64
	ScoringTemperature    float64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxTokens:             1024,
		StrategyTemperature:   0.5,
		DifficultyTemperature: 0.3,
		ComposeTemperature:    0.8,
		AnalysisTemperature:   0.3,
		InferenceTemperature:  0.3,
		ScoringTemperature:    0.3,
	}
}
