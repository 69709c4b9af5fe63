package judge

import (
	"errors"
	"fmt"

	"github.com/abhisek/tutorbench/internal/platform"
)

// ErrOutOfRange is wrapped by every judgment that returns a value outside
// its documented range.
var ErrOutOfRange = errors.New("judgment value out of range")

// Level bounds shared by every judgment that reports a level.
const (
	MinLevel = 1
	MaxLevel = 5
)

// Difficulty is the difficulty band of a tutor question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// AllDifficulties lists the bands from easiest to hardest.
var AllDifficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

// Valid reports whether d is a known band.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Correctness is the graded outcome of one student response.
type Correctness string

const (
	CorrectnessCorrect   Correctness = "correct"
	CorrectnessPartial   Correctness = "partial"
	CorrectnessIncorrect Correctness = "incorrect"
)

// AllCorrectness lists the outcomes from best to worst.
var AllCorrectness = []Correctness{CorrectnessCorrect, CorrectnessPartial, CorrectnessIncorrect}

// Valid reports whether c is a known outcome.
func (c Correctness) Valid() bool {
	switch c {
	case CorrectnessCorrect, CorrectnessPartial, CorrectnessIncorrect:
		return true
	}
	return false
}

// ProbeDirection tells the tutor which way to move the level estimate.
type ProbeDirection string

const (
	ProbeHigher  ProbeDirection = "higher"
	ProbeLower   ProbeDirection = "lower"
	ProbeConfirm ProbeDirection = "confirm"
)

// Trend summarises how the student's self-reported confidence is moving.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
	TrendUnknown   Trend = "unknown"
)

// Analysis is the graded reading of one student response.
type Analysis struct {
	Correctness     Correctness `json:"correctness"`
	ConfidenceLevel int         `json:"confidence_level"`
	KnowledgeGaps   []string    `json:"knowledge_gaps"`
	Strengths       []string    `json:"strengths"`
	Reasoning       string      `json:"reasoning"`
}

// TurnRecord is one completed question and answer exchange.
type TurnRecord struct {
	Turn            int
	Question        string
	Difficulty      Difficulty
	StudentResponse string
	Analysis        Analysis
}

// Stats is the per-turn snapshot of assessment progress handed to the tutor.
type Stats struct {
	TurnsSoFar           int
	DifficultyTally      map[Difficulty]int
	CorrectnessTally     map[Correctness]int
	AvgConfidence        float64
	ConfidenceTrend      Trend
	ConsecutiveCorrect   int
	ConsecutiveIncorrect int
	StabilityCount       int
}

// Strategy is the tutor's plan for the next question.
type Strategy struct {
	TargetSkill    string         `json:"target_skill"`
	Reasoning      string         `json:"reasoning"`
	LevelRangeLow  int            `json:"level_range_low"`
	LevelRangeHigh int            `json:"level_range_high"`
	ProbeDirection ProbeDirection `json:"probe_direction"`
}

// TutorInput is everything the tutor sees when composing the next message.
type TutorInput struct {
	Topic              platform.Topic
	Turn               int // 1-based
	MaxTurns           int
	LevelEstimate      int
	LevelConfidence    float64
	PreviousQuestion   string
	PreviousResponse   string
	PreviousDifficulty Difficulty
	PreviousAnalysis   *Analysis
	Stats              Stats
}

// TutorOutput is the next tutor message. ShouldConclude is advisory only.
type TutorOutput struct {
	Message        string
	Question       string
	MessageType    string
	Difficulty     Difficulty
	ShouldConclude bool
	Strategy       Strategy
}

// AnalysisInput is one exchange to grade.
type AnalysisInput struct {
	Topic      platform.Topic
	Question   string
	Response   string
	Difficulty Difficulty
}

// InferenceInput is the evidence for a level estimate.
type InferenceInput struct {
	Topic            platform.Topic
	History          []TurnRecord
	PreviousEstimate int
}

// LevelEstimate is the inferred level after a turn.
type LevelEstimate struct {
	Level      int     `json:"estimated_level"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// ScoringInput is the full transcript handed to the final scorer.
type ScoringInput struct {
	Topic   platform.Topic
	History []TurnRecord
}

// Score is the final scorer's verdict.
type Score struct {
	Level     int
	Label     string
	Rationale string
}

// Score labels ordered by level.
var scoreLabels = []string{"Struggling", "Below-grade", "At-grade", "Above-grade", "Advanced"}

// LevelForLabel maps a score label to its level.
func LevelForLabel(label string) (int, error) {
	for i, l := range scoreLabels {
		if l == label {
			return i + 1, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown score label %q", ErrOutOfRange, label)
}

// LabelForLevel returns the score label for a level, or "" when out of range.
func LabelForLevel(level int) string {
	if level < MinLevel || level > MaxLevel {
		return ""
	}
	return scoreLabels[level-1]
}

func checkLevel(name string, v int) error {
	if v < MinLevel || v > MaxLevel {
		return fmt.Errorf("%w: %s %d not in [%d,%d]", ErrOutOfRange, name, v, MinLevel, MaxLevel)
	}
	return nil
}
