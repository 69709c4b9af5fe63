package assessment

import (
	"errors"
	"fmt"

	"github.com/abhisek/tutorbench/internal/judge"
)

var (
	// ErrConversationAssigned is returned when a session is bound to a
	// second conversation.
	ErrConversationAssigned = errors.New("session already has a conversation")

	// ErrAlreadyFinalized is returned when a final level is assigned twice.
	ErrAlreadyFinalized = errors.New("session already finalized")

	// ErrTurnLimit is returned when a turn is recorded past MaxTurns.
	ErrTurnLimit = errors.New("session turn limit reached")
)

// InitialLevel is the prior estimate before any evidence is seen.
const InitialLevel = 3

// confidenceWindow is how many recent confidence readings feed Stats.
const confidenceWindow = 3

// EstimatePoint is one inferred estimate together with the stability count
// it produced.
type EstimatePoint struct {
	Turn       int
	Level      int
	Confidence float64
	Stability  int
}

// Session is the mutable state of one (student, topic) assessment. It is
// owned by a single controller run and is not safe for concurrent use.
type Session struct {
	StudentID      string
	TopicID        string
	ConversationID string
	MaxTurns       int

	Turn            int
	LevelEstimate   int
	LevelConfidence float64
	StabilityCount  int

	DifficultyTally      map[judge.Difficulty]int
	CorrectnessTally     map[judge.Correctness]int
	ConsecutiveCorrect   int
	ConsecutiveIncorrect int

	History   []judge.TurnRecord
	Estimates []EstimatePoint

	FinalLevel int

	confidence []int
	finalized  bool
}

// NewSession creates a session at the prior estimate.
func NewSession(studentID, topicID string, maxTurns int) *Session {
	return &Session{
		StudentID:        studentID,
		TopicID:          topicID,
		MaxTurns:         maxTurns,
		LevelEstimate:    InitialLevel,
		DifficultyTally:  make(map[judge.Difficulty]int),
		CorrectnessTally: make(map[judge.Correctness]int),
	}
}

// SetConversation binds the session to its platform conversation. It can
// only be called once.
func (s *Session) SetConversation(id string) error {
	if s.ConversationID != "" {
		return fmt.Errorf("%w: %s", ErrConversationAssigned, s.ConversationID)
	}
	if id == "" {
		return errors.New("empty conversation id")
	}
	s.ConversationID = id
	return nil
}

// RecordTurn folds one analysed exchange into the counters and appends it
// to the history. The record's Turn must be the next turn number.
func (s *Session) RecordTurn(rec judge.TurnRecord) error {
	if s.MaxTurns > 0 && s.Turn >= s.MaxTurns {
		return fmt.Errorf("%w: %d", ErrTurnLimit, s.MaxTurns)
	}
	if rec.Turn != s.Turn+1 {
		return fmt.Errorf("turn %d recorded out of order, expected %d", rec.Turn, s.Turn+1)
	}

	s.DifficultyTally[rec.Difficulty]++
	s.CorrectnessTally[rec.Analysis.Correctness]++

	switch rec.Analysis.Correctness {
	case judge.CorrectnessCorrect:
		s.ConsecutiveCorrect++
		s.ConsecutiveIncorrect = 0
	case judge.CorrectnessIncorrect:
		s.ConsecutiveIncorrect++
		s.ConsecutiveCorrect = 0
	default:
		s.ConsecutiveCorrect = 0
		s.ConsecutiveIncorrect = 0
	}

	s.confidence = append(s.confidence, rec.Analysis.ConfidenceLevel)
	if len(s.confidence) > confidenceWindow {
		s.confidence = s.confidence[len(s.confidence)-confidenceWindow:]
	}

	s.History = append(s.History, rec)
	s.Turn = rec.Turn
	return nil
}

// ApplyEstimate records a new inferred estimate. Stability is measured
// against the previous inferred estimate; the prior does not count.
func (s *Session) ApplyEstimate(est judge.LevelEstimate) EstimatePoint {
	if len(s.Estimates) > 0 && est.Level == s.LevelEstimate {
		s.StabilityCount++
	} else {
		s.StabilityCount = 0
	}
	s.LevelEstimate = est.Level
	s.LevelConfidence = est.Confidence

	p := EstimatePoint{
		Turn:       s.Turn,
		Level:      est.Level,
		Confidence: est.Confidence,
		Stability:  s.StabilityCount,
	}
	s.Estimates = append(s.Estimates, p)
	return p
}

// LastTurn returns the most recent exchange, if any.
func (s *Session) LastTurn() (judge.TurnRecord, bool) {
	if len(s.History) == 0 {
		return judge.TurnRecord{}, false
	}
	return s.History[len(s.History)-1], true
}

// Finalize assigns the final level exactly once.
func (s *Session) Finalize(level int) error {
	if s.finalized {
		return ErrAlreadyFinalized
	}
	if level < judge.MinLevel || level > judge.MaxLevel {
		return fmt.Errorf("%w: final level %d", judge.ErrOutOfRange, level)
	}
	s.FinalLevel = level
	s.finalized = true
	return nil
}

// Finalized reports whether Finalize has succeeded.
func (s *Session) Finalized() bool {
	return s.finalized
}
