package assessment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/abhisek/tutorbench/internal/judge"
	"github.com/abhisek/tutorbench/internal/llm"
	"github.com/abhisek/tutorbench/internal/platform"
)

// Endpoint is the slice of the student platform the controller talks to.
type Endpoint interface {
	StartConversation(ctx context.Context, studentID, topicID string) (*platform.Conversation, error)
	SendMessage(ctx context.Context, conversationID, message string) (*platform.Reply, error)
}

// Judges bundles the judgment ports the controller orchestrates.
type Judges struct {
	Tutor    judge.Tutor
	Analyzer judge.ResponseAnalyzer
	Inferrer judge.LevelInferrer
	Scorer   judge.FinalScorer
}

// Config holds the controller's tunables.
type Config struct {
	// MaxTurns is the local turn budget. The platform's budget also applies;
	// the smaller positive value wins.
	MaxTurns int
	Stopping StoppingConfig
	Blend    BlendConfig
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		MaxTurns: 10,
		Stopping: DefaultStoppingConfig(),
		Blend:    DefaultBlendConfig(),
	}
}

// Result is the outcome of one completed assessment.
type Result struct {
	StudentID      string
	TopicID        string
	ConversationID string
	FinalLevel     int
	Blend          Blended
	Score          judge.Score
	Stop           StopDecision
	History        []judge.TurnRecord
	Estimates      []EstimatePoint
	Duration       time.Duration
}

// Turns returns how many exchanges the assessment took.
func (r *Result) Turns() int {
	return len(r.History)
}

// Controller runs the adaptive assessment loop for one (student, topic) at a
// time. A Controller is safe for concurrent use as long as its Endpoint and
// judges are.
type Controller struct {
	endpoint Endpoint
	judges   Judges
	policy   EarlyStopping
	cfg      Config
	logger   *slog.Logger
}

// NewController creates a controller. A nil logger discards output.
func NewController(endpoint Endpoint, judges Judges, cfg Config, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Controller{
		endpoint: endpoint,
		judges:   judges,
		policy:   NewEarlyStopping(cfg.Stopping),
		cfg:      cfg,
		logger:   logger,
	}
}

// Run assesses one student on one topic and returns the blended final level.
// Any judgment or transport failure aborts the session.
func (c *Controller) Run(ctx context.Context, studentID string, topic platform.Topic) (*Result, error) {
	start := time.Now()
	log := c.logger.With("student_id", studentID, "topic_id", topic.ID)

	conv, err := c.endpoint.StartConversation(ctx, studentID, topic.ID)
	if err != nil {
		return nil, fmt.Errorf("start conversation: %w", err)
	}

	maxTurns := turnBudget(c.cfg.MaxTurns, conv.MaxTurns)
	if maxTurns <= 0 {
		return nil, errors.New("start conversation: no turn budget")
	}

	s := NewSession(studentID, topic.ID, maxTurns)
	if err := s.SetConversation(conv.ConversationID); err != nil {
		return nil, fmt.Errorf("start conversation: %w", err)
	}
	log = log.With("conversation_id", s.ConversationID)
	log.Info("assessment started", "max_turns", maxTurns)

	var decision StopDecision
	for !decision.ShouldStop {
		decision, err = c.turn(ctx, s, topic, log)
		if err != nil {
			return nil, err
		}
	}
	log.Info("assessment stopped", "reason", decision.Reason, "turns", s.Turn, "detail", decision.Message)

	sctx := llm.WithSession(ctx, llm.SessionRef{StudentID: studentID, TopicID: topic.ID, Turn: s.Turn})
	score, err := c.judges.Scorer.Score(sctx, judge.ScoringInput{Topic: topic, History: s.History})
	if err != nil {
		return nil, fmt.Errorf("final score: %w", err)
	}

	blended := c.cfg.Blend.Blend(s.Estimates, score.Level)
	if err := s.Finalize(blended.Level); err != nil {
		return nil, fmt.Errorf("finalize: %w", err)
	}

	log.Info("assessment finished",
		"final_level", s.FinalLevel,
		"mean_estimate", blended.MeanEstimate,
		"scoring_level", score.Level,
		"inferrer_weight", blended.InferrerWeight,
	)

	return &Result{
		StudentID:      studentID,
		TopicID:        topic.ID,
		ConversationID: s.ConversationID,
		FinalLevel:     s.FinalLevel,
		Blend:          blended,
		Score:          *score,
		Stop:           decision,
		History:        s.History,
		Estimates:      s.Estimates,
		Duration:       time.Since(start),
	}, nil
}

// turn runs one tutor/student/judge cycle and returns the stop decision.
func (c *Controller) turn(ctx context.Context, s *Session, topic platform.Topic, log *slog.Logger) (StopDecision, error) {
	n := s.Turn + 1
	ctx = llm.WithSession(ctx, llm.SessionRef{StudentID: s.StudentID, TopicID: s.TopicID, Turn: n})
	log = log.With("turn", n)

	in := judge.TutorInput{
		Topic:           topic,
		Turn:            n,
		MaxTurns:        s.MaxTurns,
		LevelEstimate:   s.LevelEstimate,
		LevelConfidence: s.LevelConfidence,
		Stats:           s.Stats(),
	}
	if prev, ok := s.LastTurn(); ok {
		in.PreviousQuestion = prev.Question
		in.PreviousResponse = prev.StudentResponse
		in.PreviousDifficulty = prev.Difficulty
		analysis := prev.Analysis
		in.PreviousAnalysis = &analysis
	}

	out, err := c.judges.Tutor.Compose(ctx, in)
	if err != nil {
		return StopDecision{}, fmt.Errorf("turn %d: tutor: %w", n, err)
	}

	reply, err := c.endpoint.SendMessage(ctx, s.ConversationID, out.Message)
	if err != nil {
		return StopDecision{}, fmt.Errorf("turn %d: send message: %w", n, err)
	}

	analysis, err := c.judges.Analyzer.Analyze(ctx, judge.AnalysisInput{
		Topic:      topic,
		Question:   out.Question,
		Response:   reply.StudentResponse,
		Difficulty: out.Difficulty,
	})
	if err != nil {
		return StopDecision{}, fmt.Errorf("turn %d: analyze response: %w", n, err)
	}

	if err := s.RecordTurn(judge.TurnRecord{
		Turn:            n,
		Question:        out.Question,
		Difficulty:      out.Difficulty,
		StudentResponse: reply.StudentResponse,
		Analysis:        *analysis,
	}); err != nil {
		return StopDecision{}, fmt.Errorf("turn %d: %w", n, err)
	}

	prevEstimate := s.LevelEstimate
	est, err := c.judges.Inferrer.Infer(ctx, judge.InferenceInput{
		Topic:            topic,
		History:          s.History,
		PreviousEstimate: prevEstimate,
	})
	if err != nil {
		return StopDecision{}, fmt.Errorf("turn %d: infer level: %w", n, err)
	}
	point := s.ApplyEstimate(*est)

	log.Debug("turn complete",
		"difficulty", out.Difficulty,
		"correctness", analysis.Correctness,
		"estimate", point.Level,
		"confidence", point.Confidence,
		"stability", point.Stability,
		"tutor_should_conclude", out.ShouldConclude,
	)

	decision := c.policy.Check(n, point.Stability, point.Confidence, point.Level)
	if decision.ShouldStop {
		return decision, nil
	}
	if n >= s.MaxTurns || reply.IsComplete {
		return maxTurnsDecision(n), nil
	}
	return decision, nil
}

// turnBudget returns the smaller of the positive budgets.
func turnBudget(local, remote int) int {
	switch {
	case local > 0 && remote > 0:
		return min(local, remote)
	case local > 0:
		return local
	}
	return remote
}
