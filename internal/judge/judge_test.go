package judge

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/tutorbench/internal/llm"
	"github.com/abhisek/tutorbench/internal/platform"
)

var testTopic = platform.Topic{
	ID:          "t-1",
	SubjectName: "Mathematics",
	Name:        "Linear Equations",
	GradeLevel:  8,
}

// rawProvider returns fixed content without schema validation, standing in
// for a provider whose structured-output guarantees are weaker than ours.
type rawProvider struct {
	content string
}

func (p rawProvider) Generate(context.Context, llm.Request) (*llm.Response, error) {
	return &llm.Response{Content: json.RawMessage(p.content)}, nil
}

func (p rawProvider) ModelID() string { return "raw" }

func strategyFixture() llm.MockResponse {
	return llm.MockJSON(map[string]any{
		"target_skill":     "solving one-step equations",
		"reasoning":        "start at grade level",
		"level_range_low":  2,
		"level_range_high": 4,
		"probe_direction":  "confirm",
	})
}

func difficultyFixture(d string) llm.MockResponse {
	return llm.MockJSON(map[string]any{
		"difficulty":           d,
		"reasoning":            "baseline",
		"adjustment_direction": "confirm",
	})
}

func composeFixture(msg, question string) llm.MockResponse {
	return llm.MockJSON(map[string]any{
		"message":      msg,
		"question":     question,
		"message_type": "question",
	})
}

func TestTutor_ComposeChainsThreeCalls(t *testing.T) {
	mock := llm.NewMockProvider(
		strategyFixture(),
		difficultyFixture("medium"),
		composeFixture("Hi! Let's start. What is x if x + 3 = 7?", "What is x if x + 3 = 7?"),
	)
	tutor := NewTutor(mock, DefaultConfig())

	out, err := tutor.Compose(context.Background(), TutorInput{
		Topic:         testTopic,
		Turn:          1,
		MaxTurns:      10,
		LevelEstimate: 3,
	})
	require.NoError(t, err)

	assert.Equal(t, DifficultyMedium, out.Difficulty)
	assert.Equal(t, "What is x if x + 3 = 7?", out.Question)
	assert.Equal(t, ProbeConfirm, out.Strategy.ProbeDirection)
	assert.False(t, out.ShouldConclude)
	assert.Equal(t, []string{PurposeStrategy, PurposeDifficulty, PurposeCompose}, mock.Purposes)

	// The difficulty step sees the policy baseline.
	assert.Contains(t, mock.Calls[1].Messages[0].Content, "Baseline suggestion: medium")
	assert.Contains(t, mock.Calls[1].Messages[0].Content, "first question")
}

func TestTutor_BaselineFollowsPreviousOutcome(t *testing.T) {
	mock := llm.NewMockProvider(
		strategyFixture(),
		difficultyFixture("hard"),
		composeFixture("Nice work. Now try 2x - 5 = 11.", ""),
	)
	tutor := NewTutor(mock, DefaultConfig())

	out, err := tutor.Compose(context.Background(), TutorInput{
		Topic:              testTopic,
		Turn:               2,
		MaxTurns:           10,
		LevelEstimate:      3,
		LevelConfidence:    0.9,
		PreviousQuestion:   "What is x if x + 3 = 7?",
		PreviousResponse:   "4",
		PreviousDifficulty: DifficultyMedium,
		PreviousAnalysis:   &Analysis{Correctness: CorrectnessCorrect, ConfidenceLevel: 4},
		Stats:              Stats{StabilityCount: 2, ConsecutiveCorrect: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, DifficultyHard, out.Difficulty)
	assert.Equal(t, out.Message, out.Question, "empty question falls back to the message")
	assert.True(t, out.ShouldConclude)
	assert.Contains(t, mock.Calls[1].Messages[0].Content, "Baseline suggestion: hard")
	assert.Contains(t, mock.Calls[0].Messages[0].Content, "Graded: correct")
}

func TestTutor_StepFailureIsWrapped(t *testing.T) {
	mock := llm.NewMockProvider(
		strategyFixture(),
		llm.MockJSON(map[string]any{"difficulty": "extreme", "reasoning": "", "adjustment_direction": "confirm"}),
	)
	tutor := NewTutor(mock, DefaultConfig())

	_, err := tutor.Compose(context.Background(), TutorInput{Topic: testTopic, Turn: 1, MaxTurns: 5, LevelEstimate: 3})
	require.Error(t, err)
	assert.True(t, llm.IsInvalidResponse(err))
	assert.Contains(t, err.Error(), "difficulty recommendation")
}

func TestTutor_EmptyMessageRejected(t *testing.T) {
	mock := llm.NewMockProvider(strategyFixture(), difficultyFixture("easy"), composeFixture("  ", ""))
	tutor := NewTutor(mock, DefaultConfig())

	_, err := tutor.Compose(context.Background(), TutorInput{Topic: testTopic, Turn: 1, MaxTurns: 5, LevelEstimate: 3})
	require.Error(t, err)
	assert.True(t, llm.IsInvalidResponse(err))
}

func TestAnalyzer_Analyze(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockJSON(map[string]any{
		"correctness":      "partial",
		"confidence_level": 2,
		"knowledge_gaps":   []string{"sign errors"},
		"strengths":        []string{},
		"reasoning":        "Right method, wrong sign.",
	}))
	a := NewAnalyzer(mock, DefaultConfig())

	out, err := a.Analyze(context.Background(), AnalysisInput{
		Topic:      testTopic,
		Question:   "Solve x - 3 = -7",
		Response:   "x = 4",
		Difficulty: DifficultyMedium,
	})
	require.NoError(t, err)
	assert.Equal(t, CorrectnessPartial, out.Correctness)
	assert.Equal(t, 2, out.ConfidenceLevel)
	assert.Equal(t, []string{"sign errors"}, out.KnowledgeGaps)
	assert.NotNil(t, out.Strengths)
	assert.Equal(t, []string{PurposeAnalysis}, mock.Purposes)
	assert.Contains(t, mock.Calls[0].Messages[0].Content, "Student answer: x = 4")
}

func TestAnalyzer_SchemaViolation(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockJSON(map[string]any{
		"correctness":      "correct",
		"confidence_level": 9,
		"knowledge_gaps":   []string{},
		"strengths":        []string{},
		"reasoning":        "",
	}))
	a := NewAnalyzer(mock, DefaultConfig())

	_, err := a.Analyze(context.Background(), AnalysisInput{Topic: testTopic, Question: "q", Response: "r"})
	require.Error(t, err)
	assert.True(t, llm.IsInvalidResponse(err))
}

func TestAnalyzer_OutOfRangeWithoutSchemaEnforcement(t *testing.T) {
	p := rawProvider{content: `{"correctness":"maybe","confidence_level":3,"knowledge_gaps":[],"strengths":[],"reasoning":""}`}
	a := NewAnalyzer(p, DefaultConfig())

	_, err := a.Analyze(context.Background(), AnalysisInput{Topic: testTopic, Question: "q", Response: "r"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOutOfRange))
}

func TestInferrer_Infer(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockJSON(map[string]any{
		"estimated_level": 4,
		"confidence":      0.7,
		"reasoning":       "Solved a hard item.",
	}))
	inf := NewInferrer(mock, DefaultConfig())

	history := []TurnRecord{{
		Turn:            1,
		Question:        "Solve 3x + 2 = 17",
		Difficulty:      DifficultyHard,
		StudentResponse: "x = 5",
		Analysis:        Analysis{Correctness: CorrectnessCorrect, ConfidenceLevel: 5},
	}}
	est, err := inf.Infer(context.Background(), InferenceInput{Topic: testTopic, History: history, PreviousEstimate: 3})
	require.NoError(t, err)
	assert.Equal(t, 4, est.Level)
	assert.InDelta(t, 0.7, est.Confidence, 1e-9)

	prompt := mock.Calls[0].Messages[0].Content
	assert.Contains(t, prompt, "Previous estimate: level 3")
	assert.Contains(t, prompt, "Turn 1 (hard)")
	assert.Contains(t, prompt, "Graded: correct")
}

func TestInferrer_RejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"level too high", `{"estimated_level":6,"confidence":0.5,"reasoning":""}`},
		{"level zero", `{"estimated_level":0,"confidence":0.5,"reasoning":""}`},
		{"confidence above one", `{"estimated_level":3,"confidence":1.5,"reasoning":""}`},
		{"negative confidence", `{"estimated_level":3,"confidence":-0.1,"reasoning":""}`},
	}
	history := []TurnRecord{{Turn: 1, Question: "q", StudentResponse: "a"}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inf := NewInferrer(rawProvider{content: tt.content}, DefaultConfig())
			_, err := inf.Infer(context.Background(), InferenceInput{Topic: testTopic, History: history, PreviousEstimate: 3})
			assert.ErrorIs(t, err, ErrOutOfRange)
		})
	}
}

func TestInferrer_EmptyHistory(t *testing.T) {
	mock := llm.NewMockProvider()
	inf := NewInferrer(mock, DefaultConfig())

	_, err := inf.Infer(context.Background(), InferenceInput{Topic: testTopic, PreviousEstimate: 3})
	require.Error(t, err)
	assert.Equal(t, 0, mock.CallCount())
}

func TestScorer_MapsLabels(t *testing.T) {
	history := []TurnRecord{{Turn: 1, Question: "q", Difficulty: DifficultyEasy, StudentResponse: "a"}}
	for level := MinLevel; level <= MaxLevel; level++ {
		label := LabelForLevel(level)
		mock := llm.NewMockProvider(llm.MockJSON(map[string]any{"score": label, "rationale": "because"}))
		s := NewScorer(mock, DefaultConfig())

		got, err := s.Score(context.Background(), ScoringInput{Topic: testTopic, History: history})
		require.NoError(t, err, label)
		assert.Equal(t, level, got.Level, label)
		assert.Equal(t, label, got.Label)
		assert.Equal(t, []string{PurposeScoring}, mock.Purposes)
	}
}

func TestScorer_TranscriptHidesGrading(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockJSON(map[string]any{"score": "At-grade", "rationale": ""}))
	s := NewScorer(mock, DefaultConfig())

	history := []TurnRecord{{
		Turn:            1,
		Question:        "What is 2/4 simplified?",
		Difficulty:      DifficultyEasy,
		StudentResponse: "1/2",
		Analysis:        Analysis{Correctness: CorrectnessCorrect, KnowledgeGaps: []string{"none"}},
	}}
	_, err := s.Score(context.Background(), ScoringInput{Topic: testTopic, History: history})
	require.NoError(t, err)

	prompt := mock.Calls[0].Messages[0].Content
	assert.Contains(t, prompt, "Q: What is 2/4 simplified?")
	assert.Contains(t, prompt, "A: 1/2")
	assert.False(t, strings.Contains(prompt, "Graded:"))
}

func TestLevelForLabel_Unknown(t *testing.T) {
	_, err := LevelForLabel("Genius")
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.Equal(t, "", LabelForLevel(0))
	assert.Equal(t, "", LabelForLevel(6))
}

func TestScorer_UnknownLabelWithoutSchemaEnforcement(t *testing.T) {
	s := NewScorer(rawProvider{content: `{"score":"Genius","rationale":""}`}, DefaultConfig())
	history := []TurnRecord{{Turn: 1, Question: "q", StudentResponse: "a"}}

	_, err := s.Score(context.Background(), ScoringInput{Topic: testTopic, History: history})
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestProviderErrorPropagates(t *testing.T) {
	boom := &llm.ErrProviderUnavailable{StatusCode: 503}
	mock := llm.NewMockProvider(llm.MockResponse{Err: boom})
	a := NewAnalyzer(mock, DefaultConfig())

	_, err := a.Analyze(context.Background(), AnalysisInput{Topic: testTopic, Question: "q", Response: "r"})
	var unavailable *llm.ErrProviderUnavailable
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, 503, unavailable.StatusCode)
}
