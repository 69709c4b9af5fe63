package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/tutorbench/internal/assessment"
	"github.com/abhisek/tutorbench/internal/judge"
	"github.com/abhisek/tutorbench/internal/platform"
	"github.com/abhisek/tutorbench/internal/store"
)

type fakeCatalog struct {
	topics  map[string][]platform.Topic
	listErr map[string]error
}

func (c *fakeCatalog) ListTopics(_ context.Context, studentID string) ([]platform.Topic, error) {
	if err := c.listErr[studentID]; err != nil {
		return nil, err
	}
	topics, ok := c.topics[studentID]
	if !ok {
		return nil, platform.ErrStudentNotFound
	}
	return topics, nil
}

func (c *fakeCatalog) Topic(ctx context.Context, studentID, topicID string) (platform.Topic, error) {
	topics, err := c.ListTopics(ctx, studentID)
	if err != nil {
		return platform.Topic{}, err
	}
	for _, t := range topics {
		if t.ID == topicID {
			return t, nil
		}
	}
	return platform.Topic{}, platform.ErrTopicNotFound
}

// fakeAssessor predicts a level from the topic grade and fails for the
// configured pairs. It tracks peak concurrency.
type fakeAssessor struct {
	fail map[string]error

	active atomic.Int32
	mu     sync.Mutex
	peak   int32
}

func (a *fakeAssessor) Run(_ context.Context, studentID string, topic platform.Topic) (*assessment.Result, error) {
	n := a.active.Add(1)
	defer a.active.Add(-1)
	a.mu.Lock()
	if n > a.peak {
		a.peak = n
	}
	a.mu.Unlock()
	time.Sleep(5 * time.Millisecond)

	if err := a.fail[studentID+"/"+topic.ID]; err != nil {
		return nil, err
	}
	level := topic.GradeLevel%5 + 1
	return &assessment.Result{
		StudentID:      studentID,
		TopicID:        topic.ID,
		ConversationID: "c-" + studentID + "-" + topic.ID,
		FinalLevel:     level,
		Blend:          assessment.Blended{Level: level, MeanEstimate: float64(level)},
		Score:          judge.Score{Level: level},
		Stop:           assessment.StopDecision{ShouldStop: true, Reason: assessment.StopLevelPlateau},
		History: []judge.TurnRecord{{
			Turn:            1,
			Question:        "q",
			Difficulty:      judge.DifficultyMedium,
			StudentResponse: "a",
			Analysis: judge.Analysis{
				Correctness:     judge.CorrectnessCorrect,
				ConfidenceLevel: 4,
				KnowledgeGaps:   []string{},
				Strengths:       []string{"x"},
			},
		}},
		Estimates: []assessment.EstimatePoint{{Turn: 1, Level: level, Confidence: 0.8}},
	}, nil
}

func catalog() *fakeCatalog {
	return &fakeCatalog{
		topics: map[string][]platform.Topic{
			"s1": {{ID: "t1", GradeLevel: 1}, {ID: "t2", GradeLevel: 2}},
			"s2": {{ID: "t3", GradeLevel: 3}},
			"s3": {{ID: "t4", GradeLevel: 4}, {ID: "t5", GradeLevel: 0}},
		},
		listErr: map[string]error{},
	}
}

func TestRunSession(t *testing.T) {
	r := New(catalog(), &fakeAssessor{}, Options{})

	level, err := r.RunSession(context.Background(), "s1", "t2")
	require.NoError(t, err)
	assert.Equal(t, 3, level)

	_, err = r.RunSession(context.Background(), "s1", "missing")
	assert.ErrorIs(t, err, platform.ErrTopicNotFound)

	_, err = r.RunSession(context.Background(), "nobody", "t1")
	assert.ErrorIs(t, err, platform.ErrStudentNotFound)
}

func TestRunStudent_PartialFailure(t *testing.T) {
	boom := errors.New("llm down")
	a := &fakeAssessor{fail: map[string]error{"s1/t1": boom}}
	r := New(catalog(), a, Options{Concurrency: 2})

	preds, err := r.RunStudent(context.Background(), "s1")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []platform.Prediction{{StudentID: "s1", TopicID: "t2", PredictedLevel: 3}}, preds)
}

func TestRunBatch_Isolation(t *testing.T) {
	cat := catalog()
	cat.listErr["s2"] = &platform.StatusError{Method: "GET", Path: "/students/s2/topics", StatusCode: 500}
	a := &fakeAssessor{fail: map[string]error{"s3/t4": errors.New("judge failed")}}
	r := New(cat, a, Options{Concurrency: 2})

	res := r.RunBatch(context.Background(), []string{"s1", "s2", "s3", "ghost"})

	assert.Len(t, res.Results["s1"], 2)
	assert.Equal(t, []Score{{StudentID: "s3", TopicID: "t5", Score: 1}}, res.Results["s3"])
	assert.NotContains(t, res.Results, "s2")

	assert.Contains(t, res.Errors["s2"], "list topics")
	assert.Contains(t, res.Errors["s3"], "judge failed")
	assert.Contains(t, res.Errors, "ghost")
	assert.NotContains(t, res.Errors, "s1")

	assert.Equal(t, 3, res.Sessions())
	assert.LessOrEqual(t, a.peak, int32(2))
}

func TestRunBatch_ConcurrencyIsBounded(t *testing.T) {
	cat := &fakeCatalog{topics: map[string][]platform.Topic{}}
	var ids []string
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("s%d", i)
		ids = append(ids, id)
		cat.topics[id] = []platform.Topic{{ID: "a"}, {ID: "b"}}
	}
	a := &fakeAssessor{}
	r := New(cat, a, Options{Concurrency: 3})

	res := r.RunBatch(context.Background(), ids)
	assert.Equal(t, 12, res.Sessions())
	assert.Empty(t, res.Errors)
	assert.LessOrEqual(t, a.peak, int32(3))
}

func TestRunner_PersistsOutcomes(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "runner.db"))
	require.NoError(t, err)
	defer s.Close()

	a := &fakeAssessor{fail: map[string]error{"s1/t1": errors.New("boom")}}
	r := New(catalog(), a, Options{Sessions: s.SessionRepo(), RunID: "run-1"})

	_, _ = r.RunStudent(context.Background(), "s1")

	ctx := context.Background()
	completed, failed, err := s.SessionRepo().OutcomeCounts(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 1, completed)
	assert.Equal(t, 1, failed)

	recs, err := s.SessionRepo().QuerySessions(ctx, store.SessionQuery{RunID: "run-1", Status: store.SessionCompleted})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "t2", recs[0].TopicID)
	assert.Equal(t, 3, recs[0].FinalLevel)
	assert.Equal(t, "level_plateau", recs[0].StopReason)

	turns, err := s.SessionRepo().SessionTurns(ctx, recs[0].ID)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "correct", turns[0].Correctness)
	assert.Equal(t, 3, turns[0].EstimatedLevel)
	assert.Equal(t, []string{"x"}, turns[0].Strengths)

	failedRecs, err := s.SessionRepo().QuerySessions(ctx, store.SessionQuery{RunID: "run-1", Status: store.SessionFailed})
	require.NoError(t, err)
	require.Len(t, failedRecs, 1)
	assert.Equal(t, "boom", failedRecs[0].ErrorMessage)
}

func TestRunner_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	a := &fakeAssessor{fail: map[string]error{"s1/t1": errors.New("boom")}}
	r := New(catalog(), a, Options{Metrics: m})
	_, _ = r.RunStudent(context.Background(), "s1")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessions.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessions.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stopReasons.WithLabelValues("level_plateau")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.finalLevels.WithLabelValues("3")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.active))

	_, err = NewMetrics(reg)
	assert.Error(t, err, "duplicate registration")
}

func TestResults_WriteRead(t *testing.T) {
	res := NewResults()
	res.Add(Outcome{StudentID: "s2", TopicID: "t9", Result: &assessment.Result{FinalLevel: 2}})
	res.Add(Outcome{StudentID: "s1", TopicID: "t1", Result: &assessment.Result{FinalLevel: 4}})
	res.Add(Outcome{StudentID: "s1", TopicID: "t2", Err: errors.New("timeout")})

	path := filepath.Join(t.TempDir(), "out", ResultsFileName("mini_dev", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
	assert.Equal(t, "results_mini_dev_20260102_030405.json", filepath.Base(path))
	require.NoError(t, WriteResults(path, res))

	got, err := ReadResults(path)
	require.NoError(t, err)
	assert.Equal(t, res.Results, got.Results)
	assert.Equal(t, "topic t2: timeout", got.Errors["s1"])

	preds := got.Predictions()
	require.Len(t, preds, 2)
	assert.Equal(t, "s1", preds[0].StudentID)
	assert.Equal(t, 4.0, preds[0].PredictedLevel)
}

func TestReadResults_Strict(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]string{
		"unknown field":   `{"results":{},"errors":{},"extra":1}`,
		"missing results": `{"errors":{}}`,
		"missing topic":   `{"results":{"s1":[{"student_id":"s1","score":3}]},"errors":{}}`,
		"not json":        `results`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".json")
			require.NoError(t, writeFile(path, body))
			_, err := ReadResults(path)
			assert.Error(t, err)
		})
	}
}

func TestMSE(t *testing.T) {
	truth := map[Key]float64{
		{"s1", "t1"}: 3,
		{"s1", "t2"}: 5,
	}
	preds := []platform.Prediction{
		{StudentID: "s1", TopicID: "t1", PredictedLevel: 4},
		{StudentID: "s1", TopicID: "t2", PredictedLevel: 3},
		{StudentID: "s9", TopicID: "t1", PredictedLevel: 1},
	}
	mse, n, err := MSE(preds, truth)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.InDelta(t, 2.5, mse, 1e-9)

	_, _, err = MSE(preds[2:], truth)
	assert.Error(t, err)
}

func TestReadTruth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "truth.json")
	require.NoError(t, writeFile(path, `[{"student_id":"s1","topic_id":"t1","level":2}]`))

	truth, err := ReadTruth(path)
	require.NoError(t, err)
	assert.Equal(t, 2.0, truth[Key{"s1", "t1"}])

	require.NoError(t, writeFile(path, `[{"student_id":"s1","level":2}]`))
	_, err = ReadTruth(path)
	assert.Error(t, err)
}

func TestRenderReport(t *testing.T) {
	res := NewResults()
	res.Add(Outcome{StudentID: "s1", TopicID: "t1", Result: &assessment.Result{FinalLevel: 4}})
	res.Add(Outcome{StudentID: "s2", TopicID: "t2", Err: errors.New("platform 502")})
	mse := 0.75

	var buf bytes.Buffer
	require.NoError(t, RenderReport(&buf, Report{
		Dataset:  "dev",
		Results:  res,
		Students: 2,
		Duration: 90 * time.Second,
		MSE:      &mse,
		Tutoring: map[string]any{"score": 0.8},
	}))

	out := buf.String()
	for _, want := range []string{"Evaluation: dev", "Sessions completed", "0.7500", "Above-grade", "Tutoring quality", "platform 502", "1m30s"} {
		assert.Contains(t, out, want)
	}
}
