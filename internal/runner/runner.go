package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/abhisek/tutorbench/internal/assessment"
	"github.com/abhisek/tutorbench/internal/platform"
	"github.com/abhisek/tutorbench/internal/store"
)

// Catalog resolves the topics a student is assessed on.
type Catalog interface {
	ListTopics(ctx context.Context, studentID string) ([]platform.Topic, error)
	Topic(ctx context.Context, studentID, topicID string) (platform.Topic, error)
}

// Assessor runs one assessment. *assessment.Controller implements it.
type Assessor interface {
	Run(ctx context.Context, studentID string, topic platform.Topic) (*assessment.Result, error)
}

// Options configures a Runner. Sessions and Metrics are optional.
type Options struct {
	Concurrency int
	RunID       string
	Sessions    store.SessionRepo
	Metrics     *Metrics
	Logger      *slog.Logger
}

// Runner fans assessments out over (student, topic) pairs with bounded
// concurrency. Each session owns its own state; only the catalog, assessor
// and repositories are shared.
type Runner struct {
	catalog     Catalog
	assessor    Assessor
	sessions    store.SessionRepo
	metrics     *Metrics
	logger      *slog.Logger
	runID       string
	concurrency int
}

// New creates a Runner. A missing RunID is generated.
func New(catalog Catalog, assessor Assessor, opts Options) *Runner {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{
		catalog:     catalog,
		assessor:    assessor,
		sessions:    opts.Sessions,
		metrics:     opts.Metrics,
		logger:      opts.Logger.With("run_id", opts.RunID),
		runID:       opts.RunID,
		concurrency: opts.Concurrency,
	}
}

// RunID identifies this runner's sessions in the store.
func (r *Runner) RunID() string {
	return r.runID
}

// Outcome is the result of one (student, topic) assessment.
type Outcome struct {
	StudentID string
	TopicID   string
	Result    *assessment.Result
	Err       error
}

// Level returns the predicted level, or 0 for a failed session.
func (o Outcome) Level() int {
	if o.Result == nil {
		return 0
	}
	return o.Result.FinalLevel
}

type pair struct {
	studentID string
	topic     platform.Topic
}

// RunSession assesses one student on one topic.
func (r *Runner) RunSession(ctx context.Context, studentID, topicID string) (int, error) {
	topic, err := r.catalog.Topic(ctx, studentID, topicID)
	if err != nil {
		return 0, err
	}
	o := r.run(ctx, pair{studentID: studentID, topic: topic})
	return o.Level(), o.Err
}

// RunStudent assesses a student on every assigned topic. Predictions for
// successful topics are returned even when others fail; the error joins
// every failure.
func (r *Runner) RunStudent(ctx context.Context, studentID string) ([]platform.Prediction, error) {
	topics, err := r.catalog.ListTopics(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}

	pairs := make([]pair, len(topics))
	for i, t := range topics {
		pairs[i] = pair{studentID: studentID, topic: t}
	}

	var preds []platform.Prediction
	var errs []error
	for _, o := range r.runPairs(ctx, pairs) {
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("topic %s: %w", o.TopicID, o.Err))
			continue
		}
		preds = append(preds, platform.Prediction{
			StudentID:      o.StudentID,
			TopicID:        o.TopicID,
			PredictedLevel: float64(o.Level()),
		})
	}
	return preds, errors.Join(errs...)
}

// RunBatch assesses every topic of every listed student. A failure is
// recorded against its student and never affects other sessions.
func (r *Runner) RunBatch(ctx context.Context, studentIDs []string) *Results {
	results := NewResults()

	topics := make([][]platform.Topic, len(studentIDs))
	listErrs := make([]error, len(studentIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, id := range studentIDs {
		g.Go(func() error {
			topics[i], listErrs[i] = r.catalog.ListTopics(gctx, id)
			return nil
		})
	}
	_ = g.Wait()

	var pairs []pair
	for i, id := range studentIDs {
		if listErrs[i] != nil {
			r.logger.Warn("list topics failed", "student_id", id, "error", listErrs[i])
			results.AddError(id, fmt.Errorf("list topics: %w", listErrs[i]))
			continue
		}
		for _, t := range topics[i] {
			pairs = append(pairs, pair{studentID: id, topic: t})
		}
	}

	r.logger.Info("batch started", "students", len(studentIDs), "sessions", len(pairs), "concurrency", r.concurrency)
	for _, o := range r.runPairs(ctx, pairs) {
		results.Add(o)
	}
	return results
}

// runPairs runs every pair through the bounded worker group. Outcomes keep
// the order of pairs.
func (r *Runner) runPairs(ctx context.Context, pairs []pair) []Outcome {
	outcomes := make([]Outcome, len(pairs))

	// Workers never return an error, so one failed session cannot cancel
	// its siblings through the group context.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, p := range pairs {
		g.Go(func() error {
			outcomes[i] = r.run(gctx, p)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (r *Runner) run(ctx context.Context, p pair) Outcome {
	log := r.logger.With("student_id", p.studentID, "topic_id", p.topic.ID)
	start := time.Now()
	r.metrics.sessionStarted()

	res, err := r.assessor.Run(ctx, p.studentID, p.topic)
	o := Outcome{StudentID: p.studentID, TopicID: p.topic.ID, Result: res, Err: err}

	if err != nil {
		r.metrics.sessionFailed(time.Since(start))
		log.Error("session failed", "error", err)
	} else {
		r.metrics.sessionCompleted(res.FinalLevel, res.Turns(), string(res.Stop.Reason), res.Duration)
		log.Info("session completed", "final_level", res.FinalLevel, "turns", res.Turns(), "stop_reason", res.Stop.Reason)
	}

	r.persist(ctx, o, time.Since(start))
	return o
}

// persist stores the outcome. Store failures are logged and never fail the
// session.
func (r *Runner) persist(ctx context.Context, o Outcome, d time.Duration) {
	if r.sessions == nil {
		return
	}
	rec, turns := sessionRecord(r.runID, o, d)
	// A cancelled batch still records what happened.
	ctx = context.WithoutCancel(ctx)
	if _, err := r.sessions.SaveSession(ctx, rec, turns); err != nil {
		r.logger.Warn("save session failed", "student_id", o.StudentID, "topic_id", o.TopicID, "error", err)
	}
}

func sessionRecord(runID string, o Outcome, d time.Duration) (store.SessionRecord, []store.TurnRecordData) {
	rec := store.SessionRecord{
		RunID:      runID,
		StudentID:  o.StudentID,
		TopicID:    o.TopicID,
		DurationMs: d.Milliseconds(),
	}
	if o.Err != nil {
		rec.Status = store.SessionFailed
		rec.ErrorMessage = o.Err.Error()
		return rec, nil
	}

	res := o.Result
	rec.Status = store.SessionCompleted
	rec.ConversationID = res.ConversationID
	rec.FinalLevel = res.FinalLevel
	rec.MeanEstimate = res.Blend.MeanEstimate
	rec.ScoringLevel = res.Score.Level
	rec.Turns = res.Turns()
	rec.StopReason = string(res.Stop.Reason)

	turns := make([]store.TurnRecordData, len(res.History))
	for i, h := range res.History {
		turns[i] = store.TurnRecordData{
			Turn:            h.Turn,
			Question:        h.Question,
			Difficulty:      string(h.Difficulty),
			StudentResponse: h.StudentResponse,
			Correctness:     string(h.Analysis.Correctness),
			ConfidenceLevel: h.Analysis.ConfidenceLevel,
			KnowledgeGaps:   h.Analysis.KnowledgeGaps,
			Strengths:       h.Analysis.Strengths,
			Reasoning:       h.Analysis.Reasoning,
		}
		if i < len(res.Estimates) {
			turns[i].EstimatedLevel = res.Estimates[i].Level
			turns[i].LevelConfidence = res.Estimates[i].Confidence
			turns[i].StabilityCount = res.Estimates[i].Stability
		}
	}
	return rec, turns
}
