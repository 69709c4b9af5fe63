package runner

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/abhisek/tutorbench/internal/platform"
)

// Score is one predicted level in a results file.
type Score struct {
	StudentID string `json:"student_id"`
	TopicID   string `json:"topic_id"`
	Score     int    `json:"score"`
}

// Results is the batch output: predictions and error messages keyed by
// student ID. A student can appear in both when only some topics failed.
type Results struct {
	mu      sync.Mutex
	Results map[string][]Score `json:"results"`
	Errors  map[string]string  `json:"errors"`
}

// NewResults returns an empty result set.
func NewResults() *Results {
	return &Results{
		Results: make(map[string][]Score),
		Errors:  make(map[string]string),
	}
}

// Add folds one session outcome into the set.
func (r *Results) Add(o Outcome) {
	if o.Err != nil {
		r.AddError(o.StudentID, fmt.Errorf("topic %s: %w", o.TopicID, o.Err))
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Results[o.StudentID] = append(r.Results[o.StudentID], Score{
		StudentID: o.StudentID,
		TopicID:   o.TopicID,
		Score:     o.Level(),
	})
}

// AddError records a failure against a student. Multiple failures are
// joined.
func (r *Results) AddError(studentID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.Errors[studentID]; ok {
		r.Errors[studentID] = prev + "; " + err.Error()
		return
	}
	r.Errors[studentID] = err.Error()
}

// Predictions flattens the results in student order.
func (r *Results) Predictions() []platform.Prediction {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.Results))
	for id := range r.Results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var preds []platform.Prediction
	for _, id := range ids {
		for _, s := range r.Results[id] {
			preds = append(preds, platform.Prediction{
				StudentID:      s.StudentID,
				TopicID:        s.TopicID,
				PredictedLevel: float64(s.Score),
			})
		}
	}
	return preds
}

// Sessions counts successful predictions.
func (r *Results) Sessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, scores := range r.Results {
		n += len(scores)
	}
	return n
}

// Distribution counts predictions per level.
func (r *Results) Distribution() map[int]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	dist := make(map[int]int)
	for _, scores := range r.Results {
		for _, s := range scores {
			dist[s.Score]++
		}
	}
	return dist
}

// ResultsFileName is the default output name for a dataset run.
func ResultsFileName(dataset string, now time.Time) string {
	return fmt.Sprintf("results_%s_%s.json", dataset, now.Format("20060102_150405"))
}

// WriteResults saves the set as indented JSON, creating parent directories.
func WriteResults(path string, r *Results) error {
	r.mu.Lock()
	data, err := json.MarshalIndent(r, "", "  ")
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// ReadResults loads a results file. Unknown fields and a missing results
// object are rejected.
func ReadResults(path string) (*Results, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	r := &Results{}
	if err := dec.Decode(r); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if r.Results == nil {
		return nil, fmt.Errorf("decode %s: %w", path, errors.New(`missing "results" object`))
	}
	if r.Errors == nil {
		r.Errors = make(map[string]string)
	}
	for id, scores := range r.Results {
		for _, s := range scores {
			if strings.TrimSpace(s.TopicID) == "" {
				return nil, fmt.Errorf("decode %s: student %s has an entry without topic_id", path, id)
			}
			if s.StudentID == "" {
				return nil, fmt.Errorf("decode %s: student %s has an entry without student_id", path, id)
			}
		}
	}
	return r, nil
}
