package runner

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/abhisek/tutorbench/internal/platform"
)

// Key identifies one (student, topic) pair.
type Key struct {
	StudentID string
	TopicID   string
}

// TruthEntry is one known level in a ground-truth file.
type TruthEntry struct {
	StudentID string  `json:"student_id"`
	TopicID   string  `json:"topic_id"`
	Level     float64 `json:"level"`
}

// ReadTruth loads a JSON array of known levels.
func ReadTruth(path string) (map[Key]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []TruthEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	truth := make(map[Key]float64, len(entries))
	for _, e := range entries {
		if e.StudentID == "" || e.TopicID == "" {
			return nil, fmt.Errorf("decode %s: entry missing student_id or topic_id", path)
		}
		truth[Key{e.StudentID, e.TopicID}] = e.Level
	}
	return truth, nil
}

// MSE computes the mean squared error of predictions that have a known
// level. It returns how many predictions were scored.
func MSE(preds []platform.Prediction, truth map[Key]float64) (float64, int, error) {
	var sum float64
	n := 0
	for _, p := range preds {
		want, ok := truth[Key{p.StudentID, p.TopicID}]
		if !ok {
			continue
		}
		d := p.PredictedLevel - want
		sum += d * d
		n++
	}
	if n == 0 {
		return 0, 0, errors.New("no predictions overlap the ground truth")
	}
	return sum / float64(n), n, nil
}
