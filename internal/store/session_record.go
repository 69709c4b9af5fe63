package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// sessionRepo implements SessionRepo. Writes are serialized in-process so
// concurrent runner workers do not fight over the SQLite write lock.
type sessionRepo struct {
	db  *sql.DB
	seq *sequenceCounter
	mu  sync.Mutex
}

const sessionColumns = `id, sequence, timestamp, run_id, student_id, topic_id, conversation_id,
	status, final_level, mean_estimate, scoring_level, turns, stop_reason, error_message, duration_ms`

func (r *sessionRepo) SaveSession(ctx context.Context, rec SessionRecord, turns []TurnRecordData) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin session tx: %w", err)
	}
	defer tx.Rollback()

	seqNum, err := r.seq.nextOn(ctx, tx)
	if err != nil {
		return "", err
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO session_records (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, seqNum, rec.Timestamp.UTC().UnixMilli(), rec.RunID, rec.StudentID, rec.TopicID,
		rec.ConversationID, rec.Status, rec.FinalLevel, rec.MeanEstimate, rec.ScoringLevel,
		rec.Turns, rec.StopReason, rec.ErrorMessage, rec.DurationMs,
	)
	if err != nil {
		return "", fmt.Errorf("save session record: %w", err)
	}

	for _, t := range turns {
		gaps, err := json.Marshal(nonNil(t.KnowledgeGaps))
		if err != nil {
			return "", fmt.Errorf("marshal knowledge gaps: %w", err)
		}
		strengths, err := json.Marshal(nonNil(t.Strengths))
		if err != nil {
			return "", fmt.Errorf("marshal strengths: %w", err)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO turn_records
			(session_id, turn, question, difficulty, student_response, correctness, confidence_level,
			 knowledge_gaps, strengths, reasoning, estimated_level, level_confidence, stability_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, t.Turn, t.Question, t.Difficulty, t.StudentResponse, t.Correctness,
			t.ConfidenceLevel, string(gaps), string(strengths), t.Reasoning,
			t.EstimatedLevel, t.LevelConfidence, t.StabilityCount,
		)
		if err != nil {
			return "", fmt.Errorf("save turn %d: %w", t.Turn, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit session: %w", err)
	}
	return rec.ID, nil
}

func (r *sessionRepo) QuerySessions(ctx context.Context, q SessionQuery) ([]SessionRecord, error) {
	var where []string
	var args []any
	if q.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, q.RunID)
	}
	if q.StudentID != "" {
		where = append(where, "student_id = ?")
		args = append(args, q.StudentID)
	}
	if q.Status != "" {
		where = append(where, "status = ?")
		args = append(args, q.Status)
	}

	query := "SELECT " + sessionColumns + " FROM session_records"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY sequence DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (r *sessionRepo) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM session_records WHERE id = ?", id)
	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func scanSession(s rowScanner) (*SessionRecord, error) {
	var (
		rec SessionRecord
		ts  int64
	)
	err := s.Scan(&rec.ID, &rec.Sequence, &ts, &rec.RunID, &rec.StudentID, &rec.TopicID,
		&rec.ConversationID, &rec.Status, &rec.FinalLevel, &rec.MeanEstimate, &rec.ScoringLevel,
		&rec.Turns, &rec.StopReason, &rec.ErrorMessage, &rec.DurationMs)
	if err != nil {
		return nil, err
	}
	rec.Timestamp = time.UnixMilli(ts).UTC()
	return &rec, nil
}

func (r *sessionRepo) SessionTurns(ctx context.Context, sessionID string) ([]TurnRecordData, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT turn, question, difficulty, student_response,
		correctness, confidence_level, knowledge_gaps, strengths, reasoning,
		estimated_level, level_confidence, stability_count
		FROM turn_records WHERE session_id = ? ORDER BY turn`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var out []TurnRecordData
	for rows.Next() {
		var (
			t               TurnRecordData
			gaps, strengths string
		)
		err := rows.Scan(&t.Turn, &t.Question, &t.Difficulty, &t.StudentResponse,
			&t.Correctness, &t.ConfidenceLevel, &gaps, &strengths, &t.Reasoning,
			&t.EstimatedLevel, &t.LevelConfidence, &t.StabilityCount)
		if err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if err := json.Unmarshal([]byte(gaps), &t.KnowledgeGaps); err != nil {
			return nil, fmt.Errorf("decode knowledge gaps: %w", err)
		}
		if err := json.Unmarshal([]byte(strengths), &t.Strengths); err != nil {
			return nil, fmt.Errorf("decode strengths: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *sessionRepo) OutcomeCounts(ctx context.Context, runID string) (int, int, error) {
	var completed, failed int
	err := r.db.QueryRowContext(ctx, `SELECT
		COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM session_records WHERE run_id = ?`,
		SessionCompleted, SessionFailed, runID,
	).Scan(&completed, &failed)
	if err != nil {
		return 0, 0, fmt.Errorf("count outcomes: %w", err)
	}
	return completed, failed, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
