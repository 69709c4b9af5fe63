package store

import (
	"context"
	"time"
)

// QueryOpts configures event queries with filtering and pagination.
type QueryOpts struct {
	Limit  int       // max results (0 = unlimited)
	After  int64     // sequence > After
	Before int64     // sequence < Before
	From   time.Time // timestamp >= From
	To     time.Time // timestamp <= To
}

// LLMRequestEventData captures the data for a single LLM request event.
type LLMRequestEventData struct {
	Provider     string
	Model        string
	Purpose      string
	StudentID    string
	TopicID      string
	Turn         int
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	Success      bool
	ErrorMessage string
	RequestBody  string
	ResponseBody string
}

// LLMEventRecord is a persisted LLM request event.
type LLMEventRecord struct {
	ID        int
	Sequence  int64
	Timestamp time.Time
	LLMRequestEventData
}

// LLMUsageStat aggregates LLM calls for one purpose.
type LLMUsageStat struct {
	Purpose      string
	Calls        int
	InputTokens  int
	OutputTokens int
	AvgLatencyMs int64
}

// LLMModelUsage aggregates token counts per model for cost estimation.
type LLMModelUsage struct {
	Model        string
	Calls        int
	InputTokens  int
	OutputTokens int
}

// EventRepo provides append and query access to LLM request events.
type EventRepo interface {
	// AppendLLMRequest records an LLM API call event.
	AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error

	// QueryLLMEvents returns events newest first.
	QueryLLMEvents(ctx context.Context, opts QueryOpts) ([]LLMEventRecord, error)

	// GetLLMEvent returns a single event, or nil if it does not exist.
	GetLLMEvent(ctx context.Context, id int) (*LLMEventRecord, error)

	LLMUsageByPurpose(ctx context.Context) ([]LLMUsageStat, error)
	LLMUsageByModel(ctx context.Context) ([]LLMModelUsage, error)

	// LLMUsageForSession aggregates successful calls made for one
	// (student, topic) pair within [from, to].
	LLMUsageForSession(ctx context.Context, studentID, topicID string, from, to time.Time) ([]LLMModelUsage, error)
}

// Session outcome statuses.
const (
	SessionCompleted = "completed"
	SessionFailed    = "failed"
)

// SessionRecord summarizes one assessment session. Failed sessions carry an
// error message and no turns.
type SessionRecord struct {
	ID             string
	Sequence       int64
	Timestamp      time.Time
	RunID          string
	StudentID      string
	TopicID        string
	ConversationID string
	Status         string
	FinalLevel     int
	MeanEstimate   float64
	ScoringLevel   int
	Turns          int
	StopReason     string
	ErrorMessage   string
	DurationMs     int64
}

// TurnRecordData is one question/answer cycle of a completed session.
type TurnRecordData struct {
	Turn            int
	Question        string
	Difficulty      string
	StudentResponse string
	Correctness     string
	ConfidenceLevel int
	KnowledgeGaps   []string
	Strengths       []string
	Reasoning       string
	EstimatedLevel  int
	LevelConfidence float64
	StabilityCount  int
}

// SessionQuery filters session record queries.
type SessionQuery struct {
	Limit     int
	RunID     string
	StudentID string
	Status    string
}

// SessionRepo persists session outcomes and transcripts.
type SessionRepo interface {
	// SaveSession writes the record and its turns in one transaction. An
	// empty rec.ID is replaced with a generated one, which is returned.
	SaveSession(ctx context.Context, rec SessionRecord, turns []TurnRecordData) (string, error)

	// QuerySessions returns records newest first.
	QuerySessions(ctx context.Context, q SessionQuery) ([]SessionRecord, error)

	// GetSession returns one record, or nil if the ID is unknown.
	GetSession(ctx context.Context, id string) (*SessionRecord, error)

	// SessionTurns returns the transcript of a session ordered by turn.
	SessionTurns(ctx context.Context, sessionID string) ([]TurnRecordData, error)

	// OutcomeCounts counts completed and failed sessions of a run.
	OutcomeCounts(ctx context.Context, runID string) (completed, failed int, err error)
}
