package llm

import "context"

type contextKey string

const (
	purposeKey contextKey = "llm_purpose"
	sessionKey contextKey = "llm_session"
)

// SessionRef identifies the assessment session an LLM call belongs to.
type SessionRef struct {
	StudentID string
	TopicID   string
	Turn      int
}

// WithPurpose attaches a purpose label to the context for event logging.
func WithPurpose(ctx context.Context, purpose string) context.Context {
	return context.WithValue(ctx, purposeKey, purpose)
}

// PurposeFrom extracts the purpose label from the context.
func PurposeFrom(ctx context.Context) string {
	if v, ok := ctx.Value(purposeKey).(string); ok {
		return v
	}
	return "unknown"
}

// WithSession attaches the owning session so LLM events can be grouped per
// (student, topic) when computing cost.
func WithSession(ctx context.Context, ref SessionRef) context.Context {
	return context.WithValue(ctx, sessionKey, ref)
}

// SessionFrom extracts the session reference, if any.
func SessionFrom(ctx context.Context) (SessionRef, bool) {
	ref, ok := ctx.Value(sessionKey).(SessionRef)
	return ref, ok
}
