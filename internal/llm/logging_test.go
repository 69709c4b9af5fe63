package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/abhisek/tutorbench/internal/store"
)

type recordingEventRepo struct {
	store.EventRepo
	mu     sync.Mutex
	events []store.LLMRequestEventData
	err    error
}

func (r *recordingEventRepo) AppendLLMRequest(_ context.Context, data store.LLMRequestEventData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, data)
	return r.err
}

func TestLoggingProvider_RecordsSessionAndUsage(t *testing.T) {
	repo := &recordingEventRepo{}
	mock := NewMockProvider(MockResponse{
		Content: json.RawMessage(`{"ok":true}`),
		Usage:   Usage{InputTokens: 12, OutputTokens: 3},
	})
	p := WithLogging(mock, ProviderMock, repo, nil)

	ctx := WithPurpose(context.Background(), "final-score")
	ctx = WithSession(ctx, SessionRef{StudentID: "s1", TopicID: "t1", Turn: 4})
	if _, err := p.Generate(ctx, SingleTurn("sys", "user", nil, 64, 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(repo.events) != 1 {
		t.Fatalf("events = %d, want 1", len(repo.events))
	}
	e := repo.events[0]
	if e.Purpose != "final-score" || e.StudentID != "s1" || e.TopicID != "t1" || e.Turn != 4 {
		t.Errorf("event identity = %+v", e)
	}
	if e.Provider != ProviderMock || e.Model != "mock" || !e.Success {
		t.Errorf("event provider = %+v", e)
	}
	if e.InputTokens != 12 || e.OutputTokens != 3 || e.ResponseBody != `{"ok":true}` {
		t.Errorf("event usage = %+v", e)
	}
	if e.RequestBody == "" {
		t.Error("expected serialized request body")
	}
}

func TestLoggingProvider_RepoFailureDoesNotFailRequest(t *testing.T) {
	repo := &recordingEventRepo{err: errors.New("disk full")}
	mock := NewMockProvider(MockResponse{Content: json.RawMessage(`{}`)})
	p := WithLogging(mock, ProviderMock, repo, nil)

	if _, err := p.Generate(context.Background(), Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoggingProvider_RecordsFailure(t *testing.T) {
	repo := &recordingEventRepo{}
	p := WithLogging(NewMockProvider(), ProviderMock, repo, nil)

	if _, err := p.Generate(context.Background(), Request{}); err == nil {
		t.Fatal("expected error from empty mock")
	}
	if repo.events[0].Success || repo.events[0].ErrorMessage == "" {
		t.Errorf("failure not recorded: %+v", repo.events[0])
	}
}

func TestSerializeRequest(t *testing.T) {
	out := serializeRequest(SingleTurn("be brief", "hello", testSchema(), 10, 0))
	for _, want := range []string{"[system]\nbe brief", "[user]\nhello", "[schema: test-object]"} {
		if !strings.Contains(out, want) {
			t.Errorf("serialized request missing %q:\n%s", want, out)
		}
	}
}
