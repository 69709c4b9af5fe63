package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := New(Options{BaseURL: srv.URL + "/", APIKey: "test-key", TopicCacheSize: 8})
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestNew_RejectsBadURL(t *testing.T) {
	_, err := New(Options{BaseURL: "not a url"})
	assert.Error(t, err)
}

func TestListStudents(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /students", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "dev", r.URL.Query().Get("set_type"))
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		writeJSON(w, http.StatusOK, map[string]any{
			"students": []map[string]any{
				{"id": "s1", "name": "Ada", "grade_level": 8},
				{"id": "s2", "name": "Ben", "grade_level": 9},
			},
		})
	})
	c := newTestClient(t, mux)

	students, err := c.ListStudents(context.Background(), SetDev)
	require.NoError(t, err)
	require.Len(t, students, 2)
	assert.Equal(t, Student{ID: "s1", Name: "Ada", GradeLevel: 8}, students[0])
}

func TestListStudents_MissingWrapper(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /students", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{{"id": "s1"}})
	})
	c := newTestClient(t, mux)

	_, err := c.ListStudents(context.Background(), SetMiniDev)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestListTopics_CachedPerStudent(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /students/{id}/topics", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{
			"topics": []map[string]any{{
				"id": "t1", "subject_id": "math", "subject_name": "Mathematics",
				"name": "Linear equations", "grade_level": 8,
			}},
		})
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	topics, err := c.ListTopics(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, topics, 1)
	assert.Equal(t, "Linear equations", topics[0].Name)

	_, err = c.ListTopics(ctx, "s1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load())

	topic, err := c.Topic(ctx, "s1", "t1")
	require.NoError(t, err)
	assert.Equal(t, "Mathematics", topic.SubjectName)
	assert.EqualValues(t, 1, calls.Load())
}

func TestTopic_NotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /students/s1/topics", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"topics": []any{}})
	})
	mux.HandleFunc("GET /students/ghost/topics", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Student not found"})
	})
	c := newTestClient(t, mux)

	_, err := c.Topic(context.Background(), "s1", "t9")
	assert.ErrorIs(t, err, ErrTopicNotFound)

	_, err = c.Topic(context.Background(), "ghost", "t1")
	assert.ErrorIs(t, err, ErrStudentNotFound)
}

func TestStartConversationAndSendMessage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /interact/start", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "s1", req["student_id"])
		assert.Equal(t, "t1", req["topic_id"])
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		writeJSON(w, http.StatusOK, map[string]any{
			"conversation_id": "c1", "student_id": "s1", "topic_id": "t1",
			"max_turns": 10, "conversations_remaining": 99,
		})
	})
	mux.HandleFunc("POST /interact", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "c1", req["conversation_id"])
		assert.Equal(t, "What is 3x = 9?", req["tutor_message"])
		writeJSON(w, http.StatusOK, map[string]any{
			"conversation_id": "c1", "interaction_id": "i1",
			"student_response": "x = 3", "turn_number": 1, "is_complete": false,
		})
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	conv, err := c.StartConversation(ctx, "s1", "t1")
	require.NoError(t, err)
	assert.Equal(t, "c1", conv.ConversationID)
	assert.Equal(t, 10, conv.MaxTurns)
	require.NotNil(t, conv.ConversationsRemaining)
	assert.Equal(t, 99, *conv.ConversationsRemaining)

	reply, err := c.SendMessage(ctx, "c1", "What is 3x = 9?")
	require.NoError(t, err)
	assert.Equal(t, "x = 3", reply.StudentResponse)
	assert.Equal(t, 1, reply.TurnNumber)
	assert.False(t, reply.IsComplete)
}

func TestStartConversation_MissingID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /interact/start", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"max_turns": 10})
	})
	c := newTestClient(t, mux)

	_, err := c.StartConversation(context.Background(), "s1", "t1")
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestSendMessage_StatusError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /interact", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"detail": "simulator overloaded"})
	})
	c := newTestClient(t, mux)

	_, err := c.SendMessage(context.Background(), "c1", "hi")
	var se *StatusError
	require.True(t, errors.As(err, &se), "got %T", err)
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.Equal(t, "/interact", se.Path)
	assert.Contains(t, se.Body, "simulator overloaded")
}

func TestSubmitPredictionsAndSubmitTutoringQuality(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /evaluate/mse", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Predictions []Prediction `json:"predictions"`
			SetType     string       `json:"set_type"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "mini_dev", req.SetType)
		require.Len(t, req.Predictions, 2)
		assert.Equal(t, 4.0, req.Predictions[1].PredictedLevel)
		writeJSON(w, http.StatusOK, map[string]any{"mse_score": 0.5, "num_predictions": 2})
	})
	mux.HandleFunc("POST /evaluate/tutoring", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"score": 7.5})
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	res, err := c.SubmitPredictions(ctx, []Prediction{
		{StudentID: "s1", TopicID: "t1", PredictedLevel: 3},
		{StudentID: "s1", TopicID: "t2", PredictedLevel: 4},
	}, SetMiniDev)
	require.NoError(t, err)
	assert.Equal(t, 0.5, res.MSEScore)
	assert.Equal(t, float64(2), res.Raw["num_predictions"])

	tq, err := c.SubmitTutoringQuality(ctx, SetMiniDev)
	require.NoError(t, err)
	assert.Equal(t, 7.5, tq["score"])
}
