// Package platform is the HTTP client for the student-simulation platform:
// students, their topics, tutoring conversations and evaluation endpoints.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const maxErrorBody = 512

// Options configures a Client.
type Options struct {
	BaseURL string
	APIKey  string

	// HTTPClient defaults to a client with Timeout.
	HTTPClient *http.Client
	Timeout    time.Duration

	// TopicCacheSize bounds the per-student topic cache; zero disables it.
	TopicCacheSize int

	Logger *slog.Logger
}

// Client talks to the platform. It is safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	topics  *lru.Cache[string, []Topic]
	logger  *slog.Logger
}

// New creates a Client.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid platform base URL %q", opts.BaseURL)
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	c := &Client{
		baseURL: base.String(),
		apiKey:  opts.APIKey,
		http:    hc,
		logger:  logger,
	}
	if opts.TopicCacheSize > 0 {
		c.topics, err = lru.New[string, []Topic](opts.TopicCacheSize)
		if err != nil {
			return nil, fmt.Errorf("create topic cache: %w", err)
		}
	}
	return c, nil
}

// ListStudents returns the students of a dataset.
func (c *Client) ListStudents(ctx context.Context, setType string) ([]Student, error) {
	var body struct {
		Students *[]Student `json:"students"`
	}
	q := url.Values{"set_type": {setType}}
	if err := c.do(ctx, http.MethodGet, "/students", q, nil, &body); err != nil {
		return nil, err
	}
	if body.Students == nil {
		return nil, malformed("students response has no %q field", "students")
	}
	for i, s := range *body.Students {
		if s.ID == "" {
			return nil, malformed("student %d has no id", i)
		}
	}
	return *body.Students, nil
}

// ListTopics returns the topics assigned to a student. Results are cached
// per student for the life of the client.
func (c *Client) ListTopics(ctx context.Context, studentID string) ([]Topic, error) {
	if c.topics != nil {
		if topics, ok := c.topics.Get(studentID); ok {
			return topics, nil
		}
	}

	var body struct {
		Topics *[]Topic `json:"topics"`
	}
	err := c.do(ctx, http.MethodGet, "/students/"+url.PathEscape(studentID)+"/topics", nil, nil, &body)
	if err != nil {
		if IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrStudentNotFound, studentID)
		}
		return nil, err
	}
	if body.Topics == nil {
		return nil, malformed("topics response has no %q field", "topics")
	}
	for i, t := range *body.Topics {
		if t.ID == "" {
			return nil, malformed("topic %d has no id", i)
		}
	}

	if c.topics != nil {
		c.topics.Add(studentID, *body.Topics)
	}
	return *body.Topics, nil
}

// Topic looks up one of a student's topics.
func (c *Client) Topic(ctx context.Context, studentID, topicID string) (Topic, error) {
	topics, err := c.ListTopics(ctx, studentID)
	if err != nil {
		return Topic{}, err
	}
	for _, t := range topics {
		if t.ID == topicID {
			return t, nil
		}
	}
	return Topic{}, fmt.Errorf("%w: %s for student %s", ErrTopicNotFound, topicID, studentID)
}

// StartConversation opens a tutoring conversation for (student, topic).
func (c *Client) StartConversation(ctx context.Context, studentID, topicID string) (*Conversation, error) {
	req := map[string]string{"student_id": studentID, "topic_id": topicID}
	var conv Conversation
	if err := c.do(ctx, http.MethodPost, "/interact/start", nil, req, &conv); err != nil {
		return nil, err
	}
	if conv.ConversationID == "" {
		return nil, malformed("start response has no conversation_id")
	}
	if conv.MaxTurns < 0 {
		return nil, malformed("start response has negative max_turns %d", conv.MaxTurns)
	}
	return &conv, nil
}

// SendMessage sends one tutor message and returns the student's reply.
func (c *Client) SendMessage(ctx context.Context, conversationID, message string) (*Reply, error) {
	req := map[string]string{"conversation_id": conversationID, "tutor_message": message}
	var reply Reply
	if err := c.do(ctx, http.MethodPost, "/interact", nil, req, &reply); err != nil {
		return nil, err
	}
	if reply.ConversationID != "" && reply.ConversationID != conversationID {
		return nil, malformed("reply for conversation %q, expected %q", reply.ConversationID, conversationID)
	}
	if reply.TurnNumber < 1 {
		return nil, malformed("reply has turn_number %d", reply.TurnNumber)
	}
	return &reply, nil
}

// SubmitPredictions submits a batch of predicted levels for MSE scoring.
func (c *Client) SubmitPredictions(ctx context.Context, predictions []Prediction, setType string) (*MSEResult, error) {
	req := struct {
		Predictions []Prediction `json:"predictions"`
		SetType     string       `json:"set_type"`
	}{predictions, setType}

	var raw map[string]any
	if err := c.do(ctx, http.MethodPost, "/evaluate/mse", nil, req, &raw); err != nil {
		return nil, err
	}
	score, ok := raw["mse_score"].(float64)
	if !ok {
		return nil, malformed("mse response has no numeric mse_score")
	}
	return &MSEResult{MSEScore: score, Raw: raw}, nil
}

// SubmitTutoringQuality asks the platform to score the tutoring quality of every
// conversation held on a dataset. The response shape is not fixed.
func (c *Client) SubmitTutoringQuality(ctx context.Context, setType string) (map[string]any, error) {
	var raw map[string]any
	req := map[string]string{"set_type": setType}
	if err := c.do(ctx, http.MethodPost, "/evaluate/tutoring", nil, req, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.logger.DebugContext(ctx, "platform request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"latency_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrMalformedResponse, path, err)
	}
	return nil
}
