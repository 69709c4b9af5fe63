package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/abhisek/tutorbench/internal/llm"
)

// Purpose labels attached to every LLM call made by this package.
const (
	PurposeStrategy   = "tutor-strategy"
	PurposeDifficulty = "tutor-difficulty"
	PurposeCompose    = "tutor-compose"
	PurposeAnalysis   = "response-analysis"
	PurposeInference  = "level-inference"
	PurposeScoring    = "final-score"
)

// ask runs one structured LLM call and decodes the validated content into out.
func ask(ctx context.Context, p llm.Provider, purpose string, req llm.Request, out any) error {
	ctx = llm.WithPurpose(ctx, purpose)

	resp, err := p.Generate(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Content, out); err != nil {
		return &llm.ErrInvalidResponse{Schema: req.Schema.Name, Content: resp.Content, Err: err}
	}
	return nil
}

// LLMTutor plans, calibrates and writes each tutor message with three
// chained LLM calls.
type LLMTutor struct {
	provider llm.Provider
	cfg      Config
}

var _ Tutor = (*LLMTutor)(nil)

// NewTutor creates an LLM-backed tutor.
func NewTutor(provider llm.Provider, cfg Config) *LLMTutor {
	return &LLMTutor{provider: provider, cfg: cfg}
}

type difficultyOutput struct {
	Difficulty          Difficulty `json:"difficulty"`
	Reasoning           string     `json:"reasoning"`
	AdjustmentDirection string     `json:"adjustment_direction"`
}

type composeOutput struct {
	Message     string `json:"message"`
	Question    string `json:"question"`
	MessageType string `json:"message_type"`
}

// Compose produces the next tutor message.
func (t *LLMTutor) Compose(ctx context.Context, in TutorInput) (*TutorOutput, error) {
	strategy, err := t.plan(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("question strategy: %w", err)
	}

	difficulty, err := t.difficulty(ctx, in, strategy)
	if err != nil {
		return nil, fmt.Errorf("difficulty recommendation: %w", err)
	}

	userMsg := buildComposeMessage(in, strategy, difficulty)
	req := llm.SingleTurn(composeSystemPrompt, userMsg, ComposeSchema, t.cfg.MaxTokens, t.cfg.ComposeTemperature)

	var raw composeOutput
	if err := ask(ctx, t.provider, PurposeCompose, req, &raw); err != nil {
		return nil, fmt.Errorf("compose message: %w", err)
	}
	if strings.TrimSpace(raw.Message) == "" {
		return nil, &llm.ErrInvalidResponse{
			Schema: ComposeSchema.Name,
			Err:    fmt.Errorf("empty tutor message"),
		}
	}

	question := strings.TrimSpace(raw.Question)
	if question == "" {
		question = raw.Message
	}

	return &TutorOutput{
		Message:        raw.Message,
		Question:       question,
		MessageType:    raw.MessageType,
		Difficulty:     difficulty,
		ShouldConclude: ShouldConclude(in.LevelConfidence, in.Stats.StabilityCount),
		Strategy:       strategy,
	}, nil
}

func (t *LLMTutor) plan(ctx context.Context, in TutorInput) (Strategy, error) {
	userMsg, err := render(strategyUserTemplate, in)
	if err != nil {
		return Strategy{}, fmt.Errorf("build prompt: %w", err)
	}
	req := llm.SingleTurn(strategySystemPrompt, userMsg, StrategySchema, t.cfg.MaxTokens, t.cfg.StrategyTemperature)

	var s Strategy
	if err := ask(ctx, t.provider, PurposeStrategy, req, &s); err != nil {
		return Strategy{}, err
	}
	if err := checkLevel("level_range_low", s.LevelRangeLow); err != nil {
		return Strategy{}, err
	}
	if err := checkLevel("level_range_high", s.LevelRangeHigh); err != nil {
		return Strategy{}, err
	}
	if s.LevelRangeLow > s.LevelRangeHigh {
		s.LevelRangeLow, s.LevelRangeHigh = s.LevelRangeHigh, s.LevelRangeLow
	}
	return s, nil
}

func (t *LLMTutor) difficulty(ctx context.Context, in TutorInput, s Strategy) (Difficulty, error) {
	var outcome Correctness
	if in.PreviousAnalysis != nil {
		outcome = in.PreviousAnalysis.Correctness
	}
	suggested := AdjustDifficulty(in.PreviousDifficulty, outcome)

	userMsg := buildDifficultyMessage(in, s, suggested)
	req := llm.SingleTurn(difficultySystemPrompt, userMsg, DifficultySchema, t.cfg.MaxTokens, t.cfg.DifficultyTemperature)

	var raw difficultyOutput
	if err := ask(ctx, t.provider, PurposeDifficulty, req, &raw); err != nil {
		return "", err
	}
	if !raw.Difficulty.Valid() {
		return "", fmt.Errorf("%w: difficulty %q", ErrOutOfRange, raw.Difficulty)
	}
	return raw.Difficulty, nil
}
