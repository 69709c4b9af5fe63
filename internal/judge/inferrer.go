package judge

import (
	"context"
	"fmt"

	"github.com/abhisek/tutorbench/internal/llm"
)

// LLMInferrer estimates the student's level with an LLM.
type LLMInferrer struct {
	provider llm.Provider
	cfg      Config
}

var _ LevelInferrer = (*LLMInferrer)(nil)

// NewInferrer creates an LLM-backed level inferrer.
func NewInferrer(provider llm.Provider, cfg Config) *LLMInferrer {
	return &LLMInferrer{provider: provider, cfg: cfg}
}

// Infer estimates the level from the full history so far.
func (i *LLMInferrer) Infer(ctx context.Context, in InferenceInput) (*LevelEstimate, error) {
	if len(in.History) == 0 {
		return nil, fmt.Errorf("level inference: empty history")
	}
	req := llm.SingleTurn(inferenceSystemPrompt, buildInferenceMessage(in), LevelSchema, i.cfg.MaxTokens, i.cfg.InferenceTemperature)

	var out LevelEstimate
	if err := ask(ctx, i.provider, PurposeInference, req, &out); err != nil {
		return nil, fmt.Errorf("level inference: %w", err)
	}
	if err := checkLevel("estimated_level", out.Level); err != nil {
		return nil, err
	}
	if out.Confidence < 0 || out.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %.3f not in [0,1]", ErrOutOfRange, out.Confidence)
	}
	return &out, nil
}
