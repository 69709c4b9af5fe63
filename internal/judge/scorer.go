package judge

import (
	"context"
	"fmt"

	"github.com/abhisek/tutorbench/internal/llm"
)

// LLMScorer grades finished transcripts with an LLM.
type LLMScorer struct {
	provider llm.Provider
	cfg      Config
}

var _ FinalScorer = (*LLMScorer)(nil)

// NewScorer creates an LLM-backed final scorer.
func NewScorer(provider llm.Provider, cfg Config) *LLMScorer {
	return &LLMScorer{provider: provider, cfg: cfg}
}

type scoreOutput struct {
	Score     string `json:"score"`
	Rationale string `json:"rationale"`
}

// Score maps the transcript onto the five-label scale.
func (s *LLMScorer) Score(ctx context.Context, in ScoringInput) (*Score, error) {
	if len(in.History) == 0 {
		return nil, fmt.Errorf("final score: empty history")
	}
	req := llm.SingleTurn(scoringSystemPrompt, buildScoringMessage(in), ScoreSchema, s.cfg.MaxTokens, s.cfg.ScoringTemperature)

	var raw scoreOutput
	if err := ask(ctx, s.provider, PurposeScoring, req, &raw); err != nil {
		return nil, fmt.Errorf("final score: %w", err)
	}
	level, err := LevelForLabel(raw.Score)
	if err != nil {
		return nil, err
	}
	return &Score{Level: level, Label: raw.Score, Rationale: raw.Rationale}, nil
}
