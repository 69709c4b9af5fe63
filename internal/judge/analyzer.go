package judge

import (
	"context"
	"fmt"

	"github.com/abhisek/tutorbench/internal/llm"
)

// LLMAnalyzer grades student responses with an LLM.
type LLMAnalyzer struct {
	provider llm.Provider
	cfg      Config
}

var _ ResponseAnalyzer = (*LLMAnalyzer)(nil)

// NewAnalyzer creates an LLM-backed response analyzer.
func NewAnalyzer(provider llm.Provider, cfg Config) *LLMAnalyzer {
	return &LLMAnalyzer{provider: provider, cfg: cfg}
}

// Analyze grades one response.
func (a *LLMAnalyzer) Analyze(ctx context.Context, in AnalysisInput) (*Analysis, error) {
	userMsg, err := render(analysisUserTemplate, in)
	if err != nil {
		return nil, fmt.Errorf("build analysis prompt: %w", err)
	}
	req := llm.SingleTurn(analysisSystemPrompt, userMsg, AnalysisSchema, a.cfg.MaxTokens, a.cfg.AnalysisTemperature)

	var out Analysis
	if err := ask(ctx, a.provider, PurposeAnalysis, req, &out); err != nil {
		return nil, fmt.Errorf("response analysis: %w", err)
	}
	if !out.Correctness.Valid() {
		return nil, fmt.Errorf("%w: correctness %q", ErrOutOfRange, out.Correctness)
	}
	if err := checkLevel("confidence_level", out.ConfidenceLevel); err != nil {
		return nil, err
	}
	if out.KnowledgeGaps == nil {
		out.KnowledgeGaps = []string{}
	}
	if out.Strengths == nil {
		out.Strengths = []string{}
	}
	return &out, nil
}
