package matching

import (
	"context"
	"fmt"
)

// Generator 是文本生成传输层，例如 ollama.Client。
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// LLMBackend 基于 Generator 实现 ScoringBackend，负责拼 prompt 与解析回复。
// 任何失败都包装为 ErrBackendUnavailable，由 Service 负责兜底。
type LLMBackend struct {
	gen Generator
}

// NewLLMBackend 返回 LLMBackend 实例。
func NewLLMBackend(gen Generator) *LLMBackend {
	return &LLMBackend{gen: gen}
}

func (b *LLMBackend) Score(ctx context.Context, cvText, offerText string) (float64, error) {
	out, err := b.gen.Generate(ctx, scorePrompt(cvText, offerText))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	score, err := parseScore(out)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	return score, nil
}

func (b *LLMBackend) Explain(ctx context.Context, cvText, offerText string) ([]string, error) {
	out, err := b.gen.Generate(ctx, explainPrompt(cvText, offerText))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	bullets := parseBullets(out)
	if len(bullets) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, errNoBullets)
	}
	return bullets, nil
}

func (b *LLMBackend) ExtractSkills(ctx context.Context, cvText string) (Skills, error) {
	out, err := b.gen.Generate(ctx, skillsPrompt(cvText))
	if err != nil {
		return Skills{}, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	skills, err := parseSkills(out)
	if err != nil {
		return Skills{}, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	return skills, nil
}
