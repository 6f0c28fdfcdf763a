package disfluency

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/teslashibe/go-parley/pkg/inference"
)

const providerLLM = "llm"

// llmInstruction asks a chat model to do what the T5 model was trained for.
const llmInstruction = "Rewrite the user's sentence the way a person would say it out loud, " +
	"adding natural disfluencies such as um, uh, like, I mean, or a false start. " +
	"Keep the meaning. Reply with the rewritten sentence only."

// LLM rewrites text with a chat model.
type LLM struct {
	llm    inference.Provider
	config *Config
	logger *slog.Logger
}

// NewLLM creates a rewriter backed by an inference provider.
func NewLLM(llm inference.Provider, opts ...Option) (*LLM, error) {
	if llm == nil {
		return nil, ErrNoProvider
	}
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	return &LLM{
		llm:    llm,
		config: cfg,
		logger: cfg.Logger.With("component", "disfluency.llm"),
	}, nil
}

// Rewrite asks the model for a disfluent version of text.
func (l *LLM) Rewrite(ctx context.Context, text string) (string, error) {
	resp, err := l.llm.Chat(ctx, &inference.ChatRequest{
		Sampling: inference.Sampling{
			Model:       l.config.Model,
			MaxTokens:   l.config.Params.MaxLength,
			Temperature: inference.Float(l.config.Params.Temperature),
		},
		Messages: []inference.Message{
			inference.NewSystemMessage(llmInstruction),
			inference.NewUserMessage(text),
		},
	})
	if err != nil {
		return "", WrapError(providerLLM, fmt.Errorf("chat: %w", err))
	}

	out := strings.Trim(strings.TrimSpace(resp.Message.Content), `"`)
	if out == "" {
		return "", ErrEmptyOutput
	}
	l.logger.Debug("rewrote reply", "in_chars", len(text), "out_chars", len(out), "latency_ms", resp.LatencyMs)
	return out, nil
}

// Health delegates to the inference provider.
func (l *LLM) Health(ctx context.Context) error {
	return l.llm.Health(ctx)
}

var (
	_ Rewriter      = (*LLM)(nil)
	_ HealthChecker = (*LLM)(nil)
)
