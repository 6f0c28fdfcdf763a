package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/teslashibe/go-parley/pkg/inference"
)

// ErrEmptyReply is returned when the cleaned model output is empty.
// The turn should be abandoned without sending audio.
var ErrEmptyReply = errors.New("conversation: empty reply")

// ErrEmptyInput is returned for a blank utterance.
var ErrEmptyInput = errors.New("conversation: empty input")

// Responder generates replies through an inference provider.
type Responder struct {
	llm    inference.Provider
	config *Config
	logger *slog.Logger
}

// NewResponder creates a responder on top of llm.
func NewResponder(llm inference.Provider, opts ...Option) (*Responder, error) {
	if llm == nil {
		return nil, inference.ErrProviderUnavailable
	}

	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Responder{
		llm:    llm,
		config: cfg,
		logger: cfg.Logger.With("component", "conversation.responder"),
	}, nil
}

// Reply generates a reply to userText.
func (r *Responder) Reply(ctx context.Context, userText string) (*Reply, error) {
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return nil, ErrEmptyInput
	}

	start := time.Now()
	sampling := inference.Sampling{
		Model:       r.config.Model,
		MaxTokens:   r.config.MaxTokens,
		Temperature: inference.Float(r.config.Temperature),
		TopP:        inference.Float(r.config.TopP),
		Stop:        r.config.Stop,
	}

	var (
		prompt string
		reply  = &Reply{}
	)

	switch r.config.Mode {
	case ModeChat:
		// The system message carries the instruction, so only the turn
		// itself is echo-stripped.
		prompt = "Me: " + userText + "\nYou:"
		resp, err := r.llm.Chat(ctx, &inference.ChatRequest{
			Sampling: sampling,
			Messages: []inference.Message{
				inference.NewSystemMessage(r.config.Instruction),
				inference.NewUserMessage(prompt),
			},
		})
		if err != nil {
			return nil, fmt.Errorf("chat: %w", err)
		}
		reply.Raw = resp.Message.Content
		reply.FinishReason = resp.FinishReason
		reply.Usage = resp.Usage

	default:
		prompt = BuildPrompt(r.config.Instruction, userText)
		resp, err := r.llm.Complete(ctx, &inference.CompletionRequest{
			Sampling: sampling,
			Prompt:   prompt,
		})
		if err != nil {
			return nil, fmt.Errorf("complete: %w", err)
		}
		reply.Raw = resp.Text
		reply.FinishReason = resp.FinishReason
		reply.Usage = resp.Usage
	}

	reply.Prompt = prompt
	reply.Latency = time.Since(start)
	reply.Text = CleanReply(prompt, reply.Raw)

	r.logger.Debug("reply generated",
		"mode", r.config.Mode,
		"raw_chars", len(reply.Raw),
		"chars", len(reply.Text),
		"finish_reason", reply.FinishReason,
		"latency_ms", reply.Latency.Milliseconds(),
	)

	if reply.Text == "" {
		return nil, ErrEmptyReply
	}
	return reply, nil
}

// Health checks the underlying provider.
func (r *Responder) Health(ctx context.Context) error {
	return r.llm.Health(ctx)
}

// Verify Responder implements Generator at compile time.
var _ Generator = (*Responder)(nil)
