package conversation

import (
	"fmt"
	"log/slog"
)

// Mode selects which inference endpoint generates replies.
type Mode string

const (
	// ModeCompletion sends the whole prompt to a raw completion endpoint.
	// This suits plain causal models such as phi-2.
	ModeCompletion Mode = "completion"

	// ModeChat sends the instruction as a system message and the turn as a
	// user message.
	ModeChat Mode = "chat"
)

// DefaultInstruction is the persona prompt used when none is configured.
const DefaultInstruction = `You are my closest friend talking with me on a casual phone call.
Rules:
1) Only write your spoken response after 'You:'.
2) Never write lines for 'Me:'.
3) Never repeat my words.
4) Reply naturally, like a supportive and caring friend.
5) Keep it short and conversational.`

// Config holds responder configuration.
type Config struct {
	Instruction string
	Mode        Mode

	// Sampling
	Model       string
	MaxTokens   int
	Temperature float64
	TopP        float64
	Stop        []string

	Logger *slog.Logger
}

// Option is a functional option for configuring the responder.
type Option func(*Config)

// WithInstruction sets the persona instruction.
func WithInstruction(s string) Option {
	return func(c *Config) { c.Instruction = s }
}

// WithMode selects completion or chat generation.
func WithMode(m Mode) Option {
	return func(c *Config) { c.Mode = m }
}

// WithModel overrides the provider's default model.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithMaxTokens sets the generation limit.
func WithMaxTokens(n int) Option {
	return func(c *Config) { c.MaxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *Config) { c.Temperature = t }
}

// WithTopP sets nucleus sampling.
func WithTopP(p float64) Option {
	return func(c *Config) { c.TopP = p }
}

// WithStop sets stop sequences.
func WithStop(stop ...string) Option {
	return func(c *Config) { c.Stop = stop }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns the generation settings of the original phone-call
// persona: 30 new tokens, temperature 0.7, top_p 0.9.
func DefaultConfig() *Config {
	return &Config{
		Instruction: DefaultInstruction,
		Mode:        ModeCompletion,
		MaxTokens:   30,
		Temperature: 0.7,
		TopP:        0.9,
		Stop:        []string{"\nMe:"},
		Logger:      slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeCompletion, ModeChat:
	default:
		return fmt.Errorf("conversation: unknown mode %q", c.Mode)
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("conversation: max tokens must be at least 1")
	}
	return nil
}
