package voice

import (
	"fmt"
	"log/slog"
	"time"
)

// Config holds pipeline tuning.
type Config struct {
	// Per-stage timeouts. Each stage also ends when the caller's context does.
	LLMTimeout        time.Duration
	DisfluencyTimeout time.Duration
	TTSTimeout        time.Duration

	// Observer receives stage and turn notifications. May be nil.
	Observer Observer

	Logger *slog.Logger
}

// Option is a functional option for configuring the pipeline.
type Option func(*Config)

// WithStageTimeouts sets the generate, rewrite and synthesize timeouts.
func WithStageTimeouts(llm, disfluency, tts time.Duration) Option {
	return func(c *Config) {
		c.LLMTimeout = llm
		c.DisfluencyTimeout = disfluency
		c.TTSTimeout = tts
	}
}

// WithObserver sets the stage observer.
func WithObserver(o Observer) Option {
	return func(c *Config) {
		c.Observer = o
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// DefaultConfig returns default stage timeouts.
func DefaultConfig() *Config {
	return &Config{
		LLMTimeout:        30 * time.Second,
		DisfluencyTimeout: 30 * time.Second,
		TTSTimeout:        60 * time.Second,
		Logger:            slog.Default(),
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
	if c.LLMTimeout <= 0 || c.DisfluencyTimeout <= 0 || c.TTSTimeout <= 0 {
		return fmt.Errorf("voice: stage timeouts must be positive")
	}
	return nil
}
