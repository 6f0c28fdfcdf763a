package disfluency

import (
	"log/slog"
	"net/http"
	"time"
)

// Config holds rewriter configuration.
// Use functional options (WithXxx) to set these values.
type Config struct {
	// BaseURL is the inference endpoint, e.g. a text-generation-inference
	// server or https://api-inference.huggingface.co/models/<model>.
	BaseURL string

	// APIToken is sent as a bearer token when set.
	APIToken string

	// Params are the generation parameters.
	Params Params

	// Model is used by the llm rewriter.
	Model string

	// Timeouts
	Timeout time.Duration

	// Retry configuration
	MaxRetries int
	RetryDelay time.Duration

	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring rewriters.
type Option func(*Config)

// WithBaseURL sets the inference endpoint.
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithAPIToken sets the Hugging Face token.
func WithAPIToken(token string) Option {
	return func(c *Config) {
		c.APIToken = token
	}
}

// WithParams sets the generation parameters.
func WithParams(p Params) Option {
	return func(c *Config) {
		c.Params = p
	}
}

// WithModel sets the model for the llm rewriter.
func WithModel(model string) Option {
	return func(c *Config) {
		c.Model = model
	}
}

// WithTimeout sets the request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithRetry configures retry behavior for failed requests.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) {
		c.HTTPClient = client
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		Params:     DefaultParams(),
		Timeout:    30 * time.Second,
		MaxRetries: 2,
		RetryDelay: 500 * time.Millisecond,
		Logger:     slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
