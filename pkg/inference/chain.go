package inference

import (
	"context"
	"errors"
	"log/slog"
)

// Chain falls back through model endpoints in order. An endpoint that lacks
// the requested capability is skipped; a cancelled context stops the walk.
type Chain struct {
	providers []Provider
	names     []string
	logger    *slog.Logger
}

// NewChain creates a provider chain.
// At least one provider is required.
func NewChain(providers ...Provider) (*Chain, error) {
	return NewChainWithLogger(slog.Default(), providers...)
}

// NewChainWithLogger creates a provider chain with a custom logger.
func NewChainWithLogger(logger *slog.Logger, providers ...Provider) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrProviderUnavailable
	}
	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = providerName(p)
	}
	return &Chain{
		providers: providers,
		names:     names,
		logger:    logger.With("component", "inference.chain"),
	}, nil
}

// providerName labels p in logs: the client's model, or "mock".
func providerName(p Provider) string {
	switch v := p.(type) {
	case *Client:
		return v.config.Model
	case *Mock:
		return "mock"
	default:
		return "provider"
	}
}

// Chat tries each chat-capable provider until one succeeds.
func (c *Chain) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return fallback(ctx, c, "chat", ErrProviderUnavailable,
		func(caps Capabilities) bool { return caps.Chat },
		func(p Provider) (*ChatResponse, error) { return p.Chat(ctx, req) })
}

// Complete tries each provider that supports raw completions.
func (c *Chain) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	return fallback(ctx, c, "completion", ErrCompletionNotSupported,
		func(caps Capabilities) bool { return caps.Completion },
		func(p Provider) (*CompletionResponse, error) { return p.Complete(ctx, req) })
}

// fallback returns the first success of call across capable providers.
// none is returned when no provider is capable.
func fallback[T any](ctx context.Context, c *Chain, op string, none error, capable func(Capabilities) bool, call func(Provider) (T, error)) (T, error) {
	var (
		zero T
		errs []error
	)
	for i, p := range c.providers {
		if !capable(p.Capabilities()) {
			continue
		}

		resp, err := call(p)
		if err == nil {
			if len(errs) > 0 {
				c.logger.Info("fallback model answered", "op", op, "model", c.names[i], "failed", len(errs))
			}
			return resp, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		errs = append(errs, err)
		c.logger.Warn("model failed, trying next", "op", op, "model", c.names[i], "error", err)
	}

	if len(errs) == 0 {
		return zero, none
	}
	return zero, &ChainError{Errors: errs}
}

// Capabilities returns combined capabilities of all providers.
func (c *Chain) Capabilities() Capabilities {
	var caps Capabilities
	for _, p := range c.providers {
		pc := p.Capabilities()
		caps.Chat = caps.Chat || pc.Chat
		caps.Completion = caps.Completion || pc.Completion
	}
	return caps
}

// Health succeeds when at least one provider is healthy.
func (c *Chain) Health(ctx context.Context) error {
	var lastErr error
	for i, p := range c.providers {
		err := p.Health(ctx)
		if err == nil {
			return nil
		}
		c.logger.Debug("model unhealthy", "model", c.names[i], "error", err)
		lastErr = err
	}
	return WrapError("chain", lastErr)
}

// Close closes all providers.
func (c *Chain) Close() error {
	var errs []error
	for _, p := range c.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Providers returns the list of providers in the chain.
func (c *Chain) Providers() []Provider {
	return c.providers
}

// Verify Chain implements Provider at compile time.
var _ Provider = (*Chain)(nil)
