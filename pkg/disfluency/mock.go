package disfluency

import (
	"context"
	"sync"
)

// Mock is a test rewriter.
type Mock struct {
	// RewriteFunc overrides the default behavior of prefixing "um, ".
	RewriteFunc func(ctx context.Context, text string) (string, error)

	mu     sync.Mutex
	inputs []string
}

// NewMock creates a mock that prefixes "um, ".
func NewMock() *Mock {
	return &Mock{}
}

// WithError returns a mock that always fails with err.
func WithError(err error) *Mock {
	return &Mock{
		RewriteFunc: func(ctx context.Context, text string) (string, error) {
			return "", err
		},
	}
}

// Rewrite implements Rewriter.
func (m *Mock) Rewrite(ctx context.Context, text string) (string, error) {
	m.mu.Lock()
	m.inputs = append(m.inputs, text)
	m.mu.Unlock()

	if m.RewriteFunc != nil {
		return m.RewriteFunc(ctx, text)
	}
	return "um, " + text, nil
}

// Inputs returns every text passed to Rewrite.
func (m *Mock) Inputs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.inputs...)
}

var _ Rewriter = (*Mock)(nil)
