package conversation

import (
	"context"
	"sync"
)

// Mock implements Generator for testing.
type Mock struct {
	// ReplyFunc is called when Reply is invoked.
	// If nil, the reply echoes the input prefixed with "you said: ".
	ReplyFunc func(ctx context.Context, userText string) (*Reply, error)

	mu     sync.Mutex
	inputs []string
}

// Reply calls ReplyFunc and records the input.
func (m *Mock) Reply(ctx context.Context, userText string) (*Reply, error) {
	m.mu.Lock()
	m.inputs = append(m.inputs, userText)
	m.mu.Unlock()

	if m.ReplyFunc != nil {
		return m.ReplyFunc(ctx, userText)
	}
	return &Reply{Text: "you said: " + userText}, nil
}

// Inputs returns every utterance passed to Reply.
func (m *Mock) Inputs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.inputs))
	copy(out, m.inputs)
	return out
}

// Verify Mock implements Generator at compile time.
var _ Generator = (*Mock)(nil)
