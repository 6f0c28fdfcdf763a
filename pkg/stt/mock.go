package stt

import (
	"context"
	"sync"
)

// MockRecognizer implements Recognizer for testing.
// Each call to AcceptWaveform consumes one entry of Script: a non-nil entry
// finalizes with that result, a nil entry returns false.
type MockRecognizer struct {
	// Script is consumed in order. When exhausted, AcceptWaveform returns false.
	Script []*Result

	// AcceptFunc replaces the script when set.
	AcceptFunc func(ctx context.Context, pcm []byte) (bool, error)

	mu     sync.Mutex
	result Result
	fed    [][]byte
	resets int
	closed bool
}

// NewMockRecognizer creates a recognizer that finalizes with each text in
// turn, one per AcceptWaveform call.
func NewMockRecognizer(texts ...string) *MockRecognizer {
	m := &MockRecognizer{}
	for _, t := range texts {
		m.Script = append(m.Script, &Result{Text: t})
	}
	return m
}

// AcceptWaveform records pcm and plays back the script.
func (m *MockRecognizer) AcceptWaveform(ctx context.Context, pcm []byte) (bool, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false, ErrClosed
	}
	m.fed = append(m.fed, append([]byte(nil), pcm...))
	fn := m.AcceptFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, pcm)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Script) == 0 {
		return false, nil
	}
	next := m.Script[0]
	m.Script = m.Script[1:]
	if next == nil {
		return false, nil
	}
	m.result = *next
	return true, nil
}

// Result returns the last scripted result.
func (m *MockRecognizer) Result() Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.result
}

// SetResult sets what Result returns. Useful with AcceptFunc.
func (m *MockRecognizer) SetResult(r Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = r
}

// Reset clears the last result.
func (m *MockRecognizer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = Result{}
	m.resets++
}

// Close marks the recognizer closed.
func (m *MockRecognizer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Fed returns every chunk passed to AcceptWaveform.
func (m *MockRecognizer) Fed() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.fed))
	copy(out, m.fed)
	return out
}

// Closed reports whether Close was called.
func (m *MockRecognizer) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// MockFactory implements Factory for testing.
type MockFactory struct {
	// NewFunc builds each recognizer. If nil, an empty MockRecognizer is used.
	NewFunc func(ctx context.Context) (Recognizer, error)

	// HealthErr is returned by Health.
	HealthErr error

	mu      sync.Mutex
	created []Recognizer
}

// NewRecognizer calls NewFunc and records the recognizer.
func (f *MockFactory) NewRecognizer(ctx context.Context) (Recognizer, error) {
	var (
		rec Recognizer
		err error
	)
	if f.NewFunc != nil {
		rec, err = f.NewFunc(ctx)
	} else {
		rec = &MockRecognizer{}
	}
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.created = append(f.created, rec)
	f.mu.Unlock()
	return rec, nil
}

// Health returns HealthErr.
func (f *MockFactory) Health(ctx context.Context) error {
	return f.HealthErr
}

// Created returns every recognizer handed out so far.
func (f *MockFactory) Created() []Recognizer {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Recognizer, len(f.created))
	copy(out, f.created)
	return out
}

// MockTranscriber implements Transcriber for testing.
type MockTranscriber struct {
	TranscribeFunc func(ctx context.Context, pcm []byte, sampleRate int) (*Result, error)

	mu    sync.Mutex
	calls int
}

// Transcribe calls TranscribeFunc, or returns "hello" when unset.
func (m *MockTranscriber) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (*Result, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, pcm, sampleRate)
	}
	return &Result{Text: "hello"}, nil
}

// CallCount returns the number of Transcribe calls.
func (m *MockTranscriber) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Verify implementations at compile time.
var (
	_ Recognizer    = (*MockRecognizer)(nil)
	_ Factory       = (*MockFactory)(nil)
	_ HealthChecker = (*MockFactory)(nil)
	_ Transcriber   = (*MockTranscriber)(nil)
)
