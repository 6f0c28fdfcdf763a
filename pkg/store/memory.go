package store

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process TurnStore with a bounded log per session.
type Memory struct {
	config *Config
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*memorySession
	closed   bool
}

type memorySession struct {
	turns   []TurnRecord
	touched time.Time
}

// NewMemory creates an in-memory store.
func NewMemory(opts ...Option) *Memory {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	return &Memory{
		config:   cfg,
		now:      time.Now,
		sessions: make(map[string]*memorySession),
	}
}

// Append adds rec, dropping the oldest record past MaxTurns.
func (m *Memory) Append(_ context.Context, rec TurnRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	now := m.now()
	m.expire(now)

	s, ok := m.sessions[rec.SessionID]
	if !ok {
		s = &memorySession{}
		m.sessions[rec.SessionID] = s
	}
	s.turns = append(s.turns, rec)
	if over := len(s.turns) - m.config.MaxTurns; over > 0 {
		s.turns = append([]TurnRecord(nil), s.turns[over:]...)
	}
	s.touched = now
	return nil
}

// List returns a copy of the session's newest records.
func (m *Memory) List(_ context.Context, sessionID string, limit int) ([]TurnRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	m.expire(m.now())

	s, ok := m.sessions[sessionID]
	if !ok {
		return []TurnRecord{}, nil
	}
	return append([]TurnRecord(nil), tail(s.turns, limit)...), nil
}

// Sessions returns the number of retained sessions.
func (m *Memory) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close drops all records.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.sessions = nil
	return nil
}

// expire drops sessions idle longer than TTL. Must be called with mu held.
func (m *Memory) expire(now time.Time) {
	if m.config.TTL <= 0 {
		return
	}
	for id, s := range m.sessions {
		if now.Sub(s.touched) > m.config.TTL {
			delete(m.sessions, id)
		}
	}
}

var _ TurnStore = (*Memory)(nil)
