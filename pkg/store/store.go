// Package store keeps a log of finished conversation turns per session.
//
// Records hold the text of each stage and the turn timings. Audio is never
// stored, only its length and encoding.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/teslashibe/go-parley/pkg/voice"
)

// ErrClosed is returned by a closed store.
var ErrClosed = errors.New("store: closed")

// TurnRecord is the stored form of a voice.Turn.
type TurnRecord struct {
	ID            string        `json:"id"`
	SessionID     string        `json:"session_id"`
	Transcript    string        `json:"transcript"`
	Reply         string        `json:"reply,omitempty"`
	Styled        string        `json:"styled,omitempty"`
	Plain         bool          `json:"plain,omitempty"`
	AudioBytes    int           `json:"audio_bytes"`
	AudioEncoding string        `json:"audio_encoding,omitempty"`
	Timings       voice.Timings `json:"timings"`
	Started       time.Time     `json:"started"`
	Error         string        `json:"error,omitempty"`
}

// FromTurn converts a turn, dropping its audio.
func FromTurn(t *voice.Turn) TurnRecord {
	rec := TurnRecord{
		ID:            t.ID,
		SessionID:     t.SessionID,
		Transcript:    t.Transcript,
		Reply:         t.Reply,
		Styled:        t.Styled,
		Plain:         t.Plain,
		AudioBytes:    len(t.Audio),
		AudioEncoding: string(t.Format.Encoding),
		Timings:       t.Timings,
		Started:       t.Started,
	}
	if t.Err != nil {
		rec.Error = t.Err.Error()
	}
	return rec
}

// TurnStore persists turn records.
type TurnStore interface {
	// Append adds a record to the end of its session's log.
	Append(ctx context.Context, rec TurnRecord) error

	// List returns up to limit of the newest records for a session, oldest
	// first. A limit of zero or less returns every retained record. An
	// unknown session yields an empty slice.
	List(ctx context.Context, sessionID string, limit int) ([]TurnRecord, error)

	// Close releases resources.
	Close() error
}

// Config bounds what a store retains.
type Config struct {
	KeyPrefix string        // redis key prefix
	MaxTurns  int           // records kept per session
	TTL       time.Duration // idle sessions expire after this; zero keeps them
}

// Option is a functional option for configuring stores.
type Option func(*Config)

// WithKeyPrefix sets the redis key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(c *Config) {
		c.KeyPrefix = prefix
	}
}

// WithMaxTurns sets the per-session record limit.
func WithMaxTurns(n int) Option {
	return func(c *Config) {
		c.MaxTurns = n
	}
}

// WithTTL sets the idle session expiry.
func WithTTL(ttl time.Duration) Option {
	return func(c *Config) {
		c.TTL = ttl
	}
}

// DefaultConfig returns the default retention.
func DefaultConfig() *Config {
	return &Config{
		KeyPrefix: "parley:",
		MaxTurns:  100,
		TTL:       24 * time.Hour,
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
	if c.MaxTurns < 1 {
		c.MaxTurns = 1
	}
}

// Discard is a TurnStore that keeps nothing.
type Discard struct{}

func (Discard) Append(context.Context, TurnRecord) error { return nil }

func (Discard) List(context.Context, string, int) ([]TurnRecord, error) {
	return []TurnRecord{}, nil
}

func (Discard) Close() error { return nil }

// tail returns the last limit records.
func tail(recs []TurnRecord, limit int) []TurnRecord {
	if limit > 0 && len(recs) > limit {
		return recs[len(recs)-limit:]
	}
	return recs
}

var _ TurnStore = Discard{}
