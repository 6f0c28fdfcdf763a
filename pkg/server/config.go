package server

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/teslashibe/go-parley/pkg/hub"
	"github.com/teslashibe/go-parley/pkg/metrics"
	"github.com/teslashibe/go-parley/pkg/store"
)

// Inbound codecs.
const (
	CodecPCM16 = "pcm16"
	CodecOpus  = "opus"
)

// Config holds server configuration.
type Config struct {
	// Version is reported by /health.
	Version string

	MaxSessions  int
	ReadLimit    int64 // bytes per inbound frame
	QueueSize    int   // inbound audio frames buffered per session
	WriteTimeout time.Duration

	InputCodec           string
	InputSampleRate      int
	RecognizerSampleRate int

	// TextFrames enables TRANSCRIPT, REPLY and ERROR frames.
	TextFrames bool

	// FramesPerSecond limits inbound frames per session. Zero disables.
	FramesPerSecond float64
	Burst           int

	STTTimeout time.Duration

	Store    store.TurnStore
	Metrics  *metrics.Collector
	Gatherer prometheus.Gatherer
	Hub      *hub.Hub
	Logger   *slog.Logger
}

// Option is a functional option for configuring the server.
type Option func(*Config)

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(c *Config) { c.Version = v }
}

// WithMaxSessions caps concurrent conversation sockets.
func WithMaxSessions(n int) Option {
	return func(c *Config) { c.MaxSessions = n }
}

// WithLimits sets the frame size limit, the per-session queue depth and the
// write timeout.
func WithLimits(readLimit int64, queueSize int, writeTimeout time.Duration) Option {
	return func(c *Config) {
		c.ReadLimit = readLimit
		c.QueueSize = queueSize
		c.WriteTimeout = writeTimeout
	}
}

// WithAudio sets the inbound codec and sample rates.
func WithAudio(codec string, inputRate, recognizerRate int) Option {
	return func(c *Config) {
		c.InputCodec = codec
		c.InputSampleRate = inputRate
		c.RecognizerSampleRate = recognizerRate
	}
}

// WithTextFrames enables the optional text frames.
func WithTextFrames(enabled bool) Option {
	return func(c *Config) { c.TextFrames = enabled }
}

// WithRateLimit limits inbound frames per session.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Config) {
		c.FramesPerSecond = perSecond
		c.Burst = burst
	}
}

// WithSTTTimeout bounds each AcceptWaveform call.
func WithSTTTimeout(d time.Duration) Option {
	return func(c *Config) { c.STTTimeout = d }
}

// WithStore sets the turn log.
func WithStore(s store.TurnStore) Option {
	return func(c *Config) { c.Store = s }
}

// WithMetrics sets the collector and the gatherer served on /metrics.
func WithMetrics(m *metrics.Collector, g prometheus.Gatherer) Option {
	return func(c *Config) {
		c.Metrics = m
		c.Gatherer = g
	}
}

// WithHub sets the monitor event hub.
func WithHub(h *hub.Hub) Option {
	return func(c *Config) { c.Hub = h }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// DefaultConfig returns defaults for 16kHz PCM16 input.
func DefaultConfig() *Config {
	return &Config{
		Version:              "dev",
		MaxSessions:          64,
		ReadLimit:            1 << 20,
		QueueSize:            64,
		WriteTimeout:         10 * time.Second,
		InputCodec:           CodecPCM16,
		InputSampleRate:      16000,
		RecognizerSampleRate: 16000,
		STTTimeout:           30 * time.Second,
		Store:                store.Discard{},
		Logger:               slog.Default(),
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
	var errs []error
	if c.MaxSessions <= 0 {
		errs = append(errs, fmt.Errorf("max sessions must be positive, got %d", c.MaxSessions))
	}
	if c.ReadLimit <= 0 {
		errs = append(errs, fmt.Errorf("read limit must be positive"))
	}
	if c.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("queue size must be positive"))
	}
	if c.WriteTimeout <= 0 || c.STTTimeout <= 0 {
		errs = append(errs, fmt.Errorf("timeouts must be positive"))
	}
	if c.InputCodec != CodecPCM16 && c.InputCodec != CodecOpus {
		errs = append(errs, fmt.Errorf("unknown input codec %q", c.InputCodec))
	}
	if c.InputSampleRate <= 0 || c.RecognizerSampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample rates must be positive"))
	}
	if c.FramesPerSecond < 0 {
		errs = append(errs, fmt.Errorf("frames per second must not be negative"))
	}
	if c.FramesPerSecond > 0 && c.Burst <= 0 {
		errs = append(errs, fmt.Errorf("burst must be positive when rate limiting"))
	}
	if c.Store == nil {
		errs = append(errs, fmt.Errorf("store is required"))
	}
	return errors.Join(errs...)
}
