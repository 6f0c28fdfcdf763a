package stt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/teslashibe/go-parley/pkg/audio"
)

// Endpointing turns a batch Transcriber into a streaming recognizer factory.
// Audio is segmented locally with an energy endpointer; each finished
// utterance is transcribed in one request.
type Endpointing struct {
	transcriber Transcriber
	config      *Config
	logger      *slog.Logger
}

// NewEndpointing wraps a transcriber. The endpoint config is validated here so
// NewRecognizer cannot fail on it later.
func NewEndpointing(t Transcriber, opts ...Option) (*Endpointing, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	cfg.Endpoint.SampleRate = cfg.SampleRate

	if _, err := audio.NewEndpointer(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("stt: endpoint config: %w", err)
	}

	return &Endpointing{
		transcriber: t,
		config:      cfg,
		logger:      cfg.Logger.With("component", "stt.endpointing"),
	}, nil
}

// NewRecognizer creates a recognizer with its own endpointer.
func (e *Endpointing) NewRecognizer(ctx context.Context) (Recognizer, error) {
	ep, err := audio.NewEndpointer(e.config.Endpoint)
	if err != nil {
		return nil, err
	}
	return &endpointingRecognizer{
		ep:          ep,
		transcriber: e.transcriber,
		sampleRate:  e.config.SampleRate,
		logger:      e.logger,
	}, nil
}

// Health delegates to the transcriber when it supports health checks.
func (e *Endpointing) Health(ctx context.Context) error {
	if hc, ok := e.transcriber.(HealthChecker); ok {
		return hc.Health(ctx)
	}
	return nil
}

type endpointingRecognizer struct {
	ep          *audio.Endpointer
	transcriber Transcriber
	sampleRate  int
	logger      *slog.Logger

	mu     sync.Mutex
	result Result
	closed bool
}

// AcceptWaveform buffers audio and transcribes whatever utterances it completes.
func (r *endpointingRecognizer) AcceptWaveform(ctx context.Context, pcm []byte) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false, ErrClosed
	}

	utterances := r.ep.Write(pcm)
	if len(utterances) == 0 {
		return false, nil
	}

	var (
		texts []string
		res   Result
		confN int
	)
	for _, u := range utterances {
		r.logger.Debug("utterance detected", "duration", u.Duration, "speech", u.Speech)

		out, err := r.transcriber.Transcribe(ctx, u.PCM, r.sampleRate)
		if err != nil {
			return false, err
		}
		res.Duration += u.Duration
		if t := strings.TrimSpace(out.Text); t != "" {
			texts = append(texts, t)
		}
		if out.Confidence > 0 {
			res.Confidence += out.Confidence
			confN++
		}
	}
	if confN > 0 {
		res.Confidence /= float64(confN)
	}
	res.Text = strings.Join(texts, " ")

	r.result = res
	return true, nil
}

// Result returns the last final result.
func (r *endpointingRecognizer) Result() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// Reset drops buffered audio and the last result.
func (r *endpointingRecognizer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ep.Reset()
	r.result = Result{}
}

// Close marks the recognizer closed. Buffered audio is discarded.
func (r *endpointingRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.ep.Reset()
	return nil
}

// Verify implementations at compile time.
var (
	_ Factory       = (*Endpointing)(nil)
	_ HealthChecker = (*Endpointing)(nil)
	_ Recognizer    = (*endpointingRecognizer)(nil)
)
