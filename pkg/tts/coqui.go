package tts

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/teslashibe/go-parley/pkg/audio"
)

const providerCoqui = "coqui"

// Coqui implements Provider for a Coqui tts-server (TTS/server/server.py).
// The server loads one model at startup, e.g.
// tts-server --model_name tts_models/en/ljspeech/glow-tts.
type Coqui struct {
	rest    *restClient
	config  *Config
	logger  *slog.Logger
	baseURL string
}

// NewCoqui creates a provider for the tts-server at BaseURL.
func NewCoqui(opts ...Option) (*Coqui, error) {
	cfg := DefaultConfig()
	cfg.OutputFormat = EncodingWAV
	cfg.Apply(opts...)

	if cfg.BaseURL == "" {
		return nil, ErrNoEndpoint
	}

	c := &Coqui{
		config:  cfg,
		logger:  cfg.Logger.With("component", "tts.coqui"),
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
	}
	c.rest = &restClient{
		provider:   providerCoqui,
		client:     cfg.httpClient(),
		config:     cfg,
		logger:     c.logger,
		parseError: plainError(providerCoqui),
	}
	return c, nil
}

// Synthesize requests a WAV rendering of text.
func (c *Coqui) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	start := time.Now()

	q := url.Values{}
	q.Set("text", text)
	if c.config.VoiceID != "" {
		q.Set("speaker_id", c.config.VoiceID)
	}
	if c.config.LanguageCode != "" {
		q.Set("language_id", c.config.LanguageCode)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/tts?"+q.Encode(), nil)
	if err != nil {
		return nil, WrapError(providerCoqui, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := c.rest.send(ctx, req, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.rest.parseError(resp)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(providerCoqui, fmt.Errorf("read response: %w", err))
	}

	pcm, header, err := audio.DecodeWAV(wav)
	if err != nil {
		return nil, WrapError(providerCoqui, err)
	}
	if len(pcm) == 0 {
		return nil, WrapError(providerCoqui, ErrEmptyAudio)
	}

	latency := time.Since(start).Milliseconds()
	rate := int(header.SampleRate)
	c.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(wav),
		"sample_rate", rate,
		"latency_ms", latency,
	)

	return &AudioResult{
		Audio: wav,
		Format: AudioFormat{
			Encoding:   EncodingWAV,
			SampleRate: rate,
			Channels:   int(header.NumChannels),
			BitDepth:   int(header.BitsPerSample),
		},
		Duration:  pcmDuration(len(pcm)/max(int(header.NumChannels), 1), rate),
		CharCount: len(text),
		LatencyMs: latency,
		Provider:  providerCoqui,
	}, nil
}

// Stream returns the synthesized WAV as a single chunk.
func (c *Coqui) Stream(ctx context.Context, text string) (AudioStream, error) {
	return streamOf(ctx, c, text)
}

// Health fetches the server's index page.
func (c *Coqui) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/", nil)
	if err != nil {
		return WrapError(providerCoqui, err)
	}
	return c.rest.ping(req)
}

// Close releases resources.
func (c *Coqui) Close() error {
	return c.rest.Close()
}

var _ Provider = (*Coqui)(nil)
