package tts

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	texttospeech "google.golang.org/api/texttospeech/v1"

	"github.com/teslashibe/go-parley/internal/gcp"
	"github.com/teslashibe/go-parley/internal/httpc"
	"github.com/teslashibe/go-parley/pkg/audio"
)

const providerGoogle = "google"

// Google implements Provider for Cloud Text-to-Speech v1.
type Google struct {
	config *Config
	svc    *texttospeech.Service
	logger *slog.Logger
}

// NewGoogle creates a Cloud Text-to-Speech provider. Auth comes from the API
// key, then the credentials file, then application default credentials.
// VoiceID is a voice name such as en-US-Neural2-D; empty lets Google pick
// one for LanguageCode.
func NewGoogle(ctx context.Context, opts ...Option) (*Google, error) {
	cfg := DefaultConfig()
	cfg.LanguageCode = "en-US"
	cfg.Apply(opts...)

	if cfg.OutputFormat != EncodingWAV {
		cfg.OutputFormat = EncodingMP3
	}

	clientOpts, err := gcp.ClientOptions(ctx, gcp.Auth{
		APIKey:          cfg.APIKey,
		CredentialsFile: cfg.CredentialsFile,
		Endpoint:        cfg.BaseURL,
		Timeout:         cfg.Timeout,
	}, texttospeech.CloudPlatformScope)
	if err != nil {
		return nil, WrapError(providerGoogle, err)
	}

	svc, err := texttospeech.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, WrapError(providerGoogle, fmt.Errorf("create texttospeech service: %w", err))
	}

	return &Google{
		config: cfg,
		svc:    svc,
		logger: cfg.Logger.With("component", "tts.google"),
	}, nil
}

// Synthesize converts text to MP3, or WAV when OutputFormat is EncodingWAV.
func (g *Google) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	start := time.Now()

	encoding := "MP3"
	if g.config.OutputFormat == EncodingWAV {
		encoding = "LINEAR16"
	}
	req := &texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Text: text},
		Voice: &texttospeech.VoiceSelectionParams{
			LanguageCode: g.config.LanguageCode,
			Name:         g.config.VoiceID,
		},
		AudioConfig: &texttospeech.AudioConfig{AudioEncoding: encoding},
	}

	var resp *texttospeech.SynthesizeSpeechResponse
	err := httpc.Backoff(ctx, g.config.MaxRetries, g.config.RetryDelay, func(n int) (bool, error) {
		var err error
		if resp, err = g.svc.Text.Synthesize(req).Context(ctx).Do(); err == nil {
			return false, nil
		}
		err = g.convertError(err)
		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.IsRetryable() {
			return false, err
		}
		g.logger.Warn("retrying request", "attempt", n+1, "status", apiErr.StatusCode)
		return true, err
	})
	if err != nil {
		return nil, err
	}

	data, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, WrapError(providerGoogle, fmt.Errorf("decode audio: %w", err))
	}
	if len(data) == 0 {
		return nil, WrapError(providerGoogle, ErrEmptyAudio)
	}

	latency := time.Since(start).Milliseconds()
	g.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(data),
		"latency_ms", latency,
		"voice", g.config.VoiceID,
	)

	result := &AudioResult{
		Audio:     data,
		Format:    AudioFormat{Encoding: EncodingMP3, Channels: 1},
		CharCount: len(text),
		LatencyMs: latency,
		Provider:  providerGoogle,
	}
	if g.config.OutputFormat == EncodingWAV {
		if pcm, header, err := audio.DecodeWAV(data); err == nil {
			rate := int(header.SampleRate)
			result.Format = AudioFormat{Encoding: EncodingWAV, SampleRate: rate, Channels: 1, BitDepth: 16}
			result.Duration = pcmDuration(len(pcm), rate)
		}
	}
	return result, nil
}

// Stream returns the synthesized audio as a single chunk.
func (g *Google) Stream(ctx context.Context, text string) (AudioStream, error) {
	return streamOf(ctx, g, text)
}

// Health lists the voices for the configured language.
func (g *Google) Health(ctx context.Context) error {
	if _, err := g.svc.Voices.List().LanguageCode(g.config.LanguageCode).Context(ctx).Do(); err != nil {
		return g.convertError(err)
	}
	return nil
}

// Close is a no-op; the service holds no connections of its own.
func (g *Google) Close() error {
	return nil
}

func (g *Google) convertError(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return &APIError{StatusCode: gErr.Code, Message: gErr.Message, Provider: providerGoogle}
	}
	return WrapError(providerGoogle, err)
}

var _ Provider = (*Google)(nil)
