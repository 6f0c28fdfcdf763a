package stt

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	speech "google.golang.org/api/speech/v1"

	"github.com/teslashibe/go-parley/internal/gcp"
	"github.com/teslashibe/go-parley/internal/httpc"
	"github.com/teslashibe/go-parley/pkg/audio"
)

const providerGoogle = "google"

// Google transcribes utterances with Cloud Speech-to-Text v1 speech:recognize.
type Google struct {
	config *Config
	svc    *speech.Service
	logger *slog.Logger
}

// NewGoogle creates a Cloud Speech transcriber. Auth comes from the API key,
// then the credentials file, then application default credentials.
func NewGoogle(ctx context.Context, opts ...Option) (*Google, error) {
	cfg := DefaultConfig()
	cfg.Language = "en-US"
	cfg.Apply(opts...)

	clientOpts, err := gcp.ClientOptions(ctx, gcp.Auth{
		APIKey:          cfg.APIKey,
		CredentialsFile: cfg.CredentialsFile,
		Endpoint:        cfg.BaseURL,
		Timeout:         cfg.Timeout,
	}, speech.CloudPlatformScope)
	if err != nil {
		return nil, WrapError(providerGoogle, err)
	}

	svc, err := speech.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, WrapError(providerGoogle, fmt.Errorf("create speech service: %w", err))
	}

	return &Google{
		config: cfg,
		svc:    svc,
		logger: cfg.Logger.With("component", "stt.google"),
	}, nil
}

// NewGoogleRecognizer is NewGoogle wrapped in an endpointing factory.
func NewGoogleRecognizer(ctx context.Context, opts ...Option) (*Endpointing, error) {
	g, err := NewGoogle(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return NewEndpointing(g, opts...)
}

// Transcribe sends pcm as LINEAR16 and joins the top alternative of each result.
func (g *Google) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (*Result, error) {
	if len(pcm) == 0 {
		return nil, ErrEmptyAudio
	}
	start := time.Now()

	req := &speech.RecognizeRequest{
		Config: &speech.RecognitionConfig{
			Encoding:        "LINEAR16",
			SampleRateHertz: int64(sampleRate),
			LanguageCode:    languageCode(g.config.Language),
			Model:           g.config.Model,
		},
		Audio: &speech.RecognitionAudio{
			Content: base64.StdEncoding.EncodeToString(pcm),
		},
	}

	var resp *speech.RecognizeResponse
	err := httpc.Backoff(ctx, g.config.MaxRetries, g.config.RetryDelay, func(n int) (bool, error) {
		var err error
		if resp, err = g.svc.Speech.Recognize(req).Context(ctx).Do(); err == nil {
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

	var (
		texts []string
		conf  float64
	)
	for _, r := range resp.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		alt := r.Alternatives[0]
		if t := strings.TrimSpace(alt.Transcript); t != "" {
			texts = append(texts, t)
			conf += alt.Confidence
		}
	}
	res := &Result{
		Text:     strings.Join(texts, " "),
		Duration: audio.Duration(len(pcm), sampleRate),
	}
	if len(texts) > 0 {
		res.Confidence = conf / float64(len(texts))
	}

	g.logger.Debug("transcribed",
		"audio_bytes", len(pcm),
		"chars", len(res.Text),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (g *Google) convertError(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return &APIError{StatusCode: gErr.Code, Message: gErr.Message, Provider: providerGoogle}
	}
	return WrapError(providerGoogle, err)
}

// languageCode expands bare ISO-639-1 codes to a BCP-47 tag Google accepts.
func languageCode(lang string) string {
	switch lang {
	case "":
		return "en-US"
	case "en":
		return "en-US"
	}
	return lang
}

// Verify Google implements Transcriber at compile time.
var _ Transcriber = (*Google)(nil)
