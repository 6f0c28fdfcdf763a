package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-parley/internal/httpc"
	"github.com/teslashibe/go-parley/pkg/audio"
)

const (
	whisperBaseURL  = "https://api.openai.com/v1"
	providerWhisper = "whisper"

	// ModelWhisper1 is OpenAI's hosted Whisper model.
	ModelWhisper1 = "whisper-1"
)

// Whisper transcribes utterances with an OpenAI-compatible
// /audio/transcriptions endpoint (OpenAI, faster-whisper-server, LocalAI).
type Whisper struct {
	config  *Config
	client  *http.Client
	logger  *slog.Logger
	baseURL string
}

// NewWhisper creates a Whisper transcriber. An API key is required unless
// BaseURL points at a self-hosted server.
func NewWhisper(opts ...Option) (*Whisper, error) {
	cfg := DefaultConfig()
	cfg.Model = ModelWhisper1
	cfg.Apply(opts...)

	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, ErrNoAPIKey
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = whisperBaseURL
	}

	client := cfg.HTTPClient
	if client == nil {
		client = httpc.NewClient(cfg.Timeout)
	}

	return &Whisper{
		config:  cfg,
		client:  client,
		logger:  cfg.Logger.With("component", "stt.whisper"),
		baseURL: baseURL,
	}, nil
}

// NewWhisperRecognizer is NewWhisper wrapped in an endpointing factory.
func NewWhisperRecognizer(opts ...Option) (*Endpointing, error) {
	w, err := NewWhisper(opts...)
	if err != nil {
		return nil, err
	}
	return NewEndpointing(w, opts...)
}

// Transcribe uploads pcm as a WAV file and returns the transcript.
func (w *Whisper) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (*Result, error) {
	if len(pcm) == 0 {
		return nil, ErrEmptyAudio
	}
	start := time.Now()

	wav, err := audio.EncodeWAV(pcm, sampleRate, 1)
	if err != nil {
		return nil, WrapError(providerWhisper, err)
	}

	body, contentType, err := w.buildForm(wav)
	if err != nil {
		return nil, WrapError(providerWhisper, fmt.Errorf("build form: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, "POST", w.baseURL+"/audio/transcriptions", bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(providerWhisper, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", contentType)
	if w.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.config.APIKey)
	}

	resp, err := w.send(ctx, req, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, w.parseError(resp)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, WrapError(providerWhisper, fmt.Errorf("decode response: %w", err))
	}

	w.logger.Debug("transcribed",
		"audio_bytes", len(pcm),
		"chars", len(out.Text),
		"latency_ms", time.Since(start).Milliseconds(),
	)

	return &Result{
		Text:     strings.TrimSpace(out.Text),
		Duration: audio.Duration(len(pcm), sampleRate),
	}, nil
}

// Health checks API connectivity via the models endpoint.
func (w *Whisper) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", w.baseURL+"/models", nil)
	if err != nil {
		return WrapError(providerWhisper, err)
	}
	if w.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.config.APIKey)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return WrapError(providerWhisper, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return w.parseError(resp)
	}
	return nil
}

// Close releases resources.
func (w *Whisper) Close() error {
	w.client.CloseIdleConnections()
	return nil
}

func (w *Whisper) buildForm(wav []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(wav); err != nil {
		return nil, "", err
	}

	fields := map[string]string{
		"model":           w.config.Model,
		"response_format": "json",
	}
	if w.config.Language != "" {
		fields["language"] = w.config.Language
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

func (w *Whisper) send(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	retrier := httpc.Retrier{
		Client:     w.client,
		MaxRetries: w.config.MaxRetries,
		Delay:      w.config.RetryDelay,
		Logger:     w.logger,
		Wrap:       func(err error) error { return WrapError(providerWhisper, err) },
		ParseError: w.parseError,
	}
	return retrier.Do(ctx, req, body)
}

// parseError reads and parses an OpenAI-style error response.
func (w *Whisper) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	message := string(body)
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Provider:   providerWhisper,
	}
}

// Verify implementations at compile time.
var (
	_ Transcriber   = (*Whisper)(nil)
	_ HealthChecker = (*Whisper)(nil)
)
