package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	inworldTTSURL   = "https://api.inworld.ai/tts/v1/voice"
	providerInworld = "inworld"

	// InworldVoiceCraig is the default Inworld voice.
	InworldVoiceCraig = "Craig"

	// InworldModelTTS1 is the default Inworld model.
	InworldModelTTS1 = "inworld-tts-1"
)

// Inworld implements Provider for the Inworld TTS API.
// The API key is the Base64 "key:secret" pair from the Inworld portal and is
// sent as HTTP Basic credentials.
type Inworld struct {
	rest    *restClient
	config  *Config
	logger  *slog.Logger
	baseURL string
}

// NewInworld creates a new Inworld TTS provider.
func NewInworld(opts ...Option) (*Inworld, error) {
	cfg := DefaultConfig()
	cfg.VoiceID = InworldVoiceCraig
	cfg.ModelID = InworldModelTTS1
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = inworldTTSURL
	}

	i := &Inworld{
		config:  cfg,
		logger:  cfg.Logger.With("component", "tts.inworld"),
		baseURL: baseURL,
	}
	i.rest = &restClient{
		provider:   providerInworld,
		client:     cfg.httpClient(),
		config:     cfg,
		logger:     i.logger,
		parseError: i.parseError,
	}
	return i, nil
}

type inworldRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voiceId"`
	ModelID string `json:"modelId"`
}

// Synthesize converts text to MP3.
func (i *Inworld) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	start := time.Now()

	body, err := json.Marshal(inworldRequest{
		Text:    text,
		VoiceID: i.config.VoiceID,
		ModelID: i.config.ModelID,
	})
	if err != nil {
		return nil, WrapError(providerInworld, fmt.Errorf("marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, "POST", i.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(providerInworld, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Authorization", "Basic "+i.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := i.rest.send(ctx, req, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, i.parseError(resp)
	}

	var out struct {
		AudioContent string `json:"audioContent"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, WrapError(providerInworld, fmt.Errorf("decode response: %w", err))
	}
	audio, err := base64.StdEncoding.DecodeString(out.AudioContent)
	if err != nil {
		return nil, WrapError(providerInworld, fmt.Errorf("decode audio: %w", err))
	}
	if len(audio) == 0 {
		return nil, WrapError(providerInworld, ErrEmptyAudio)
	}

	latency := time.Since(start).Milliseconds()
	i.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency,
		"voice", i.config.VoiceID,
	)

	return &AudioResult{
		Audio:     audio,
		Format:    AudioFormat{Encoding: EncodingMP3, Channels: 1},
		CharCount: len(text),
		LatencyMs: latency,
		Provider:  providerInworld,
	}, nil
}

// Stream returns the synthesized MP3 as a single chunk.
func (i *Inworld) Stream(ctx context.Context, text string) (AudioStream, error) {
	return streamOf(ctx, i, text)
}

// Health checks that the endpoint accepts the credentials. The voice API
// has no read-only route, so an empty request is sent: 400 means the key
// was accepted.
func (i *Inworld) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "POST", i.baseURL, strings.NewReader("{}"))
	if err != nil {
		return WrapError(providerInworld, err)
	}
	req.Header.Set("Authorization", "Basic "+i.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := i.rest.client.Do(req)
	if err != nil {
		return WrapError(providerInworld, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusBadRequest {
		return nil
	}
	return i.parseError(resp)
}

// Close releases resources.
func (i *Inworld) Close() error {
	return i.rest.Close()
}

// parseError reads a {"code": n, "message": "..."} error body.
func (i *Inworld) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Message string `json:"message"`
	}

	message := string(body)
	if json.Unmarshal(body, &errResp) == nil && errResp.Message != "" {
		message = errResp.Message
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Provider:   providerInworld,
	}
}

var _ Provider = (*Inworld)(nil)
