package disfluency

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-parley/internal/httpc"
)

const providerHuggingFace = "huggingface"

// HuggingFace rewrites text with a T5 text2text model served by the
// Hugging Face inference API or a compatible server.
type HuggingFace struct {
	config *Config
	client *http.Client
	logger *slog.Logger
}

// NewHuggingFace creates a rewriter posting to cfg.BaseURL.
func NewHuggingFace(opts ...Option) (*HuggingFace, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if cfg.BaseURL == "" {
		return nil, ErrNoEndpoint
	}

	client := cfg.HTTPClient
	if client == nil {
		client = httpc.NewClient(cfg.Timeout)
	}

	return &HuggingFace{
		config: cfg,
		client: client,
		logger: cfg.Logger.With("component", "disfluency.huggingface"),
	}, nil
}

type hfRequest struct {
	Inputs     string `json:"inputs"`
	Parameters Params `json:"parameters"`
}

type hfOutput struct {
	GeneratedText string `json:"generated_text"`
}

// Rewrite sends "add disfluencies: <text>" to the model.
func (h *HuggingFace) Rewrite(ctx context.Context, text string) (string, error) {
	start := time.Now()

	body, err := json.Marshal(hfRequest{
		Inputs:     PromptPrefix + text,
		Parameters: h.config.Params,
	})
	if err != nil {
		return "", WrapError(providerHuggingFace, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, "POST", h.config.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", WrapError(providerHuggingFace, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	h.authorize(req)

	resp, err := h.send(ctx, req, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", h.parseError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", WrapError(providerHuggingFace, fmt.Errorf("read response: %w", err))
	}
	out, err := decodeGenerated(data)
	if err != nil {
		return "", WrapError(providerHuggingFace, err)
	}

	out = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(out), PromptPrefix))
	if out == "" {
		return "", ErrEmptyOutput
	}

	h.logger.Debug("rewrote reply",
		"in_chars", len(text),
		"out_chars", len(out),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// Health issues a GET against the endpoint. Any non-5xx answer counts as up,
// since inference endpoints reject GET with 405.
func (h *HuggingFace) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", h.config.BaseURL, nil)
	if err != nil {
		return WrapError(providerHuggingFace, err)
	}
	h.authorize(req)

	resp, err := h.client.Do(req)
	if err != nil {
		return WrapError(providerHuggingFace, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return h.parseError(resp)
	}
	return nil
}

// Close releases resources.
func (h *HuggingFace) Close() error {
	h.client.CloseIdleConnections()
	return nil
}

func (h *HuggingFace) authorize(req *http.Request) {
	if h.config.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+h.config.APIToken)
	}
}

// decodeGenerated accepts the pipeline list form and the single object
// form returned by text-generation-inference.
func decodeGenerated(data []byte) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var one hfOutput
		if err := json.Unmarshal(data, &one); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		return one.GeneratedText, nil
	}

	var list []hfOutput
	if err := json.Unmarshal(data, &list); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(list) == 0 {
		return "", ErrEmptyOutput
	}
	return list[0].GeneratedText, nil
}

func (h *HuggingFace) send(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	retrier := httpc.Retrier{
		Client:     h.client,
		MaxRetries: h.config.MaxRetries,
		Delay:      h.config.RetryDelay,
		Logger:     h.logger,
		Wrap:       func(err error) error { return WrapError(providerHuggingFace, err) },
		ParseError: h.parseError,
	}
	return retrier.Do(ctx, req, body)
}

// parseError reads a Hugging Face {"error": "..."} body.
func (h *HuggingFace) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error string `json:"error"`
	}

	message := string(body)
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		message = errResp.Error
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Provider:   providerHuggingFace,
	}
}

// Verify implementations at compile time.
var (
	_ Rewriter      = (*HuggingFace)(nil)
	_ HealthChecker = (*HuggingFace)(nil)
)
