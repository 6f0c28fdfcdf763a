package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-parley/pkg/audio"
)

const providerVosk = "vosk"

// Vosk creates recognizers backed by a vosk-server websocket.
// Each recognizer holds its own server connection, and with it its own
// KaldiRecognizer on the server side.
type Vosk struct {
	config *Config
	dialer *websocket.Dialer
	logger *slog.Logger
}

// NewVosk creates a vosk-server recognizer factory.
// BaseURL is required, e.g. ws://localhost:2700.
func NewVosk(opts ...Option) (*Vosk, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if cfg.BaseURL == "" {
		return nil, ErrNoEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Vosk{
		config: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		logger: cfg.Logger.With("component", "stt.vosk"),
	}, nil
}

// NewRecognizer opens a server connection and sends the stream config.
func (v *Vosk) NewRecognizer(ctx context.Context) (Recognizer, error) {
	conn, err := v.dial(ctx)
	if err != nil {
		return nil, err
	}

	rec := &voskRecognizer{
		conn:       conn,
		sampleRate: v.config.SampleRate,
		timeout:    v.config.Timeout,
		logger:     v.logger,
	}

	conf := map[string]any{
		"config": map[string]any{
			"sample_rate": v.config.SampleRate,
		},
	}
	conn.SetWriteDeadline(time.Now().Add(rec.timeout))
	if err := conn.WriteJSON(conf); err != nil {
		conn.Close()
		return nil, WrapError(providerVosk, fmt.Errorf("send config: %w", err))
	}

	v.logger.Debug("recognizer opened", "url", v.config.BaseURL, "sample_rate", v.config.SampleRate)
	return rec, nil
}

// Health dials the server and hangs up.
func (v *Vosk) Health(ctx context.Context) error {
	conn, err := v.dial(ctx)
	if err != nil {
		return err
	}
	return conn.Close()
}

func (v *Vosk) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := v.dialer.DialContext(ctx, v.config.BaseURL, nil)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, &APIError{StatusCode: resp.StatusCode, Message: string(body), Provider: providerVosk}
		}
		return nil, WrapError(providerVosk, fmt.Errorf("connect %s: %w", v.config.BaseURL, err))
	}
	return conn, nil
}

// voskResponse is one server reply. Exactly one of Partial or Text is set.
type voskResponse struct {
	Partial *string    `json:"partial,omitempty"`
	Text    *string    `json:"text,omitempty"`
	Result  []voskWord `json:"result,omitempty"`
}

type voskWord struct {
	Conf  float64 `json:"conf"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Word  string  `json:"word"`
}

type voskRecognizer struct {
	conn       *websocket.Conn
	sampleRate int
	timeout    time.Duration
	logger     *slog.Logger

	mu     sync.Mutex
	result Result
	fed    int // bytes since the last final result
	closed bool
}

// AcceptWaveform sends one chunk and reads the server's reply to it.
func (r *voskRecognizer) AcceptWaveform(ctx context.Context, pcm []byte) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false, ErrClosed
	}
	if len(pcm) == 0 {
		return false, nil
	}

	// Unblock the read below if the caller gives up.
	stop := context.AfterFunc(ctx, func() {
		r.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	deadline := time.Now().Add(r.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	r.conn.SetWriteDeadline(deadline)
	if err := r.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		return false, WrapError(providerVosk, fmt.Errorf("send audio: %w", err))
	}
	r.fed += len(pcm)

	resp, err := r.read(deadline)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, err
	}

	if resp.Text == nil {
		return false, nil
	}
	r.result = r.finalize(resp)
	return true, nil
}

// Result returns the last final result.
func (r *voskRecognizer) Result() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// Reset forgets the last result. A partial utterance already sent to the
// server stays there until the next final result.
func (r *voskRecognizer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result = Result{}
	r.fed = 0
}

// Close sends end-of-stream and closes the connection.
func (r *voskRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	r.conn.SetWriteDeadline(time.Now().Add(time.Second))
	if err := r.conn.WriteMessage(websocket.TextMessage, []byte(`{"eof" : 1}`)); err != nil {
		r.logger.Debug("eof not sent", "error", err)
	}
	r.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return r.conn.Close()
}

func (r *voskRecognizer) read(deadline time.Time) (*voskResponse, error) {
	r.conn.SetReadDeadline(deadline)
	_, data, err := r.conn.ReadMessage()
	if err != nil {
		return nil, WrapError(providerVosk, fmt.Errorf("read result: %w", err))
	}

	var resp voskResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, WrapError(providerVosk, fmt.Errorf("parse result: %w", err))
	}
	return &resp, nil
}

func (r *voskRecognizer) finalize(resp *voskResponse) Result {
	res := Result{
		Text:     strings.TrimSpace(*resp.Text),
		Duration: audio.Duration(r.fed, r.sampleRate),
	}
	if len(resp.Result) > 0 {
		var sum float64
		for _, w := range resp.Result {
			sum += w.Conf
		}
		res.Confidence = sum / float64(len(resp.Result))
	}
	r.fed = 0
	return res
}

// Verify implementations at compile time.
var (
	_ Factory       = (*Vosk)(nil)
	_ HealthChecker = (*Vosk)(nil)
	_ Recognizer    = (*voskRecognizer)(nil)
)
