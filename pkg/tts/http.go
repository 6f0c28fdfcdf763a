package tts

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/teslashibe/go-parley/internal/httpc"
)

// restClient is the HTTP plumbing shared by the REST providers.
type restClient struct {
	provider   string
	client     *http.Client
	config     *Config
	logger     *slog.Logger
	parseError func(*http.Response) error
}

// send performs the request, retrying rate limits and server errors.
// body is replayed on each attempt; nil means no body.
func (r *restClient) send(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	retrier := httpc.Retrier{
		Client:     r.client,
		MaxRetries: r.config.MaxRetries,
		Delay:      r.config.RetryDelay,
		Logger:     r.logger,
		Wrap:       func(err error) error { return WrapError(r.provider, err) },
		ParseError: r.parseError,
	}
	return retrier.Do(ctx, req, body)
}

// ping issues req and maps a non-200 answer through parseError.
func (r *restClient) ping(req *http.Request) error {
	resp, err := r.client.Do(req)
	if err != nil {
		return WrapError(r.provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return r.parseError(resp)
	}
	return nil
}

func (r *restClient) Close() error {
	r.client.CloseIdleConnections()
	return nil
}

// plainError reads a non-JSON error body.
func plainError(provider string) func(*http.Response) error {
	return func(resp *http.Response) error {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(bytes.TrimSpace(body)),
			Provider:   provider,
		}
	}
}

// bufferStream wraps a byte slice as AudioStream.
type bufferStream struct {
	data   []byte
	offset int
	format AudioFormat
}

// Read returns the whole buffer once, then nil.
func (s *bufferStream) Read() ([]byte, error) {
	if s.offset >= len(s.data) {
		return nil, nil
	}
	chunk := s.data[s.offset:]
	s.offset = len(s.data)
	return chunk, nil
}

// Close releases resources.
func (s *bufferStream) Close() error {
	return nil
}

// Format returns the audio format.
func (s *bufferStream) Format() AudioFormat {
	return s.format
}

// httpStream wraps an HTTP response body as AudioStream.
type httpStream struct {
	body   io.ReadCloser
	format AudioFormat
	buf    [4096]byte
}

// Read returns the next audio chunk.
func (s *httpStream) Read() ([]byte, error) {
	n, err := s.body.Read(s.buf[:])
	if n > 0 {
		chunk := make([]byte, n)
		copy(chunk, s.buf[:n])
		return chunk, nil
	}
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.Read()
}

// Close stops the stream.
func (s *httpStream) Close() error {
	return s.body.Close()
}

// Format returns the audio format.
func (s *httpStream) Format() AudioFormat {
	return s.format
}

// streamOf synthesizes and wraps the result as a one-chunk stream.
func streamOf(ctx context.Context, p Provider, text string) (AudioStream, error) {
	result, err := p.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}
	return &bufferStream{data: result.Audio, format: result.Format}, nil
}
