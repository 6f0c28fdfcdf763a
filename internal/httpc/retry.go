package httpc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Retryable reports whether an HTTP status is worth another attempt.
func Retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// Backoff calls attempt until it succeeds, returns a permanent error, or
// maxRetries retries are spent. Retry n waits n*delay.
func Backoff(ctx context.Context, maxRetries int, delay time.Duration, attempt func(n int) (retry bool, err error)) error {
	var err error
	for n := 0; n <= maxRetries; n++ {
		if n > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay * time.Duration(n)):
			}
		}
		var retry bool
		if retry, err = attempt(n); err == nil || !retry {
			return err
		}
	}
	return err
}

// Retrier sends requests with Backoff, retrying transport errors and
// Retryable statuses.
type Retrier struct {
	Client     *http.Client
	MaxRetries int
	Delay      time.Duration
	Logger     *slog.Logger

	// Wrap converts transport errors. Nil returns them unchanged.
	Wrap func(error) error

	// ParseError turns a retryable answer into the error returned once
	// retries run out. Do closes the body afterwards.
	ParseError func(*http.Response) error
}

// Do sends req. body is replayed on every retry; nil means no body.
// Answers that are not retried, error statuses included, come back open.
func (r *Retrier) Do(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var resp *http.Response
	err := Backoff(ctx, r.MaxRetries, r.Delay, func(n int) (bool, error) {
		if n > 0 && body != nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
		}

		res, err := r.Client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			logger.Warn("request failed", "attempt", n+1, "error", err)
			if r.Wrap != nil {
				err = r.Wrap(err)
			}
			return true, err
		}

		if Retryable(res.StatusCode) {
			defer res.Body.Close()
			logger.Warn("retryable status", "attempt", n+1, "status", res.StatusCode)
			if r.ParseError != nil {
				return true, r.ParseError(res)
			}
			return true, fmt.Errorf("http status %d", res.StatusCode)
		}

		resp = res
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}
