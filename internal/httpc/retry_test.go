package httpc

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestRetryable(t *testing.T) {
	for status, want := range map[int]bool{
		200: false,
		400: false,
		404: false,
		429: true,
		500: true,
		503: true,
	} {
		if got := Retryable(status); got != want {
			t.Errorf("Retryable(%d) = %v, want %v", status, got, want)
		}
	}
}

func TestBackoffStopsOnPermanentError(t *testing.T) {
	perm := errors.New("bad request")
	var calls int
	err := Backoff(context.Background(), 3, time.Millisecond, func(n int) (bool, error) {
		calls++
		return false, perm
	})
	if !errors.Is(err, perm) || calls != 1 {
		t.Errorf("err = %v after %d calls, want bad request after 1", err, calls)
	}
}

func TestBackoffCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	err := Backoff(ctx, 3, time.Hour, func(n int) (bool, error) {
		cancel()
		return true, errors.New("flaky")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRetrierReplaysBody(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != "payload" {
			t.Errorf("attempt %d body = %q", attempts.Load()+1, body)
		}
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	r := &Retrier{Client: server.Client(), MaxRetries: 3, Delay: time.Millisecond}
	req, _ := http.NewRequest(http.MethodPost, server.URL, strings.NewReader("payload"))
	resp, err := r.Do(context.Background(), req, []byte("payload"))
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer resp.Body.Close()
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestRetrierExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer server.Close()

	r := &Retrier{
		Client:     server.Client(),
		MaxRetries: 1,
		Delay:      time.Millisecond,
		ParseError: func(resp *http.Response) error {
			b, _ := io.ReadAll(resp.Body)
			return errors.New(strings.TrimSpace(string(b)))
		},
	}
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	if _, err := r.Do(context.Background(), req, nil); err == nil || err.Error() != "slow down" {
		t.Errorf("expected parsed error, got %v", err)
	}
}

func TestRetrierReturnsClientErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	r := &Retrier{Client: server.Client(), MaxRetries: 3, Delay: time.Millisecond}
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := r.Do(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized || attempts.Load() != 1 {
		t.Errorf("status %d after %d attempts", resp.StatusCode, attempts.Load())
	}
}
