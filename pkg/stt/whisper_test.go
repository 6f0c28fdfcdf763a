package stt

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-parley/pkg/audio"
)

func TestWhisper_Transcribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing bearer token")
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.FormValue("model") != "whisper-1" {
			t.Errorf("expected whisper-1, got %q", r.FormValue("model"))
		}
		if r.FormValue("response_format") != "json" {
			t.Errorf("expected json response format")
		}
		if r.FormValue("language") != "en" {
			t.Errorf("expected language en, got %q", r.FormValue("language"))
		}

		file, _, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("missing file: %v", err)
		}
		data, _ := io.ReadAll(file)
		if !audio.IsWAV(data) {
			t.Error("upload is not a WAV file")
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":" How are you? "}`))
	}))
	defer srv.Close()

	w, err := NewWhisper(WithAPIKey("sk-test"), WithBaseURL(srv.URL+"/v1"))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	res, err := w.Transcribe(context.Background(), make([]byte, 32000), 16000)
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if res.Text != "How are you?" {
		t.Errorf("unexpected text %q", res.Text)
	}
	if res.Duration != time.Second {
		t.Errorf("expected 1s, got %v", res.Duration)
	}
}

func TestWhisper_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":{"message":"busy"}}`))
			return
		}
		w.Write([]byte(`{"text":"ok"}`))
	}))
	defer srv.Close()

	w, _ := NewWhisper(WithBaseURL(srv.URL), WithRetry(2, time.Millisecond))
	res, err := w.Transcribe(context.Background(), make([]byte, 640), 16000)
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if res.Text != "ok" || atomic.LoadInt32(&calls) != 2 {
		t.Errorf("expected retry then ok, got %q after %d calls", res.Text, calls)
	}
}

func TestWhisper_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer srv.Close()

	w, _ := NewWhisper(WithBaseURL(srv.URL))
	_, err := w.Transcribe(context.Background(), make([]byte, 640), 16000)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != 401 || apiErr.Message != "bad key" || apiErr.IsRetryable() {
		t.Errorf("unexpected error %+v", apiErr)
	}
}

func TestWhisper_Validation(t *testing.T) {
	if _, err := NewWhisper(); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}

	w, _ := NewWhisper(WithAPIKey("k"))
	if _, err := w.Transcribe(context.Background(), nil, 16000); !errors.Is(err, ErrEmptyAudio) {
		t.Errorf("expected ErrEmptyAudio, got %v", err)
	}
}
