package stt

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGoogle_Transcribe(t *testing.T) {
	pcm := []byte{1, 0, 2, 0}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/speech:recognize" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("missing api key")
		}

		var req struct {
			Config struct {
				Encoding        string `json:"encoding"`
				SampleRateHertz int    `json:"sampleRateHertz"`
				LanguageCode    string `json:"languageCode"`
			} `json:"config"`
			Audio struct {
				Content string `json:"content"`
			} `json:"audio"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.Config.Encoding != "LINEAR16" || req.Config.SampleRateHertz != 16000 {
			t.Errorf("unexpected config %+v", req.Config)
		}
		if req.Config.LanguageCode != "en-US" {
			t.Errorf("expected en-US, got %q", req.Config.LanguageCode)
		}
		if req.Audio.Content != base64.StdEncoding.EncodeToString(pcm) {
			t.Errorf("unexpected audio content")
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[
			{"alternatives":[{"transcript":"hi there","confidence":0.9}]},
			{"alternatives":[{"transcript":" friend ","confidence":0.7}]}
		]}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	g, err := NewGoogle(ctx, WithAPIKey("test-key"), WithBaseURL(srv.URL+"/"), WithLanguage("en"))
	if err != nil {
		t.Fatalf("NewGoogle failed: %v", err)
	}

	res, err := g.Transcribe(ctx, pcm, 16000)
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if res.Text != "hi there friend" {
		t.Errorf("unexpected text %q", res.Text)
	}
	if res.Confidence < 0.79 || res.Confidence > 0.81 {
		t.Errorf("expected mean confidence 0.8, got %f", res.Confidence)
	}
}

func TestGoogle_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"bad audio","status":"INVALID_ARGUMENT"}}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	g, err := NewGoogle(ctx, WithAPIKey("k"), WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatal(err)
	}

	_, err = g.Transcribe(ctx, []byte{0, 0}, 16000)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != 400 || apiErr.Provider != "google" {
		t.Errorf("unexpected error %+v", apiErr)
	}
}
