package tts_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/teslashibe/go-parley/internal/log"
	"github.com/teslashibe/go-parley/pkg/audio"
	"github.com/teslashibe/go-parley/pkg/tts"
)

func TestMockProvider(t *testing.T) {
	mock := tts.NewMock()
	ctx := context.Background()

	t.Run("Synthesize returns a WAV", func(t *testing.T) {
		result, err := mock.Synthesize(ctx, "Hello world")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !audio.IsWAV(result.Audio) {
			t.Error("expected WAV audio")
		}
		if result.CharCount != 11 {
			t.Errorf("expected 11 chars, got %d", result.CharCount)
		}
		if result.Duration != 220*time.Millisecond {
			t.Errorf("expected 220ms, got %v", result.Duration)
		}
	})

	t.Run("Stream returns audio stream", func(t *testing.T) {
		stream, err := mock.Stream(ctx, "Test stream")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer stream.Close()

		chunk, err := stream.Read()
		if err != nil || len(chunk) == 0 {
			t.Fatalf("Read() = %d bytes, %v", len(chunk), err)
		}
		if chunk, _ := stream.Read(); chunk != nil {
			t.Error("expected end of stream")
		}
	})

	t.Run("Calls are tracked", func(t *testing.T) {
		if mock.CallCount("Synthesize") != 1 {
			t.Errorf("expected 1 Synthesize call, got %d", mock.CallCount("Synthesize"))
		}
		if last := mock.LastCall(); last == nil || last.Method != "Stream" {
			t.Errorf("LastCall() = %+v", last)
		}
		mock.Reset()
		if len(mock.Calls()) != 0 {
			t.Error("expected no calls after Reset")
		}
	})
}

func TestMockWithError(t *testing.T) {
	expectedErr := errors.New("test error")
	mock := tts.WithError(expectedErr)
	ctx := context.Background()

	if _, err := mock.Synthesize(ctx, "test"); !errors.Is(err, expectedErr) {
		t.Errorf("Synthesize error = %v", err)
	}
	if _, err := mock.Stream(ctx, "test"); !errors.Is(err, expectedErr) {
		t.Errorf("Stream error = %v", err)
	}
	if err := mock.Health(ctx); !errors.Is(err, expectedErr) {
		t.Errorf("Health error = %v", err)
	}
}

func TestMockWithLatency(t *testing.T) {
	mock := tts.WithLatency(tts.NewMock(), time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := mock.Synthesize(ctx, "slow"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want DeadlineExceeded", err)
	}
}

func TestFunctionalOptions(t *testing.T) {
	cfg := tts.DefaultConfig()
	cfg.Apply(
		tts.WithAPIKey("key"),
		tts.WithVoice("Craig"),
		tts.WithModel("inworld-tts-1"),
		tts.WithLanguage("en-GB"),
		tts.WithOutputFormat(tts.EncodingWAV),
		tts.WithTimeout(5*time.Second),
		tts.WithRetry(1, time.Millisecond),
	)

	if cfg.APIKey != "key" || cfg.VoiceID != "Craig" || cfg.ModelID != "inworld-tts-1" {
		t.Errorf("credentials/voice not applied: %+v", cfg)
	}
	if cfg.LanguageCode != "en-GB" || cfg.OutputFormat != tts.EncodingWAV {
		t.Errorf("language/format not applied: %+v", cfg)
	}
	if cfg.Timeout != 5*time.Second || cfg.MaxRetries != 1 || cfg.RetryDelay != time.Millisecond {
		t.Errorf("timeouts not applied: %+v", cfg)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		opts    []tts.Option
		voice   bool
		wantErr error
	}{
		{"missing key", nil, false, tts.ErrNoAPIKey},
		{"key only", []tts.Option{tts.WithAPIKey("k")}, false, nil},
		{"missing voice", []tts.Option{tts.WithAPIKey("k")}, true, tts.ErrNoVoiceID},
		{"key and voice", []tts.Option{tts.WithAPIKey("k"), tts.WithVoice("v")}, true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tts.DefaultConfig()
			cfg.Apply(tt.opts...)
			var err error
			if tt.voice {
				err = cfg.ValidateWithVoice()
			} else {
				err = cfg.Validate()
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
		unauth    bool
	}{
		{401, false, true},
		{400, false, false},
		{429, true, false},
		{503, true, false},
	}
	for _, tt := range tests {
		e := &tts.APIError{StatusCode: tt.status, Provider: "x"}
		if e.IsRetryable() != tt.retryable || e.IsUnauthorized() != tt.unauth {
			t.Errorf("status %d: retryable=%v unauthorized=%v", tt.status, e.IsRetryable(), e.IsUnauthorized())
		}
	}

	withCode := &tts.APIError{StatusCode: 400, Code: "bad_voice", Message: "nope", Provider: "openai"}
	if got := withCode.Error(); got != "tts [openai]: API error 400 (bad_voice): nope" {
		t.Errorf("Error() = %q", got)
	}
}

func TestEncoding(t *testing.T) {
	tests := []struct {
		enc  tts.Encoding
		rate int
		mime string
		pcm  bool
	}{
		{tts.EncodingPCM16, 16000, "audio/pcm", true},
		{tts.EncodingPCM24, 24000, "audio/pcm", true},
		{tts.EncodingMP3, 44100, "audio/mpeg", false},
		{tts.EncodingWAV, 0, "audio/wav", false},
	}
	for _, tt := range tests {
		if got := tts.SampleRateFromEncoding(tt.enc); got != tt.rate {
			t.Errorf("SampleRateFromEncoding(%s) = %d, want %d", tt.enc, got, tt.rate)
		}
		if got := tt.enc.MIME(); got != tt.mime {
			t.Errorf("%s.MIME() = %q, want %q", tt.enc, got, tt.mime)
		}
		if tt.enc.IsPCM() != tt.pcm {
			t.Errorf("%s.IsPCM() = %v", tt.enc, tt.enc.IsPCM())
		}
	}
}

func TestChain(t *testing.T) {
	ctx := context.Background()
	logger := log.Discard()

	t.Run("requires at least one provider", func(t *testing.T) {
		if _, err := tts.NewChain(); !errors.Is(err, tts.ErrProviderUnavailable) {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("uses first provider", func(t *testing.T) {
		mock1, mock2 := tts.NewMock(), tts.NewMock()
		chain, _ := tts.NewChainWithLogger(logger, mock1, mock2)

		if _, err := chain.Synthesize(ctx, "test"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if mock1.CallCount("Synthesize") != 1 || mock2.CallCount("Synthesize") != 0 {
			t.Error("expected only the first provider to be called")
		}
	})

	t.Run("falls back on failure", func(t *testing.T) {
		fail := tts.WithError(errors.New("glow-tts down"))
		ok := tts.NewMock()
		chain, _ := tts.NewChainWithLogger(logger, fail, ok)

		result, err := chain.Synthesize(ctx, "test")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result == nil || ok.CallCount("Synthesize") != 1 {
			t.Error("expected result from fallback provider")
		}
	})

	t.Run("all fail", func(t *testing.T) {
		err1, err2 := errors.New("first"), errors.New("second")
		chain, _ := tts.NewChainWithLogger(logger, tts.WithError(err1), tts.WithError(err2))

		_, err := chain.Synthesize(ctx, "test")
		var chainErr *tts.ChainError
		if !errors.As(err, &chainErr) || len(chainErr.Errors) != 2 {
			t.Fatalf("error = %v, want ChainError with 2 errors", err)
		}
		if !errors.Is(err, tts.ErrAllProvidersFailed) || !errors.Is(err, err1) || !errors.Is(err, err2) {
			t.Errorf("error %v does not match its causes", err)
		}
	})

	t.Run("empty text stops the chain", func(t *testing.T) {
		first := tts.WithError(tts.ErrEmptyText)
		second := tts.NewMock()
		chain, _ := tts.NewChainWithLogger(logger, first, second)

		if _, err := chain.Synthesize(ctx, ""); !errors.Is(err, tts.ErrEmptyText) {
			t.Errorf("error = %v", err)
		}
		if second.CallCount("Synthesize") != 0 {
			t.Error("second provider should not be tried")
		}
	})

	t.Run("health passes if any provider is healthy", func(t *testing.T) {
		chain, _ := tts.NewChainWithLogger(logger, tts.WithError(errors.New("down")), tts.NewMock())
		if err := chain.Health(ctx); err != nil {
			t.Errorf("Health() error = %v", err)
		}

		dead, _ := tts.NewChainWithLogger(logger, tts.WithError(errors.New("down")))
		if err := dead.Health(ctx); err == nil {
			t.Error("expected error when all providers are unhealthy")
		}
	})
}

func TestProviderError(t *testing.T) {
	inner := errors.New("connection refused")
	err := tts.WrapError("coqui", inner)

	if err.Error() != "tts [coqui]: connection refused" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Error("expected wrapped error to match")
	}
	if tts.WrapError("coqui", nil) != nil {
		t.Error("WrapError(nil) should be nil")
	}
}
