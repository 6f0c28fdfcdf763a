package stt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/teslashibe/go-parley/pkg/audio"
)

func voicedPCM(d time.Duration) []byte {
	samples := make([]int16, audio.BytesFor(d, 16000)/2)
	for i := range samples {
		samples[i] = 6000
		if i%2 == 1 {
			samples[i] = -6000
		}
	}
	return audio.SamplesToBytes(samples)
}

func silentPCM(d time.Duration) []byte {
	return make([]byte, audio.BytesFor(d, 16000))
}

func TestEndpointing_TranscribesUtterances(t *testing.T) {
	var gotRate int
	mt := &MockTranscriber{
		TranscribeFunc: func(ctx context.Context, pcm []byte, sampleRate int) (*Result, error) {
			gotRate = sampleRate
			return &Result{Text: " good morning ", Confidence: 0.8}, nil
		},
	}

	factory, err := NewEndpointing(mt, WithSampleRate(16000))
	if err != nil {
		t.Fatal(err)
	}
	rec, err := factory.NewRecognizer(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer rec.Close()

	ctx := context.Background()
	if final, _ := rec.AcceptWaveform(ctx, voicedPCM(500*time.Millisecond)); final {
		t.Fatal("speech alone should not finalize")
	}

	final, err := rec.AcceptWaveform(ctx, silentPCM(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if !final {
		t.Fatal("trailing silence should finalize")
	}
	if mt.CallCount() != 1 {
		t.Errorf("expected 1 transcription, got %d", mt.CallCount())
	}
	if gotRate != 16000 {
		t.Errorf("expected 16000 Hz, got %d", gotRate)
	}

	res := rec.Result()
	if res.Text != "good morning" {
		t.Errorf("unexpected text %q", res.Text)
	}
	if res.Confidence != 0.8 {
		t.Errorf("unexpected confidence %f", res.Confidence)
	}
}

func TestEndpointing_TranscriberError(t *testing.T) {
	boom := errors.New("boom")
	mt := &MockTranscriber{
		TranscribeFunc: func(ctx context.Context, pcm []byte, sampleRate int) (*Result, error) {
			return nil, boom
		},
	}

	factory, _ := NewEndpointing(mt)
	rec, _ := factory.NewRecognizer(context.Background())

	stream := append(voicedPCM(400*time.Millisecond), silentPCM(time.Second)...)
	if _, err := rec.AcceptWaveform(context.Background(), stream); !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
}

func TestEndpointing_SilenceNeverTranscribes(t *testing.T) {
	mt := &MockTranscriber{}
	factory, _ := NewEndpointing(mt)
	rec, _ := factory.NewRecognizer(context.Background())

	for i := 0; i < 10; i++ {
		if final, _ := rec.AcceptWaveform(context.Background(), silentPCM(200*time.Millisecond)); final {
			t.Fatal("silence should never finalize")
		}
	}
	if mt.CallCount() != 0 {
		t.Errorf("expected no transcriptions, got %d", mt.CallCount())
	}
}

func TestEndpointing_Closed(t *testing.T) {
	factory, _ := NewEndpointing(&MockTranscriber{})
	rec, _ := factory.NewRecognizer(context.Background())
	rec.Close()
	if _, err := rec.AcceptWaveform(context.Background(), silentPCM(20*time.Millisecond)); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestEndpointing_InvalidConfig(t *testing.T) {
	cfg := audio.DefaultEndpointConfig()
	cfg.Threshold = 0
	if _, err := NewEndpointing(&MockTranscriber{}, WithEndpoint(cfg)); err == nil {
		t.Error("expected config error")
	}
}
