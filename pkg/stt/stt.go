// Package stt provides streaming speech recognizers behind one interface.
//
// Recognizers follow the Kaldi/Vosk model: audio is pushed with
// AcceptWaveform, which reports true once an utterance has been finalized.
// Result then returns the final text. Providers that only offer batch
// transcription (Whisper, Google Cloud Speech) are wrapped in an endpointing
// recognizer that segments the stream locally.
//
// Example usage:
//
//	factory, _ := stt.NewVosk(stt.WithBaseURL("ws://localhost:2700"))
//	rec, _ := factory.NewRecognizer(ctx)
//	defer rec.Close()
//
//	if final, _ := rec.AcceptWaveform(ctx, pcm); final {
//	    fmt.Println(rec.Result().Text)
//	}
package stt

import (
	"context"
	"time"
)

// Recognizer is a stateful, single-stream speech recognizer.
// Implementations are not safe for concurrent use; each connection owns one.
type Recognizer interface {
	// AcceptWaveform feeds PCM16 mono audio at the configured sample rate.
	// It returns true when an utterance has been finalized and Result is ready.
	AcceptWaveform(ctx context.Context, pcm []byte) (bool, error)

	// Result returns the most recent final result.
	Result() Result

	// Reset discards any partial utterance.
	Reset()

	// Close releases the recognizer.
	Close() error
}

// Factory creates recognizers, one per stream.
type Factory interface {
	NewRecognizer(ctx context.Context) (Recognizer, error)
}

// Transcriber converts a complete utterance to text in one request.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRate int) (*Result, error)
}

// HealthChecker is implemented by factories that can probe their backend.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Result is a finalized recognition result.
type Result struct {
	// Text is the trimmed transcript. Empty when nothing was recognized.
	Text string `json:"text"`

	// Confidence is the mean word confidence (0.0-1.0), when the provider
	// reports one.
	Confidence float64 `json:"confidence,omitempty"`

	// Duration is the length of the audio that produced this result.
	Duration time.Duration `json:"duration,omitempty"`
}

// Empty reports whether the result carries no text.
func (r Result) Empty() bool {
	return r.Text == ""
}
