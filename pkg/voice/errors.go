package voice

import (
	"errors"
	"fmt"
)

// Stage names a pipeline step.
type Stage string

const (
	StageSTT        Stage = "stt"
	StageLLM        Stage = "llm"
	StageDisfluency Stage = "disfluency"
	StageTTS        Stage = "tts"
)

// Sentinel errors.
var (
	// ErrEmptyTranscript is returned for a blank transcript.
	ErrEmptyTranscript = errors.New("voice: empty transcript")

	// ErrMissingStage is returned by New when a required stage is nil.
	ErrMissingStage = errors.New("voice: missing stage")
)

// StageError reports which stage ended a turn.
type StageError struct {
	Stage Stage
	Err   error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("voice: %s stage: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error {
	return e.Err
}

// StageOf returns the failing stage of err, or "" if err is not a StageError.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
