// Package conversation turns what the caller said into a short spoken reply.
//
// Every turn builds a fresh prompt from the persona instruction and the
// latest utterance only; no history is carried between turns:
//
//	<instruction>
//	Me: <user text>
//	You:
//
// The model output is then cleaned so that only the first line of the
// friend's answer survives.
package conversation

import (
	"context"
	"strings"
	"time"

	"github.com/teslashibe/go-parley/pkg/inference"
)

// Generator produces a reply for one user utterance.
type Generator interface {
	Reply(ctx context.Context, userText string) (*Reply, error)
}

// Reply is a generated response.
type Reply struct {
	// Text is the cleaned reply, never empty.
	Text string

	// Raw is the model output before cleaning.
	Raw string

	// Prompt is what was sent to the model.
	Prompt string

	// FinishReason indicates why generation stopped.
	FinishReason string

	// Usage tracks token consumption.
	Usage inference.Usage

	// Latency is the wall time of the model call.
	Latency time.Duration
}

// BuildPrompt renders the completion prompt for a single turn.
func BuildPrompt(instruction, userText string) string {
	return instruction + "\nMe: " + userText + "\nYou:"
}

// CleanReply extracts the spoken answer from raw model output.
// The steps run in order: drop an echoed prompt, trim, keep what follows the
// first "You:", keep the first line.
func CleanReply(prompt, generated string) string {
	answer := strings.TrimPrefix(generated, prompt)
	answer = strings.TrimSpace(answer)

	if _, after, ok := strings.Cut(answer, "You:"); ok {
		answer = strings.TrimSpace(after)
	}
	if first, _, ok := strings.Cut(answer, "\n"); ok {
		answer = strings.TrimSpace(first)
	}
	return answer
}
