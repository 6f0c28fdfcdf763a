// Package disfluency rewrites generated replies so they sound spoken:
// fillers, false starts and hedges ("um, I mean, like...").
//
// The primary provider is a T5 text2text model prompted with
// "add disfluencies: <text>". Any failure is recoverable; callers fall
// back to the unstyled reply.
package disfluency

import "context"

// PromptPrefix is prepended to the text for text2text models.
const PromptPrefix = "add disfluencies: "

// Rewriter adds disfluencies to a reply.
type Rewriter interface {
	// Rewrite returns text with disfluencies added.
	Rewrite(ctx context.Context, text string) (string, error)
}

// HealthChecker is implemented by rewriters backed by a remote service.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Params are the generation parameters sent to text2text models.
type Params struct {
	MaxLength         int     `json:"max_length"`
	NumBeams          int     `json:"num_beams"`
	Temperature       float64 `json:"temperature"`
	DoSample          bool    `json:"do_sample"`
	NoRepeatNgramSize int     `json:"no_repeat_ngram_size"`
}

// DefaultParams returns the generation parameters the model was tuned with.
func DefaultParams() Params {
	return Params{
		MaxLength:         60,
		NumBeams:          3,
		Temperature:       0.8,
		DoSample:          true,
		NoRepeatNgramSize: 2,
	}
}

// None returns text unchanged.
type None struct{}

// Rewrite returns text.
func (None) Rewrite(_ context.Context, text string) (string, error) {
	return text, nil
}

var _ Rewriter = None{}
