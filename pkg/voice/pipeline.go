package voice

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-parley/pkg/conversation"
	"github.com/teslashibe/go-parley/pkg/disfluency"
	"github.com/teslashibe/go-parley/pkg/tts"
)

// Transcript is a finished recognition result entering the pipeline.
type Transcript struct {
	// ID becomes the turn id. A new one is generated when empty.
	ID         string
	SessionID  string
	Text       string
	Confidence float64

	// STT is how long recognition took, for the turn's timings.
	STT time.Duration
}

// Turn is the outcome of one pass through the pipeline.
type Turn struct {
	ID         string
	SessionID  string
	Transcript string

	// Reply is the generated text; Styled is what was spoken.
	Reply  string
	Styled string

	// Plain is set when rewriting failed and Styled is the unmodified Reply.
	Plain bool

	Audio  []byte
	Format tts.AudioFormat

	Timings Timings
	Started time.Time

	// Err is the error that ended the turn, if any.
	Err error
}

// OK reports whether the turn produced audio.
func (t *Turn) OK() bool {
	return t.Err == nil && len(t.Audio) > 0
}

// Pipeline turns transcripts into reply audio. It holds no per-session
// state and is safe for concurrent use.
type Pipeline struct {
	generator conversation.Generator
	rewriter  disfluency.Rewriter
	synth     tts.Provider
	config    *Config
	latency   *LatencyTracker
	logger    *slog.Logger
}

// New creates a pipeline. rewriter may be nil to skip rewriting.
func New(generator conversation.Generator, rewriter disfluency.Rewriter, synth tts.Provider, opts ...Option) (*Pipeline, error) {
	if generator == nil || synth == nil {
		return nil, ErrMissingStage
	}
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rewriter == nil {
		rewriter = disfluency.None{}
	}

	return &Pipeline{
		generator: generator,
		rewriter:  rewriter,
		synth:     synth,
		config:    cfg,
		latency:   NewLatencyTracker(),
		logger:    cfg.Logger.With("component", "voice.pipeline"),
	}, nil
}

// ProcessTurn generates, rewrites and synthesizes a reply to tr.
// The returned Turn is non-nil whenever tr is non-blank, and carries the
// partial results of a failed turn.
func (p *Pipeline) ProcessTurn(ctx context.Context, tr Transcript) (*Turn, error) {
	text := strings.TrimSpace(tr.Text)
	if text == "" {
		return nil, ErrEmptyTranscript
	}

	id := tr.ID
	if id == "" {
		id = uuid.NewString()
	}
	turn := &Turn{
		ID:         id,
		SessionID:  tr.SessionID,
		Transcript: text,
		Started:    time.Now(),
		Timings:    Timings{STT: tr.STT},
	}
	logger := p.logger.With("session_id", tr.SessionID, "turn_id", turn.ID)
	logger.Info("user said", "text", text, "stt_s", Seconds(tr.STT))

	// Generate.
	var reply *conversation.Reply
	d, err := p.stage(ctx, StageLLM, p.config.LLMTimeout, func(ctx context.Context) error {
		var err error
		reply, err = p.generator.Reply(ctx, text)
		return err
	})
	turn.Timings.LLM = d
	if err != nil {
		return p.fail(logger, turn, StageLLM, err)
	}
	turn.Reply = reply.Text
	logger.Info("llm reply", "text", turn.Reply, "llm_s", Seconds(d))

	// Rewrite. Failure falls back to the plain reply.
	var styled string
	d, err = p.stage(ctx, StageDisfluency, p.config.DisfluencyTimeout, func(ctx context.Context) error {
		var err error
		styled, err = p.rewriter.Rewrite(ctx, turn.Reply)
		return err
	})
	turn.Timings.Disfluency = d
	if ctx.Err() != nil {
		return p.fail(logger, turn, StageDisfluency, ctx.Err())
	}
	styled = strings.TrimSpace(styled)
	if err != nil || styled == "" {
		logger.Warn("disfluency rewrite failed, using plain reply", "error", err)
		styled = turn.Reply
		turn.Plain = true
	}
	turn.Styled = styled
	logger.Info("final reply", "text", turn.Styled, "disfluency_s", Seconds(d))

	// Synthesize.
	var result *tts.AudioResult
	d, err = p.stage(ctx, StageTTS, p.config.TTSTimeout, func(ctx context.Context) error {
		var err error
		result, err = p.synth.Synthesize(ctx, turn.Styled)
		return err
	})
	turn.Timings.TTS = d
	if err != nil {
		return p.fail(logger, turn, StageTTS, err)
	}
	turn.Audio = result.Audio
	turn.Format = result.Format
	logger.Info("tts generated", "bytes", len(turn.Audio), "tts_s", Seconds(d))

	turn.Timings.Total = tr.STT + time.Since(turn.Started)
	p.latency.Record(turn.Timings)
	logger.Debug("turn done", "latency", turn.Timings.FormatLatency())

	if o := p.config.Observer; o != nil {
		o.TurnDone(turn)
	}
	return turn, nil
}

// Latency returns the tracker of recent turn timings.
func (p *Pipeline) Latency() *LatencyTracker {
	return p.latency
}

// Health checks every stage that can report health.
func (p *Pipeline) Health(ctx context.Context) map[Stage]error {
	out := map[Stage]error{StageTTS: p.synth.Health(ctx)}
	if h, ok := p.generator.(interface{ Health(context.Context) error }); ok {
		out[StageLLM] = h.Health(ctx)
	}
	if h, ok := p.rewriter.(disfluency.HealthChecker); ok {
		out[StageDisfluency] = h.Health(ctx)
	}
	return out
}

// stage runs fn under its own timeout and reports it to the observer.
func (p *Pipeline) stage(ctx context.Context, stage Stage, timeout time.Duration, fn func(context.Context) error) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	d := time.Since(start)

	if o := p.config.Observer; o != nil {
		o.StageDone(stage, d, err)
	}
	return d, err
}

func (p *Pipeline) fail(logger *slog.Logger, turn *Turn, stage Stage, err error) (*Turn, error) {
	turn.Err = &StageError{Stage: stage, Err: err}
	turn.Timings.Total = turn.Timings.STT + time.Since(turn.Started)
	logger.Error("turn failed", "stage", stage, "error", err)

	if o := p.config.Observer; o != nil {
		o.TurnDone(turn)
	}
	return turn, turn.Err
}
