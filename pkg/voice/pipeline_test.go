package voice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-parley/internal/log"
	"github.com/teslashibe/go-parley/pkg/conversation"
	"github.com/teslashibe/go-parley/pkg/disfluency"
	"github.com/teslashibe/go-parley/pkg/tts"
)

type recorder struct {
	mu     sync.Mutex
	stages []Stage
	turns  []*Turn
}

func (r *recorder) StageDone(stage Stage, d time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, stage)
}

func (r *recorder) TurnDone(turn *Turn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, turn)
}

func newTestPipeline(t *testing.T, gen conversation.Generator, rw disfluency.Rewriter, synth tts.Provider, opts ...Option) (*Pipeline, *recorder) {
	t.Helper()
	rec := &recorder{}
	opts = append([]Option{WithObserver(rec), WithLogger(log.Discard())}, opts...)
	p, err := New(gen, rw, synth, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p, rec
}

func TestProcessTurn(t *testing.T) {
	gen := &conversation.Mock{}
	rw := disfluency.NewMock()
	synth := tts.NewMock()
	p, rec := newTestPipeline(t, gen, rw, synth)

	turn, err := p.ProcessTurn(context.Background(), Transcript{
		SessionID: "s1",
		Text:      "  how are you ",
		STT:       400 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}

	if turn.Transcript != "how are you" || turn.SessionID != "s1" || turn.ID == "" {
		t.Errorf("turn = %+v", turn)
	}
	if turn.Reply != "you said: how are you" {
		t.Errorf("Reply = %q", turn.Reply)
	}
	if turn.Styled != "um, you said: how are you" || turn.Plain {
		t.Errorf("Styled = %q, Plain = %v", turn.Styled, turn.Plain)
	}
	if !turn.OK() || turn.Format.Encoding != tts.EncodingWAV {
		t.Errorf("audio = %d bytes, format %+v", len(turn.Audio), turn.Format)
	}
	if last := synth.LastCall(); last == nil || last.Text != turn.Styled {
		t.Errorf("synthesized %+v, want styled text", last)
	}
	if turn.Timings.STT != 400*time.Millisecond || turn.Timings.Total < turn.Timings.STT {
		t.Errorf("Timings = %+v", turn.Timings)
	}

	want := []Stage{StageLLM, StageDisfluency, StageTTS}
	if len(rec.stages) != len(want) {
		t.Fatalf("stages = %v, want %v", rec.stages, want)
	}
	for i := range want {
		if rec.stages[i] != want[i] {
			t.Errorf("stage %d = %s, want %s", i, rec.stages[i], want[i])
		}
	}
	if len(rec.turns) != 1 || p.Latency().Turns() != 1 {
		t.Errorf("turns observed = %d, tracked = %d", len(rec.turns), p.Latency().Turns())
	}
}

func TestProcessTurnEmptyTranscript(t *testing.T) {
	p, rec := newTestPipeline(t, &conversation.Mock{}, nil, tts.NewMock())

	if _, err := p.ProcessTurn(context.Background(), Transcript{Text: " \n"}); !errors.Is(err, ErrEmptyTranscript) {
		t.Errorf("error = %v, want ErrEmptyTranscript", err)
	}
	if len(rec.stages) != 0 {
		t.Errorf("stages ran: %v", rec.stages)
	}
}

func TestProcessTurnRewriteFallback(t *testing.T) {
	tests := []struct {
		name string
		rw   disfluency.Rewriter
	}{
		{"error", disfluency.WithError(errors.New("model loading"))},
		{"empty", &disfluency.Mock{RewriteFunc: func(ctx context.Context, text string) (string, error) {
			return "   ", nil
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			synth := tts.NewMock()
			p, _ := newTestPipeline(t, &conversation.Mock{}, tt.rw, synth)

			turn, err := p.ProcessTurn(context.Background(), Transcript{Text: "hi"})
			if err != nil {
				t.Fatalf("ProcessTurn() error = %v", err)
			}
			if !turn.Plain || turn.Styled != turn.Reply {
				t.Errorf("Styled = %q, Reply = %q, Plain = %v", turn.Styled, turn.Reply, turn.Plain)
			}
			if synth.LastCall().Text != turn.Reply {
				t.Error("expected the plain reply to be synthesized")
			}
		})
	}
}

func TestProcessTurnStageFailures(t *testing.T) {
	boom := errors.New("boom")

	t.Run("llm", func(t *testing.T) {
		gen := &conversation.Mock{ReplyFunc: func(ctx context.Context, text string) (*conversation.Reply, error) {
			return nil, boom
		}}
		synth := tts.NewMock()
		p, rec := newTestPipeline(t, gen, nil, synth)

		turn, err := p.ProcessTurn(context.Background(), Transcript{Text: "hi"})
		if StageOf(err) != StageLLM || !errors.Is(err, boom) {
			t.Fatalf("error = %v, want llm StageError", err)
		}
		if turn == nil || turn.Err != err || turn.OK() {
			t.Errorf("turn = %+v", turn)
		}
		if synth.CallCount("Synthesize") != 0 {
			t.Error("synthesis should not run after a failed generation")
		}
		if len(rec.turns) != 1 {
			t.Errorf("observer saw %d turns", len(rec.turns))
		}
	})

	t.Run("tts", func(t *testing.T) {
		p, _ := newTestPipeline(t, &conversation.Mock{}, disfluency.NewMock(), tts.WithError(boom))

		turn, err := p.ProcessTurn(context.Background(), Transcript{Text: "hi"})
		var se *StageError
		if !errors.As(err, &se) || se.Stage != StageTTS {
			t.Fatalf("error = %v, want tts StageError", err)
		}
		if turn.Styled == "" || turn.Audio != nil {
			t.Errorf("turn = %+v", turn)
		}
		if p.Latency().Turns() != 0 {
			t.Error("failed turns should not be tracked")
		}
	})
}

func TestProcessTurnStageTimeout(t *testing.T) {
	gen := &conversation.Mock{ReplyFunc: func(ctx context.Context, text string) (*conversation.Reply, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	p, _ := newTestPipeline(t, gen, nil, tts.NewMock(), WithStageTimeouts(20*time.Millisecond, time.Second, time.Second))

	start := time.Now()
	_, err := p.ProcessTurn(context.Background(), Transcript{Text: "hi"})
	if !errors.Is(err, context.DeadlineExceeded) || StageOf(err) != StageLLM {
		t.Errorf("error = %v, want llm deadline", err)
	}
	if time.Since(start) > time.Second {
		t.Error("stage timeout not applied")
	}
}

func TestProcessTurnCancelledDuringRewrite(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rw := &disfluency.Mock{RewriteFunc: func(ctx context.Context, text string) (string, error) {
		cancel()
		return "", ctx.Err()
	}}
	synth := tts.NewMock()
	p, _ := newTestPipeline(t, &conversation.Mock{}, rw, synth)

	_, err := p.ProcessTurn(ctx, Transcript{Text: "hi"})
	if !errors.Is(err, context.Canceled) || StageOf(err) != StageDisfluency {
		t.Errorf("error = %v, want cancelled disfluency stage", err)
	}
	if synth.CallCount("Synthesize") != 0 {
		t.Error("synthesis should not run on a cancelled session")
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(nil, nil, tts.NewMock()); !errors.Is(err, ErrMissingStage) {
		t.Errorf("nil generator error = %v", err)
	}
	if _, err := New(&conversation.Mock{}, nil, nil); !errors.Is(err, ErrMissingStage) {
		t.Errorf("nil synth error = %v", err)
	}
	if _, err := New(&conversation.Mock{}, nil, tts.NewMock(), WithStageTimeouts(0, time.Second, time.Second)); err == nil {
		t.Error("expected error for zero timeout")
	}
}

func TestLatencyTracker(t *testing.T) {
	l := NewLatencyTracker()
	if _, ok := l.Last(); ok {
		t.Error("empty tracker should have no last turn")
	}

	l.Record(Timings{LLM: time.Second, Total: 2 * time.Second})
	l.Record(Timings{LLM: 3 * time.Second, Total: 4 * time.Second})

	avg := l.Average()
	if avg.LLM != 2*time.Second || avg.Total != 3*time.Second {
		t.Errorf("Average() = %+v", avg)
	}
	if last, _ := l.Last(); last.LLM != 3*time.Second {
		t.Errorf("Last() = %+v", last)
	}

	for i := 0; i < historySize+5; i++ {
		l.Record(Timings{})
	}
	if l.Turns() != historySize+7 {
		t.Errorf("Turns() = %d", l.Turns())
	}
}

func TestSeconds(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want float64
	}{
		{0, 0},
		{1249 * time.Millisecond, 1.2},
		{1250 * time.Millisecond, 1.3},
		{87 * time.Millisecond, 0.1},
	}
	for _, tt := range tests {
		if got := Seconds(tt.d); got != tt.want {
			t.Errorf("Seconds(%v) = %v, want %v", tt.d, got, tt.want)
		}
	}

	got := Timings{STT: 1500 * time.Millisecond}.FormatLatency()
	if got != "1.5s STT | ---s LLM | ---s DIS | ---s TTS | ---s TOTAL" {
		t.Errorf("FormatLatency() = %q", got)
	}
}
