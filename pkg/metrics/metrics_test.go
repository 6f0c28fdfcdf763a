package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/teslashibe/go-parley/pkg/voice"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.SessionStarted()
	c.SessionStarted()
	c.SessionEnded()
	c.FrameReceived("AUDIO")
	c.FrameReceived("AUDIO")
	c.FrameDropped(DropRateLimited)
	c.AudioSent(1000)
	c.TurnDone(&voice.Turn{})
	c.TurnDone(&voice.Turn{Err: errors.New("tts down")})
	c.StageDone(voice.StageLLM, 1500*time.Millisecond, nil)

	if got := testutil.ToFloat64(c.sessionsActive); got != 1 {
		t.Errorf("sessions_active = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.sessionsTotal); got != 2 {
		t.Errorf("sessions_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.framesReceived.WithLabelValues("AUDIO")); got != 2 {
		t.Errorf("frames_received_total{AUDIO} = %v", got)
	}
	if got := testutil.ToFloat64(c.framesDropped.WithLabelValues(DropRateLimited)); got != 1 {
		t.Errorf("frames_dropped_total = %v", got)
	}
	if got := testutil.ToFloat64(c.turnsTotal.WithLabelValues(OutcomeFailed)); got != 1 {
		t.Errorf("turns_total{failed} = %v", got)
	}
	if got := testutil.ToFloat64(c.audioBytesOut); got != 1000 {
		t.Errorf("audio_bytes_out_total = %v", got)
	}

	expected := `
# HELP parley_stage_duration_seconds Pipeline stage latency in seconds
# TYPE parley_stage_duration_seconds histogram
parley_stage_duration_seconds_bucket{stage="llm",le="0.05"} 0
parley_stage_duration_seconds_bucket{stage="llm",le="0.1"} 0
parley_stage_duration_seconds_bucket{stage="llm",le="0.25"} 0
parley_stage_duration_seconds_bucket{stage="llm",le="0.5"} 0
parley_stage_duration_seconds_bucket{stage="llm",le="1"} 0
parley_stage_duration_seconds_bucket{stage="llm",le="2"} 1
parley_stage_duration_seconds_bucket{stage="llm",le="5"} 1
parley_stage_duration_seconds_bucket{stage="llm",le="10"} 1
parley_stage_duration_seconds_bucket{stage="llm",le="30"} 1
parley_stage_duration_seconds_bucket{stage="llm",le="60"} 1
parley_stage_duration_seconds_bucket{stage="llm",le="+Inf"} 1
parley_stage_duration_seconds_sum{stage="llm"} 1.5
parley_stage_duration_seconds_count{stage="llm"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "parley_stage_duration_seconds"); err != nil {
		t.Error(err)
	}
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.SessionStarted()
	c.FrameDropped(DropMalformed)
	c.StageDone(voice.StageTTS, time.Second, nil)
	c.TurnDone(&voice.Turn{})
}

func TestRegistersOncePerRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected duplicate registration to panic")
		}
	}()
	New(reg)
}
