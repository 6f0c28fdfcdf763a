// Package metrics exports server counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/teslashibe/go-parley/pkg/voice"
)

// Namespace prefixes every metric name.
const Namespace = "parley"

// Frame drop reasons.
const (
	DropRateLimited = "rate_limited"
	DropMalformed   = "malformed"
	DropDecode      = "decode"
)

// Turn outcomes.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Collector holds the server's Prometheus metrics.
// A nil *Collector is valid and records nothing.
type Collector struct {
	sessionsActive prometheus.Gauge
	sessionsTotal  prometheus.Counter
	framesReceived *prometheus.CounterVec
	framesDropped  *prometheus.CounterVec
	turnsTotal     *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	audioBytesOut  prometheus.Counter
}

// New registers the metrics on reg. Use prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)

	return &Collector{
		sessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "sessions_active",
			Help:      "Open conversation websockets",
		}),
		sessionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sessions_total",
			Help:      "Conversation websockets accepted",
		}),
		framesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "frames_received_total",
			Help:      "Inbound frames by type",
		}, []string{"type"}),
		framesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "frames_dropped_total",
			Help:      "Inbound frames discarded before processing, by reason",
		}, []string{"reason"}),
		turnsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "turns_total",
			Help:      "Conversation turns by outcome",
		}, []string{"outcome"}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"stage"}),
		audioBytesOut: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "audio_bytes_out_total",
			Help:      "Reply audio bytes sent to callers",
		}),
	}
}

// SessionStarted records an accepted connection.
func (c *Collector) SessionStarted() {
	if c == nil {
		return
	}
	c.sessionsActive.Inc()
	c.sessionsTotal.Inc()
}

// SessionEnded records a closed connection.
func (c *Collector) SessionEnded() {
	if c == nil {
		return
	}
	c.sessionsActive.Dec()
}

// FrameReceived counts an inbound frame of the given protocol type.
func (c *Collector) FrameReceived(frameType string) {
	if c == nil {
		return
	}
	c.framesReceived.WithLabelValues(frameType).Inc()
}

// FrameDropped counts a discarded frame.
func (c *Collector) FrameDropped(reason string) {
	if c == nil {
		return
	}
	c.framesDropped.WithLabelValues(reason).Inc()
}

// AudioSent counts reply audio bytes.
func (c *Collector) AudioSent(n int) {
	if c == nil {
		return
	}
	c.audioBytesOut.Add(float64(n))
}

// ObserveStage records a stage latency. STT is observed by the session loop;
// the other stages arrive through StageDone.
func (c *Collector) ObserveStage(stage voice.Stage, d time.Duration) {
	if c == nil {
		return
	}
	c.stageDuration.WithLabelValues(string(stage)).Observe(d.Seconds())
}

// StageDone implements voice.Observer.
func (c *Collector) StageDone(stage voice.Stage, d time.Duration, _ error) {
	c.ObserveStage(stage, d)
}

// TurnDone implements voice.Observer.
func (c *Collector) TurnDone(turn *voice.Turn) {
	if c == nil {
		return
	}
	outcome := OutcomeOK
	if turn.Err != nil {
		outcome = OutcomeFailed
	}
	c.turnsTotal.WithLabelValues(outcome).Inc()
}

var _ voice.Observer = (*Collector)(nil)
