package voice

import (
	"math"
	"strconv"
	"sync"
	"time"
)

// Timings holds per-stage latency for one turn.
type Timings struct {
	STT        time.Duration `json:"stt"`
	LLM        time.Duration `json:"llm"`
	Disfluency time.Duration `json:"disfluency"`
	TTS        time.Duration `json:"tts"`
	Total      time.Duration `json:"total"`
}

// Of returns the duration recorded for stage.
func (t Timings) Of(stage Stage) time.Duration {
	switch stage {
	case StageSTT:
		return t.STT
	case StageLLM:
		return t.LLM
	case StageDisfluency:
		return t.Disfluency
	case StageTTS:
		return t.TTS
	}
	return 0
}

// FormatLatency returns a one-line summary in seconds.
func (t Timings) FormatLatency() string {
	return formatSeconds(t.STT) + " STT | " +
		formatSeconds(t.LLM) + " LLM | " +
		formatSeconds(t.Disfluency) + " DIS | " +
		formatSeconds(t.TTS) + " TTS | " +
		formatSeconds(t.Total) + " TOTAL"
}

// Seconds rounds d to tenths of a second.
func Seconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*10) / 10
}

func formatSeconds(d time.Duration) string {
	if d == 0 {
		return "---s"
	}
	return strconv.FormatFloat(Seconds(d), 'f', 1, 64) + "s"
}

// Observer is notified as turns progress. Implementations must be safe for
// concurrent use; sessions run their pipelines in parallel.
type Observer interface {
	// StageDone is called after each stage with its latency and error.
	StageDone(stage Stage, d time.Duration, err error)

	// TurnDone is called once per turn, successful or not.
	TurnDone(turn *Turn)
}

// historySize is how many turns LatencyTracker keeps.
const historySize = 100

// LatencyTracker keeps timings of recent successful turns.
// It is goroutine-safe.
type LatencyTracker struct {
	mu      sync.Mutex
	history []Timings
	turns   int
}

// NewLatencyTracker creates an empty tracker.
func NewLatencyTracker() *LatencyTracker {
	return &LatencyTracker{
		history: make([]Timings, 0, historySize),
	}
}

// Record adds a turn's timings.
func (l *LatencyTracker) Record(t Timings) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns++
	l.history = append(l.history, t)
	if len(l.history) > historySize {
		l.history = l.history[1:]
	}
}

// Last returns the most recent timings.
func (l *LatencyTracker) Last() (Timings, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.history) == 0 {
		return Timings{}, false
	}
	return l.history[len(l.history)-1], true
}

// Turns returns the number of turns recorded since creation.
func (l *LatencyTracker) Turns() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.turns
}

// Average returns average timings over recent turns.
func (l *LatencyTracker) Average() Timings {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.history) == 0 {
		return Timings{}
	}

	var avg Timings
	for _, h := range l.history {
		avg.STT += h.STT
		avg.LLM += h.LLM
		avg.Disfluency += h.Disfluency
		avg.TTS += h.TTS
		avg.Total += h.Total
	}

	n := time.Duration(len(l.history))
	avg.STT /= n
	avg.LLM /= n
	avg.Disfluency /= n
	avg.TTS /= n
	avg.Total /= n
	return avg
}
