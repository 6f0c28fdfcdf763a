package audio

import (
	"fmt"
	"time"
)

// EndpointState is the current state of the endpointer.
type EndpointState int

const (
	// StateIdle waits for voiced audio.
	StateIdle EndpointState = iota
	// StateSpeech collects an utterance until enough trailing silence.
	StateSpeech
)

// String returns the state name.
func (s EndpointState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSpeech:
		return "speech"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EndpointConfig tunes energy based utterance detection.
type EndpointConfig struct {
	SampleRate    int
	FrameDuration time.Duration // analysis window (default 20ms)
	Threshold     float64       // Energy() at or above this is voiced
	Silence       time.Duration // trailing silence that ends an utterance
	MinSpeech     time.Duration // voiced audio required to emit an utterance
	MaxUtterance  time.Duration // hard cut for run-on speech
	PreRoll       time.Duration // audio kept from before speech onset
}

// DefaultEndpointConfig returns settings tuned for 16kHz phone-style speech.
func DefaultEndpointConfig() EndpointConfig {
	return EndpointConfig{
		SampleRate:    16000,
		FrameDuration: 20 * time.Millisecond,
		Threshold:     0.0005,
		Silence:       700 * time.Millisecond,
		MinSpeech:     250 * time.Millisecond,
		MaxUtterance:  15 * time.Second,
		PreRoll:       200 * time.Millisecond,
	}
}

// Validate checks the configuration.
func (c *EndpointConfig) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", c.SampleRate)
	}
	if c.FrameDuration <= 0 {
		return fmt.Errorf("frame duration must be positive")
	}
	if c.Threshold <= 0 || c.Threshold >= 1 {
		return fmt.Errorf("threshold must be between 0 and 1, got %f", c.Threshold)
	}
	if c.Silence < c.FrameDuration {
		return fmt.Errorf("silence must be at least one frame")
	}
	if c.MaxUtterance <= c.MinSpeech {
		return fmt.Errorf("max utterance must exceed min speech")
	}
	return nil
}

// Utterance is a detected stretch of speech.
type Utterance struct {
	PCM      []byte
	Duration time.Duration // total audio length including pre-roll and trailing silence
	Speech   time.Duration // voiced portion
}

// Endpointer segments a PCM stream into utterances.
// It is not safe for concurrent use.
type Endpointer struct {
	cfg        EndpointConfig
	frameBytes int
	prerollMax int

	state     EndpointState
	pending   []byte
	preroll   []byte
	utterance []byte
	speech    time.Duration
	silence   time.Duration
}

// NewEndpointer creates an endpointer. Zero FrameDuration uses 20ms.
func NewEndpointer(cfg EndpointConfig) (*Endpointer, error) {
	if cfg.FrameDuration == 0 {
		cfg.FrameDuration = 20 * time.Millisecond
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	frameBytes := BytesFor(cfg.FrameDuration, cfg.SampleRate)
	if frameBytes == 0 {
		return nil, fmt.Errorf("frame duration %v too short for %d Hz", cfg.FrameDuration, cfg.SampleRate)
	}
	return &Endpointer{
		cfg:        cfg,
		frameBytes: frameBytes,
		prerollMax: BytesFor(cfg.PreRoll, cfg.SampleRate),
	}, nil
}

// Write feeds PCM and returns any utterances completed by it.
func (e *Endpointer) Write(pcm []byte) []Utterance {
	e.pending = append(e.pending, pcm...)

	var done []Utterance
	for len(e.pending) >= e.frameBytes {
		frame := e.pending[:e.frameBytes]
		if u, ok := e.process(frame); ok {
			done = append(done, u)
		}
		e.pending = e.pending[e.frameBytes:]
	}

	// Compact so the backing array does not grow without bound.
	if len(e.pending) > 0 {
		e.pending = append([]byte(nil), e.pending...)
	} else {
		e.pending = nil
	}
	return done
}

// Flush returns the utterance in progress if it holds enough speech,
// and resets the endpointer.
func (e *Endpointer) Flush() (Utterance, bool) {
	defer e.Reset()
	if e.state != StateSpeech || e.speech < e.cfg.MinSpeech {
		return Utterance{}, false
	}
	return e.emit(), true
}

// Reset drops all buffered audio.
func (e *Endpointer) Reset() {
	e.state = StateIdle
	e.pending = nil
	e.preroll = nil
	e.utterance = nil
	e.speech = 0
	e.silence = 0
}

// State returns the current state.
func (e *Endpointer) State() EndpointState {
	return e.state
}

func (e *Endpointer) process(frame []byte) (Utterance, bool) {
	voiced := Energy(BytesToSamples(frame)) >= e.cfg.Threshold
	fd := e.cfg.FrameDuration

	switch e.state {
	case StateIdle:
		if !voiced {
			e.pushPreroll(frame)
			return Utterance{}, false
		}
		e.state = StateSpeech
		e.utterance = append(append([]byte(nil), e.preroll...), frame...)
		e.preroll = nil
		e.speech = fd
		e.silence = 0
		return Utterance{}, false

	case StateSpeech:
		e.utterance = append(e.utterance, frame...)
		if voiced {
			e.speech += fd
			e.silence = 0
		} else {
			e.silence += fd
		}

		total := Duration(len(e.utterance), e.cfg.SampleRate)
		if e.silence >= e.cfg.Silence || total >= e.cfg.MaxUtterance {
			if e.speech >= e.cfg.MinSpeech {
				u := e.emit()
				e.resetUtterance()
				return u, true
			}
			// Too little speech: a click or a cough.
			e.resetUtterance()
		}
	}
	return Utterance{}, false
}

func (e *Endpointer) emit() Utterance {
	return Utterance{
		PCM:      e.utterance,
		Duration: Duration(len(e.utterance), e.cfg.SampleRate),
		Speech:   e.speech,
	}
}

func (e *Endpointer) resetUtterance() {
	e.state = StateIdle
	e.utterance = nil
	e.speech = 0
	e.silence = 0
}

func (e *Endpointer) pushPreroll(frame []byte) {
	if e.prerollMax == 0 {
		return
	}
	e.preroll = append(e.preroll, frame...)
	if over := len(e.preroll) - e.prerollMax; over > 0 {
		e.preroll = append([]byte(nil), e.preroll[over:]...)
	}
}
