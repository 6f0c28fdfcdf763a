package audio

import (
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

// maxOpusFrameMs is the longest Opus frame.
const maxOpusFrameMs = 120

// OpusDecoder turns Opus packets into mono PCM16 bytes.
// It is stateful and must not be shared between streams.
type OpusDecoder struct {
	dec        *opus.Decoder
	sampleRate int
	buf        []int16
}

// NewOpusDecoder creates a mono decoder producing PCM at sampleRate.
// libopus accepts 8000, 12000, 16000, 24000 and 48000 Hz.
func NewOpusDecoder(sampleRate int) (*OpusDecoder, error) {
	dec, err := opus.NewDecoder(sampleRate, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}
	return &OpusDecoder{
		dec:        dec,
		sampleRate: sampleRate,
		buf:        make([]int16, sampleRate*maxOpusFrameMs/1000),
	}, nil
}

// Decode decodes each packet in order and concatenates the PCM.
func (d *OpusDecoder) Decode(packets [][]byte) ([]byte, error) {
	out := make([]byte, 0, len(packets)*len(d.buf))
	for i, p := range packets {
		n, err := d.dec.Decode(p, d.buf)
		if err != nil {
			return nil, fmt.Errorf("decode opus packet %d: %w", i, err)
		}
		out = append(out, SamplesToBytes(d.buf[:n])...)
	}
	return out, nil
}

// SampleRate returns the output sample rate.
func (d *OpusDecoder) SampleRate() int {
	return d.sampleRate
}
