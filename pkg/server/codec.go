package server

import (
	"fmt"

	"github.com/teslashibe/go-parley/pkg/audio"
	"github.com/teslashibe/go-parley/pkg/protocol"
)

// decoder turns an AUDIO payload into PCM16 at the input sample rate.
// Decoders are stateful and belong to one session.
type decoder interface {
	Decode(payload []byte) ([]byte, error)
}

func newDecoder(codec string, sampleRate int) (decoder, error) {
	switch codec {
	case CodecPCM16:
		return pcmDecoder{}, nil
	case CodecOpus:
		dec, err := audio.NewOpusDecoder(sampleRate)
		if err != nil {
			return nil, err
		}
		return &opusDecoder{dec: dec}, nil
	default:
		return nil, fmt.Errorf("unknown input codec %q", codec)
	}
}

type pcmDecoder struct{}

func (pcmDecoder) Decode(payload []byte) ([]byte, error) {
	if len(payload)%audio.BytesPerSample != 0 {
		return nil, fmt.Errorf("odd pcm16 payload length %d", len(payload))
	}
	return payload, nil
}

// opusDecoder expects length-prefixed packets, see protocol.SplitPackets.
type opusDecoder struct {
	dec *audio.OpusDecoder
}

func (d *opusDecoder) Decode(payload []byte) ([]byte, error) {
	packets, err := protocol.SplitPackets(payload)
	if err != nil {
		return nil, err
	}
	return d.dec.Decode(packets)
}
