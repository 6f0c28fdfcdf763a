package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// WAVHeader is the canonical 44-byte RIFF/WAVE PCM header.
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16 // NumChannels * BitsPerSample / 8
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// ErrNotWAV is returned when data does not start with a RIFF/WAVE header.
var ErrNotWAV = errors.New("audio: not a WAV file")

// EncodeWAV wraps PCM16 bytes in a WAV container.
func EncodeWAV(pcm []byte, sampleRate, channels int) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if channels <= 0 {
		channels = 1
	}

	bitsPerSample := uint16(16)
	dataSize := uint32(len(pcm))

	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(channels) * uint32(bitsPerSample) / 8,
		BlockAlign:    uint16(channels) * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(pcm)))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	buf.Write(pcm)
	return buf.Bytes(), nil
}

// DecodeWAV returns the PCM payload and header of a 16-bit PCM WAV file.
// Chunks other than "fmt " and "data" are skipped.
func DecodeWAV(data []byte) ([]byte, *WAVHeader, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, nil, ErrNotWAV
	}

	header := &WAVHeader{
		ChunkID: [4]byte{'R', 'I', 'F', 'F'},
		Format:  [4]byte{'W', 'A', 'V', 'E'},
	}
	header.ChunkSize = binary.LittleEndian.Uint32(data[4:8])

	var gotFmt bool
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(data) {
			if id == "data" {
				// Streamed WAVs sometimes carry a bogus data size.
				size = len(data) - body
			} else {
				return nil, nil, fmt.Errorf("%w: chunk %q overruns file", ErrNotWAV, id)
			}
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, nil, fmt.Errorf("%w: short fmt chunk", ErrNotWAV)
			}
			f := data[body : body+16]
			copy(header.Subchunk1ID[:], "fmt ")
			header.Subchunk1Size = uint32(size)
			header.AudioFormat = binary.LittleEndian.Uint16(f[0:2])
			header.NumChannels = binary.LittleEndian.Uint16(f[2:4])
			header.SampleRate = binary.LittleEndian.Uint32(f[4:8])
			header.ByteRate = binary.LittleEndian.Uint32(f[8:12])
			header.BlockAlign = binary.LittleEndian.Uint16(f[12:14])
			header.BitsPerSample = binary.LittleEndian.Uint16(f[14:16])
			gotFmt = true
		case "data":
			if !gotFmt {
				return nil, nil, fmt.Errorf("%w: data before fmt", ErrNotWAV)
			}
			if header.AudioFormat != 1 || header.BitsPerSample != 16 {
				return nil, nil, fmt.Errorf("unsupported WAV encoding: format %d, %d bits", header.AudioFormat, header.BitsPerSample)
			}
			copy(header.Subchunk2ID[:], "data")
			header.Subchunk2Size = uint32(size)
			return data[body : body+size], header, nil
		}

		off = body + size
		if size%2 == 1 {
			off++
		}
	}
	return nil, nil, fmt.Errorf("%w: no data chunk", ErrNotWAV)
}

// IsWAV reports whether data starts with a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}
