package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestEncodeDecodeWAV(t *testing.T) {
	pcm := SamplesToBytes([]int16{1, 2, 3, 4, 5, 6})

	wav, err := EncodeWAV(pcm, 16000, 1)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	if len(wav) != 44+len(pcm) {
		t.Errorf("Expected %d bytes, got %d", 44+len(pcm), len(wav))
	}
	if !IsWAV(wav) {
		t.Error("Expected encoded data to be detected as WAV")
	}

	got, header, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("PCM mismatch: %v vs %v", got, pcm)
	}
	if header.SampleRate != 16000 || header.NumChannels != 1 || header.BitsPerSample != 16 {
		t.Errorf("Unexpected header: %+v", header)
	}
	if header.ByteRate != 32000 {
		t.Errorf("Expected byte rate 32000, got %d", header.ByteRate)
	}
}

func TestEncodeWAV_Errors(t *testing.T) {
	if _, err := EncodeWAV(nil, 16000, 1); err == nil {
		t.Error("Expected error for empty audio")
	}
	if _, err := EncodeWAV([]byte{0, 0}, 0, 1); err == nil {
		t.Error("Expected error for zero sample rate")
	}
}

func TestDecodeWAV_SkipsExtraChunks(t *testing.T) {
	pcm := SamplesToBytes([]int16{7, 8})
	wav, _ := EncodeWAV(pcm, 22050, 1)

	// Insert a LIST chunk with an odd size between fmt and data.
	list := []byte("LIST")
	list = binary.LittleEndian.AppendUint32(list, 3)
	list = append(list, 'a', 'b', 'c', 0)

	var buf bytes.Buffer
	buf.Write(wav[:36])
	buf.Write(list)
	buf.Write(wav[36:])

	got, header, err := DecodeWAV(buf.Bytes())
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("PCM mismatch: %v", got)
	}
	if header.SampleRate != 22050 {
		t.Errorf("Expected 22050, got %d", header.SampleRate)
	}
}

func TestDecodeWAV_OverrunningDataSize(t *testing.T) {
	pcm := SamplesToBytes([]int16{1, 2, 3})
	wav, _ := EncodeWAV(pcm, 16000, 1)
	binary.LittleEndian.PutUint32(wav[40:44], 0xFFFFFFFF)

	got, _, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("PCM mismatch: %v", got)
	}
}

func TestDecodeWAV_NotWAV(t *testing.T) {
	_, _, err := DecodeWAV([]byte("ID3\x03 this is an mp3"))
	if !errors.Is(err, ErrNotWAV) {
		t.Errorf("Expected ErrNotWAV, got %v", err)
	}
	if IsWAV([]byte("RIFF")) {
		t.Error("Expected short data to not be WAV")
	}
}
