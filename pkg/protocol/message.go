// Package protocol defines the websocket frames exchanged with callers.
//
// Every frame is a text message of the form "<TYPE>:<payload>". Audio travels
// as AUDIO frames with a base64 payload in both directions; the optional text
// frames carry JSON and are ignored by clients that only look for AUDIO.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// FrameType identifies the type of a websocket frame.
type FrameType string

const (
	// Bidirectional
	TypeAudio FrameType = "AUDIO" // base64 audio bytes

	// Server → client, only when text frames are enabled
	TypeTranscript FrameType = "TRANSCRIPT" // what the recognizer heard
	TypeReply      FrameType = "REPLY"      // generated and styled reply text
	TypeError      FrameType = "ERROR"      // a turn failed at some stage
)

// Frame is a decoded websocket frame.
type Frame struct {
	// Type is the text before the first colon. Empty when there is no colon.
	Type FrameType

	// Payload is the raw text after the first colon.
	Payload string

	// Audio holds decoded bytes for AUDIO frames.
	Audio []byte
}

// IsAudio reports whether this frame carries audio.
func (f *Frame) IsAudio() bool {
	return f.Type == TypeAudio
}

// ParseFrame splits a raw text frame at the first colon and decodes AUDIO
// payloads. Frames without a colon, the empty frame included, parse as
// untyped frames so callers can log and skip them.
func ParseFrame(raw string) (*Frame, error) {
	typ, payload, ok := strings.Cut(raw, ":")
	if !ok {
		return &Frame{Payload: raw}, nil
	}

	frame := &Frame{Type: FrameType(typ), Payload: payload}
	if frame.Type == TypeAudio {
		audio, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
		if err != nil {
			return nil, fmt.Errorf("failed to decode audio payload: %w", err)
		}
		frame.Audio = audio
	}
	return frame, nil
}

// EncodeAudio builds an AUDIO frame.
func EncodeAudio(audio []byte) string {
	return string(TypeAudio) + ":" + base64.StdEncoding.EncodeToString(audio)
}

// EncodeText builds a text frame with a JSON payload.
func EncodeText(typ FrameType, v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s payload: %w", typ, err)
	}
	return string(typ) + ":" + string(data), nil
}

// DecodeText unmarshals the JSON payload of a text frame.
func (f *Frame) DecodeText(v interface{}) error {
	return json.Unmarshal([]byte(f.Payload), v)
}

// =============================================================================
// Text frame payloads
// =============================================================================

// TranscriptData is sent once the recognizer finalizes an utterance.
type TranscriptData struct {
	TurnID string `json:"turn_id"`
	Text   string `json:"text"`
}

// ReplyData carries the generated reply before and after styling.
type ReplyData struct {
	TurnID string `json:"turn_id"`
	Text   string `json:"text"`
	Styled string `json:"styled"`
}

// ErrorData reports a failed turn.
type ErrorData struct {
	TurnID string `json:"turn_id,omitempty"`
	Stage  string `json:"stage"`
	Error  string `json:"error"`
}
