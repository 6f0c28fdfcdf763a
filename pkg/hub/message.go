// Package hub fans out session events to monitor websockets using the
// channel based broadcast pattern: one goroutine owns the client set and
// each client has its own buffered send queue and write pump.
package hub

import (
	"encoding/json"
	"time"
)

// EventType names a monitor event.
type EventType string

const (
	EventSessionStarted EventType = "session_started"
	EventTranscript     EventType = "transcript"
	EventReply          EventType = "reply"
	EventTurnDone       EventType = "turn_done"
	EventTurnFailed     EventType = "turn_failed"
	EventSessionEnded   EventType = "session_ended"
)

// Event is one JSON message on the monitor socket.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	TurnID    string    `json:"turn_id,omitempty"`
	Time      time.Time `json:"time"`
	Data      any       `json:"data,omitempty"`
}

// NewEvent stamps an event with the current time.
func NewEvent(typ EventType, sessionID string, data any) Event {
	return Event{Type: typ, SessionID: sessionID, Time: time.Now().UTC(), Data: data}
}

// WithTurn sets the turn id.
func (e Event) WithTurn(id string) Event {
	e.TurnID = id
	return e
}

// Message is an encoded event queued for delivery.
type Message struct {
	Data []byte
}

// Encode marshals an event into a message.
func Encode(e Event) (Message, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return Message{}, err
	}
	return Message{Data: data}, nil
}
