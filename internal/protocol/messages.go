// Package protocol defines the frame types used on the message stream
// socket. All frames are JSON with a type discriminator; the stream is
// almost entirely server-push, the only client frame is the keepalive
// ping.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/ventline/vent-app/internal/message"
)

// Client -> Server frame types.
const (
	TypePing = "ping"
)

// Server -> Client frame types.
const (
	TypeHistory      = "history"
	TypeMessage      = "message"
	TypeSessionEnded = "session_ended"
	TypeError        = "error"
	TypePong         = "pong"
)

// Envelope holds the frame type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the full raw bytes and extracts only the "type"
// field so the rest of the payload can be decoded later.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// HistoryFrame carries the one-time ordered snapshot sent when a stream
// attaches. Live frames may repeat the newest snapshot entries; clients
// de-duplicate by message id.
type HistoryFrame struct {
	Type     string            `json:"type"`
	Messages []message.Message `json:"messages"`
}

// MessageFrame carries one newly appended message.
type MessageFrame struct {
	Type    string          `json:"type"`
	Message message.Message `json:"message"`
}

// SessionEndedFrame tells the client the session was ended and by whom.
type SessionEndedFrame struct {
	Type    string `json:"type"`
	EndedBy string `json:"ended_by,omitempty"`
}

// ErrorFrame is a structured error pushed to the client.
type ErrorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongFrame answers a client ping.
type PongFrame struct {
	Type string `json:"type"`
}

// NewServerFrame builds a JSON frame of the given type. The payload struct
// must carry a Type field; it is overwritten with frameType.
func NewServerFrame(frameType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal %s frame: %w", frameType, err)
	}

	// Re-encode with the discriminator set, whatever the payload had.
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: reshape %s frame: %w", frameType, err)
	}
	typeJSON, _ := json.Marshal(frameType)
	m["type"] = typeJSON
	return json.Marshal(m)
}
