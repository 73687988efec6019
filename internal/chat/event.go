package chat

import "github.com/ventline/vent-app/internal/message"

// Event types published on chat.<session_id> subjects.
const (
	EventMessage      = "message"
	EventSessionEnded = "session_ended"
)

// Event is the payload published to NATS chat.<session_id> subjects for
// real-time delivery to both participants' streams.
type Event struct {
	Type    string           `json:"type"`
	Message *message.Message `json:"message,omitempty"` // for message events
	EndedBy string           `json:"ended_by,omitempty"` // for session_ended events
}
