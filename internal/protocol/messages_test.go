package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ventline/vent-app/internal/message"
)

// ---------------------------------------------------------------------------
// Envelope parsing
// ---------------------------------------------------------------------------

func TestEnvelope_Ping(t *testing.T) {
	input := []byte(`{"type":"ping"}`)
	var env Envelope
	if err := json.Unmarshal(input, &env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Type != TypePing {
		t.Errorf("expected type %q, got %q", TypePing, env.Type)
	}
	if string(env.Raw) != string(input) {
		t.Errorf("expected raw bytes preserved, got %s", env.Raw)
	}
}

func TestEnvelope_MissingType(t *testing.T) {
	var env Envelope
	if err := json.Unmarshal([]byte(`{"data":"no type"}`), &env); err == nil {
		t.Fatal("expected error for missing type field, got nil")
	}
}

func TestEnvelope_InvalidJSON(t *testing.T) {
	var env Envelope
	if err := json.Unmarshal([]byte(`{invalid`), &env); err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
}

// ---------------------------------------------------------------------------
// Server frame construction
// ---------------------------------------------------------------------------

func TestNewServerFrame_SetsTypeDiscriminator(t *testing.T) {
	data, err := NewServerFrame(TypeSessionEnded, SessionEndedFrame{EndedBy: "user_1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}
	if result["type"] != TypeSessionEnded {
		t.Errorf("expected type %q, got %v", TypeSessionEnded, result["type"])
	}
	if result["ended_by"] != "user_1" {
		t.Errorf("expected ended_by %q, got %v", "user_1", result["ended_by"])
	}
}

func TestNewServerFrame_OverwritesPayloadType(t *testing.T) {
	// The payload's own Type field must not survive; the discriminator wins.
	data, err := NewServerFrame(TypePong, PongFrame{Type: "something_else"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}
	if result["type"] != TypePong {
		t.Errorf("expected type %q, got %v", TypePong, result["type"])
	}
}

func TestNewServerFrame_MessageRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	original := message.Message{
		ID:        "msg-1",
		Seq:       42,
		SessionID: "sess-1",
		SenderID:  "user_a",
		Content:   "hey there",
		CreatedAt: now,
	}

	data, err := NewServerFrame(TypeMessage, MessageFrame{Message: original})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded MessageFrame
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if decoded.Type != TypeMessage {
		t.Errorf("expected type %q, got %q", TypeMessage, decoded.Type)
	}
	if decoded.Message.ID != original.ID {
		t.Errorf("id mismatch: expected %q, got %q", original.ID, decoded.Message.ID)
	}
	if decoded.Message.Seq != original.Seq {
		t.Errorf("seq mismatch: expected %d, got %d", original.Seq, decoded.Message.Seq)
	}
	if decoded.Message.Content != original.Content {
		t.Errorf("content mismatch: expected %q, got %q", original.Content, decoded.Message.Content)
	}
	if !decoded.Message.CreatedAt.Equal(now) {
		t.Errorf("created_at mismatch: expected %v, got %v", now, decoded.Message.CreatedAt)
	}
}

func TestNewServerFrame_HistoryPreservesOrder(t *testing.T) {
	msgs := []message.Message{
		{ID: "m1", Seq: 1, Content: "first"},
		{ID: "m2", Seq: 2, Content: "second"},
		{ID: "m3", Seq: 3, Content: "third"},
	}
	data, err := NewServerFrame(TypeHistory, HistoryFrame{Messages: msgs})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded HistoryFrame
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if len(decoded.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(decoded.Messages))
	}
	for i, m := range msgs {
		if decoded.Messages[i].ID != m.ID {
			t.Errorf("message[%d]: expected id %q, got %q", i, m.ID, decoded.Messages[i].ID)
		}
	}
}

func TestNewServerFrame_ErrorFrame(t *testing.T) {
	data, err := NewServerFrame(TypeError, ErrorFrame{
		Code: "invalid_argument", Message: "bad frame",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded ErrorFrame
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if decoded.Type != TypeError || decoded.Code != "invalid_argument" || decoded.Message != "bad frame" {
		t.Errorf("unexpected frame: %+v", decoded)
	}
}
