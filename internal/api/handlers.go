package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/ventline/vent-app/internal/matching"
	"github.com/ventline/vent-app/internal/presence"
	"github.com/ventline/vent-app/internal/session"
	apperrors "github.com/ventline/vent-app/pkg/errors"
)

// sessionDTO is the wire shape of a chat session.
type sessionDTO struct {
	ID           string     `json:"id"`
	ParticipantA string     `json:"participant_a"`
	ParticipantB string     `json:"participant_b"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
}

func toSessionDTO(s *session.Session) sessionDTO {
	return sessionDTO{
		ID:           s.ID,
		ParticipantA: s.ParticipantA,
		ParticipantB: s.ParticipantB,
		Status:       s.Status,
		CreatedAt:    s.CreatedAt,
		EndedAt:      s.EndedAt,
	}
}

func (s *Server) handleRequestMatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID         string `json:"user_id"`
		InitialMessage string `json:"initial_message"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.UserID == "" {
		writeError(w, apperrors.InvalidArg("user_id is required"))
		return
	}

	result, err := s.core.RequestMatch(r.Context(), req.UserID, req.InitialMessage)
	if err != nil {
		writeError(w, err)
		return
	}

	switch result.Status {
	case matching.StatusMatched:
		s.setPresence(r.Context(), req.UserID, presence.StatusChatting, result.SessionID)
		writeJSON(w, http.StatusOK, result)
	case matching.StatusWaiting:
		s.setPresence(r.Context(), req.UserID, presence.StatusWaiting, "")
		writeJSON(w, http.StatusAccepted, result)
	}
}

func (s *Server) handlePollMatch(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")

	sess, err := s.core.PollForSession(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if sess == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": matching.StatusWaiting})
		return
	}

	s.setPresence(r.Context(), userID, presence.StatusChatting, sess.ID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  matching.StatusMatched,
		"session": toSessionDTO(sess),
	})
}

func (s *Server) handleCancelMatch(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")

	if err := s.core.CancelMatch(r.Context(), userID); err != nil {
		writeError(w, err)
		return
	}
	s.setPresence(r.Context(), userID, presence.StatusIdle, "")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.core.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(sess))
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.core.GetMessages(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SenderID string `json:"sender_id"`
		Content  string `json:"content"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.SenderID == "" {
		writeError(w, apperrors.InvalidArg("sender_id is required"))
		return
	}

	msg, err := s.core.SendMessage(r.Context(), r.PathValue("id"), req.SenderID, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := s.core.EndSession(r.Context(), r.PathValue("id"), req.UserID); err != nil {
		writeError(w, err)
		return
	}
	if req.UserID != "" {
		s.setPresence(r.Context(), req.UserID, presence.StatusIdle, "")
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSubmitFeeling(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID  string `json:"user_id"`
		Feeling string `json:"feeling"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.UserID == "" {
		writeError(w, apperrors.InvalidArg("user_id is required"))
		return
	}

	if err := s.core.SubmitFeeling(r.Context(), r.PathValue("id"), req.UserID, req.Feeling); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSubmitNeedsHelp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string `json:"user_id"`
		NeedsHelp *bool  `json:"needs_help"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.UserID == "" {
		writeError(w, apperrors.InvalidArg("user_id is required"))
		return
	}
	if req.NeedsHelp == nil {
		writeError(w, apperrors.InvalidArg("needs_help is required"))
		return
	}

	if err := s.core.SubmitNeedsHelp(r.Context(), r.PathValue("id"), req.UserID, *req.NeedsHelp); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// setPresence updates the presence cache, best effort.
func (s *Server) setPresence(ctx context.Context, userID, status, sessionID string) {
	if s.presence == nil {
		return
	}
	if err := s.presence.Set(ctx, userID, status, sessionID); err != nil {
		log.Printf("[api] presence update for %s: %v", userID, err)
	}
}
