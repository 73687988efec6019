// Package chat is the core service boundary consumed by the presentation
// layer: matchmaking, message exchange, session lifecycle, and feedback,
// with rate limiting and event fan-out applied in one place.
package chat

import (
	"context"
	"encoding/json"
	"log"

	"github.com/ventline/vent-app/internal/feedback"
	"github.com/ventline/vent-app/internal/matching"
	"github.com/ventline/vent-app/internal/message"
	"github.com/ventline/vent-app/internal/metrics"
	"github.com/ventline/vent-app/internal/ratelimit"
	"github.com/ventline/vent-app/internal/session"
	apperrors "github.com/ventline/vent-app/pkg/errors"
)

// EventBus carries chat events between participants. Implemented by
// messaging.Client; a nil bus disables live delivery (history and polling
// still work).
type EventBus interface {
	PublishChatEvent(sessionID string, data []byte) error
	SubscribeToChat(sessionID, subscriberKey string, handler func(data []byte)) (func(), error)
}

// Service implements the core operations over the stores, the matchmaker,
// and the event bus.
type Service struct {
	matcher  *matching.Service
	sessions *session.Store
	messages *message.Store
	feedback *feedback.Store
	bus      EventBus
	limiter  *ratelimit.Limiter
}

// NewService wires the core service. bus and limiter may be nil.
func NewService(
	matcher *matching.Service,
	sessions *session.Store,
	messages *message.Store,
	fb *feedback.Store,
	bus EventBus,
	limiter *ratelimit.Limiter,
) *Service {
	return &Service{
		matcher:  matcher,
		sessions: sessions,
		messages: messages,
		feedback: fb,
		bus:      bus,
		limiter:  limiter,
	}
}

// RequestMatch pairs the caller with the oldest waiting user or enqueues
// them. Rate limited per user.
func (s *Service) RequestMatch(ctx context.Context, userID, initialMessage string) (*matching.MatchResult, error) {
	if err := s.allow(ctx, userID, ratelimit.RuleMatch); err != nil {
		return nil, err
	}
	if err := ValidateContent(initialMessage); err != nil {
		return nil, err
	}
	return s.matcher.RequestMatch(ctx, userID, initialMessage)
}

// CancelMatch abandons the caller's wait and releases their queue entry.
func (s *Service) CancelMatch(ctx context.Context, userID string) error {
	return s.matcher.Cancel(ctx, userID)
}

// PollForSession returns the caller's active session, or nil when still
// unmatched.
func (s *Service) PollForSession(ctx context.Context, userID string) (*session.Session, error) {
	return s.matcher.PollForSession(ctx, userID)
}

// GetSession returns a session by id.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*session.Session, error) {
	return s.sessions.Get(ctx, sessionID)
}

// GetMessages returns the session's full ordered history, seed messages
// included.
func (s *Service) GetMessages(ctx context.Context, sessionID string) ([]message.Message, error) {
	return s.messages.ListOrdered(ctx, sessionID)
}

// SendMessage validates, appends, and fans out a message. Rate limited per
// sender.
func (s *Service) SendMessage(ctx context.Context, sessionID, senderID, content string) (*message.Message, error) {
	if err := s.allow(ctx, senderID, ratelimit.RuleMessage); err != nil {
		return nil, err
	}
	if err := ValidateContent(content); err != nil {
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	msg, err := s.messages.Append(ctx, sessionID, senderID, content)
	if err != nil {
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	metrics.MessagesTotal.WithLabelValues("sent").Inc()

	s.publish(sessionID, Event{Type: EventMessage, Message: msg})
	return msg, nil
}

// SubscribeMessages attaches a live message listener to a session. Only
// participants may subscribe. The returned function detaches the listener.
func (s *Service) SubscribeMessages(ctx context.Context, sessionID, userID string, onMessage func(message.Message)) (func(), error) {
	return s.SubscribeEvents(ctx, sessionID, userID, func(ev Event) {
		if ev.Type == EventMessage && ev.Message != nil {
			onMessage(*ev.Message)
		}
	})
}

// SubscribeEvents attaches a listener for all events of a session,
// including session_ended. The subscriber key is the user id, so each
// participant holds at most one live subscription per process.
func (s *Service) SubscribeEvents(ctx context.Context, sessionID, userID string, onEvent func(Event)) (func(), error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.IsParticipant(userID) {
		return nil, apperrors.ErrNotParticipant
	}
	if s.bus == nil {
		return func() {}, nil
	}

	return s.bus.SubscribeToChat(sessionID, userID, func(data []byte) {
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Printf("[chat] bad event on session %s: %v", sessionID, err)
			return
		}
		onEvent(ev)
	})
}

// EndSession flips the session to ended. Either participant may end;
// repeat calls are no-ops and do not re-stamp ended_at or re-publish the
// event. After this point appends fail with SessionClosed.
func (s *Service) EndSession(ctx context.Context, sessionID, endedBy string) error {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if endedBy != "" && !sess.IsParticipant(endedBy) {
		return apperrors.ErrNotParticipant
	}
	if sess.Status == session.StatusEnded {
		return nil
	}

	ended, err := s.sessions.End(ctx, sessionID)
	if err != nil {
		return err
	}
	if !ended {
		// A concurrent call got there first; it owns the side effects.
		return nil
	}
	metrics.ActiveSessions.Dec()

	s.publish(sessionID, Event{Type: EventSessionEnded, EndedBy: endedBy})
	log.Printf("[chat] session %s ended by %s", sessionID, endedBy)
	return nil
}

// SubmitFeeling records the caller's post-chat sentiment. A repeat call
// updates it.
func (s *Service) SubmitFeeling(ctx context.Context, sessionID, userID, feeling string) error {
	if err := s.feedback.RecordFeeling(ctx, sessionID, userID, feeling); err != nil {
		return err
	}
	metrics.FeedbackTotal.WithLabelValues(feeling).Inc()
	return nil
}

// SubmitNeedsHelp records the follow-up support flag; requires a prior
// SubmitFeeling for the same session and user.
func (s *Service) SubmitNeedsHelp(ctx context.Context, sessionID, userID string, needsHelp bool) error {
	return s.feedback.RecordNeedsHelp(ctx, sessionID, userID, needsHelp)
}

func (s *Service) publish(sessionID string, ev Event) {
	if s.bus == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[chat] marshal event for session %s: %v", sessionID, err)
		return
	}
	if err := s.bus.PublishChatEvent(sessionID, data); err != nil {
		log.Printf("[chat] publish event for session %s: %v", sessionID, err)
	}
}

func (s *Service) allow(ctx context.Context, identifier string, rule ratelimit.Rule) error {
	if s.limiter == nil {
		return nil
	}
	ok, _ := s.limiter.Allow(ctx, identifier, rule)
	if !ok {
		return apperrors.ErrRateLimited
	}
	return nil
}
