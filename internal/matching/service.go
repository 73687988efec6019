// Package matching implements the pairing algorithm: a requester either
// consumes the oldest waiting entry and seats a session, or becomes a
// waiting entry themselves. The dequeue-or-enqueue step is the one place
// in the system that needs a serializable transaction boundary.
package matching

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/ventline/vent-app/internal/message"
	"github.com/ventline/vent-app/internal/metrics"
	"github.com/ventline/vent-app/internal/queue"
	"github.com/ventline/vent-app/internal/session"
	apperrors "github.com/ventline/vent-app/pkg/errors"
)

// Match outcome statuses.
const (
	StatusMatched = "matched"
	StatusWaiting = "waiting"
)

// maxTxRetries caps retries of the match transaction on serialization
// failures before giving up.
const maxTxRetries = 3

// MatchResult is what a requester gets back: either a seated session or a
// queue entry to poll on.
type MatchResult struct {
	Status      string `json:"status"`
	SessionID   string `json:"session_id,omitempty"`
	QueueUserID string `json:"queue_entry_id,omitempty"`

	// Bookkeeping for gauge accounting: repeat requests must not drift
	// the waiting/active gauges.
	existing   bool // caller already held this session, nothing was consumed
	ownRemoved bool // caller's own stale queue entry was deleted
	requeued   bool // caller was already waiting, entry was only refreshed
}

// Found is the payload pushed to both participants when a session is
// seated.
type Found struct {
	SessionID string `json:"session_id"`
	PartnerID string `json:"partner_id"`
}

// Notifier pushes match results to participants. Implementations must be
// safe for concurrent use; publish failures are logged, never surfaced to
// the requester (the poller is the guaranteed delivery path).
type Notifier interface {
	NotifyMatchFound(userID string, found Found) error
}

// Service is the matchmaker.
type Service struct {
	db       *sql.DB
	queue    *queue.Store
	sessions *session.Store
	messages *message.Store
	notifier Notifier
}

// NewService creates a matchmaker over the shared database handle.
// notifier may be nil, in which case matches are only discoverable via
// polling.
func NewService(db *sql.DB, q *queue.Store, s *session.Store, m *message.Store, notifier Notifier) *Service {
	return &Service{db: db, queue: q, sessions: s, messages: m, notifier: notifier}
}

// RequestMatch atomically pairs the caller with the oldest waiting user,
// or enqueues the caller when nobody is waiting.
//
// Guarantees: a waiting entry is consumed at most once, exactly one
// session is created per consumed entry, and the seeded message order is
// always [dequeued user's vent, caller's vent]. A caller who already has
// an active session gets that session back instead of a new pairing.
func (s *Service) RequestMatch(ctx context.Context, userID, initialMessage string) (*MatchResult, error) {
	if userID == "" {
		return nil, apperrors.InvalidArg("user id is required")
	}
	if strings.TrimSpace(initialMessage) == "" {
		return nil, apperrors.ErrEmptyContent
	}

	var result *MatchResult
	var waited time.Duration
	var err error

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		result, waited, err = s.tryMatch(ctx, userID, initialMessage)
		if err == nil || !isSerializationFailure(err) {
			break
		}
		log.Printf("[matcher] serialization conflict for %s (attempt %d), retrying", userID, attempt+1)
	}
	if err != nil {
		return nil, err
	}

	switch result.Status {
	case StatusMatched:
		if !result.existing {
			if waited > 0 {
				metrics.MatchWaitSeconds.Observe(waited.Seconds())
			}
			metrics.ActiveSessions.Inc()
			metrics.WaitingQueueSize.Dec() // the consumed partner entry
		}
		if result.ownRemoved {
			metrics.WaitingQueueSize.Dec()
		}
	case StatusWaiting:
		if !result.requeued {
			metrics.WaitingQueueSize.Inc()
		}
	}
	return result, nil
}

// tryMatch runs one attempt of the dequeue-or-enqueue transaction. On a
// seat it also publishes the match to both participants after commit.
func (s *Service) tryMatch(ctx context.Context, userID, initialMessage string) (*MatchResult, time.Duration, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, 0, apperrors.ErrStoreFailure("begin match transaction", err)
	}
	defer tx.Rollback()

	// A user can hold at most one active session; hand the existing one
	// back rather than pairing them twice.
	existing, err := s.sessions.GetActiveForUserTx(ctx, tx, userID)
	if err != nil {
		return nil, 0, err
	}
	if existing != nil {
		// An already-seated caller must not keep a waiting entry around.
		removed, err := s.queue.RemoveTx(ctx, tx, userID)
		if err != nil {
			return nil, 0, err
		}
		if err := tx.Commit(); err != nil {
			return nil, 0, apperrors.ErrStoreFailure("commit match cleanup", err)
		}
		return &MatchResult{
			Status:     StatusMatched,
			SessionID:  existing.ID,
			existing:   true,
			ownRemoved: removed,
		}, 0, nil
	}

	for {
		entry, err := s.queue.TakeOldestTx(ctx, tx, userID)
		if err != nil {
			return nil, 0, err
		}

		if entry == nil {
			// Nobody eligible is waiting: the caller becomes the entry.
			// A re-submission only refreshes the existing row.
			already, err := s.queue.GetTx(ctx, tx, userID)
			if err != nil {
				return nil, 0, err
			}
			if _, err := s.queue.EnqueueTx(ctx, tx, userID, initialMessage); err != nil {
				return nil, 0, err
			}
			if err := tx.Commit(); err != nil {
				return nil, 0, apperrors.ErrStoreFailure("commit enqueue", err)
			}
			log.Printf("[matcher] enqueued %s (queue empty)", userID)
			return &MatchResult{Status: StatusWaiting, QueueUserID: userID, requeued: already != nil}, 0, nil
		}

		sess, err := s.sessions.CreateTx(ctx, tx, uuid.New().String(), entry.UserID, userID)
		if apperrors.HasCode(err, apperrors.CodeAlreadyMatched) {
			// Stale entry: the queued user was seated elsewhere and never
			// cleaned up their entry. It is already deleted in this
			// transaction; move on to the next-oldest.
			log.Printf("[matcher] dropped stale entry %s", entry.UserID)
			continue
		}
		if err != nil {
			return nil, 0, err
		}

		// The caller may hold their own entry from an earlier wait; delete
		// it in the same transaction so a seated user is never also queued.
		ownRemoved, err := s.queue.RemoveTx(ctx, tx, userID)
		if err != nil {
			return nil, 0, err
		}

		// Seed messages, dequeued user's vent first, caller's second.
		if _, err := s.messages.AppendTx(ctx, tx, sess.ID, entry.UserID, entry.InitialMessage); err != nil {
			return nil, 0, err
		}
		if _, err := s.messages.AppendTx(ctx, tx, sess.ID, userID, initialMessage); err != nil {
			return nil, 0, err
		}

		if err := tx.Commit(); err != nil {
			return nil, 0, apperrors.ErrStoreFailure("commit match", err)
		}
		metrics.MessagesTotal.WithLabelValues("seed").Add(2)

		waited := time.Since(entry.CreatedAt)
		log.Printf("[matcher] matched %s with %s session=%s (waited %s)",
			entry.UserID, userID, sess.ID, waited.Round(time.Millisecond))

		s.publishFound(sess)
		return &MatchResult{
			Status:     StatusMatched,
			SessionID:  sess.ID,
			ownRemoved: ownRemoved,
		}, waited, nil
	}
}

// PollForSession returns the caller's active session by participant
// membership, or nil when still unmatched. On a hit it removes the
// caller's own waiting entry; the entry may already be gone when this user
// was consumed as the dequeued side, which is fine.
func (s *Service) PollForSession(ctx context.Context, userID string) (*session.Session, error) {
	sess, err := s.sessions.GetActiveForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}

	removed, err := s.queue.Remove(ctx, userID)
	if err != nil {
		log.Printf("[matcher] poll cleanup for %s: %v", userID, err)
	} else if removed {
		metrics.WaitingQueueSize.Dec()
	}
	return sess, nil
}

// Cancel abandons the caller's wait by releasing their queue entry.
// Cancelling when not queued is a no-op.
func (s *Service) Cancel(ctx context.Context, userID string) error {
	removed, err := s.queue.Remove(ctx, userID)
	if err != nil {
		return err
	}
	if removed {
		metrics.WaitingQueueSize.Dec()
		log.Printf("[matcher] dequeued %s (cancelled)", userID)
	}
	return nil
}

func (s *Service) publishFound(sess *session.Session) {
	if s.notifier == nil {
		return
	}
	pairs := []struct{ to, partner string }{
		{sess.ParticipantA, sess.ParticipantB},
		{sess.ParticipantB, sess.ParticipantA},
	}
	for _, p := range pairs {
		found := Found{SessionID: sess.ID, PartnerID: p.partner}
		if err := s.notifier.NotifyMatchFound(p.to, found); err != nil {
			log.Printf("[matcher] publish match.found for %s: %v", p.to, err)
		}
	}
}

// isSerializationFailure reports whether err is a PostgreSQL serialization
// or deadlock failure, which are safe to retry.
func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}
