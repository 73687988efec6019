// Package session manages chat sessions: the paired, two-party chat
// context binding exactly two participant ids. A session only ever moves
// from active to ended and is never deleted, so feedback can reference it
// after the chat is over.
package session

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	apperrors "github.com/ventline/vent-app/pkg/errors"
)

// Status constants for the session state machine.
const (
	StatusActive = "active"
	StatusEnded  = "ended"
)

// Session represents a chat between two anonymous users.
type Session struct {
	ID           string
	ParticipantA string // the user dequeued from the waiting queue
	ParticipantB string // the requester who triggered the match
	Status       string
	CreatedAt    time.Time
	EndedAt      *time.Time
}

// GetPartner returns the other participant's user id, or "" if userID is
// not a participant.
func (s *Session) GetPartner(userID string) string {
	if userID == s.ParticipantA {
		return s.ParticipantB
	}
	if userID == s.ParticipantB {
		return s.ParticipantA
	}
	return ""
}

// IsParticipant checks if a user is part of this session.
func (s *Session) IsParticipant(userID string) bool {
	return userID == s.ParticipantA || userID == s.ParticipantB
}

// Store manages chat sessions in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a session store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateTx inserts a new active session inside the caller's transaction.
// It refuses to pair a user with themselves and refuses to double-book a
// participant who already has an active session.
func (s *Store) CreateTx(ctx context.Context, tx *sql.Tx, id, participantA, participantB string) (*Session, error) {
	if participantA == participantB {
		return nil, apperrors.ErrSelfMatch
	}

	const activeCheck = `
		SELECT COUNT(*) FROM chat_sessions
		WHERE status = 'active' AND (
			participant_a IN ($1, $2) OR participant_b IN ($1, $2)
		)`
	var active int
	if err := tx.QueryRowContext(ctx, activeCheck, participantA, participantB).Scan(&active); err != nil {
		return nil, fmt.Errorf("session: active check: %w", err)
	}
	if active > 0 {
		return nil, apperrors.ErrAlreadyMatched
	}

	const insert = `
		INSERT INTO chat_sessions (id, participant_a, participant_b, status)
		VALUES ($1, $2, $3, 'active')
		RETURNING created_at`

	sess := &Session{
		ID:           id,
		ParticipantA: participantA,
		ParticipantB: participantB,
		Status:       StatusActive,
	}
	if err := tx.QueryRowContext(ctx, insert, id, participantA, participantB).Scan(&sess.CreatedAt); err != nil {
		return nil, fmt.Errorf("session: create %s: %w", id, err)
	}
	return sess, nil
}

// Get retrieves a session by id. Returns ErrSessionNotFound if absent.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	const query = `
		SELECT id, participant_a, participant_b, status, created_at, ended_at
		FROM chat_sessions
		WHERE id = $1`
	return scanOne(s.db.QueryRowContext(ctx, query, id))
}

// GetActiveForUser returns the user's active session by participant
// membership, independent of queue state. Returns nil when the user has no
// active session.
func (s *Store) GetActiveForUser(ctx context.Context, userID string) (*Session, error) {
	const query = `
		SELECT id, participant_a, participant_b, status, created_at, ended_at
		FROM chat_sessions
		WHERE status = 'active' AND (participant_a = $1 OR participant_b = $1)
		ORDER BY created_at
		LIMIT 1`

	sess, err := scanOne(s.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return sess, nil
}

// GetActiveForUserTx is GetActiveForUser inside the caller's transaction,
// used by the matchmaker's atomic dequeue-or-enqueue step.
func (s *Store) GetActiveForUserTx(ctx context.Context, tx *sql.Tx, userID string) (*Session, error) {
	const query = `
		SELECT id, participant_a, participant_b, status, created_at, ended_at
		FROM chat_sessions
		WHERE status = 'active' AND (participant_a = $1 OR participant_b = $1)
		ORDER BY created_at
		LIMIT 1`

	sess, err := scanOne(tx.QueryRowContext(ctx, query, userID))
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return sess, nil
}

// End transitions the session to ended and stamps ended_at. Ending an
// already-ended session is a no-op, so ended_at is only ever written once.
// The bool reports whether this call did the transition: with concurrent
// ends exactly one caller sees true, which is what side effects keyed to
// the transition (gauges, the ended event) must hang off.
// Returns ErrSessionNotFound for an unknown id.
func (s *Store) End(ctx context.Context, id string) (bool, error) {
	const update = `
		UPDATE chat_sessions
		SET status = 'ended', ended_at = now()
		WHERE id = $1 AND status = 'active'`

	res, err := s.db.ExecContext(ctx, update, id)
	if err != nil {
		return false, fmt.Errorf("session: end %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}

	// Nothing updated: either already ended (fine) or unknown id.
	var exists bool
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM chat_sessions WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("session: end %s: %w", id, err)
	}
	if !exists {
		return false, apperrors.ErrSessionNotFound
	}
	return false, nil
}

// CountActive returns the number of currently active sessions.
func (s *Store) CountActive(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chat_sessions WHERE status = 'active'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("session: count active: %w", err)
	}
	return n, nil
}

func scanOne(row *sql.Row) (*Session, error) {
	var sess Session
	var endedAt sql.NullTime
	err := row.Scan(&sess.ID, &sess.ParticipantA, &sess.ParticipantB,
		&sess.Status, &sess.CreatedAt, &endedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: scan: %w", err)
	}
	if endedAt.Valid {
		sess.EndedAt = &endedAt.Time
	}
	return &sess, nil
}
