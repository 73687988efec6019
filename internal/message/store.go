// Package message is the append-only ordered message log. Rows are
// immutable; ordering is by (created_at, seq) where seq is a monotonically
// increasing sequence that breaks ties between inserts sharing a timestamp.
package message

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ventline/vent-app/internal/session"
	apperrors "github.com/ventline/vent-app/pkg/errors"
)

// Message is a single chat message belonging to exactly one session.
type Message struct {
	ID        string    `json:"id"`
	Seq       int64     `json:"seq"`
	SessionID string    `json:"session_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store manages the message log in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a message store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append validates and inserts a message. The session row is read under
// FOR SHARE inside the same transaction, so an append racing a concurrent
// EndSession either lands before the flip or fails with SessionClosed;
// it can never land on an ended session.
func (s *Store) Append(ctx context.Context, sessionID, senderID, content string) (*Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.ErrEmptyContent
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("message: begin append: %w", err)
	}
	defer tx.Rollback()

	const guard = `
		SELECT participant_a, participant_b, status
		FROM chat_sessions
		WHERE id = $1
		FOR SHARE`

	var a, b, status string
	err = tx.QueryRowContext(ctx, guard, sessionID).Scan(&a, &b, &status)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("message: session guard: %w", err)
	}
	if status != session.StatusActive {
		return nil, apperrors.ErrSessionClosed
	}
	if senderID != a && senderID != b {
		return nil, apperrors.ErrNotParticipant
	}

	msg, err := insertTx(ctx, tx, sessionID, senderID, content)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("message: commit append: %w", err)
	}
	return msg, nil
}

// AppendTx inserts a message inside the caller's transaction. Used by the
// matchmaker to seed the two initial messages atomically with session
// creation; the caller is responsible for the session guard.
func (s *Store) AppendTx(ctx context.Context, tx *sql.Tx, sessionID, senderID, content string) (*Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.ErrEmptyContent
	}
	return insertTx(ctx, tx, sessionID, senderID, content)
}

// ListOrdered returns all messages of a session in ascending creation
// order, seed messages included. Returns ErrSessionNotFound for an unknown
// session rather than an empty list.
func (s *Store) ListOrdered(ctx context.Context, sessionID string) ([]Message, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM chat_sessions WHERE id = $1)`, sessionID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("message: session check: %w", err)
	}
	if !exists {
		return nil, apperrors.ErrSessionNotFound
	}

	const query = `
		SELECT id, seq, session_id, sender_id, content, created_at
		FROM messages
		WHERE session_id = $1
		ORDER BY created_at, seq`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("message: list %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Seq, &m.SessionID, &m.SenderID, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("message: scan: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("message: list %s: %w", sessionID, err)
	}
	return out, nil
}

func insertTx(ctx context.Context, tx *sql.Tx, sessionID, senderID, content string) (*Message, error) {
	const insert = `
		INSERT INTO messages (id, session_id, sender_id, content)
		VALUES ($1, $2, $3, $4)
		RETURNING seq, created_at`

	msg := &Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		SenderID:  senderID,
		Content:   content,
	}
	err := tx.QueryRowContext(ctx, insert, msg.ID, sessionID, senderID, content).
		Scan(&msg.Seq, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("message: insert: %w", err)
	}
	return msg, nil
}
