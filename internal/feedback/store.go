// Package feedback records post-chat sentiment and the follow-up support
// flag. One row per (session, user); the feeling is recorded first with
// needs_help unset, and the follow-up updates that same row later.
package feedback

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	apperrors "github.com/ventline/vent-app/pkg/errors"
)

// Allowed feeling values.
const (
	FeelingBetter  = "better"
	FeelingNeutral = "neutral"
	FeelingWorse   = "worse"
)

// Feedback is one participant's post-chat response.
type Feedback struct {
	SessionID string
	UserID    string
	Feeling   string
	NeedsHelp *bool
	CreatedAt time.Time
}

// ValidFeeling reports whether v is one of the allowed feeling values.
func ValidFeeling(v string) bool {
	return v == FeelingBetter || v == FeelingNeutral || v == FeelingWorse
}

// Store manages feedback rows in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a feedback store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// RecordFeeling upserts the feeling for (sessionID, userID). A repeat call
// updates the stored feeling instead of creating a duplicate row. The
// session must exist; it does not have to still be active.
func (s *Store) RecordFeeling(ctx context.Context, sessionID, userID, feeling string) error {
	if !ValidFeeling(feeling) {
		return apperrors.ErrInvalidFeeling
	}

	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM chat_sessions WHERE id = $1)`, sessionID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("feedback: session check: %w", err)
	}
	if !exists {
		return apperrors.ErrSessionNotFound
	}

	const upsert = `
		INSERT INTO feedback (session_id, user_id, feeling)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id, user_id) DO UPDATE SET feeling = EXCLUDED.feeling`

	if _, err := s.db.ExecContext(ctx, upsert, sessionID, userID, feeling); err != nil {
		return fmt.Errorf("feedback: record feeling: %w", err)
	}
	return nil
}

// RecordNeedsHelp sets the support flag on an existing feedback row.
// Fails with ErrNeedsHelpWithoutFeeling when no feeling was recorded first.
func (s *Store) RecordNeedsHelp(ctx context.Context, sessionID, userID string, needsHelp bool) error {
	const update = `
		UPDATE feedback
		SET needs_help = $3
		WHERE session_id = $1 AND user_id = $2`

	res, err := s.db.ExecContext(ctx, update, sessionID, userID, needsHelp)
	if err != nil {
		return fmt.Errorf("feedback: record needs help: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.ErrNeedsHelpWithoutFeeling
	}
	return nil
}

// Get returns the feedback row for (sessionID, userID), or nil if none.
func (s *Store) Get(ctx context.Context, sessionID, userID string) (*Feedback, error) {
	const query = `
		SELECT session_id, user_id, feeling, needs_help, created_at
		FROM feedback
		WHERE session_id = $1 AND user_id = $2`

	var fb Feedback
	var needsHelp sql.NullBool
	err := s.db.QueryRowContext(ctx, query, sessionID, userID).
		Scan(&fb.SessionID, &fb.UserID, &fb.Feeling, &needsHelp, &fb.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("feedback: get: %w", err)
	}
	if needsHelp.Valid {
		fb.NeedsHelp = &needsHelp.Bool
	}
	return &fb, nil
}
