// Package queue manages the waiting queue: at most one row per unmatched
// user, consumed strictly oldest-first by the matchmaker.
package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	apperrors "github.com/ventline/vent-app/pkg/errors"
)

// Entry is a waiting, unmatched user's placeholder record. It is keyed by
// the user's id, so a user can hold at most one entry.
type Entry struct {
	UserID         string
	InitialMessage string
	CreatedAt      time.Time
}

// Store manages waiting queue rows in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a queue store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Enqueue inserts a waiting entry for the user. If the user is already
// waiting, the initial message is replaced but created_at is kept, so
// re-submitting does not push the user to the back of the line.
func (s *Store) Enqueue(ctx context.Context, userID, initialMessage string) (*Entry, error) {
	const query = `
		INSERT INTO waiting_queue (id, initial_message)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET initial_message = EXCLUDED.initial_message
		RETURNING id, initial_message, created_at`

	var e Entry
	err := s.db.QueryRowContext(ctx, query, userID, initialMessage).
		Scan(&e.UserID, &e.InitialMessage, &e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("queue: enqueue %s: %w", userID, err)
	}
	return &e, nil
}

// PeekOldest returns the oldest waiting entry without consuming it.
// Returns nil when the queue is empty.
func (s *Store) PeekOldest(ctx context.Context) (*Entry, error) {
	const query = `
		SELECT id, initial_message, created_at
		FROM waiting_queue
		ORDER BY created_at, id
		LIMIT 1`

	var e Entry
	err := s.db.QueryRowContext(ctx, query).Scan(&e.UserID, &e.InitialMessage, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: peek oldest: %w", err)
	}
	return &e, nil
}

// Get returns the user's waiting entry, or nil if the user is not queued.
func (s *Store) Get(ctx context.Context, userID string) (*Entry, error) {
	const query = `
		SELECT id, initial_message, created_at
		FROM waiting_queue
		WHERE id = $1`

	var e Entry
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&e.UserID, &e.InitialMessage, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: get %s: %w", userID, err)
	}
	return &e, nil
}

// Remove deletes the user's waiting entry and reports whether a row was
// actually removed. Removing an entry that is already gone is not an
// error: the matchmaker may have consumed it.
func (s *Store) Remove(ctx context.Context, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM waiting_queue WHERE id = $1`, userID)
	if err != nil {
		return false, fmt.Errorf("queue: remove %s: %w", userID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GetTx is Get inside the caller's transaction.
func (s *Store) GetTx(ctx context.Context, tx *sql.Tx, userID string) (*Entry, error) {
	const query = `
		SELECT id, initial_message, created_at
		FROM waiting_queue
		WHERE id = $1`

	var e Entry
	err := tx.QueryRowContext(ctx, query, userID).Scan(&e.UserID, &e.InitialMessage, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: get %s: %w", userID, err)
	}
	return &e, nil
}

// RemoveTx is Remove inside the caller's transaction, used by the
// matchmaker to clear the caller's own entry in the same atomic step that
// seats their session.
func (s *Store) RemoveTx(ctx context.Context, tx *sql.Tx, userID string) (bool, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM waiting_queue WHERE id = $1`, userID)
	if err != nil {
		return false, fmt.Errorf("queue: remove %s: %w", userID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Size returns the number of users currently waiting.
func (s *Store) Size(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM waiting_queue`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("queue: size: %w", err)
	}
	return n, nil
}

// TakeOldestTx locks and deletes the oldest entry not belonging to
// excludeUserID, inside the caller's transaction. SKIP LOCKED guarantees an
// entry locked by a concurrent matchmaker is never consumed twice.
// Returns nil when no eligible entry exists.
func (s *Store) TakeOldestTx(ctx context.Context, tx *sql.Tx, excludeUserID string) (*Entry, error) {
	const query = `
		SELECT id, initial_message, created_at
		FROM waiting_queue
		WHERE id <> $1
		ORDER BY created_at, id
		LIMIT 1
		FOR UPDATE SKIP LOCKED`

	var e Entry
	err := tx.QueryRowContext(ctx, query, excludeUserID).
		Scan(&e.UserID, &e.InitialMessage, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: take oldest: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM waiting_queue WHERE id = $1`, e.UserID)
	if err != nil {
		return nil, fmt.Errorf("queue: consume %s: %w", e.UserID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// The locked row vanished under us; should not happen under
		// FOR UPDATE, treat as empty queue.
		return nil, apperrors.ErrEntryNotFound
	}

	return &e, nil
}

// EnqueueTx is Enqueue inside the caller's transaction, used when the
// matchmaker decides to self-enqueue within its atomic step.
func (s *Store) EnqueueTx(ctx context.Context, tx *sql.Tx, userID, initialMessage string) (*Entry, error) {
	const query = `
		INSERT INTO waiting_queue (id, initial_message)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET initial_message = EXCLUDED.initial_message
		RETURNING id, initial_message, created_at`

	var e Entry
	err := tx.QueryRowContext(ctx, query, userID, initialMessage).
		Scan(&e.UserID, &e.InitialMessage, &e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("queue: enqueue %s: %w", userID, err)
	}
	return &e, nil
}
