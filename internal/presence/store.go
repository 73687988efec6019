// Package presence is an ephemeral Redis cache of what each user is
// currently doing (idle, waiting, chatting). It exists for the transport
// layer and metrics only; matchmaking correctness never depends on it, and
// keys simply expire when a user walks away.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KeyPrefix is the Redis key prefix for presence hashes.
	KeyPrefix = "presence:"

	// TTL is the time-to-live for presence keys.
	TTL = 1 * time.Hour

	// Status constants.
	StatusIdle     = "idle"
	StatusWaiting  = "waiting"
	StatusChatting = "chatting"
)

// Presence is a user's cached state.
type Presence struct {
	UserID     string `redis:"user_id"`
	Status     string `redis:"status"`      // idle | waiting | chatting
	SessionID  string `redis:"session_id"`  // empty unless chatting
	LastActive int64  `redis:"last_active"` // unix timestamp
}

// Store manages presence state in Redis.
type Store struct {
	client *redis.Client
}

// NewStore creates a presence store using the provided Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// Set records the user's current status, refreshing the TTL.
func (s *Store) Set(ctx context.Context, userID, status, sessionID string) error {
	key := KeyPrefix + userID

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"user_id":     userID,
		"status":      status,
		"session_id":  sessionID,
		"last_active": time.Now().Unix(),
	})
	pipe.Expire(ctx, key, TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("presence: set %s: %w", userID, err)
	}
	return nil
}

// Get retrieves a user's presence. Returns nil if not found or expired.
func (s *Store) Get(ctx context.Context, userID string) (*Presence, error) {
	key := KeyPrefix + userID
	var p Presence
	if err := s.client.HGetAll(ctx, key).Scan(&p); err != nil {
		return nil, fmt.Errorf("presence: get %s: %w", userID, err)
	}
	if p.UserID == "" {
		return nil, nil // not found
	}
	return &p, nil
}

// Clear removes a user's presence immediately.
func (s *Store) Clear(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, KeyPrefix+userID).Err(); err != nil {
		return fmt.Errorf("presence: clear %s: %w", userID, err)
	}
	return nil
}
