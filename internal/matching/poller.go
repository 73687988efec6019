package matching

import (
	"context"
	"fmt"
	"time"

	"github.com/ventline/vent-app/internal/session"
)

const (
	// DefaultPollInterval is how often a waiting caller re-checks for a
	// seated session.
	DefaultPollInterval = 2 * time.Second

	// maxPollFailures is the number of consecutive store failures
	// tolerated before the wait is surfaced as a connectivity error.
	maxPollFailures = 5
)

// SessionFinder is the slice of the matchmaker the poller needs.
type SessionFinder interface {
	PollForSession(ctx context.Context, userID string) (*session.Session, error)
}

// Poller is the caller-side wait loop for a user who received a Waiting
// result. It checks for an active session at a fixed interval until one
// appears or the context is cancelled.
type Poller struct {
	finder   SessionFinder
	userID   string
	interval time.Duration
}

// NewPoller creates a poller for the given waiting user.
func NewPoller(finder SessionFinder, userID string) *Poller {
	return &Poller{finder: finder, userID: userID, interval: DefaultPollInterval}
}

// WithInterval overrides the poll interval. Intended for tests.
func (p *Poller) WithInterval(d time.Duration) *Poller {
	p.interval = d
	return p
}

// Wait blocks until the user is bound to an active session, the context is
// cancelled, or the store fails repeatedly. Transient store errors are
// retried up to maxPollFailures times on the regular tick.
func (p *Poller) Wait(ctx context.Context) (*session.Session, error) {
	// Check immediately: the match may already have happened while the
	// caller was between requests.
	failures := 0
	if sess, err := p.finder.PollForSession(ctx, p.userID); err == nil {
		if sess != nil {
			return sess, nil
		}
	} else {
		failures++
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			sess, err := p.finder.PollForSession(ctx, p.userID)
			if err != nil {
				failures++
				if failures >= maxPollFailures {
					return nil, fmt.Errorf("matching: poll for %s: %d consecutive failures: %w",
						p.userID, failures, err)
				}
				continue
			}
			failures = 0
			if sess != nil {
				return sess, nil
			}
		}
	}
}
