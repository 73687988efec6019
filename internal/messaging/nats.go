// Package messaging provides a NATS client wrapper for pub/sub across the
// Ventline service. It carries two kinds of traffic: per-session chat
// events on chat.<session_id>, and match notifications on
// match.found.<user_id>.
package messaging

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subject patterns.
const (
	SubjectChat       = "chat"        // + .<session_id>
	SubjectMatchFound = "match.found" // + .<user_id>
)

// Client wraps the NATS connection with helper methods for pub/sub.
type Client struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// Config holds NATS connection settings.
type Config struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           "nats://localhost:4222",
		Name:          "ventline",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewClient connects to NATS with the given config and returns a ready
// client. It returns an error if the initial connection fails.
func NewClient(config Config) (*Client, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &Client{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given NATS subject.
func (c *Client) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// PublishChatEvent publishes data to the chat.<sessionID> subject.
func (c *Client) PublishChatEvent(sessionID string, data []byte) error {
	return c.Publish(SubjectChat+"."+sessionID, data)
}

// SubscribeToChat subscribes to chat.<sessionID> for one subscriber. The
// subscription is keyed by subscriberKey so both participants of a session
// can subscribe on the same process without overwriting each other.
// The returned function unsubscribes and is safe to call more than once.
func (c *Client) SubscribeToChat(sessionID, subscriberKey string, handler func(data []byte)) (func(), error) {
	subject := SubjectChat + "." + sessionID
	key := "chatsub:" + subscriberKey

	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	if prev, ok := c.subs[key]; ok {
		prev.Unsubscribe()
	}
	c.subs[key] = sub
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := c.release(key, sub); err != nil {
				log.Printf("[nats] unsubscribe %s: %v", key, err)
			}
		})
	}, nil
}

// PublishMatchFound publishes data to the match.found.<userID> subject.
func (c *Client) PublishMatchFound(userID string, data []byte) error {
	return c.Publish(SubjectMatchFound+"."+userID, data)
}

// SubscribeMatchFound subscribes to match.found.<userID> and passes raw
// message data to the handler. The returned function unsubscribes.
func (c *Client) SubscribeMatchFound(userID string, handler func(data []byte)) (func(), error) {
	subject := SubjectMatchFound + "." + userID

	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	if prev, ok := c.subs[subject]; ok {
		prev.Unsubscribe()
	}
	c.subs[subject] = sub
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := c.release(subject, sub); err != nil {
				log.Printf("[nats] unsubscribe %s: %v", subject, err)
			}
		})
	}, nil
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", subject, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}

// release unsubscribes sub and drops its bookkeeping entry. The map entry
// is only removed when it still points at sub: a stale closure from before
// a re-subscribe must not tear down the replacement subscription.
func (c *Client) release(key string, sub *nats.Subscription) error {
	c.mu.Lock()
	if c.subs[key] == sub {
		delete(c.subs, key)
	}
	c.mu.Unlock()

	if err := sub.Unsubscribe(); err != nil && err != nats.ErrBadSubscription {
		return fmt.Errorf("nats unsubscribe %s: %w", key, err)
	}
	return nil
}
