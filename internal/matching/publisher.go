package matching

import (
	"encoding/json"
	"fmt"

	"github.com/ventline/vent-app/internal/messaging"
)

// NATSNotifier publishes match results over NATS match.found.<user_id>
// subjects, giving connected waiters a push ahead of their next poll tick.
type NATSNotifier struct {
	client *messaging.Client
}

// NewNATSNotifier wraps a messaging client as a Notifier.
func NewNATSNotifier(client *messaging.Client) *NATSNotifier {
	return &NATSNotifier{client: client}
}

// NotifyMatchFound implements Notifier.
func (n *NATSNotifier) NotifyMatchFound(userID string, found Found) error {
	data, err := json.Marshal(found)
	if err != nil {
		return fmt.Errorf("matching: marshal match.found for %s: %w", userID, err)
	}
	if err := n.client.PublishMatchFound(userID, data); err != nil {
		return fmt.Errorf("matching: publish match.found for %s: %w", userID, err)
	}
	return nil
}
