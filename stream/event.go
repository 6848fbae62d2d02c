// Package stream provides a real-time broker for onboarding notifications.
// It implements notify.Port and fans messages out to connected observers
// via topic-based pub/sub.
package stream

import (
	"time"

	"github.com/xraph/aegis/notify"
)

// Event is the envelope sent to subscribers on a topic channel.
type Event struct {
	// Type identifies the notification variant.
	Type notify.Type `json:"type"`

	// Timestamp is when the notification was emitted.
	Timestamp time.Time `json:"ts"`

	// Topic is the client channel this event was published on.
	Topic string `json:"topic"`

	// Message is the notification itself.
	Message notify.Message `json:"message"`
}

// NewEvent wraps msg for delivery on its client topic.
func NewEvent(msg notify.Message) *Event {
	return &Event{
		Type:      msg.Type,
		Timestamp: msg.Timestamp,
		Topic:     ClientTopic(msg.ClientID.String()),
		Message:   msg,
	}
}
