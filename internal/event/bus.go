package event

import "time"

// Event is a notification emitted during a session's execution. Events are
// ephemeral: they are delivered to currently connected subscribers and never
// stored or replayed.
type Event struct {
	SessionID string         `json:"session_id"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	Time      time.Time      `json:"time"`
}

// Subscriber is the receiving end of one subscription. Events for the
// subscribed session arrive on a bounded FIFO queue; when the queue is full
// further events are dropped for this subscriber only.
type Subscriber struct {
	id    string
	queue chan *Event
}

// ID returns the subscriber's unique identifier.
func (s *Subscriber) ID() string {
	return s.id
}

// Events returns a read-only channel where the session's events are delivered.
func (s *Subscriber) Events() <-chan *Event {
	return s.queue
}

// Bus fans session events out to any number of concurrent subscribers.
// Delivery is at-most-once and best-effort: publishing to a session with no
// subscribers discards the event, and a full subscriber queue drops the event
// for that subscriber without affecting the others or the publisher.
type Bus interface {
	// Subscribe registers a new bounded queue for the session and returns its
	// handle. It always succeeds; the session's subscriber list is created
	// lazily.
	Subscribe(sessionID string) *Subscriber

	// Unsubscribe removes the handle from the session's subscriber list. It is
	// idempotent; removing an unknown handle is a no-op. The session's entry is
	// deleted once its last subscriber is gone.
	Unsubscribe(sessionID string, sub *Subscriber)

	// Publish delivers the event to every handle currently subscribed to the
	// session. Unknown sessions imply zero subscribers, never an error.
	Publish(sessionID, eventType string, data map[string]any)

	// Broadcast publishes to all sessions currently known to the bus.
	Broadcast(eventType string, data map[string]any)

	// IsConnected reports whether the session has at least one subscriber.
	IsConnected(sessionID string) bool

	// SubscriberCount returns the session's current subscriber count.
	SubscriberCount(sessionID string) int

	// TotalSubscribers returns the subscriber count across all sessions.
	TotalSubscribers() int

	// Close releases resources held by the bus.
	Close() error
}
