package event

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openorbit/agenthub/pkg/metrics"
	"go.uber.org/zap"
)

// MemoryBus implements Bus with in-process fan-out
type MemoryBus struct {
	logger    *zap.Logger
	metrics   *metrics.Metrics
	queueSize int
	mu        sync.RWMutex
	subs      map[string]map[string]*Subscriber
}

var _ Bus = (*MemoryBus)(nil)

// NewMemoryBus creates a new in-process event bus
func NewMemoryBus(logger *zap.Logger, m *metrics.Metrics, queueSize int) *MemoryBus {
	if queueSize <= 0 {
		queueSize = 100
	}
	return &MemoryBus{
		logger:    logger.Named("event.bus.memory"),
		metrics:   m,
		queueSize: queueSize,
		subs:      make(map[string]map[string]*Subscriber),
	}
}

// Subscribe implements Bus.Subscribe
func (b *MemoryBus) Subscribe(sessionID string) *Subscriber {
	sub := &Subscriber{
		id:    uuid.New().String(),
		queue: make(chan *Event, b.queueSize),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sessionID]; !ok {
		b.subs[sessionID] = make(map[string]*Subscriber)
	}
	b.subs[sessionID][sub.id] = sub
	b.metrics.SubscriberJoined()
	return sub
}

// Unsubscribe implements Bus.Unsubscribe
func (b *MemoryBus) Unsubscribe(sessionID string, sub *Subscriber) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.subs[sessionID]
	if !ok {
		return
	}
	if _, ok := set[sub.id]; !ok {
		return
	}
	delete(set, sub.id)
	b.metrics.SubscriberLeft()
	if len(set) == 0 {
		delete(b.subs, sessionID)
	}
}

// Publish implements Bus.Publish
func (b *MemoryBus) Publish(sessionID, eventType string, data map[string]any) {
	b.deliver(&Event{
		SessionID: sessionID,
		Type:      eventType,
		Data:      data,
		Time:      time.Now(),
	})
}

// Broadcast implements Bus.Broadcast
func (b *MemoryBus) Broadcast(eventType string, data map[string]any) {
	b.mu.RLock()
	ids := make([]string, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	b.mu.RUnlock()

	// Sessions removed after the snapshot yield a no-op publish.
	for _, id := range ids {
		b.Publish(id, eventType, data)
	}
}

// deliver sends the event to a snapshot of the session's subscribers. The
// lock is never held while pushing into subscriber queues.
func (b *MemoryBus) deliver(evt *Event) {
	b.mu.RLock()
	set, ok := b.subs[evt.SessionID]
	if !ok {
		b.mu.RUnlock()
		b.metrics.EventDropped("no_subscribers")
		return
	}
	targets := make([]*Subscriber, 0, len(set))
	for _, sub := range set {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	b.metrics.EventPublished(evt.Type)
	for _, sub := range targets {
		select {
		case sub.queue <- evt:
		default:
			// One slow consumer must not block the publisher or the others.
			b.metrics.EventDropped("queue_full")
			b.logger.Warn("subscriber queue full, dropping event",
				zap.String("session_id", evt.SessionID),
				zap.String("subscriber_id", sub.id),
				zap.String("event_type", evt.Type))
		}
	}
}

// IsConnected implements Bus.IsConnected
func (b *MemoryBus) IsConnected(sessionID string) bool {
	return b.SubscriberCount(sessionID) > 0
}

// SubscriberCount implements Bus.SubscriberCount
func (b *MemoryBus) SubscriberCount(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionID])
}

// TotalSubscribers implements Bus.TotalSubscribers
func (b *MemoryBus) TotalSubscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	total := 0
	for _, set := range b.subs {
		total += len(set)
	}
	return total
}

// Close implements Bus.Close
func (b *MemoryBus) Close() error {
	return nil
}
