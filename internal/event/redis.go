package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openorbit/agenthub/internal/common/config"
	"github.com/openorbit/agenthub/pkg/metrics"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// envelope is the wire format published to the redis topic. A broadcast
// carries an empty session id and is applied to every locally known session.
type envelope struct {
	SessionID string         `json:"session_id,omitempty"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
}

// RedisBus implements Bus across multiple nodes. Every publish goes through a
// redis topic; each node delivers received envelopes to its local subscribers
// through an embedded MemoryBus. Introspection reflects local subscribers
// only.
type RedisBus struct {
	logger *zap.Logger
	client *redis.Client
	topic  string
	local  *MemoryBus
	pubsub *redis.PubSub
	cancel context.CancelFunc
}

var _ Bus = (*RedisBus)(nil)

// NewRedisBus creates a redis-backed event bus
func NewRedisBus(logger *zap.Logger, m *metrics.Metrics, cfg config.BusRedisConfig, queueSize int) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &RedisBus{
		logger: logger.Named("event.bus.redis"),
		client: client,
		topic:  cfg.Topic,
		local:  NewMemoryBus(logger, m, queueSize),
		pubsub: client.Subscribe(ctx, cfg.Topic),
		cancel: cancel,
	}
	go b.receive()

	return b, nil
}

// receive delivers envelopes from the redis topic to local subscribers
func (b *RedisBus) receive() {
	ch := b.pubsub.Channel()
	for msg := range ch {
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			b.logger.Error("failed to unmarshal event envelope",
				zap.Error(err),
				zap.String("payload", msg.Payload))
			continue
		}
		if env.SessionID == "" {
			b.local.Broadcast(env.Type, env.Data)
			continue
		}
		b.local.Publish(env.SessionID, env.Type, env.Data)
	}
}

// Subscribe implements Bus.Subscribe
func (b *RedisBus) Subscribe(sessionID string) *Subscriber {
	return b.local.Subscribe(sessionID)
}

// Unsubscribe implements Bus.Unsubscribe
func (b *RedisBus) Unsubscribe(sessionID string, sub *Subscriber) {
	b.local.Unsubscribe(sessionID, sub)
}

// Publish implements Bus.Publish. The event reaches local subscribers through
// the same redis round-trip as remote ones, so ordering is uniform per topic.
func (b *RedisBus) Publish(sessionID, eventType string, data map[string]any) {
	b.send(&envelope{SessionID: sessionID, Type: eventType, Data: data})
}

// Broadcast implements Bus.Broadcast
func (b *RedisBus) Broadcast(eventType string, data map[string]any) {
	b.send(&envelope{Type: eventType, Data: data})
}

func (b *RedisBus) send(env *envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		b.logger.Error("failed to marshal event envelope", zap.Error(err))
		return
	}
	if err := b.client.Publish(context.Background(), b.topic, payload).Err(); err != nil {
		b.logger.Error("failed to publish event to redis",
			zap.String("session_id", env.SessionID),
			zap.String("event_type", env.Type),
			zap.Error(err))
	}
}

// IsConnected implements Bus.IsConnected
func (b *RedisBus) IsConnected(sessionID string) bool {
	return b.local.IsConnected(sessionID)
}

// SubscriberCount implements Bus.SubscriberCount
func (b *RedisBus) SubscriberCount(sessionID string) int {
	return b.local.SubscriberCount(sessionID)
}

// TotalSubscribers implements Bus.TotalSubscribers
func (b *RedisBus) TotalSubscribers() int {
	return b.local.TotalSubscribers()
}

// Close implements Bus.Close
func (b *RedisBus) Close() error {
	b.cancel()
	if err := b.pubsub.Close(); err != nil {
		return err
	}
	return b.client.Close()
}
