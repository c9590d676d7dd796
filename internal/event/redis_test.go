package event

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/openorbit/agenthub/internal/common/config"
	"github.com/openorbit/agenthub/pkg/metrics"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRedisTestBus(t *testing.T) *RedisBus {
	t.Helper()
	mr := miniredis.RunT(t)
	b, err := NewRedisBus(zap.NewNop(), metrics.New(config.MetricsConfig{Namespace: "t"}),
		config.BusRedisConfig{Addr: mr.Addr(), Topic: "agenthub:test"}, 10)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func waitEvent(t *testing.T, sub *Subscriber) *Event {
	t.Helper()
	select {
	case evt := <-sub.Events():
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered through redis")
		return nil
	}
}

func TestRedisBusPublish(t *testing.T) {
	b := newRedisTestBus(t)
	sub := b.Subscribe("s1")

	b.Publish("s1", "agent_message", map[string]any{"text": "hi"})

	evt := waitEvent(t, sub)
	require.Equal(t, "agent_message", evt.Type)
	require.Equal(t, "hi", evt.Data["text"])
}

func TestRedisBusBroadcast(t *testing.T) {
	b := newRedisTestBus(t)
	s1 := b.Subscribe("s1")
	s2 := b.Subscribe("s2")

	b.Broadcast("server_shutdown", nil)

	require.Equal(t, "server_shutdown", waitEvent(t, s1).Type)
	require.Equal(t, "server_shutdown", waitEvent(t, s2).Type)
}

func TestRedisBusConnectFailure(t *testing.T) {
	_, err := NewRedisBus(zap.NewNop(), metrics.New(config.MetricsConfig{Namespace: "t"}),
		config.BusRedisConfig{Addr: "127.0.0.1:1", Topic: "x"}, 10)
	require.Error(t, err)
}
