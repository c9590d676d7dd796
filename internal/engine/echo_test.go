package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openorbit/agenthub/internal/common/config"
	"github.com/openorbit/agenthub/internal/event"
	"github.com/openorbit/agenthub/internal/gate"
	"github.com/openorbit/agenthub/internal/registry"
	"github.com/openorbit/agenthub/pkg/metrics"
)

func newTestEcho(t *testing.T) (*Echo, *registry.Registry, *event.MemoryBus) {
	t.Helper()
	logger := zap.NewNop()
	m := metrics.New(config.MetricsConfig{Namespace: "test"})
	bus := event.NewMemoryBus(logger, m, 16)
	reg := registry.New(logger, m)
	return NewEcho(logger, bus, reg), reg, bus
}

func TestEchoUserInput(t *testing.T) {
	eng, reg, bus := newTestEcho(t)
	sess := reg.Create("alice")
	sub := bus.Subscribe(sess.ID)
	defer bus.Unsubscribe(sess.ID, sub)

	err := eng.Execute(context.Background(), sess.ID, &gate.Operation{
		Kind:    gate.KindUserInput,
		Payload: map[string]any{"text": "hello"},
	})
	require.NoError(t, err)

	var types []string
	for i := 0; i < 3; i++ {
		select {
		case ev := <-sub.Events():
			types = append(types, ev.Type)
		case <-time.After(time.Second):
			t.Fatal("missing event")
		}
	}
	assert.Equal(t, []string{"operation_started", "agent_message", "operation_finished"}, types)

	got, err := reg.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.MessageCount)
}

func TestEchoHonorsCancellation(t *testing.T) {
	eng, reg, _ := newTestEcho(t)
	eng.Delay = time.Minute
	sess := reg.Create("alice")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- eng.Execute(ctx, sess.ID, &gate.Operation{Kind: gate.KindUserInput})
	}()
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancellation was not observed")
	}
}

func TestEchoShutdownDeactivates(t *testing.T) {
	eng, reg, _ := newTestEcho(t)
	sess := reg.Create("alice")

	require.NoError(t, eng.Execute(context.Background(), sess.ID, &gate.Operation{Kind: gate.KindShutdown}))

	got, err := reg.Get(sess.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
}
