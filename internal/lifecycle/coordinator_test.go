package lifecycle

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openorbit/agenthub/internal/common/cnst"
	"github.com/openorbit/agenthub/internal/common/config"
	"github.com/openorbit/agenthub/internal/database"
	"github.com/openorbit/agenthub/internal/event"
	"github.com/openorbit/agenthub/internal/gate"
	"github.com/openorbit/agenthub/internal/registry"
	"github.com/openorbit/agenthub/pkg/metrics"
)

type engineFunc func(ctx context.Context, sessionID string, op *gate.Operation) error

func (f engineFunc) Execute(ctx context.Context, sessionID string, op *gate.Operation) error {
	return f(ctx, sessionID, op)
}

// stubDB records persistence calls for ordering assertions.
type stubDB struct {
	mu      sync.Mutex
	restore []registry.Session
	flushed []registry.Session
	deleted []string
}

func (s *stubDB) RestoreAll(context.Context) ([]registry.Session, error) {
	return s.restore, nil
}

func (s *stubDB) FlushAll(_ context.Context, sessions []registry.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushed = sessions
	return nil
}

func (s *stubDB) Upsert(context.Context, registry.Session) error { return nil }

func (s *stubDB) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubDB) Close() error { return nil }

func newTestCoordinator(t *testing.T, db database.Database, eng gate.Engine, grace time.Duration) (*Coordinator, *registry.Registry, *event.MemoryBus, *gate.Gate) {
	t.Helper()
	logger := zap.NewNop()
	m := metrics.New(config.MetricsConfig{Namespace: "test"})
	bus := event.NewMemoryBus(logger, m, 16)
	reg := registry.New(logger, m)
	g := gate.New(logger, m, bus, reg, eng, config.GateConfig{QueueSize: 8})
	c := New(logger, db, reg, bus, g, config.GateConfig{QueueSize: 8, DrainGrace: grace})
	return c, reg, bus, g
}

func TestStartRestores(t *testing.T) {
	db := &stubDB{restore: []registry.Session{
		{ID: "live", CreatedAt: time.Now(), Active: true, OwnerID: "alice"},
		{ID: "failed", CreatedAt: time.Now(), Active: false, OwnerID: "bob"},
	}}
	eng := engineFunc(func(context.Context, string, *gate.Operation) error { return nil })
	c, reg, _, _ := newTestCoordinator(t, db, eng, time.Second)

	require.NoError(t, c.Start(context.Background()))

	live, err := reg.Get("live")
	require.NoError(t, err)
	assert.True(t, live.Active)

	failed, err := reg.Get("failed")
	require.NoError(t, err)
	assert.False(t, failed.Active, "a failed session must stay inactive across restarts")
}

func TestStartRestoresFromSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := database.NewSQLite(&config.DatabaseConfig{
		Type:   "sqlite",
		DBName: filepath.Join(t.TempDir(), "agenthub.db"),
	})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Upsert(ctx, registry.Session{
		ID: "persisted", CreatedAt: time.Now(), Active: true, OwnerID: "alice",
	}))

	eng := engineFunc(func(context.Context, string, *gate.Operation) error { return nil })
	c, reg, _, _ := newTestCoordinator(t, db, eng, time.Second)
	require.NoError(t, c.Start(ctx))

	_, err = reg.Get("persisted")
	require.NoError(t, err)
}

func TestStopOrdering(t *testing.T) {
	started := make(chan struct{}, 1)
	interrupted := make(chan struct{})
	eng := engineFunc(func(ctx context.Context, _ string, _ *gate.Operation) error {
		started <- struct{}{}
		<-ctx.Done()
		close(interrupted)
		return ctx.Err()
	})
	db := &stubDB{}
	c, reg, bus, g := newTestCoordinator(t, db, eng, 200*time.Millisecond)

	sess := c.CreateSession(context.Background(), "alice")
	sub1 := bus.Subscribe(sess.ID)
	sub2 := bus.Subscribe(sess.ID)
	defer bus.Unsubscribe(sess.ID, sub1)
	defer bus.Unsubscribe(sess.ID, sub2)

	require.NoError(t, g.Submit(sess.ID, &gate.Operation{Kind: gate.KindUserInput}))
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("operation never started")
	}

	begin := time.Now()
	require.NoError(t, c.Stop(context.Background()))

	// the straggler was force-interrupted within the grace period
	select {
	case <-interrupted:
	case <-time.After(time.Second):
		t.Fatal("in-flight operation was never interrupted")
	}
	assert.Less(t, time.Since(begin), 2*time.Second)

	// every subscriber got the shutdown warning before Stop returned
	for _, sub := range []*event.Subscriber{sub1, sub2} {
		select {
		case ev := <-sub.Events():
			assert.Equal(t, cnst.EventServerShutdown, ev.Type)
		default:
			t.Fatal("subscriber missed the shutdown warning")
		}
	}

	// state was flushed and everything went inactive afterwards
	db.mu.Lock()
	require.Len(t, db.flushed, 1)
	assert.Equal(t, sess.ID, db.flushed[0].ID)
	db.mu.Unlock()
	assert.Zero(t, reg.ActiveCount())
}

func TestDeleteSession(t *testing.T) {
	release := make(chan struct{})
	eng := engineFunc(func(ctx context.Context, _ string, _ *gate.Operation) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})
	db := &stubDB{}
	c, reg, _, g := newTestCoordinator(t, db, eng, time.Second)
	defer close(release)

	assert.False(t, c.DeleteSession(context.Background(), "no-such-session"))

	sess := c.CreateSession(context.Background(), "alice")
	require.NoError(t, g.Submit(sess.ID, &gate.Operation{Kind: gate.KindUserInput}))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.True(t, c.DeleteSession(ctx, sess.ID))

	_, err := reg.Get(sess.ID)
	require.ErrorIs(t, err, cnst.ErrSessionNotFound)
	db.mu.Lock()
	assert.Equal(t, []string{sess.ID}, db.deleted)
	db.mu.Unlock()
}
