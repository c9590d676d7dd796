package lifecycle

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/openorbit/agenthub/internal/common/cnst"
	"github.com/openorbit/agenthub/internal/common/config"
	"github.com/openorbit/agenthub/internal/database"
	"github.com/openorbit/agenthub/internal/event"
	"github.com/openorbit/agenthub/internal/gate"
	"github.com/openorbit/agenthub/internal/registry"
)

// Coordinator orchestrates process-wide start and stop. On start it
// restores the registry from persistence; on stop it warns subscribers,
// drains in-flight operations bounded by a grace period, then flushes
// the registry back out. The warn-drain-flush order is load-bearing:
// flushing first would lose in-flight progress, draining first would
// let subscribers miss the shutdown notice.
type Coordinator struct {
	logger   *zap.Logger
	db       database.Database
	registry *registry.Registry
	bus      event.Bus
	gate     *gate.Gate
	grace    time.Duration
}

// New creates a coordinator over the given components.
func New(logger *zap.Logger, db database.Database, reg *registry.Registry, bus event.Bus, g *gate.Gate, cfg config.GateConfig) *Coordinator {
	return &Coordinator{
		logger:   logger.Named("lifecycle"),
		db:       db,
		registry: reg,
		bus:      bus,
		gate:     g,
		grace:    cfg.DrainGrace,
	}
}

// Start restores previously persisted sessions into the registry.
func (c *Coordinator) Start(ctx context.Context) error {
	sessions, err := c.db.RestoreAll(ctx)
	if err != nil {
		return err
	}
	for _, sess := range sessions {
		c.registry.Restore(sess)
	}
	c.logger.Info("restored sessions from persistence", zap.Int("count", len(sessions)))
	return nil
}

// Stop shuts the core down: broadcast a shutdown warning, drain every
// session's in-flight operation within the grace period (stragglers
// are force-interrupted), then flush registry state to persistence.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.logger.Info("stopping", zap.Duration("grace", c.grace))

	c.bus.Broadcast(cnst.EventServerShutdown, map[string]any{
		"grace_period_ms": c.grace.Milliseconds(),
	})

	drainCtx, cancel := context.WithTimeout(ctx, c.grace)
	defer cancel()
	c.gate.CloseAll(drainCtx)

	if err := c.db.FlushAll(ctx, c.registry.List()); err != nil {
		c.logger.Error("failed to flush registry state", zap.Error(err))
		return err
	}
	c.registry.DeactivateAll()
	c.logger.Info("stopped")
	return nil
}

// CreateSession registers a new session and persists it eagerly, so a
// crash before the shutdown flush does not lose the record.
func (c *Coordinator) CreateSession(ctx context.Context, ownerID string) registry.Session {
	sess := c.registry.Create(ownerID)
	if err := c.db.Upsert(ctx, sess); err != nil {
		// the shutdown flush will retry; the session stays usable
		c.logger.Warn("failed to persist new session",
			zap.String("session_id", sess.ID),
			zap.Error(err))
	}
	return sess
}

// DeleteSession removes the session after settling any in-flight
// operation, closing the race between delete and a running operation.
// It reports false for unknown ids.
func (c *Coordinator) DeleteSession(ctx context.Context, id string) bool {
	if _, err := c.registry.Get(id); err != nil {
		return false
	}
	c.gate.Close(ctx, id)
	if !c.registry.Delete(id) {
		return false
	}
	if err := c.db.Delete(ctx, id); err != nil {
		c.logger.Warn("failed to delete persisted session",
			zap.String("session_id", id),
			zap.Error(err))
	}
	return true
}
