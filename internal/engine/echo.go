package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openorbit/agenthub/internal/event"
	"github.com/openorbit/agenthub/internal/gate"
	"github.com/openorbit/agenthub/internal/registry"
)

// Echo is a development engine: it acknowledges each operation with a
// pair of events instead of calling a real model backend. It observes
// ctx at its single suspension point, so interrupts behave the same as
// against a real engine.
type Echo struct {
	logger   *zap.Logger
	bus      event.Bus
	registry *registry.Registry

	// Delay simulates model latency per operation. Zero means immediate.
	Delay time.Duration
}

var _ gate.Engine = (*Echo)(nil)

// NewEcho creates an echo engine publishing to the given bus.
func NewEcho(logger *zap.Logger, bus event.Bus, reg *registry.Registry) *Echo {
	return &Echo{
		logger:   logger.Named("engine.echo"),
		bus:      bus,
		registry: reg,
	}
}

func (e *Echo) Execute(ctx context.Context, sessionID string, op *gate.Operation) error {
	e.bus.Publish(sessionID, "operation_started", map[string]any{
		"kind": op.Kind.String(),
	})

	if e.Delay > 0 {
		select {
		case <-time.After(e.Delay):
		case <-ctx.Done():
			e.logger.Info("operation cancelled",
				zap.String("session_id", sessionID),
				zap.String("kind", op.Kind.String()))
			return ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}

	switch op.Kind {
	case gate.KindUserInput:
		e.registry.IncrementMessageCount(sessionID)
		text, _ := op.Payload["text"].(string)
		e.bus.Publish(sessionID, "agent_message", map[string]any{
			"text": fmt.Sprintf("echo: %s", text),
		})
	case gate.KindShutdown:
		e.registry.Deactivate(sessionID)
	}

	e.bus.Publish(sessionID, "operation_finished", map[string]any{
		"kind": op.Kind.String(),
	})
	return nil
}
