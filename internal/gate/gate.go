package gate

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openorbit/agenthub/internal/common/cnst"
	"github.com/openorbit/agenthub/internal/common/config"
	"github.com/openorbit/agenthub/internal/event"
	"github.com/openorbit/agenthub/internal/registry"
	"github.com/openorbit/agenthub/pkg/metrics"
)

// Engine executes one operation for a session and reports terminal
// success or failure. It must honor ctx cancellation at its suspension
// points; a cancelled operation returns context.Canceled.
type Engine interface {
	Execute(ctx context.Context, sessionID string, op *Operation) error
}

// Gate serializes operation execution per session. Any number of
// callers may submit concurrently; at most one operation (never an
// interrupt, which travels out-of-band) executes per session at a
// time, and different sessions run fully independently.
type Gate struct {
	logger    *zap.Logger
	metrics   *metrics.Metrics
	bus       event.Bus
	registry  *registry.Registry
	engine    Engine
	queueSize int

	mu        sync.Mutex
	executors map[string]*executor
	closed    bool
}

// New creates a gate in front of the given engine.
func New(logger *zap.Logger, m *metrics.Metrics, bus event.Bus, reg *registry.Registry, engine Engine, cfg config.GateConfig) *Gate {
	return &Gate{
		logger:    logger.Named("gate"),
		metrics:   m,
		bus:       bus,
		registry:  reg,
		engine:    engine,
		queueSize: cfg.QueueSize,
		executors: make(map[string]*executor),
	}
}

// Submit accepts an operation into the session's queue. It returns as
// soon as the operation is queued, not when it executes; callers are
// transport handlers that must not block for the operation's duration.
func (g *Gate) Submit(sessionID string, op *Operation) error {
	if op == nil || !op.Kind.Valid() {
		return cnst.ErrUnknownKind
	}
	if op.Kind == KindInterrupt {
		return cnst.ErrNotQueueable
	}

	sess, err := g.registry.Get(sessionID)
	if err != nil {
		g.metrics.OperationRejected(op.Kind.String(), "unknown_session")
		return err
	}
	if !sess.Active {
		g.metrics.OperationRejected(op.Kind.String(), "inactive")
		return cnst.ErrSessionInactive
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		g.metrics.OperationRejected(op.Kind.String(), "shutting_down")
		return cnst.ErrSessionInactive
	}
	ex, ok := g.executors[sessionID]
	if !ok {
		ex = newExecutor(g, sessionID, g.queueSize)
		g.executors[sessionID] = ex
		go ex.run()
	}
	g.mu.Unlock()

	select {
	case ex.queue <- op:
		g.metrics.OperationAccepted(op.Kind.String())
		g.logger.Debug("operation accepted",
			zap.String("session_id", sessionID),
			zap.String("kind", op.Kind.String()))
		return nil
	default:
		g.metrics.OperationRejected(op.Kind.String(), "queue_full")
		return cnst.ErrQueueFull
	}
}

// Interrupt signals cancellation of whatever operation is currently
// executing for the session. It reports false when nothing is running
// or the session has no executor. Queued operations are untouched and
// proceed once the current one tears down.
func (g *Gate) Interrupt(sessionID string) bool {
	g.mu.Lock()
	ex, ok := g.executors[sessionID]
	g.mu.Unlock()
	if !ok {
		return false
	}
	return ex.interrupt()
}

// Close tears down the session's executor: no new work starts, the
// in-flight operation (if any) is awaited until ctx expires, then
// force-interrupted. Queued-but-unstarted operations are discarded.
func (g *Gate) Close(ctx context.Context, sessionID string) {
	g.mu.Lock()
	ex, ok := g.executors[sessionID]
	if ok {
		delete(g.executors, sessionID)
	}
	g.mu.Unlock()
	if !ok {
		return
	}
	ex.shutdown(ctx)
}

// CloseAll tears down every executor concurrently and rejects all
// future submissions. It returns once every in-flight operation has
// settled or been force-interrupted.
func (g *Gate) CloseAll(ctx context.Context) {
	g.mu.Lock()
	g.closed = true
	exs := make([]*executor, 0, len(g.executors))
	for _, ex := range g.executors {
		exs = append(exs, ex)
	}
	g.executors = make(map[string]*executor)
	g.mu.Unlock()

	var wg sync.WaitGroup
	for _, ex := range exs {
		wg.Add(1)
		go func(ex *executor) {
			defer wg.Done()
			ex.shutdown(ctx)
		}(ex)
	}
	wg.Wait()
}

// executor is the single-flight worker for one session. It owns the
// FIFO queue and runs until stopped or until the engine fails.
type executor struct {
	gate      *Gate
	sessionID string
	queue     chan *Operation
	stop      chan struct{}
	done      chan struct{}
	stopOnce  sync.Once

	// guards cancel, which is non-nil only while an operation is in flight
	mu     sync.Mutex
	cancel context.CancelFunc
}

func newExecutor(g *Gate, sessionID string, queueSize int) *executor {
	return &executor{
		gate:      g,
		sessionID: sessionID,
		queue:     make(chan *Operation, queueSize),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (e *executor) run() {
	defer close(e.done)
	for {
		// stop takes priority over queued work
		select {
		case <-e.stop:
			return
		default:
		}
		select {
		case <-e.stop:
			return
		case op := <-e.queue:
			if err := e.execute(op); err != nil {
				e.fail(op, err)
				return
			}
		}
	}
}

func (e *executor) execute(op *Operation) error {
	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()

	start := time.Now()
	err := e.gate.engine.Execute(ctx, e.sessionID, op)

	e.mu.Lock()
	e.cancel = nil
	e.mu.Unlock()
	cancel()

	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		// an interrupted operation has settled; the session carries on
		status = "interrupted"
		err = nil
	default:
		status = "error"
	}
	e.gate.metrics.OperationDone(op.Kind.String(), status, start)
	e.gate.logger.Debug("operation finished",
		zap.String("session_id", e.sessionID),
		zap.String("kind", op.Kind.String()),
		zap.String("status", status),
		zap.Duration("duration", time.Since(start)))
	return err
}

// fail handles an unrecoverable engine error: the session goes
// inactive, the remaining queue is drained, and the failure surfaces
// to current subscribers as an event instead of crashing the process.
func (e *executor) fail(op *Operation, err error) {
	g := e.gate
	g.logger.Error("engine failure, deactivating session",
		zap.String("session_id", e.sessionID),
		zap.String("kind", op.Kind.String()),
		zap.Error(err))
	g.registry.Deactivate(e.sessionID)

	g.mu.Lock()
	if g.executors[e.sessionID] == e {
		delete(g.executors, e.sessionID)
	}
	g.mu.Unlock()

	drained := 0
drain:
	for {
		select {
		case dropped := <-e.queue:
			g.metrics.OperationRejected(dropped.Kind.String(), "session_failed")
			drained++
		default:
			break drain
		}
	}
	if drained > 0 {
		g.logger.Warn("drained queued operations after engine failure",
			zap.String("session_id", e.sessionID),
			zap.Int("drained", drained))
	}

	g.bus.Publish(e.sessionID, cnst.EventOperationError, map[string]any{
		"kind":  op.Kind.String(),
		"error": err.Error(),
	})
}

func (e *executor) interrupt() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel == nil {
		return false
	}
	e.cancel()
	e.gate.metrics.Interrupted()
	e.gate.logger.Info("interrupt signalled", zap.String("session_id", e.sessionID))
	return true
}

func (e *executor) shutdown(ctx context.Context) {
	e.stopOnce.Do(func() {
		close(e.stop)
	})
	select {
	case <-e.done:
	case <-ctx.Done():
		// grace period expired; force the in-flight operation down
		e.interrupt()
		<-e.done
	}
}
