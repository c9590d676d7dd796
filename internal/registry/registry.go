package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openorbit/agenthub/internal/common/cnst"
	"github.com/openorbit/agenthub/pkg/metrics"
	"go.uber.org/zap"
)

// Session is the metadata record for one ongoing agent conversation. The
// registry exclusively owns the record; callers always receive copies.
type Session struct {
	ID           string    `json:"session_id"`
	CreatedAt    time.Time `json:"created_at"`
	Active       bool      `json:"is_active"`
	OwnerID      string    `json:"owner_id,omitempty"`
	ModelName    string    `json:"model_name,omitempty"`
	MessageCount int64     `json:"message_count"`
}

// Registry owns the set of live session records. It is constructed once at
// process start and shared by reference; all access is synchronized
// internally.
type Registry struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
	mu      sync.RWMutex
	records map[string]*Session
}

// New creates an empty session registry
func New(logger *zap.Logger, m *metrics.Metrics) *Registry {
	return &Registry{
		logger:  logger.Named("registry"),
		metrics: m,
		records: make(map[string]*Session),
	}
}

// Create allocates a fresh session id, registers an active record for it and
// returns a copy. Safe for concurrent use; ids never collide.
func (r *Registry) Create(ownerID string) Session {
	rec := &Session{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		Active:    true,
		OwnerID:   ownerID,
	}

	r.mu.Lock()
	r.records[rec.ID] = rec
	n := r.activeLocked()
	r.mu.Unlock()

	r.metrics.SessionsActive(n)
	r.logger.Info("session created",
		zap.String("session_id", rec.ID),
		zap.String("owner_id", ownerID))
	return *rec
}

// Restore registers a previously persisted record, skipping ids already
// present. The persisted Active flag round-trips, so sessions that failed
// terminally stay inactive after a restart.
func (r *Registry) Restore(sess Session) {
	r.mu.Lock()
	if _, ok := r.records[sess.ID]; ok {
		r.mu.Unlock()
		return
	}
	rec := sess
	r.records[sess.ID] = &rec
	n := r.activeLocked()
	r.mu.Unlock()

	r.metrics.SessionsActive(n)
}

// Get returns a copy of the session record
func (r *Registry) Get(id string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return Session{}, cnst.ErrSessionNotFound
	}
	return *rec, nil
}

// List returns a snapshot of all records sorted by creation time
func (r *Registry) List() []Session {
	r.mu.RLock()
	out := make([]Session, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// ListOwned returns the snapshot filtered to one owner
func (r *Registry) ListOwned(ownerID string) []Session {
	all := r.List()
	out := all[:0]
	for _, s := range all {
		if s.OwnerID == ownerID {
			out = append(out, s)
		}
	}
	return out
}

// Delete removes the record. It returns false when the id is unknown.
// Callers must settle any in-flight operation for the session first; the
// lifecycle coordinator owns that sequencing.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	_, ok := r.records[id]
	if ok {
		delete(r.records, id)
	}
	n := r.activeLocked()
	r.mu.Unlock()

	if ok {
		r.metrics.SessionsActive(n)
		r.logger.Info("session deleted", zap.String("session_id", id))
	}
	return ok
}

// Deactivate flips the session to inactive so it accepts no further
// operations. Returns false when the id is unknown.
func (r *Registry) Deactivate(id string) bool {
	r.mu.Lock()
	rec, ok := r.records[id]
	if ok {
		rec.Active = false
	}
	n := r.activeLocked()
	r.mu.Unlock()

	if ok {
		r.metrics.SessionsActive(n)
	}
	return ok
}

// DeactivateAll marks every session inactive. Used during shutdown.
func (r *Registry) DeactivateAll() {
	r.mu.Lock()
	for _, rec := range r.records {
		rec.Active = false
	}
	r.mu.Unlock()
	r.metrics.SessionsActive(0)
}

// SetModelName records the model label once the engine reports it
func (r *Registry) SetModelName(id, model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[id]; ok {
		rec.ModelName = model
	}
}

// IncrementMessageCount bumps the session's message counter
func (r *Registry) IncrementMessageCount(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[id]; ok {
		rec.MessageCount++
	}
}

// ActiveCount returns the number of active sessions
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeLocked()
}

func (r *Registry) activeLocked() int {
	n := 0
	for _, rec := range r.records {
		if rec.Active {
			n++
		}
	}
	return n
}
