package database

import (
	"context"
	"time"

	"github.com/openorbit/agenthub/internal/registry"
)

// SessionRecord is the persisted form of a session's metadata
type SessionRecord struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(64)"`
	CreatedAt    time.Time `json:"createdAt"`
	Active       bool      `json:"active"`
	OwnerID      string    `json:"ownerId" gorm:"type:varchar(64);index"`
	ModelName    string    `json:"modelName" gorm:"type:varchar(128)"`
	MessageCount int64     `json:"messageCount"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TableName implements gorm's table naming
func (SessionRecord) TableName() string {
	return "sessions"
}

// Database persists session metadata across restarts. The lifecycle
// coordinator restores from it on start and flushes to it on stop; the
// format and medium are this layer's concern only.
type Database interface {
	// RestoreAll loads every persisted session record
	RestoreAll(ctx context.Context) ([]registry.Session, error)

	// FlushAll upserts the given snapshot in one transaction
	FlushAll(ctx context.Context, sessions []registry.Session) error

	// Upsert writes a single record
	Upsert(ctx context.Context, sess registry.Session) error

	// Delete removes a record by id; unknown ids are a no-op
	Delete(ctx context.Context, id string) error

	// Close closes the underlying connection
	Close() error
}

func toRecord(s registry.Session) *SessionRecord {
	return &SessionRecord{
		ID:           s.ID,
		CreatedAt:    s.CreatedAt,
		Active:       s.Active,
		OwnerID:      s.OwnerID,
		ModelName:    s.ModelName,
		MessageCount: s.MessageCount,
	}
}

func toSession(r *SessionRecord) registry.Session {
	return registry.Session{
		ID:           r.ID,
		CreatedAt:    r.CreatedAt,
		Active:       r.Active,
		OwnerID:      r.OwnerID,
		ModelName:    r.ModelName,
		MessageCount: r.MessageCount,
	}
}
