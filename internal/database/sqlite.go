package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/openorbit/agenthub/internal/common/config"
	"github.com/openorbit/agenthub/internal/registry"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLite implements the Database interface using SQLite
type SQLite struct {
	db  *gorm.DB
	cfg *config.DatabaseConfig
}

// NewSQLite creates a new SQLite instance
func NewSQLite(cfg *config.DatabaseConfig) (Database, error) {
	db := &SQLite{
		cfg: cfg,
	}

	dir := filepath.Dir(db.cfg.DBName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	gormDB, err := gorm.Open(sqlite.Open(db.cfg.DBName), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := gormDB.AutoMigrate(&SessionRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	db.db = gormDB
	return db, nil
}

// Close closes the database connection
func (db *SQLite) Close() error {
	sqlDB, err := db.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (db *SQLite) RestoreAll(ctx context.Context) ([]registry.Session, error) {
	var records []*SessionRecord
	err := db.db.WithContext(ctx).
		Order("created_at asc").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	sessions := make([]registry.Session, 0, len(records))
	for _, rec := range records {
		sessions = append(sessions, toSession(rec))
	}
	return sessions, nil
}

func (db *SQLite) FlushAll(ctx context.Context, sessions []registry.Session) error {
	return db.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, sess := range sessions {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).
				Create(toRecord(sess)).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (db *SQLite) Upsert(ctx context.Context, sess registry.Session) error {
	return db.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(toRecord(sess)).Error
}

func (db *SQLite) Delete(ctx context.Context, id string) error {
	return db.db.WithContext(ctx).
		Delete(&SessionRecord{}, "id = ?", id).Error
}
