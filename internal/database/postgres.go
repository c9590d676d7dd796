package database

import (
	"context"
	"fmt"

	"github.com/openorbit/agenthub/internal/common/config"
	"github.com/openorbit/agenthub/internal/registry"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Postgres implements the Database interface using PostgreSQL
type Postgres struct {
	db  *gorm.DB
	cfg *config.DatabaseConfig
}

// NewPostgres creates a new Postgres instance
func NewPostgres(cfg *config.DatabaseConfig) (Database, error) {
	db := &Postgres{
		cfg: cfg,
	}

	sslmode := cfg.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.cfg.Host, db.cfg.Port, db.cfg.User, db.cfg.Password, db.cfg.DBName, sslmode)

	gormDB, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
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
func (db *Postgres) Close() error {
	sqlDB, err := db.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (db *Postgres) RestoreAll(ctx context.Context) ([]registry.Session, error) {
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

func (db *Postgres) FlushAll(ctx context.Context, sessions []registry.Session) error {
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

func (db *Postgres) Upsert(ctx context.Context, sess registry.Session) error {
	return db.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(toRecord(sess)).Error
}

func (db *Postgres) Delete(ctx context.Context, id string) error {
	return db.db.WithContext(ctx).
		Delete(&SessionRecord{}, "id = ?", id).Error
}
