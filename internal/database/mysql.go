package database

import (
	"context"
	"fmt"

	"github.com/openorbit/agenthub/internal/common/config"
	"github.com/openorbit/agenthub/internal/registry"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MySQL implements the Database interface using MySQL
type MySQL struct {
	db  *gorm.DB
	cfg *config.DatabaseConfig
}

// NewMySQL creates a new MySQL instance
func NewMySQL(cfg *config.DatabaseConfig) (Database, error) {
	db := &MySQL{
		cfg: cfg,
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		db.cfg.User, db.cfg.Password, db.cfg.Host, db.cfg.Port, db.cfg.DBName)

	gormDB, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
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
func (db *MySQL) Close() error {
	sqlDB, err := db.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (db *MySQL) RestoreAll(ctx context.Context) ([]registry.Session, error) {
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

func (db *MySQL) FlushAll(ctx context.Context, sessions []registry.Session) error {
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

func (db *MySQL) Upsert(ctx context.Context, sess registry.Session) error {
	return db.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(toRecord(sess)).Error
}

func (db *MySQL) Delete(ctx context.Context, id string) error {
	return db.db.WithContext(ctx).
		Delete(&SessionRecord{}, "id = ?", id).Error
}
