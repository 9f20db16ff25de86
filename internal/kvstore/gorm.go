package kvstore

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"coinfolio/internal/logger"
)

// Entry is a single persisted key-value row.
type Entry struct {
	Key       string `gorm:"primaryKey;size:191"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

// TableName keeps the table name stable regardless of the struct name.
func (Entry) TableName() string { return "kv_entries" }

// Gorm is a Store backed by a gorm database table.
type Gorm struct {
	db *gorm.DB
}

// OpenSQLite opens (or creates) a SQLite file at path and returns a Store on it.
func OpenSQLite(path string) (*Gorm, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	return NewGorm(db)
}

// NewGorm returns a Store on db, creating the kv_entries table if needed.
func NewGorm(db *gorm.DB) (*Gorm, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate kv_entries: %w", err)
	}
	return &Gorm{db: db}, nil
}

// Get implements Store. Read failures are logged and reported as a miss.
func (g *Gorm) Get(key string) (string, bool) {
	var e Entry
	if err := g.db.Where("key = ?", key).First(&e).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Get().Warnw("kv read failed", "key", key, "error", err)
		}
		return "", false
	}
	return e.Value, true
}

// Set implements Store with an upsert.
func (g *Gorm) Set(key, value string) error {
	e := Entry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	err := g.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&e).Error
	if err != nil {
		return fmt.Errorf("kv set %q: %w", key, err)
	}
	return nil
}

// Remove implements Store.
func (g *Gorm) Remove(key string) error {
	if err := g.db.Where("key = ?", key).Delete(&Entry{}).Error; err != nil {
		return fmt.Errorf("kv remove %q: %w", key, err)
	}
	return nil
}

// Close closes the underlying connection.
func (g *Gorm) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
