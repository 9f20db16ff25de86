package models

import (
	"fmt"
	"time"

	"coinfolio/internal/uuid"

	"gorm.io/gorm"
)

// Base carries the columns shared by every table. IDs are UUIDv7 strings so
// rows sort by creation time on both Postgres and SQLite.
type Base struct {
	ID        string         `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate assigns an ID when the caller left it empty and canonicalises
// one it supplied.
func (b *Base) BeforeCreate(_ *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.New()
		return nil
	}
	id, err := uuid.Parse(b.ID)
	if err != nil {
		return fmt.Errorf("models: %w", err)
	}
	b.ID = id
	return nil
}

// All lists every model, in dependency order, for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Holding{},
		&Transaction{},
		&AssetPrice{},
	}
}
