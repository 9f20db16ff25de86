// Package testutil holds the SQLite harness, fixtures and assertions shared by
// the server's package tests.
package testutil

import (
	"fmt"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"coinfolio/internal/models"
)

// SetupTestDB opens a private in-memory SQLite database with the coinfolio
// schema migrated. Each call names its own database, so tests never see each
// other's rows even with a shared cache.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := fmt.Sprintf("coinfolio_%d", nextID())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open %s: %v", name, err)
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate %s: %v", name, err)
	}
	return db
}

// TeardownTestDB releases the in-memory database. Once the last connection
// closes SQLite drops it.
func TeardownTestDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	if sqlDB, err := db.DB(); err != nil {
		t.Errorf("teardown: %v", err)
	} else if err := sqlDB.Close(); err != nil {
		t.Errorf("teardown: close: %v", err)
	}
}

// CountRows counts the live rows of model's table.
func CountRows(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count %T: %v", model, err)
	}
	return n
}
