package database

import (
	"path/filepath"
	"testing"

	"coinfolio/internal/config"
	"coinfolio/internal/models"
)

func TestNewManager_SQLite(t *testing.T) {
	cfg := &config.Server{
		Env:        "test",
		DBDriver:   "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "coinfolio.db"),
	}

	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer func() { _ = m.Close() }()

	if err := m.RunMigrations(); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	// Running twice is a no-op.
	if err := m.RunMigrations(); err != nil {
		t.Fatalf("second RunMigrations: %v", err)
	}

	for _, model := range models.All() {
		if !m.DB().Migrator().HasTable(model) {
			t.Errorf("expected table for %T", model)
		}
	}
}

func TestNewManager_UnknownDriver(t *testing.T) {
	if _, err := NewManager(&config.Server{DBDriver: "oracle"}); err == nil {
		t.Error("expected an error for an unsupported driver")
	}
}
