package database

import (
	"path/filepath"
	"testing"

	"gorm.io/gorm"
)

// NewTestDB returns a migrated SQLite database private to t
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := OpenSQLite(filepath.Join(t.TempDir(), "managex.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}
