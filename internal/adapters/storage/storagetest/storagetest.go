// Package storagetest opens throwaway SQLite databases for store tests.
package storagetest

import (
	"database/sql"
	"path/filepath"
	"testing"

	"studio/internal/adapters/storage"
)

// Open creates a file-backed database with the full schema in t.TempDir().
// A real file is used instead of :memory: so concurrent tests see one
// database across pooled connections.
func Open(t testing.TB) *sql.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "studio.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.InitDB(db); err != nil {
		t.Fatalf("init test db: %v", err)
	}
	return db
}
