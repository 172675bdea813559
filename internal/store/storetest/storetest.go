// Package storetest opens throwaway SQLite databases for tests.
package storetest

import (
	"testing"

	"qrattend/internal/store"
)

// Open returns a migrated in-memory database closed at test cleanup.
func Open(t testing.TB) *store.DB {
	t.Helper()
	db, err := store.NewDB(store.DriverSQLite, "file::memory:")
	if err != nil {
		t.Fatalf("storetest.Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
