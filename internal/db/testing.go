// Test helpers for packages that need database access. In-memory databases
// keep tests fast and isolated; cleanup happens via t.Cleanup.
package db

import (
	"context"
	"testing"
)

// NewTestDB creates a migrated in-memory database for testing. The database
// is closed automatically when the test completes.
//
// Usage:
//
//	func TestSomething(t *testing.T) {
//	    t.Parallel()
//	    store := db.NewTestDB(t)
//	    // use store...
//	}
func NewTestDB(t testing.TB) *DB {
	t.Helper()

	d, err := OpenInMemory()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := d.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	t.Cleanup(func() {
		_ = d.Close()
	})

	return d
}
