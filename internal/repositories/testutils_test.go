package repositories_test

import (
	"context"
	"github.com/myrjola/casegen/internal/sqlite"
	"github.com/myrjola/casegen/internal/testhelpers"
	"io"
	"testing"
)

// newTestDB creates a new migrated in-memory database for testing purposes.
func newTestDB(t *testing.T) *sqlite.Database {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	db, err := sqlite.NewDatabase(ctx, ":memory:", testhelpers.NewLogger(io.Discard))
	if err != nil {
		cancel()
		t.Fatal(err)
	}
	t.Cleanup(func() {
		cancel()
		if err = db.Close(); err != nil {
			t.Fatal(err)
		}
	})
	return db
}
