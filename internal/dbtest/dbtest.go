// Package dbtest provides SQLite stores for tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"github.com/slashbinslashnoname/telegram-stock-bot/db"
)

// NewDatabase creates a fresh file-backed SQLite store in a temporary
// directory. A file is used instead of :memory: so that every pooled
// connection sees the same database.
func NewDatabase(t *testing.T) *db.Database {
	t.Helper()

	database, err := db.NewDatabase(db.DriverCgo, filepath.Join(t.TempDir(), "offers.db"))
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}

	t.Cleanup(func() { database.Close() })

	return database
}
