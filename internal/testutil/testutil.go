// Package testutil provides shared test helpers for setting up databases
// and image directories.
package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/starford/evolve/internal/models"
	"github.com/starford/evolve/internal/storage"
	"github.com/starford/evolve/internal/store"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "evolve-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestImageDir creates a temporary image directory with a storage.FS.
func TestImageDir(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, fs
}

// SeedClients upserts clients into db.
func SeedClients(t *testing.T, db *store.DB, clients ...models.Client) {
	t.Helper()
	for _, c := range clients {
		if err := db.UpsertClient(context.Background(), c); err != nil {
			t.Fatalf("seed client %d: %v", c.ClientID, err)
		}
	}
}

// StrPtr returns a pointer to s, for optional record fields.
func StrPtr(s string) *string { return &s }
