// Package testutil provides shared test helpers for databases and fixtures.
package testutil

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/starford/stash/internal/models"
	"github.com/starford/stash/internal/sqlstore"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *sqlstore.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "stash-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() {
		os.Remove(dbFile.Name())
		os.Remove(dbFile.Name() + "-wal")
		os.Remove(dbFile.Name() + "-shm")
	})

	db, err := sqlstore.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Clock returns a function yielding strictly increasing times, one second
// apart, starting at a fixed instant. It is safe for concurrent use.
func Clock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

// InsertNote stores a note resource directly, bypassing service validation.
func InsertNote(t *testing.T, db *sqlstore.DB, userID, id, title string, folderID *string, at time.Time) {
	t.Helper()
	r := &models.Resource{
		ID:        id,
		UserID:    userID,
		FolderID:  folderID,
		Title:     title,
		Tags:      []string{},
		Payload:   models.Note{Content: title},
		CreatedAt: at,
		UpdatedAt: at,
	}
	if err := db.InsertResource(context.Background(), r); err != nil {
		t.Fatalf("InsertResource %s: %v", id, err)
	}
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }
