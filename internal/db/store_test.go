package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bookshelf/internal/models"
	"bookshelf/internal/storage"
)

// TestSQLiteStore runs the standard KV test suite against SQLite.
func TestSQLiteStore(t *testing.T) {
	storage.RunKVTests(t, func() (storage.KV, func()) {
		store, err := OpenInMemory()
		if err != nil {
			t.Fatalf("Failed to create in-memory store: %v", err)
		}
		return store, func() {
			store.Close()
		}
	})
}

// TestPostgresStore needs a reachable database and is skipped otherwise.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("BOOKSHELF_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("BOOKSHELF_TEST_POSTGRES_DSN not set")
	}

	storage.RunKVTests(t, func() (storage.KV, func()) {
		ctx := context.Background()
		store, err := OpenPostgres(ctx, dsn)
		if err != nil {
			t.Fatalf("Failed to connect: %v", err)
		}
		if _, err := store.pool.Exec(ctx, `TRUNCATE kv_store`); err != nil {
			t.Fatalf("Failed to truncate: %v", err)
		}
		return store, func() {
			store.Close()
		}
	})
}

func TestSQLiteStore_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "app.db")
	ctx := context.Background()

	store, err := Open(path)
	require.NoError(t, err)

	adapter := storage.NewAdapter(store, storage.FavoritesKey, zap.NewNop())
	want := models.Collection{
		{ID: "A1", Title: "Foo", Authors: []string{"X"}},
		{ID: "B2", Title: "Bar", Image: "https://img/b2"},
	}
	require.NoError(t, adapter.Save(ctx, want))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	got := storage.NewAdapter(reopened, storage.FavoritesKey, zap.NewNop()).Load(ctx)
	assert.Equal(t, want, got)
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}

func TestOpenPostgresRejectsEmptyDSN(t *testing.T) {
	_, err := OpenPostgres(context.Background(), "")
	assert.Error(t, err)
}
