package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryKV(t *testing.T) {
	RunKVTests(t, func() (KV, func()) {
		return NewMemoryKV(), func() {}
	})
}

func TestFileKV(t *testing.T) {
	RunKVTests(t, func() (KV, func()) {
		kv, err := NewFileKV(t.TempDir())
		if err != nil {
			t.Fatalf("Failed to create file store: %v", err)
		}
		return kv, func() {}
	})
}

func TestFileKV_Persistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := NewFileKV(dir)
	require.NoError(t, err)
	_, err = first.Put(ctx, "favorites:42", []byte(`[{"id":"A1"}]`), 0)
	require.NoError(t, err)

	second, err := NewFileKV(dir)
	require.NoError(t, err)
	rec, err := second.Get(ctx, "favorites:42")
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"A1"}]`, string(rec.Value))
	assert.Equal(t, int64(1), rec.Version)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
	assert.Equal(t, "favorites%3A42.json", entries[0].Name())
}

func TestFileKV_CorruptFileCanBeReplaced(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	kv, err := NewFileKV(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "favorites.json"), []byte("{not json"), 0644))

	_, err = kv.Get(ctx, "favorites")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	v, err := kv.Put(ctx, "favorites", []byte("[]"), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestKeyFromPath(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		want   string
		wantOK bool
	}{
		{"plain key", "/data/favorites.json", "favorites", true},
		{"escaped key", "/data/favorites%3A42.json", "favorites:42", true},
		{"temp file", "/data/.tmp-123456", "", false},
		{"other extension", "/data/notes.txt", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := keyFromPath(tt.path)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFileKV_Watch(t *testing.T) {
	dir := t.TempDir()
	kv, err := NewFileKV(dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	keys := make(chan string, 16)
	done := make(chan error, 1)
	go func() {
		done <- kv.Watch(ctx, func(key string) { keys <- key })
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	other, err := NewFileKV(dir)
	require.NoError(t, err)
	_, err = other.Put(context.Background(), "favorites:7", []byte("[]"), 0)
	require.NoError(t, err)

	select {
	case key := <-keys:
		assert.Equal(t, "favorites:7", key)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not report the write")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}

func TestFileKV_CompareAndSwapAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	const workers, rounds = 4, 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		// Each worker opens its own store, as separate processes would.
		kv, err := NewFileKV(dir)
		require.NoError(t, err)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				for {
					var count int
					var version int64
					rec, err := kv.Get(ctx, "counter")
					if err == nil {
						count, _ = strconv.Atoi(string(rec.Value))
						version = rec.Version
					} else if !errors.Is(err, ErrNotFound) {
						assert.NoError(t, err)
						return
					}
					_, err = kv.Put(ctx, "counter", []byte(strconv.Itoa(count+1)), version)
					if err == nil {
						break
					}
					if !errors.Is(err, ErrConflict) {
						assert.NoError(t, err)
						return
					}
				}
			}
		}()
	}
	wg.Wait()

	kv, err := NewFileKV(dir)
	require.NoError(t, err)
	rec, err := kv.Get(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(workers*rounds), string(rec.Value))
	assert.Equal(t, int64(workers*rounds), rec.Version)
}
