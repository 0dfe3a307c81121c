package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunKVTests runs the standard KV test suite against any KV implementation.
func RunKVTests(t *testing.T, newKV func() (KV, func())) {
	t.Run("Get", func(t *testing.T) {
		runGetTests(t, newKV)
	})
	t.Run("Put", func(t *testing.T) {
		runPutTests(t, newKV)
	})
	t.Run("Concurrent", func(t *testing.T) {
		runConcurrentTests(t, newKV)
	})
}

func runGetTests(t *testing.T, newKV func() (KV, func())) {
	t.Run("missing key returns ErrNotFound", func(t *testing.T) {
		kv, cleanup := newKV()
		defer cleanup()

		_, err := kv.Get(context.Background(), "nope")

		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("returns stored value and version", func(t *testing.T) {
		kv, cleanup := newKV()
		defer cleanup()
		ctx := context.Background()

		_, err := kv.Put(ctx, "favorites", []byte(`[{"id":"A1"}]`), 0)
		require.NoError(t, err)

		rec, err := kv.Get(ctx, "favorites")

		require.NoError(t, err)
		assert.Equal(t, `[{"id":"A1"}]`, string(rec.Value))
		assert.Equal(t, int64(1), rec.Version)
	})

	t.Run("keys are independent", func(t *testing.T) {
		kv, cleanup := newKV()
		defer cleanup()
		ctx := context.Background()

		_, err := kv.Put(ctx, "favorites:1", []byte("one"), 0)
		require.NoError(t, err)
		_, err = kv.Put(ctx, "favorites:2", []byte("two"), 0)
		require.NoError(t, err)

		rec, err := kv.Get(ctx, "favorites:1")
		require.NoError(t, err)
		assert.Equal(t, "one", string(rec.Value))

		_, err = kv.Get(ctx, "favorites")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func runPutTests(t *testing.T, newKV func() (KV, func())) {
	t.Run("versions grow by one", func(t *testing.T) {
		kv, cleanup := newKV()
		defer cleanup()
		ctx := context.Background()

		v1, err := kv.Put(ctx, "k", []byte("a"), 0)
		require.NoError(t, err)
		v2, err := kv.Put(ctx, "k", []byte("b"), v1)
		require.NoError(t, err)

		assert.Equal(t, int64(1), v1)
		assert.Equal(t, int64(2), v2)

		rec, err := kv.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "b", string(rec.Value))
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		kv, cleanup := newKV()
		defer cleanup()
		ctx := context.Background()

		v1, err := kv.Put(ctx, "k", []byte("a"), 0)
		require.NoError(t, err)
		_, err = kv.Put(ctx, "k", []byte("b"), v1)
		require.NoError(t, err)

		_, err = kv.Put(ctx, "k", []byte("c"), v1)
		assert.ErrorIs(t, err, ErrConflict)

		rec, err := kv.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "b", string(rec.Value))
	})

	t.Run("create conflicts when key exists", func(t *testing.T) {
		kv, cleanup := newKV()
		defer cleanup()
		ctx := context.Background()

		_, err := kv.Put(ctx, "k", []byte("a"), 0)
		require.NoError(t, err)

		_, err = kv.Put(ctx, "k", []byte("b"), 0)
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("update of missing key conflicts", func(t *testing.T) {
		kv, cleanup := newKV()
		defer cleanup()

		_, err := kv.Put(context.Background(), "k", []byte("a"), 3)
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("empty value round trips", func(t *testing.T) {
		kv, cleanup := newKV()
		defer cleanup()
		ctx := context.Background()

		_, err := kv.Put(ctx, "k", []byte{}, 0)
		require.NoError(t, err)

		rec, err := kv.Get(ctx, "k")
		require.NoError(t, err)
		assert.Empty(t, rec.Value)
	})
}

func runConcurrentTests(t *testing.T, newKV func() (KV, func())) {
	t.Run("exactly one writer wins a version", func(t *testing.T) {
		kv, cleanup := newKV()
		defer cleanup()
		ctx := context.Background()

		v, err := kv.Put(ctx, "k", []byte("seed"), 0)
		require.NoError(t, err)

		const writers = 8
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if _, err := kv.Put(ctx, "k", []byte(fmt.Sprintf("w%d", i)), v); err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 1, wins)
	})
}
