// Package favorites owns the load-mutate-save cycle of a favorites collection
// and tells the panel to re-render after every change.
package favorites

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"bookshelf/internal/models"
	"bookshelf/internal/storage"
)

// maxAttempts bounds how often a mutation is retried when another process
// wrote the same key between our read and our write.
const maxAttempts = 5

// Collection is the favorites list stored under one key. Every operation
// re-reads the store; nothing is cached between calls. Mutations on one
// Collection run one at a time.
type Collection struct {
	store    *storage.Adapter
	notifier Notifier
	logger   *zap.Logger

	mu sync.Mutex
}

func New(store *storage.Adapter, notifier Notifier, logger *zap.Logger) *Collection {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collection{
		store:    store,
		notifier: notifier,
		logger:   logger.With(zap.String("key", store.Key())),
	}
}

func (c *Collection) Key() string { return c.store.Key() }

// List returns the stored collection.
func (c *Collection) List(ctx context.Context) models.Collection {
	return c.store.Load(ctx)
}

func (c *Collection) Contains(ctx context.Context, id string) bool {
	return c.store.Load(ctx).Contains(id)
}

// Add appends entry unless an entry with the same ID is already stored, in
// which case nothing is written. The panel is refreshed either way.
func (c *Collection) Add(ctx context.Context, entry models.FavoriteEntry) (models.Collection, error) {
	result, err := c.mutate(ctx, func(cur models.Collection) (models.Collection, bool) {
		return cur.Append(entry)
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debug("favorite added", zap.String("id", entry.ID), zap.Int("count", len(result)))
	return result, nil
}

// Remove drops the entry with id. Removing an absent id still saves and
// refreshes.
func (c *Collection) Remove(ctx context.Context, id string) (models.Collection, error) {
	result, err := c.mutate(ctx, func(cur models.Collection) (models.Collection, bool) {
		return cur.Without(id), true
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debug("favorite removed", zap.String("id", id), zap.Int("count", len(result)))
	return result, nil
}

// Refresh reloads the collection and pushes it to the notifier. It is used
// when the store was changed behind our back.
func (c *Collection) Refresh(ctx context.Context) models.Collection {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := c.store.Load(ctx)
	c.notifier.Refresh(ctx, c.Key(), list)
	return list
}

// mutate runs fn against a fresh snapshot and writes the result with a
// version check. fn reports whether the result has to be written at all.
// The notifier is called before the lock is released, so panels see
// collections in the order they were stored.
func (c *Collection) mutate(ctx context.Context, fn func(models.Collection) (models.Collection, bool)) (models.Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		cur, version := c.store.Snapshot(ctx)
		next, write := fn(cur)
		if !write {
			c.notifier.Refresh(ctx, c.Key(), cur)
			return cur, nil
		}

		err := c.store.SaveIf(ctx, next, version)
		if err == nil {
			c.notifier.Refresh(ctx, c.Key(), next)
			return next, nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return nil, err
		}
		c.logger.Debug("favorites changed concurrently, retrying", zap.Int("attempt", attempt))
	}
	return nil, fmt.Errorf("update %q: %w", c.Key(), storage.ErrConflict)
}

// Lookup fetches the catalog record of a book.
type Lookup interface {
	FetchDetails(ctx context.Context, id string) (models.BookDetails, error)
}

// LookupError is returned by AddFromCatalog when the catalog lookup failed
// and nothing was written.
type LookupError struct {
	ID  string
	Err error
}

func (e *LookupError) Error() string { return fmt.Sprintf("look up %q: %v", e.ID, e.Err) }

func (e *LookupError) Unwrap() error { return e.Err }

// AddFromCatalog looks id up and adds the result under id. When the lookup
// fails the collection is not touched and a *LookupError is returned.
func AddFromCatalog(ctx context.Context, c *Collection, lookup Lookup, id string) (models.Collection, error) {
	details, err := lookup.FetchDetails(ctx, id)
	if err != nil {
		return nil, &LookupError{ID: id, Err: err}
	}
	entry := details.Favorite()
	entry.ID = id
	return c.Add(ctx, entry)
}

// Registry hands out one Collection per key so that all callers working on
// the same key share its mutation lock.
type Registry struct {
	kv       storage.KV
	notifier Notifier
	logger   *zap.Logger

	mu    sync.Mutex
	colls map[string]*Collection
}

func NewRegistry(kv storage.KV, notifier Notifier, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		kv:       kv,
		notifier: notifier,
		logger:   logger,
		colls:    make(map[string]*Collection),
	}
}

func (r *Registry) For(key string) *Collection {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.colls[key]; ok {
		return c
	}
	c := New(storage.NewAdapter(r.kv, key, r.logger), r.notifier, r.logger)
	r.colls[key] = c
	return c
}
