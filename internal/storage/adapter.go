package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"bookshelf/internal/models"
)

// FavoritesKey is the key of the anonymous (local) favorites collection.
const FavoritesKey = "favorites"

// UserFavoritesKey returns the key holding a Telegram user's favorites.
func UserFavoritesKey(userID int64) string {
	return fmt.Sprintf("%s:%d", FavoritesKey, userID)
}

// Adapter stores one favorites collection under one key of a KV.
type Adapter struct {
	kv     KV
	key    string
	logger *zap.Logger
}

func NewAdapter(kv KV, key string, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{kv: kv, key: key, logger: logger}
}

func (a *Adapter) Key() string { return a.key }

// Load returns the stored collection. A missing, unreadable or malformed value
// yields an empty collection.
func (a *Adapter) Load(ctx context.Context) models.Collection {
	c, _ := a.Snapshot(ctx)
	return c
}

// Snapshot is Load plus the version to hand to SaveIf. The version is 0 when
// nothing readable is stored.
func (a *Adapter) Snapshot(ctx context.Context) (models.Collection, int64) {
	rec, err := a.kv.Get(ctx, a.key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			a.logger.Warn("favorites unreadable, using empty collection",
				zap.String("key", a.key), zap.Error(err))
		}
		return models.Collection{}, 0
	}

	c, err := decodeCollection(rec.Value)
	if err != nil {
		a.logger.Warn("favorites malformed, using empty collection",
			zap.String("key", a.key), zap.Int64("version", rec.Version), zap.Error(err))
		return models.Collection{}, rec.Version
	}
	return c, rec.Version
}

// SaveIf writes c only if the stored version is still version. It returns
// ErrConflict otherwise.
func (a *Adapter) SaveIf(ctx context.Context, c models.Collection, version int64) error {
	data, err := encodeCollection(c)
	if err != nil {
		return err
	}
	if _, err := a.kv.Put(ctx, a.key, data, version); err != nil {
		if errors.Is(err, ErrConflict) {
			return err
		}
		return fmt.Errorf("save %q: %w", a.key, err)
	}
	return nil
}

// Save overwrites the stored collection with c. Concurrent writers race and
// the last one wins.
func (a *Adapter) Save(ctx context.Context, c models.Collection) error {
	const maxAttempts = 5

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		_, version := a.Snapshot(ctx)
		err = a.SaveIf(ctx, c, version)
		if !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("save %q: %w", a.key, err)
}

func encodeCollection(c models.Collection) ([]byte, error) {
	if c == nil {
		c = models.Collection{}
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode favorites: %w", err)
	}
	return data, nil
}

func decodeCollection(data []byte) (models.Collection, error) {
	var c models.Collection
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode favorites: %w", err)
	}
	if c == nil {
		return models.Collection{}, nil
	}
	return c.Dedup(), nil
}
