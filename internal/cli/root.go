package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"bookshelf/internal/config"
	"bookshelf/internal/db"
	"bookshelf/internal/network"
	"bookshelf/internal/service"
	"bookshelf/internal/storage"
)

// runtime is filled in before any subcommand runs.
type runtime struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewRootCommand creates the bookshelf command tree.
func NewRootCommand(version string) *cobra.Command {
	rt := &runtime{}

	cmd := &cobra.Command{
		Use:           "bookshelf",
		Short:         "Search a book catalog and keep a list of favorites",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			logger, err := newLogger(cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("logger: %w", err)
			}
			rt.cfg = cfg
			rt.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if rt.logger != nil {
				_ = rt.logger.Sync()
			}
		},
	}

	cmd.AddCommand(
		newServeCommand(rt),
		newSearchCommand(rt),
		newDetailsCommand(rt),
		newFavoritesCommand(rt),
	)
	return cmd
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func (rt *runtime) catalog() (*service.CatalogClient, error) {
	client, err := network.NewHTTPClient(rt.cfg.CatalogProxy, rt.cfg.CatalogTimeout)
	if err != nil {
		return nil, fmt.Errorf("catalog client: %w", err)
	}
	return service.NewCatalogClient(client, rt.cfg.CatalogURL,
		service.WithAPIKey(rt.cfg.CatalogAPIKey),
		service.WithMaxResults(rt.cfg.SearchLimit),
		service.WithLogger(rt.logger),
	), nil
}

// openStore opens the key-value backend chosen by STORE_DRIVER.
func (rt *runtime) openStore(ctx context.Context) (storage.KV, io.Closer, error) {
	switch rt.cfg.StoreDriver {
	case config.DriverPostgres:
		store, err := db.OpenPostgres(ctx, rt.cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		rt.logger.Info("store: postgres")
		return store, store, nil
	case config.DriverFile:
		store, err := storage.NewFileKV(rt.cfg.StorageDir)
		if err != nil {
			return nil, nil, err
		}
		rt.logger.Info("store: files", zap.String("dir", store.Dir()))
		return store, io.NopCloser(nil), nil
	case config.DriverMemory:
		rt.logger.Info("store: memory")
		return storage.NewMemoryKV(), io.NopCloser(nil), nil
	default:
		store, err := db.Open(rt.cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		rt.logger.Info("store: sqlite", zap.String("path", rt.cfg.SQLitePath))
		return store, store, nil
	}
}
