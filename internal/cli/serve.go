package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"bookshelf/internal/favorites"
	"bookshelf/internal/httpapi"
	"bookshelf/internal/storage"
	"bookshelf/internal/telegram"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the web UI, the JSON API and (with a token) the Telegram bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.serve(cmd.Context())
		},
	}
}

func (rt *runtime) serve(ctx context.Context) error {
	cfg, logger := rt.cfg, rt.logger

	kv, closer, err := rt.openStore(ctx)
	if err != nil {
		return err
	}
	defer closer.Close()

	catalog, err := rt.catalog()
	if err != nil {
		return err
	}

	hub := httpapi.NewHub(logger)
	registry := favorites.NewRegistry(kv, hub, logger)

	api := httpapi.New(catalog, registry, hub, httpapi.Options{
		BotToken:    cfg.TelegramToken,
		RequireAuth: cfg.RequireAuth,
		Logger:      logger,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var bot *telegram.Bot
	if cfg.TelegramToken != "" {
		bot, err = telegram.NewBot(cfg.TelegramToken, catalog, registry, cfg.MiniAppURL, logger)
		if err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http api listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http api: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if bot != nil {
		g.Go(func() error {
			logger.Info("telegram bot polling")
			return bot.Start(gctx)
		})
	}

	// Another process may edit the favorites files; push those edits to
	// open panels.
	if files, ok := kv.(*storage.FileKV); ok {
		g.Go(func() error {
			return files.Watch(gctx, func(key string) {
				logger.Debug("favorites file changed", zap.String("key", key))
				registry.For(key).Refresh(gctx)
			})
		})
	}

	err = g.Wait()
	logger.Info("bookshelf stopped")
	return err
}
