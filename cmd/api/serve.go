package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"ideaflow/api/internal/app"
	"ideaflow/api/internal/archive"
	"ideaflow/api/internal/config"
	"ideaflow/api/internal/email"
	"ideaflow/api/internal/logging"
	"ideaflow/api/internal/notify"
	"ideaflow/api/internal/realtime"
	"ideaflow/api/internal/search"
	"ideaflow/api/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context())
	},
}

// openStore connects, migrates and wraps the configured database.
func openStore(ctx context.Context, cfg config.Config) (*sql.DB, *store.SQLStore, error) {
	dialect, err := store.ParseDialect(cfg.DatabaseDriver)
	if err != nil {
		return nil, nil, err
	}
	db, err := store.Open(ctx, dialect, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := store.ApplyMigrations(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrations failed: %w", err)
	}
	return db, store.NewSQLStore(db, dialect), nil
}

func serve(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	hub := realtime.NewHub(256, logger)
	go hub.Run(ctx)

	var publisher realtime.Publisher = hub
	if strings.TrimSpace(cfg.RedisURL) != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		bridge := realtime.NewRedisBridge(client, cfg.RedisChannel, hub, logger)
		if err := bridge.Start(ctx); err != nil {
			return fmt.Errorf("realtime bridge: %w", err)
		}
		publisher = bridge
		logger.Info("realtime fan-out through redis", "channel", cfg.RedisChannel)
	}

	var meili *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meili.Close()
	}
	searchService := search.NewService(meili, search.NewStoreSearch(st), logger)
	if meili != nil {
		go searchService.ReindexAll(ctx, st)
	}

	deps := app.Dependencies{
		Users: st,
		Email: email.NewService(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		}),
		Search:   searchService,
		Realtime: publisher,
		Logger:   logger,
		Notifier: notify.NewDispatcher(st, publisher, logger, notify.Options{
			Concurrency:      cfg.FanoutConcurrency,
			RecipientTimeout: cfg.FanoutRecipientTimeout,
		}),
	}

	if strings.TrimSpace(cfg.ArchiveEndpoint) != "" {
		mergeArchive, err := archive.NewMinioArchive(archive.Config{
			Endpoint:  cfg.ArchiveEndpoint,
			AccessKey: cfg.ArchiveAccessKey,
			SecretKey: cfg.ArchiveSecretKey,
			Bucket:    cfg.ArchiveBucket,
			UseSSL:    cfg.ArchiveUseSSL,
		}, logger)
		if err != nil {
			return fmt.Errorf("merge archive: %w", err)
		}
		if err := mergeArchive.EnsureBucket(ctx); err != nil {
			logger.Warn("merge archive bucket unavailable", "bucket", cfg.ArchiveBucket, "error", err)
		}
		deps.Archive = mergeArchive
	}

	service := app.New(cfg, st, deps)
	if err := service.Bootstrap(ctx); err != nil {
		logger.Warn("bootstrap failed, will retry on next restart", "error", err)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, realtime.NewServer(hub, cfg.CORSOrigin, logger), logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ideaflow api listening", "addr", cfg.Addr, "driver", cfg.DatabaseDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	return nil
}
