package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"docvault/internal/app"
	"docvault/internal/config"
	"docvault/internal/server"
	"docvault/internal/storage"
	"docvault/internal/store"
	"docvault/internal/util"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	util.InitLogger(cfg.LogLevel)

	sessionTTL := config.ParseDurationDefault(cfg.SessionTTL, 24*time.Hour)

	entityStore, err := newEntityStore(cfg)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}
	sessions := newSessionStore(cfg, sessionTTL)
	blobs, err := newBlobStore(cfg)
	if err != nil {
		log.Fatalf("failed to init blob storage: %v", err)
	}

	appCore, err := app.New(app.Config{
		Store:           entityStore,
		Sessions:        sessions,
		Blobs:           blobs,
		ProcessingDelay: config.ParseDurationDefault(cfg.IngestionProcessingDelay, time.Second),
		CompletionDelay: config.ParseDurationDefault(cfg.IngestionCompletionDelay, 5*time.Second),
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:                      appCore,
		SessionTTL:               sessionTTL,
		SecureCookies:            cfg.SecureCookies,
		MaxUploadBytes:           cfg.MaxUploadBytes,
		RedisAddr:                cfg.RedisAddr,
		RedisPassword:            cfg.RedisPassword,
		SignupRateLimitPerMinute: cfg.SignupRateLimitPerMinute,
		LoginRateLimitPerMinute:  cfg.LoginRateLimitPerMinute,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func newEntityStore(cfg config.FileConfig) (store.Store, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		slog.Warn("no databaseURL configured, using in-memory store")
		return store.NewMemoryStore(), nil
	}
	return store.NewGormStore(cfg.DatabaseURL)
}

func newSessionStore(cfg config.FileConfig, ttl time.Duration) store.SessionStore {
	switch strings.ToLower(strings.TrimSpace(cfg.SessionBackend)) {
	case "redis":
		return store.NewRedisSessionStore(cfg.RedisAddr, cfg.RedisPassword, ttl)
	case "jwt":
		return store.NewJWTSessionStore(cfg.JWTSecret, ttl)
	default:
		return store.NewMemorySessionStore(ttl)
	}
}

func newBlobStore(cfg config.FileConfig) (storage.BlobStore, error) {
	if cfg.MinioEndpoint != "" {
		return storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	}
	if cfg.StorageDir != "" {
		return storage.NewDiskStore(cfg.StorageDir)
	}
	slog.Info("content storage disabled, document bodies are metadata only")
	return nil, nil
}
