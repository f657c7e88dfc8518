package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mayowa2133/hookforge/internal/api"
	"github.com/mayowa2133/hookforge/internal/config"
	"github.com/mayowa2133/hookforge/internal/db"
	"github.com/mayowa2133/hookforge/internal/logging"
	"github.com/mayowa2133/hookforge/internal/project"
	"github.com/mayowa2133/hookforge/internal/store"
)

const authTokenKey = "auth_token"

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting hookforge",
		"version", config.Version,
		"commit", config.GitCommit,
		"data_dir", cfg.DataDir(),
		"store", cfg.Store(),
	)

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := project.NewRepository(database.Conn())

	authToken, err := ensureAuthToken(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}
	logger.Info("api credentials ready", "auth_token", logging.SanitizeToken(authToken))
	fmt.Printf("hookforge %s listening on http://%s:%d (auth token: %s)\n",
		config.Version, cfg.Host(), cfg.Port(), authToken)

	docs, err := openTimelineStore(cfg, database, logger)
	if err != nil {
		return err
	}
	defer docs.Close()

	svc := project.NewService(repo, docs, logger, project.Options{
		MaxBatchOps: cfg.MaxBatchOps(),
		UndoTTL:     cfg.UndoTTL(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	janitor := project.NewJanitor(docs, repo, logger, cfg.JanitorInterval(), cfg.UndoTTL())
	go janitor.Start(ctx)

	apiServer := api.NewServer(api.ServerConfig{
		Host:           cfg.Host(),
		Port:           cfg.Port(),
		Version:        config.Version,
		StoreKind:      cfg.Store(),
		Service:        svc,
		Repository:     repo,
		Janitor:        janitor,
		Logger:         logger,
		StartTime:      startTime,
		AllowedOrigins: cfg.AllowedOrigins(),
		ExportRoot:     cfg.ExportDir(),
	})

	errCh := make(chan error, 1)
	go func() {
		if err := apiServer.Start(); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		logger.Error("HTTP server error", "error", err)
	}

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// openTimelineStore picks the document backend. Projects and assets always
// live in SQLite.
func openTimelineStore(cfg config.Config, database *db.DB, logger *slog.Logger) (store.DocumentStore, error) {
	switch cfg.Store() {
	case config.StoreBadger:
		bcfg := store.DefaultBadgerConfig(cfg.BadgerDir())
		bcfg.Logger = logging.WithComponent(logger, "badger")
		s, err := store.OpenBadger(bcfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger store: %w", err)
		}
		return s, nil
	default:
		return store.NewSQLiteStore(database.Conn()), nil
	}
}

func ensureAuthToken(repo project.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, authTokenKey)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, authTokenKey, token); err != nil {
		return "", err
	}

	return token, nil
}
