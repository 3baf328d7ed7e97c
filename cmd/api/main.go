package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/expense-importer/internal/api"
	"github.com/dvloznov/expense-importer/internal/config"
	"github.com/dvloznov/expense-importer/internal/infra"
	"github.com/dvloznov/expense-importer/internal/logger"
	"github.com/dvloznov/expense-importer/internal/pipeline"
)

func main() {
	port := flag.Int("port", 0, "HTTP server port (overrides server.port)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	log := logger.NewFromConfig(cfg.Log.Level, cfg.Log.Console)
	ctx := logger.WithContext(context.Background(), log)

	store, err := infra.OpenStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer store.Close()

	normalizer := infra.OpenNormalizer(ctx, cfg, log)

	deps := api.Deps{
		Store:          store,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Log:            log,
	}

	var archive pipeline.StorageService
	gcsSvc, err := infra.OpenArchive(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("Upload archive unavailable")
	} else if gcsSvc != nil {
		defer gcsSvc.Close()
		archive = gcsSvc
		deps.Uploads = gcsSvc
	}

	deps.Importer = pipeline.NewImporter(store, normalizer, archive, cfg.Server.MaxUploadBytes, log)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(deps),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().
			Int("port", cfg.Server.Port).
			Str("backend", cfg.StorageBackend()).
			Str("environment", cfg.Environment).
			Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
