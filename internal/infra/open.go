// Package infra wires configured backends into a storage.Store.
package infra

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/dvloznov/expense-importer/internal/config"
	"github.com/dvloznov/expense-importer/internal/gcsuploader"
	"github.com/dvloznov/expense-importer/internal/infra/bigquery"
	fsstore "github.com/dvloznov/expense-importer/internal/infra/firestore"
	"github.com/dvloznov/expense-importer/internal/infra/sqlite"
	"github.com/dvloznov/expense-importer/internal/normalize"
	"github.com/dvloznov/expense-importer/internal/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// ClientOptions returns the Google client options shared by every cloud client.
func ClientOptions(cfg config.Config) []option.ClientOption {
	var opts []option.ClientOption
	if cfg.GCP.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.GCP.CredentialsFile))
	}
	return opts
}

// OpenStore builds the one Store the process uses. A Firestore client that
// cannot be created yields a degraded store instead of an error, so the
// service still starts and reports the backend as unavailable.
func OpenStore(ctx context.Context, cfg config.Config, log zerolog.Logger) (storage.Store, error) {
	backend := cfg.StorageBackend()

	switch backend {
	case config.BackendSQLite:
		repo, err := sqlite.NewExpenseRepository(cfg.SQLite.Path, log)
		if err != nil {
			return nil, fmt.Errorf("OpenStore: %w", err)
		}
		log.Info().Str("path", cfg.SQLite.Path).Msg("using sqlite store")
		return repo, nil

	case config.BackendFirestore:
		project := cfg.GCP.ProjectID
		if project == "" {
			project = firestore.DetectProjectID
		}
		repo, err := fsstore.NewExpenseRepository(ctx, project, cfg.Firestore.Collection, log, ClientOptions(cfg)...)
		if err != nil {
			log.Error().Err(err).Msg("firestore unavailable, serving degraded store")
			return fsstore.NewExpenseRepositoryWithClient(nil, cfg.Firestore.Collection, log), nil
		}
		log.Info().Str("collection", cfg.Firestore.Collection).Msg("using firestore store")
		return repo, nil

	case config.BackendBigQuery:
		repo, err := bigquery.NewExpenseRepository(ctx, bigquery.Table{
			ProjectID: cfg.GCP.ProjectID,
			DatasetID: cfg.BigQuery.Dataset,
			TableID:   cfg.BigQuery.Table,
		}, log, ClientOptions(cfg)...)
		if err != nil {
			return nil, fmt.Errorf("OpenStore: %w", err)
		}
		log.Info().Str("dataset", cfg.BigQuery.Dataset).Str("table", cfg.BigQuery.Table).Msg("using bigquery store")
		return repo, nil
	}

	return nil, fmt.Errorf("OpenStore: unknown backend %q", backend)
}

// OpenNormalizer returns the remote normalizer, backed by Gemini when an API
// key is configured. Without a usable client every call falls back to the
// heuristic.
func OpenNormalizer(ctx context.Context, cfg config.Config, log zerolog.Logger) normalize.Normalizer {
	var completer normalize.Completer
	if cfg.Gemini.APIKey == "" {
		log.Warn().Msg("no gemini api key, using heuristic normalization")
	} else {
		c, err := normalize.NewGeminiCompleter(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Gemini.BaseURL)
		if err != nil {
			log.Warn().Err(err).Msg("gemini client unavailable, using heuristic normalization")
		} else {
			completer = c
		}
	}
	return normalize.NewRemoteNormalizer(completer, cfg.Gemini.Timeout, log)
}

// OpenArchive returns the upload archive, or nil when no bucket is configured.
func OpenArchive(ctx context.Context, cfg config.Config, log zerolog.Logger) (*gcsuploader.GCSStorageService, error) {
	if cfg.GCS.Bucket == "" {
		log.Warn().Msg("no gcs bucket configured, uploads will not be archived")
		return nil, nil
	}
	svc, err := gcsuploader.NewGCSStorageService(ctx, cfg.GCS.Bucket, log, ClientOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("OpenArchive: %w", err)
	}
	return svc, nil
}
