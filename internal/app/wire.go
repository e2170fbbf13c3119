// Package app builds the scoring stack from configuration for the api and
// cli binaries.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/dvloznov/fraud-screen/internal/config"
	"github.com/dvloznov/fraud-screen/internal/gcs"
	infraBQ "github.com/dvloznov/fraud-screen/internal/infra/bigquery"
	"github.com/dvloznov/fraud-screen/internal/inference"
	"github.com/dvloznov/fraud-screen/internal/logger"
	"github.com/dvloznov/fraud-screen/internal/pipeline"
)

// NewLogger builds the process logger from cfg.
func NewLogger(cfg config.Config) zerolog.Logger {
	return logger.NewFromConfig(nil, cfg.LogFormat, cfg.LogLevel)
}

// ClientOptions returns the Google Cloud client options for cfg.
func ClientOptions(cfg config.Config) []option.ClientOption {
	if cfg.GCPCredentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(cfg.GCPCredentialsFile)}
}

// NewProcessor builds the pipeline. The inference gateway is wired only when
// an endpoint is configured.
func NewProcessor(cfg config.Config, log zerolog.Logger) (*pipeline.Processor, error) {
	if !cfg.InferenceEnabled() {
		log.Info().Msg("No inference endpoint configured, scoring with the local heuristic")
		return pipeline.NewProcessor(), nil
	}

	predictor, err := inference.NewHTTPPredictor(cfg.InferenceURL,
		inference.WithToken(cfg.InferenceToken),
		inference.WithTimeout(cfg.InferenceTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("NewProcessor: %w", err)
	}

	log.Info().
		Str("endpoint", cfg.InferenceURL).
		Float64("threshold", cfg.InferenceThreshold).
		Bool("fallback", cfg.FallbackHeuristic).
		Msg("Scoring through the inference service")

	return pipeline.NewProcessor(
		pipeline.WithGateway(inference.NewGateway(predictor, cfg.InferenceThreshold)),
		pipeline.WithHeuristicFallback(cfg.FallbackHeuristic),
	), nil
}

// NewExporter opens the BigQuery repository and makes sure its tables exist.
// It returns nil, nil when export is not configured.
func NewExporter(ctx context.Context, cfg config.Config) (*infraBQ.Repository, error) {
	if !cfg.ExportEnabled() {
		return nil, nil
	}

	repo, err := infraBQ.NewRepository(ctx, cfg.GCPProject, cfg.BigQueryDataset, ClientOptions(cfg)...)
	if err != nil {
		return nil, err
	}
	if err := repo.EnsureTables(ctx); err != nil {
		repo.Close()
		return nil, err
	}
	return repo, nil
}

// NewStorage opens a Cloud Storage service with cfg's credentials.
func NewStorage(ctx context.Context, cfg config.Config) (*gcs.Service, error) {
	return gcs.NewService(ctx, ClientOptions(cfg)...)
}
