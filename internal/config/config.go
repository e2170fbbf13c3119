// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the api and cli binaries.
type Config struct {
	HTTPPort  string
	LogLevel  string
	LogFormat string

	// InferenceURL empty means no inference service is configured and every
	// batch is scored by the local heuristic.
	InferenceURL       string
	InferenceToken     string
	InferenceTimeout   time.Duration
	InferenceThreshold float64
	FallbackHeuristic  bool

	MaxUploadBytes int64

	// GCPProject empty disables the BigQuery export.
	GCPProject         string
	BigQueryDataset    string
	GCPCredentialsFile string
}

// Defaults.
const (
	DefaultHTTPPort           = "8080"
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "console"
	DefaultInferenceTimeout   = 30 * time.Second
	DefaultInferenceThreshold = 3.0
	DefaultMaxUploadBytes     = 10 << 20
	DefaultBigQueryDataset    = "fraud"
)

// InferenceEnabled reports whether an inference endpoint is configured.
func (c Config) InferenceEnabled() bool {
	return c.InferenceURL != ""
}

// ExportEnabled reports whether results should be exported to BigQuery.
func (c Config) ExportEnabled() bool {
	return c.GCPProject != ""
}

// Load reads an optional .env file from the working directory and then the
// FRAUD_* environment variables. Variables already set in the environment
// take precedence over the file.
func Load() (Config, error) {
	return LoadFiles(".env")
}

// LoadFiles is Load with explicit .env paths. Missing files are skipped.
func LoadFiles(paths ...string) (Config, error) {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config: loading %s: %w", p, err)
		}
	}

	cfg := Config{
		HTTPPort:           envString("FRAUD_HTTP_PORT", DefaultHTTPPort),
		LogLevel:           envString("FRAUD_LOG_LEVEL", DefaultLogLevel),
		LogFormat:          envString("FRAUD_LOG_FORMAT", DefaultLogFormat),
		InferenceURL:       envString("FRAUD_INFERENCE_URL", ""),
		InferenceToken:     envString("FRAUD_INFERENCE_TOKEN", ""),
		GCPProject:         envString("FRAUD_GCP_PROJECT", ""),
		BigQueryDataset:    envString("FRAUD_BQ_DATASET", DefaultBigQueryDataset),
		GCPCredentialsFile: envString("FRAUD_GCP_CREDENTIALS_FILE", ""),
	}

	var err error
	if cfg.InferenceTimeout, err = envDuration("FRAUD_INFERENCE_TIMEOUT", DefaultInferenceTimeout); err != nil {
		return Config{}, err
	}
	if cfg.InferenceThreshold, err = envFloat("FRAUD_INFERENCE_THRESHOLD", DefaultInferenceThreshold); err != nil {
		return Config{}, err
	}
	if cfg.FallbackHeuristic, err = envBool("FRAUD_FALLBACK_HEURISTIC", false); err != nil {
		return Config{}, err
	}
	if cfg.MaxUploadBytes, err = envInt64("FRAUD_MAX_UPLOAD_BYTES", DefaultMaxUploadBytes); err != nil {
		return Config{}, err
	}

	if cfg.InferenceTimeout <= 0 {
		return Config{}, fmt.Errorf("config: FRAUD_INFERENCE_TIMEOUT must be positive, got %s", cfg.InferenceTimeout)
	}
	if cfg.InferenceThreshold <= 0 {
		return Config{}, fmt.Errorf("config: FRAUD_INFERENCE_THRESHOLD must be positive, got %v", cfg.InferenceThreshold)
	}
	if cfg.MaxUploadBytes <= 0 {
		return Config{}, fmt.Errorf("config: FRAUD_MAX_UPLOAD_BYTES must be positive, got %d", cfg.MaxUploadBytes)
	}

	return cfg, nil
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := envString(key, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := envString(key, "")
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s %q: %w", key, v, err)
	}
	return f, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := envString(key, "")
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: invalid %s %q: %w", key, v, err)
	}
	return b, nil
}

func envInt64(key string, fallback int64) (int64, error) {
	v := envString(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s %q: %w", key, v, err)
	}
	return n, nil
}
