package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/fraud-screen/internal/app"
	"github.com/dvloznov/fraud-screen/internal/config"
	"github.com/dvloznov/fraud-screen/internal/domain"
	"github.com/dvloznov/fraud-screen/internal/gcs"
	"github.com/dvloznov/fraud-screen/internal/logger"
	"github.com/dvloznov/fraud-screen/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log := app.NewLogger(config.Config{})
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := app.NewLogger(cfg)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "score":
		runScore(cfg, log)
	case "single":
		runSingle(cfg, log)
	case "categories":
		runCategories()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Fraud Screen CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  score       Score a CSV file of transactions (local or GCS)")
	fmt.Println("  single      Score one manually entered transaction")
	fmt.Println("  categories  List the accepted merchant categories")
	fmt.Println("  help        Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
	fmt.Println("\nResults are written to stdout as JSON; logs go to stderr.")
}

func runScore(cfg config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("score", flag.ExitOnError)
	filePath := fs.String("file", "", "Path to a local CSV file")
	gcsURI := fs.String("gcs-uri", "", "GCS URI of a CSV file (gs://bucket/object)")
	export := fs.Bool("export", false, "Export the scored batch to BigQuery")
	out := fs.String("out", "", "Also write the JSON result to a local path or gs:// URI")
	fs.Parse(os.Args[2:])

	if (*filePath == "") == (*gcsURI == "") {
		log.Fatal().Msg("Usage: cli score -file PATH | -gcs-uri gs://BUCKET/OBJECT")
	}
	if *export && !cfg.ExportEnabled() {
		log.Fatal().Msg("Error: --export requires FRAUD_GCP_PROJECT")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	var storage gcs.StorageService
	if *gcsURI != "" || strings.HasPrefix(*out, "gs://") {
		s, err := app.NewStorage(ctx, cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create storage client")
		}
		defer s.Close()
		storage = s
	}

	in, source, err := loadInput(ctx, storage, *filePath, *gcsURI)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read input")
	}

	log.Info().Str("source", source).Int("bytes", len(in.Data)).Msg("Scoring file")

	res := process(ctx, cfg, log, in, pipeline.ModeBulk)

	if *export {
		exportResult(ctx, cfg, log, res, source)
	}

	payload := encodeResult(log, res)
	if *out != "" {
		if err := writeOutput(ctx, storage, *out, payload); err != nil {
			log.Fatal().Err(err).Str("out", *out).Msg("Failed to write result")
		}
		log.Info().Str("out", *out).Msg("Result written")
	}
	os.Stdout.Write(payload)
}

func runSingle(cfg config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("single", flag.ExitOnError)
	fields := fieldFlags{}
	fs.Var(fields, "field", "Field value as name=value (repeatable)")
	jsonPath := fs.String("json", "", "Path to a JSON object with the transaction fields")
	export := fs.Bool("export", false, "Export the scored record to BigQuery")
	fs.Parse(os.Args[2:])

	if len(fields) == 0 && *jsonPath == "" {
		log.Fatal().Msg("Usage: cli single -field name=value ... | -json PATH")
	}
	if *export && !cfg.ExportEnabled() {
		log.Fatal().Msg("Error: --export requires FRAUD_GCP_PROJECT")
	}

	if *jsonPath != "" {
		body, err := os.ReadFile(*jsonPath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read JSON file")
		}
		decoded, err := pipeline.DecodeFields(body)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid JSON input")
		}
		// -field values override the file.
		for k, v := range decoded {
			if _, ok := fields[k]; !ok {
				fields[k] = v
			}
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	res := process(ctx, cfg, log, pipeline.Input{Fields: fields}, pipeline.ModeSingle)

	if *export {
		exportResult(ctx, cfg, log, res, "manual-entry")
	}

	os.Stdout.Write(encodeResult(log, res))
}

func runCategories() {
	cats := append([]string(nil), domain.Categories...)
	sort.Strings(cats)
	for _, c := range cats {
		fmt.Println(c)
	}
}

func process(ctx context.Context, cfg config.Config, log zerolog.Logger, in pipeline.Input, mode pipeline.Mode) *pipeline.Result {
	processor, err := app.NewProcessor(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scoring pipeline")
	}

	res, err := processor.Process(ctx, in, mode)
	if err != nil {
		log.Fatal().Err(err).Msg("Scoring failed")
	}
	return res
}

func exportResult(ctx context.Context, cfg config.Config, log zerolog.Logger, res *pipeline.Result, source string) {
	repo, err := app.NewExporter(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create BigQuery repository")
		return
	}
	defer repo.Close()

	if err := repo.ExportResult(ctx, res, source); err != nil {
		log.Error().Err(err).Str("batch_id", res.BatchID).Msg("Export failed")
		return
	}
	log.Info().Str("batch_id", res.BatchID).Int("rows", res.Accepted).Msg("Exported to BigQuery")
}

func encodeResult(log zerolog.Logger, res *pipeline.Result) []byte {
	payload, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to encode result")
	}
	return append(payload, '\n')
}

// loadInput reads the bulk file from a local path or a gs:// URI and returns
// it with a label naming where it came from.
func loadInput(ctx context.Context, storage gcs.StorageService, filePath, gcsURI string) (pipeline.Input, string, error) {
	if gcsURI != "" {
		data, err := storage.Fetch(ctx, gcsURI)
		if err != nil {
			return pipeline.Input{}, "", fmt.Errorf("loadInput: %w", err)
		}
		return pipeline.Input{Filename: gcs.ExtractFilename(gcsURI), Data: data}, gcsURI, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return pipeline.Input{}, "", fmt.Errorf("loadInput: %w", err)
	}
	return pipeline.Input{Filename: filepath.Base(filePath), Data: data}, filePath, nil
}

// writeOutput copies payload to a gs:// URI or a local path.
func writeOutput(ctx context.Context, storage gcs.StorageService, dest string, payload []byte) error {
	if strings.HasPrefix(dest, "gs://") {
		return storage.Upload(ctx, dest, payload, "application/json")
	}
	return os.WriteFile(dest, payload, 0o644)
}

// fieldFlags collects repeated -field name=value flags.
type fieldFlags map[string]string

func (f fieldFlags) String() string {
	pairs := make([]string, 0, len(f))
	for k, v := range f {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

func (f fieldFlags) Set(s string) error {
	name, value, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(name) == "" {
		return fmt.Errorf("expected name=value, got %q", s)
	}
	f[strings.TrimSpace(name)] = value
	return nil
}
