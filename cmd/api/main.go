package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/fraud-screen/internal/api/handlers"
	"github.com/dvloznov/fraud-screen/internal/api/middleware"
	"github.com/dvloznov/fraud-screen/internal/app"
	"github.com/dvloznov/fraud-screen/internal/config"
	infraBQ "github.com/dvloznov/fraud-screen/internal/infra/bigquery"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logger settings come from the config, so fall back to the default.
		log := app.NewLogger(config.Config{})
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	port := flag.String("port", cfg.HTTPPort, "HTTP server port (or set FRAUD_HTTP_PORT env)")
	flag.Parse()

	log := app.NewLogger(cfg)
	ctx := context.Background()

	processor, err := app.NewProcessor(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scoring pipeline")
	}

	var exporter infraBQ.ResultExporter
	repo, err := app.NewExporter(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery repository")
	}
	if repo != nil {
		defer repo.Close()
		exporter = repo
		log.Info().Str("project", cfg.GCPProject).Str("dataset", cfg.BigQueryDataset).Msg("Exporting results to BigQuery")
	} else {
		log.Warn().Msg("No GCP project configured - BigQuery export disabled")
	}

	scoringHandler := handlers.NewScoringHandler(processor, exporter, cfg.MaxUploadBytes, log)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/transactions/batch", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			scoringHandler.ScoreBatch(w, r)
		} else {
			middleware.WriteErrorCode(w, http.StatusMethodNotAllowed, middleware.CodeMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/transactions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			scoringHandler.ScoreSingle(w, r)
		} else {
			middleware.WriteErrorCode(w, http.StatusMethodNotAllowed, middleware.CodeMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/categories", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			scoringHandler.ListCategories(w, r)
		} else {
			middleware.WriteErrorCode(w, http.StatusMethodNotAllowed, middleware.CodeMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "healthy",
			"time":      time.Now().Format(time.RFC3339),
			"inference": cfg.InferenceEnabled(),
			"export":    exporter != nil,
		})
	})

	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(mux),
			),
		),
	)

	// Uploads and the inference round trip can both take a while, so the
	// write timeout leaves room for the inference client's own timeout.
	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.InferenceTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", *port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
