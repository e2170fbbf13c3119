package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/fraud-screen/internal/config"
	"github.com/dvloznov/fraud-screen/internal/domain"
	"github.com/dvloznov/fraud-screen/internal/logger"
	"github.com/dvloznov/fraud-screen/internal/pipeline"
)

const file = "trans_date_trans_time,cc_num,merchant,category,amt,first,last,is_fraud,zip\n" +
	"2019-01-01 00:00:18,2703186189652095,Kirlin,misc_net,4.97,Jennifer,Banks,0,28654\n"

func TestNewProcessor_HeuristicWithoutEndpoint(t *testing.T) {
	p, err := NewProcessor(config.Config{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewProcessor() error = %v", err)
	}

	ctx := logger.WithContext(context.Background(), zerolog.Nop())
	res, err := p.Process(ctx, pipeline.Input{Data: []byte(file)}, pipeline.ModeBulk)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if res.ScoredBy != domain.ScoreSourceHeuristic {
		t.Errorf("ScoredBy = %s, want heuristic", res.ScoredBy)
	}
}

func TestNewProcessor_WiresInferenceEndpoint(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{
			"predictions": map[string]any{
				"predictions": []map[string]any{{"closest_cluster": 4, "distance_to_cluster": 3.2}},
			},
		})
	}))
	defer srv.Close()

	cfg := config.Config{
		InferenceURL:       srv.URL,
		InferenceToken:     "tkn",
		InferenceTimeout:   time.Second,
		InferenceThreshold: 3.0,
	}
	p, err := NewProcessor(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewProcessor() error = %v", err)
	}

	ctx := logger.WithContext(context.Background(), zerolog.Nop())
	res, err := p.Process(ctx, pipeline.Input{Data: []byte(file)}, pipeline.ModeBulk)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if gotAuth != "Bearer tkn" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	tx := res.Transactions[0]
	if tx.IsFraudInference == nil || *tx.IsFraudInference != 1 || *tx.Centroid != 4 {
		t.Errorf("merged record = %+v", tx)
	}
}

func TestClientOptions(t *testing.T) {
	if opts := ClientOptions(config.Config{}); len(opts) != 0 {
		t.Errorf("expected no options without credentials file, got %d", len(opts))
	}
	if opts := ClientOptions(config.Config{GCPCredentialsFile: "/secrets/sa.json"}); len(opts) != 1 {
		t.Errorf("expected one option, got %d", len(opts))
	}
}

func TestNewExporter_DisabledWithoutProject(t *testing.T) {
	repo, err := NewExporter(context.Background(), config.Config{})
	if repo != nil || err != nil {
		t.Errorf("NewExporter() = %v, %v; want nil, nil", repo, err)
	}
}
