package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/dvloznov/fraud-screen/internal/logger"
	"github.com/dvloznov/fraud-screen/internal/pipeline"
)

const (
	// DefaultDatasetID is used when no dataset is configured.
	DefaultDatasetID = "fraud"

	scoringRunsTable        = "scoring_runs"
	scoredTransactionsTable = "scored_transactions"

	// insertChunk bounds the rows sent in one streaming insert.
	insertChunk = 500
)

// ResultExporter persists scored batches.
type ResultExporter interface {
	ExportResult(ctx context.Context, res *pipeline.Result, source string) error
}

// Repository writes scoring runs and scored transactions to BigQuery. It
// holds a shared client to avoid creating a new connection per batch.
type Repository struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	now       func() time.Time
}

// NewRepository creates a Repository for projectID/datasetID.
func NewRepository(ctx context.Context, projectID, datasetID string, opts ...option.ClientOption) (*Repository, error) {
	if projectID == "" {
		return nil, fmt.Errorf("NewRepository: project id is required")
	}
	if datasetID == "" {
		datasetID = DefaultDatasetID
	}

	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating client: %w", err)
	}
	return &Repository{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
		now:       time.Now,
	}, nil
}

// Close closes the BigQuery client connection.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *Repository) dataset() *bigquery.Dataset {
	// Use fully qualified names to avoid project ID issues
	return r.client.DatasetInProject(r.projectID, r.datasetID)
}

// EnsureTables creates the dataset and both tables from the row structs when
// they do not exist yet.
func (r *Repository) EnsureTables(ctx context.Context) error {
	if err := r.dataset().Create(ctx, &bigquery.DatasetMetadata{}); err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("EnsureTables: creating dataset %s: %w", r.datasetID, err)
	}

	tables := []struct {
		name string
		row  any
	}{
		{scoringRunsTable, ScoringRunRow{}},
		{scoredTransactionsTable, ScoredTransactionRow{}},
	}
	for _, t := range tables {
		schema, err := bigquery.InferSchema(t.row)
		if err != nil {
			return fmt.Errorf("EnsureTables: inferring schema for %s: %w", t.name, err)
		}
		meta := &bigquery.TableMetadata{Schema: schema}
		if err := r.dataset().Table(t.name).Create(ctx, meta); err != nil && !isAlreadyExists(err) {
			return fmt.Errorf("EnsureTables: creating table %s: %w", t.name, err)
		}
	}
	return nil
}

func isAlreadyExists(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict
}

// InsertScoringRun inserts one row into fraud.scoring_runs.
func (r *Repository) InsertScoringRun(ctx context.Context, row *ScoringRunRow) error {
	inserter := r.dataset().Table(scoringRunsTable).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return fmt.Errorf("InsertScoringRun: inserting row: %w", err)
	}
	return nil
}

// InsertScoredTransactions inserts rows into fraud.scored_transactions.
func (r *Repository) InsertScoredTransactions(ctx context.Context, rows []*ScoredTransactionRow) error {
	if len(rows) == 0 {
		return nil
	}

	inserter := r.dataset().Table(scoredTransactionsTable).Inserter()
	for start := 0; start < len(rows); start += insertChunk {
		end := min(start+insertChunk, len(rows))
		if err := inserter.Put(ctx, rows[start:end]); err != nil {
			return fmt.Errorf("InsertScoredTransactions: inserting rows %d-%d: %w", start, end, err)
		}
	}
	return nil
}

// ExportResult writes the run summary and every scored record of res.
func (r *Repository) ExportResult(ctx context.Context, res *pipeline.Result, source string) error {
	log := logger.FromContext(ctx)

	if err := r.InsertScoringRun(ctx, NewScoringRunRow(res, source)); err != nil {
		return err
	}

	rows := ScoredTransactionRows(res, r.now())
	if err := r.InsertScoredTransactions(ctx, rows); err != nil {
		return err
	}

	log.Info().
		Str("batch_id", res.BatchID).
		Str("dataset", r.datasetID).
		Int("rows", len(rows)).
		Msg("Exported scoring run to BigQuery")
	return nil
}

// ScoredTransactionRows maps every record of res, in order.
func ScoredTransactionRows(res *pipeline.Result, created time.Time) []*ScoredTransactionRow {
	rows := make([]*ScoredTransactionRow, 0, len(res.Transactions))
	for _, tx := range res.Transactions {
		rows = append(rows, NewScoredTransactionRow(res.BatchID, tx, created))
	}
	return rows
}

// MockResultExporter is a mock implementation of ResultExporter for testing.
type MockResultExporter struct {
	ExportResultFunc func(ctx context.Context, res *pipeline.Result, source string) error
}

func (m *MockResultExporter) ExportResult(ctx context.Context, res *pipeline.Result, source string) error {
	if m.ExportResultFunc != nil {
		return m.ExportResultFunc(ctx, res, source)
	}
	return nil
}
