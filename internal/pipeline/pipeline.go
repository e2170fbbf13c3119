package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/fraud-screen/internal/domain"
	"github.com/dvloznov/fraud-screen/internal/logger"
	"github.com/dvloznov/fraud-screen/internal/scoring"
)

// Input is one batch as submitted. Bulk batches carry Data (plus the upload's
// filename and content type when known); single batches carry Fields.
type Input struct {
	Filename    string
	ContentType string
	Data        []byte
	Fields      map[string]string
}

// Result is the outcome of a batch that reached StateDone.
type Result struct {
	BatchID string `json:"batch_id"`
	Mode    Mode   `json:"mode"`
	State   State  `json:"state"`

	// Received counts data lines (bulk) or submissions (single). Every
	// received line is either accepted or dropped.
	Received int         `json:"received"`
	Accepted int         `json:"accepted"`
	Dropped  int         `json:"dropped"`
	Rejected []*RowError `json:"rejected,omitempty"`

	ScoredBy       domain.ScoreSource `json:"scored_by"`
	FallbackReason string             `json:"fallback_reason,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Transactions []domain.Transaction `json:"transactions"`
}

// Processor runs batches through validate, normalize and score. It holds no
// per-batch state and is safe for concurrent use.
type Processor struct {
	gateway  Gateway
	scorer   Scorer
	fallback bool
	newID    func() string
	now      func() time.Time
}

// Option configures a Processor.
type Option func(*Processor)

// WithGateway scores batches through g instead of the local heuristic.
func WithGateway(g Gateway) Option {
	return func(p *Processor) { p.gateway = g }
}

// WithHeuristicFallback makes a gateway failure fall back to local scoring
// instead of failing the batch.
func WithHeuristicFallback(enabled bool) Option {
	return func(p *Processor) { p.fallback = enabled }
}

// WithScorer replaces the local heuristic scorer.
func WithScorer(s Scorer) Option {
	return func(p *Processor) { p.scorer = s }
}

// NewProcessor creates a Processor. Without WithGateway every batch is
// scored by the local heuristic.
func NewProcessor(opts ...Option) *Processor {
	p := &Processor{
		scorer: scoring.NewHeuristic(),
		newID:  uuid.NewString,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs one batch. On failure the returned error is a *PipelineError
// wrapping one of EmptyInputError, FormatError, SchemaError, FieldTypeError,
// RangeError or the gateway's error, and no records are returned.
func (p *Processor) Process(ctx context.Context, in Input, mode Mode) (*Result, error) {
	if _, err := RulesFor(mode); err != nil {
		return nil, fmt.Errorf("Process: %w", err)
	}

	batchID := p.newID()
	log := logger.WithFields(logger.FromContext(ctx), map[string]interface{}{
		"batch_id": batchID,
		"mode":     string(mode),
	})
	ctx = logger.WithContext(ctx, log)

	state := &PipelineState{
		BatchID: batchID,
		Mode:    mode,
		Input:   in,
		State:   StateReceived,
	}
	started := p.now()

	pipe := NewPipeline(
		&ValidateStep{},
		&NormalizeStep{},
		&ScoreStep{Gateway: p.gateway, Scorer: p.scorer, Fallback: p.fallback},
	)

	log.Info().Str("filename", in.Filename).Int("bytes", len(in.Data)).Msg("Batch received")

	if err := pipe.Execute(ctx, state); err != nil {
		log.Error().Err(err).Str("state", string(StateFailed)).Msg("Batch failed")
		return nil, err
	}

	res := &Result{
		BatchID:        batchID,
		Mode:           mode,
		State:          state.State,
		Received:       state.DataLines,
		Accepted:       len(state.Transactions),
		Dropped:        state.Dropped,
		Rejected:       state.Rejected,
		ScoredBy:       state.ScoredBy,
		FallbackReason: state.FallbackReason,
		StartedAt:      started,
		FinishedAt:     p.now(),
		Transactions:   state.Transactions,
	}

	log.Info().
		Int("received", res.Received).
		Int("accepted", res.Accepted).
		Int("dropped", res.Dropped).
		Str("scored_by", string(res.ScoredBy)).
		Msg("Batch scored")

	return res, nil
}
