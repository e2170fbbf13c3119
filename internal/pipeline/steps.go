package pipeline

import (
	"context"

	"github.com/dvloznov/fraud-screen/internal/domain"
	"github.com/dvloznov/fraud-screen/internal/logger"
)

// State is the lifecycle position of a batch.
type State string

const (
	StateReceived   State = "received"
	StateValidated  State = "validated"
	StateNormalized State = "normalized"
	StateScored     State = "scored"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// PipelineStep represents a single step in the scoring pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	BatchID string
	Mode    Mode
	Input   Input
	State   State

	Rows         []RawRow
	DataLines    int
	Dropped      int
	Transactions []domain.Transaction
	Rejected     []*RowError

	ScoredBy       domain.ScoreSource
	FallbackReason string
}

// Step 1: ValidateStep checks the input format and the header (or the
// submitted field names) against the mode's required columns.
type ValidateStep struct{}

func (s *ValidateStep) Execute(ctx context.Context, state *PipelineState) error {
	switch state.Mode {
	case ModeSingle:
		if len(state.Input.Fields) == 0 {
			return &EmptyInputError{}
		}
		if err := SingleRules.CheckColumns(fieldNames(state.Input.Fields)); err != nil {
			return err
		}
		state.Rows = []RawRow{{Line: 1, Values: state.Input.Fields}}
		state.DataLines = 1

	default:
		in := state.Input
		if in.Filename != "" || in.ContentType != "" {
			if err := CheckFormat(in.Filename, in.ContentType); err != nil {
				return err
			}
		}
		parsed, err := ParseDelimited(in.Data, BulkRules.RequiredColumns)
		if err != nil {
			return err
		}
		state.Rows = parsed.Rows
		state.DataLines = parsed.DataLines
		state.Dropped = parsed.Dropped

		if parsed.Dropped > 0 {
			log := logger.FromContext(ctx)
			log.Warn().
				Int("dropped", parsed.Dropped).
				Msg("Skipped lines whose field count does not match the header")
		}
	}

	state.State = StateValidated
	return nil
}

// Step 2: NormalizeStep converts raw rows into canonical records. In bulk
// mode a bad row is dropped and reported; in single mode it fails the batch.
type NormalizeStep struct{}

func (s *NormalizeStep) Execute(ctx context.Context, state *PipelineState) error {
	rules, err := RulesFor(state.Mode)
	if err != nil {
		return err
	}

	if state.Mode == ModeSingle {
		tx, err := NormalizeRow(state.Rows[0], rules)
		if err != nil {
			return err
		}
		state.Transactions = []domain.Transaction{tx}
	} else {
		txs, rejected := NormalizeRows(state.Rows, rules)
		state.Transactions = txs
		state.Rejected = rejected
		state.Dropped += len(rejected)

		log := logger.FromContext(ctx)
		for _, re := range rejected {
			log.Debug().Int("line", re.Line).Err(re.Err).Msg("Row rejected")
		}
	}

	state.Rows = nil
	state.State = StateNormalized
	return nil
}

// Step 3: ScoreStep scores every record, through the gateway when one is
// configured and locally otherwise.
type ScoreStep struct {
	Gateway  Gateway
	Scorer   Scorer
	Fallback bool
}

func (s *ScoreStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)

	if len(state.Transactions) == 0 {
		state.ScoredBy = s.source()
		state.State = StateScored
		return nil
	}

	if s.Gateway == nil {
		state.Transactions = s.heuristic(state.Transactions)
		state.ScoredBy = domain.ScoreSourceHeuristic
		state.State = StateScored
		return nil
	}

	scored, err := s.Gateway.Score(ctx, state.Transactions)
	if err != nil {
		if !s.Fallback {
			return err
		}
		log.Warn().Err(err).Msg("Inference gateway failed, falling back to heuristic scoring")
		state.Transactions = s.heuristic(state.Transactions)
		state.ScoredBy = domain.ScoreSourceHeuristic
		state.FallbackReason = err.Error()
		state.State = StateScored
		return nil
	}

	for i := range scored {
		f := s.Scorer.Features(scored[i])
		scored[i].Features = &f
	}
	state.Transactions = scored
	state.ScoredBy = domain.ScoreSourceInference
	state.State = StateScored
	return nil
}

func (s *ScoreStep) source() domain.ScoreSource {
	if s.Gateway != nil {
		return domain.ScoreSourceInference
	}
	return domain.ScoreSourceHeuristic
}

func (s *ScoreStep) heuristic(txs []domain.Transaction) []domain.Transaction {
	out := make([]domain.Transaction, len(txs))
	for i, tx := range txs {
		out[i] = s.Scorer.Score(tx)
	}
	return out
}

// Pipeline orchestrates the execution of pipeline steps.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in order. The first error moves the batch to
// StateFailed and is returned as a *PipelineError naming the state the batch
// was in when it failed.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)
	for _, step := range p.steps {
		from := state.State
		if err := step.Execute(ctx, state); err != nil {
			failedIn := state.State
			state.State = StateFailed
			state.Transactions = nil
			return &PipelineError{BatchID: state.BatchID, Stage: failedIn, Err: err}
		}
		log.Debug().Str("from", string(from)).Str("to", string(state.State)).Msg("Batch state changed")
	}
	state.State = StateDone
	return nil
}
