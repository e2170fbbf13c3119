package pipeline

import (
	"context"

	"github.com/dvloznov/fraud-screen/internal/domain"
)

// Gateway scores a batch through the external inference service. The
// returned slice has the same length and order as txs.
type Gateway interface {
	Score(ctx context.Context, txs []domain.Transaction) ([]domain.Transaction, error)
}

// Scorer is the local scorer used when no gateway is configured, and for
// the display features on every record.
type Scorer interface {
	Score(tx domain.Transaction) domain.Transaction
	Features(tx domain.Transaction) domain.RiskFeatures
}

// MockGateway is a mock implementation of Gateway for testing.
type MockGateway struct {
	ScoreFunc func(ctx context.Context, txs []domain.Transaction) ([]domain.Transaction, error)
	Calls     int
}

func (m *MockGateway) Score(ctx context.Context, txs []domain.Transaction) ([]domain.Transaction, error) {
	m.Calls++
	if m.ScoreFunc != nil {
		return m.ScoreFunc(ctx, txs)
	}
	return txs, nil
}
