package inference

import (
	"context"
	"errors"

	"github.com/dvloznov/fraud-screen/internal/domain"
	"github.com/dvloznov/fraud-screen/internal/logger"
)

// DefaultThreshold is the distance-to-cluster above which a record is
// flagged. The comparison is strict.
const DefaultThreshold = 3.0

// Gateway scores batches through a Predictor.
type Gateway struct {
	predictor Predictor
	threshold float64
}

// NewGateway creates a Gateway. A non-positive threshold selects
// DefaultThreshold.
func NewGateway(p Predictor, threshold float64) *Gateway {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Gateway{predictor: p, threshold: threshold}
}

// Score sends txs in one request and merges the verdicts positionally. Any
// failure is returned as a *GatewayError and no record is enriched.
func (g *Gateway) Score(ctx context.Context, txs []domain.Transaction) ([]domain.Transaction, error) {
	if len(txs) == 0 {
		return []domain.Transaction{}, nil
	}

	preds, err := g.predictor.Predict(ctx, BuildRequest(txs))
	if err != nil {
		var gwErr *GatewayError
		if errors.As(err, &gwErr) {
			return nil, gwErr
		}
		return nil, &GatewayError{Err: err}
	}

	log := logger.FromContext(ctx)
	switch {
	case len(preds) < len(txs):
		log.Warn().Int("requested", len(txs)).Int("returned", len(preds)).
			Msg("Inference response shorter than request, trailing records left unscored")
	case len(preds) > len(txs):
		log.Warn().Int("requested", len(txs)).Int("returned", len(preds)).
			Msg("Inference response longer than request, extra predictions ignored")
	}

	return Merge(txs, preds, g.threshold), nil
}

// Merge returns copies of txs with preds[i] applied to txs[i]. Records past
// the end of preds get null cluster and distance with is_fraud_inference 0.
func Merge(txs []domain.Transaction, preds []Prediction, threshold float64) []domain.Transaction {
	out := make([]domain.Transaction, len(txs))
	for i, tx := range txs {
		c := tx.Clone()
		if i < len(preds) {
			p := preds[i]
			cluster := p.ClosestCluster
			centroid := p.ClosestCluster
			distance := p.DistanceToCluster
			flag := 0
			if distance > threshold {
				flag = 1
			}
			c.ClosestCluster = &cluster
			c.Centroid = &centroid
			c.Distance = &distance
			c.IsFraudInference = &flag
			c.ScoreSource = domain.ScoreSourceInference
		} else {
			flag := 0
			c.ClosestCluster = nil
			c.Centroid = nil
			c.Distance = nil
			c.IsFraudInference = &flag
			c.ScoreSource = domain.ScoreSourceInferenceUnmatched
		}
		out[i] = c
	}
	return out
}
