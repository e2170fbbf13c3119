// Package scoring implements the local rule-based fraud scorer.
package scoring

import (
	"strings"

	"github.com/dvloznov/fraud-screen/internal/domain"
	"github.com/dvloznov/fraud-screen/internal/geo"
)

const (
	// DefaultThreshold is the point total at or above which a record is
	// flagged as fraud.
	DefaultThreshold = 5

	// DefaultDistanceKm is the customer-to-merchant distance above which the
	// distant_merchant signal fires.
	DefaultDistanceKm = 100.0
)

// Amount band floors, exclusive.
const (
	elevatedAmount = 200.0
	highAmount     = 500.0
	veryHighAmount = 1000.0
)

// Heuristic scores records with additive rule points. It is a pure function
// of the record: it uses no randomness and no wall clock.
type Heuristic struct {
	Threshold  int
	DistanceKm float64
}

// NewHeuristic returns a Heuristic with the default threshold and distance.
func NewHeuristic() *Heuristic {
	return &Heuristic{
		Threshold:  DefaultThreshold,
		DistanceKm: DefaultDistanceKm,
	}
}

// BandFor buckets an amount.
func BandFor(amt float64) domain.AmountBand {
	switch {
	case amt > veryHighAmount:
		return domain.AmountBandVeryHigh
	case amt > highAmount:
		return domain.AmountBandHigh
	case amt > elevatedAmount:
		return domain.AmountBandElevated
	default:
		return domain.AmountBandLow
	}
}

func bandPoints(b domain.AmountBand) int {
	switch b {
	case domain.AmountBandVeryHigh:
		return 3
	case domain.AmountBandHigh:
		return 2
	case domain.AmountBandElevated:
		return 1
	}
	return 0
}

// Features derives the risk signals of tx. Missing coordinates leave the
// distances nil and an unparseable timestamp never counts as an odd hour.
func (h *Heuristic) Features(tx domain.Transaction) domain.RiskFeatures {
	f := domain.RiskFeatures{AmountBand: BandFor(tx.Amt)}

	if ts, ok := tx.Timestamp(); ok {
		hour := ts.Hour()
		f.OddHour = hour >= 0 && hour <= 5
	}

	if lat, long, ok := tx.CustomerLocation(); ok {
		if mlat, mlong, ok := tx.MerchantLocation(); ok {
			km := geo.DistanceKm(lat, long, mlat, mlong)
			mi := geo.DistanceMiles(lat, long, mlat, mlong)
			f.GeoDistanceKm = &km
			f.GeoDistanceMi = &mi
		}
	}

	if f.AmountBand == domain.AmountBandVeryHigh {
		f.Signals = append(f.Signals, domain.SignalHighAmount)
	}
	if merchantAnomaly(tx.Merchant) {
		f.Signals = append(f.Signals, domain.SignalMerchantAnomaly)
	}
	if f.OddHour {
		f.Signals = append(f.Signals, domain.SignalOddHour)
	}
	if f.GeoDistanceKm != nil && *f.GeoDistanceKm > h.DistanceKm {
		f.Signals = append(f.Signals, domain.SignalDistantMerchant)
	}
	if len(f.Signals) == 0 {
		f.Signals = []string{domain.SignalNormalBehavior}
	}

	return f
}

// Points returns the rule total for tx together with the features it was
// computed from.
func (h *Heuristic) Points(tx domain.Transaction) (int, domain.RiskFeatures) {
	f := h.Features(tx)

	points := bandPoints(f.AmountBand)
	if merchantAnomaly(tx.Merchant) {
		points += 3
	}
	if f.OddHour {
		points += 2
	}
	if f.GeoDistanceKm != nil && *f.GeoDistanceKm > h.DistanceKm {
		points += 2
	}
	return points, f
}

// Score returns a copy of tx with is_fraud set to the heuristic verdict
// (1 when the total reaches the threshold), the total in heuristic_score
// and the derived features attached. tx itself is not modified.
func (h *Heuristic) Score(tx domain.Transaction) domain.Transaction {
	points, f := h.Points(tx)

	out := tx.Clone()
	verdict := 0
	if points >= h.Threshold {
		verdict = 1
	}
	out.IsFraud = &verdict
	out.HeuristicScore = &points
	out.ScoreSource = domain.ScoreSourceHeuristic
	out.Features = &f
	return out
}

// ScoreBatch scores each record independently, preserving order.
func (h *Heuristic) ScoreBatch(txs []domain.Transaction) []domain.Transaction {
	out := make([]domain.Transaction, len(txs))
	for i, tx := range txs {
		out[i] = h.Score(tx)
	}
	return out
}

func merchantAnomaly(merchant string) bool {
	return strings.Contains(strings.ToLower(merchant), "fraud")
}
