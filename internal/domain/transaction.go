package domain

import (
	"strings"
	"time"
)

// Transaction is the canonical record used throughout the scoring pipeline.
// It is a domain struct, not a BigQuery row; the export layer maps it into
// the fraud.scored_transactions table schema.
//
// Optional fields are pointers: nil means the column was absent or blank,
// which is never conflated with "" or zero.
type Transaction struct {
	TransNum           *string `json:"trans_num"`
	TransDateTransTime string  `json:"trans_date_trans_time"`
	UnixTime           *int64  `json:"unix_time"`

	Amt   float64 `json:"amt"`
	CCNum string  `json:"cc_num"`

	Merchant  string   `json:"merchant"`
	Category  string   `json:"category"`
	MerchLat  *float64 `json:"merch_lat"`
	MerchLong *float64 `json:"merch_long"`

	First   *string  `json:"first"`
	Last    *string  `json:"last"`
	Gender  *string  `json:"gender"`
	DOB     *string  `json:"dob"`
	Job     *string  `json:"job"`
	Street  *string  `json:"street"`
	City    *string  `json:"city"`
	State   *string  `json:"state"`
	Zip     *string  `json:"zip"`
	CityPop *float64 `json:"city_pop"`
	Lat     *float64 `json:"lat"`
	Long    *float64 `json:"long"`

	// IsFraud is the ground-truth label on historical data. The heuristic
	// path overwrites it with the local verdict.
	IsFraud *int `json:"is_fraud"`

	// Score fields, set by the inference path.
	IsFraudInference *int     `json:"is_fraud_inference"`
	Distance         *float64 `json:"distance"`
	ClosestCluster   *int     `json:"closest_cluster"`
	Centroid         *int     `json:"centroid"`

	HeuristicScore *int          `json:"heuristic_score,omitempty"`
	ScoreSource    ScoreSource   `json:"score_source,omitempty"`
	Features       *RiskFeatures `json:"features,omitempty"`
}

// ScoreSource records which scorer produced the verdict on a record.
type ScoreSource string

const (
	ScoreSourceHeuristic          ScoreSource = "heuristic"
	ScoreSourceInference          ScoreSource = "inference"
	ScoreSourceInferenceUnmatched ScoreSource = "inference_unmatched"
)

// RiskFeatures are the derived signals attached to a scored record.
type RiskFeatures struct {
	AmountBand    AmountBand `json:"amount_band"`
	OddHour       bool       `json:"odd_hour"`
	GeoDistanceKm *float64   `json:"geo_distance_km"`
	GeoDistanceMi *float64   `json:"geo_distance_mi"`
	Signals       []string   `json:"signals"`
}

// AmountBand buckets amt for display and scoring.
type AmountBand string

const (
	AmountBandLow      AmountBand = "low"       // amt <= 200
	AmountBandElevated AmountBand = "elevated"  // 200 < amt <= 500
	AmountBandHigh     AmountBand = "high"      // 500 < amt <= 1000
	AmountBandVeryHigh AmountBand = "very_high" // amt > 1000
)

// Signal labels.
const (
	SignalHighAmount      = "high_amount"
	SignalMerchantAnomaly = "merchant_anomaly"
	SignalOddHour         = "odd_hour"
	SignalDistantMerchant = "distant_merchant"
	SignalNormalBehavior  = "normal_behavior"
)

// Clone returns a deep copy so scorers can enrich a record without touching
// the caller's value.
func (t Transaction) Clone() Transaction {
	c := t
	c.TransNum = clonePtr(t.TransNum)
	c.UnixTime = clonePtr(t.UnixTime)
	c.MerchLat = clonePtr(t.MerchLat)
	c.MerchLong = clonePtr(t.MerchLong)
	c.First = clonePtr(t.First)
	c.Last = clonePtr(t.Last)
	c.Gender = clonePtr(t.Gender)
	c.DOB = clonePtr(t.DOB)
	c.Job = clonePtr(t.Job)
	c.Street = clonePtr(t.Street)
	c.City = clonePtr(t.City)
	c.State = clonePtr(t.State)
	c.Zip = clonePtr(t.Zip)
	c.CityPop = clonePtr(t.CityPop)
	c.Lat = clonePtr(t.Lat)
	c.Long = clonePtr(t.Long)
	c.IsFraud = clonePtr(t.IsFraud)
	c.IsFraudInference = clonePtr(t.IsFraudInference)
	c.Distance = clonePtr(t.Distance)
	c.ClosestCluster = clonePtr(t.ClosestCluster)
	c.Centroid = clonePtr(t.Centroid)
	c.HeuristicScore = clonePtr(t.HeuristicScore)
	if t.Features != nil {
		f := *t.Features
		f.GeoDistanceKm = clonePtr(t.Features.GeoDistanceKm)
		f.GeoDistanceMi = clonePtr(t.Features.GeoDistanceMi)
		f.Signals = append([]string(nil), t.Features.Signals...)
		c.Features = &f
	}
	return c
}

// CustomerLocation returns the customer's coordinates when both are present.
func (t Transaction) CustomerLocation() (lat, long float64, ok bool) {
	if t.Lat == nil || t.Long == nil {
		return 0, 0, false
	}
	return *t.Lat, *t.Long, true
}

// MerchantLocation returns the merchant's coordinates when both are present.
func (t Transaction) MerchantLocation() (lat, long float64, ok bool) {
	if t.MerchLat == nil || t.MerchLong == nil {
		return 0, 0, false
	}
	return *t.MerchLat, *t.MerchLong, true
}

// timestampLayouts are tried in order by ParseTimestamp. The first two cover
// the historical exports and the entry form respectively.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp parses trans_date_trans_time. The wall-clock value is kept
// as written: zone-less layouts come back in UTC and offsets are not applied.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// Timestamp parses the record's trans_date_trans_time.
func (t Transaction) Timestamp() (time.Time, bool) {
	return ParseTimestamp(t.TransDateTransTime)
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
