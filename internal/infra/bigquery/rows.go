package bigquery

import (
	"encoding/json"
	"math/big"
	"strconv"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/dvloznov/fraud-screen/internal/domain"
	"github.com/dvloznov/fraud-screen/internal/pipeline"
)

// ScoringRunRow is one processed batch in fraud.scoring_runs.
type ScoringRunRow struct {
	RunID  string `bigquery:"run_id"` // REQUIRED
	Mode   string `bigquery:"mode"`   // REQUIRED
	Source string `bigquery:"source"` // NULLABLE: filename or gs:// URI

	Received int64 `bigquery:"received"`
	Accepted int64 `bigquery:"accepted"`
	Dropped  int64 `bigquery:"dropped"`

	ScoredBy       string              `bigquery:"scored_by"`
	FallbackReason bigquery.NullString `bigquery:"fallback_reason"` // NULLABLE

	// RejectedJSON holds the row-level rejections as a JSON array.
	RejectedJSON bigquery.NullString `bigquery:"rejected_json"` // NULLABLE

	StartedTS  time.Time `bigquery:"started_ts"`
	FinishedTS time.Time `bigquery:"finished_ts"`
}

// ScoredTransactionRow is one scored record in fraud.scored_transactions.
type ScoredTransactionRow struct {
	RunID string `bigquery:"run_id"` // REQUIRED

	TransNum           bigquery.NullString   `bigquery:"trans_num"`
	TransDateTransTime string                `bigquery:"trans_date_trans_time"` // as submitted
	BookingDatetime    bigquery.NullDateTime `bigquery:"booking_datetime"`      // NULLABLE when unparseable
	UnixTime           bigquery.NullInt64    `bigquery:"unix_time"`

	Amt   *big.Rat `bigquery:"amt"` // REQUIRED NUMERIC
	CCNum string   `bigquery:"cc_num"`

	Merchant  string               `bigquery:"merchant"`
	Category  string               `bigquery:"category"`
	MerchLat  bigquery.NullFloat64 `bigquery:"merch_lat"`
	MerchLong bigquery.NullFloat64 `bigquery:"merch_long"`

	First   bigquery.NullString  `bigquery:"first"`
	Last    bigquery.NullString  `bigquery:"last"`
	Gender  bigquery.NullString  `bigquery:"gender"`
	DOB     bigquery.NullString  `bigquery:"dob"`
	Job     bigquery.NullString  `bigquery:"job"`
	Street  bigquery.NullString  `bigquery:"street"`
	City    bigquery.NullString  `bigquery:"city"`
	State   bigquery.NullString  `bigquery:"state"`
	Zip     bigquery.NullString  `bigquery:"zip"`
	CityPop bigquery.NullFloat64 `bigquery:"city_pop"`
	Lat     bigquery.NullFloat64 `bigquery:"lat"`
	Long    bigquery.NullFloat64 `bigquery:"long"`

	IsFraud          bigquery.NullInt64   `bigquery:"is_fraud"`
	IsFraudInference bigquery.NullInt64   `bigquery:"is_fraud_inference"`
	Distance         bigquery.NullFloat64 `bigquery:"distance"`
	ClosestCluster   bigquery.NullInt64   `bigquery:"closest_cluster"`
	HeuristicScore   bigquery.NullInt64   `bigquery:"heuristic_score"`
	ScoreSource      string               `bigquery:"score_source"`

	AmountBand    bigquery.NullString  `bigquery:"amount_band"`
	GeoDistanceKm bigquery.NullFloat64 `bigquery:"geo_distance_km"`
	Signals       []string             `bigquery:"signals"` // REPEATED STRING

	CreatedTS time.Time `bigquery:"created_ts"`
}

// NewScoringRunRow maps a batch result into a scoring_runs row.
func NewScoringRunRow(res *pipeline.Result, source string) *ScoringRunRow {
	row := &ScoringRunRow{
		RunID:      res.BatchID,
		Mode:       string(res.Mode),
		Source:     source,
		Received:   int64(res.Received),
		Accepted:   int64(res.Accepted),
		Dropped:    int64(res.Dropped),
		ScoredBy:   string(res.ScoredBy),
		StartedTS:  res.StartedAt,
		FinishedTS: res.FinishedAt,
	}
	if res.FallbackReason != "" {
		row.FallbackReason = bigquery.NullString{StringVal: res.FallbackReason, Valid: true}
	}
	if len(res.Rejected) > 0 {
		if b, err := json.Marshal(res.Rejected); err == nil {
			row.RejectedJSON = bigquery.NullString{StringVal: string(b), Valid: true}
		}
	}
	return row
}

// NewScoredTransactionRow maps one scored record into a scored_transactions row.
func NewScoredTransactionRow(runID string, tx domain.Transaction, created time.Time) *ScoredTransactionRow {
	row := &ScoredTransactionRow{
		RunID:              runID,
		TransNum:           nullString(tx.TransNum),
		TransDateTransTime: tx.TransDateTransTime,
		UnixTime:           nullInt64(tx.UnixTime),
		Amt:                ratFromFloat(tx.Amt),
		CCNum:              tx.CCNum,
		Merchant:           tx.Merchant,
		Category:           tx.Category,
		MerchLat:           nullFloat64(tx.MerchLat),
		MerchLong:          nullFloat64(tx.MerchLong),
		First:              nullString(tx.First),
		Last:               nullString(tx.Last),
		Gender:             nullString(tx.Gender),
		DOB:                nullString(tx.DOB),
		Job:                nullString(tx.Job),
		Street:             nullString(tx.Street),
		City:               nullString(tx.City),
		State:              nullString(tx.State),
		Zip:                nullString(tx.Zip),
		CityPop:            nullFloat64(tx.CityPop),
		Lat:                nullFloat64(tx.Lat),
		Long:               nullFloat64(tx.Long),
		IsFraud:            nullInt(tx.IsFraud),
		IsFraudInference:   nullInt(tx.IsFraudInference),
		Distance:           nullFloat64(tx.Distance),
		ClosestCluster:     nullInt(tx.ClosestCluster),
		HeuristicScore:     nullInt(tx.HeuristicScore),
		ScoreSource:        string(tx.ScoreSource),
		CreatedTS:          created,
	}

	if ts, ok := tx.Timestamp(); ok {
		row.BookingDatetime = bigquery.NullDateTime{DateTime: civil.DateTimeOf(ts), Valid: true}
	}

	if tx.Features != nil {
		row.AmountBand = bigquery.NullString{StringVal: string(tx.Features.AmountBand), Valid: true}
		row.GeoDistanceKm = nullFloat64(tx.Features.GeoDistanceKm)
		row.Signals = append([]string(nil), tx.Features.Signals...)
	}

	return row
}

// ratFromFloat converts via the shortest decimal representation so 4.97
// is stored as 4.97 rather than its binary expansion.
func ratFromFloat(f float64) *big.Rat {
	r, ok := new(big.Rat).SetString(strconv.FormatFloat(f, 'f', -1, 64))
	if !ok {
		return new(big.Rat).SetFloat64(f)
	}
	return r
}

func nullString(s *string) bigquery.NullString {
	if s == nil {
		return bigquery.NullString{}
	}
	return bigquery.NullString{StringVal: *s, Valid: true}
}

func nullFloat64(f *float64) bigquery.NullFloat64 {
	if f == nil {
		return bigquery.NullFloat64{}
	}
	return bigquery.NullFloat64{Float64: *f, Valid: true}
}

func nullInt64(i *int64) bigquery.NullInt64 {
	if i == nil {
		return bigquery.NullInt64{}
	}
	return bigquery.NullInt64{Int64: *i, Valid: true}
}

func nullInt(i *int) bigquery.NullInt64 {
	if i == nil {
		return bigquery.NullInt64{}
	}
	return bigquery.NullInt64{Int64: int64(*i), Valid: true}
}
