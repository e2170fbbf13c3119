package pipeline

// Mode selects how a batch is ingested.
type Mode string

const (
	// ModeBulk ingests a delimited file with the full required column set.
	ModeBulk Mode = "bulk"

	// ModeSingle ingests one manually entered record with a relaxed
	// required set (no ground-truth label).
	ModeSingle Mode = "single"
)

// Column names of the canonical schema.
const (
	ColTransNum           = "trans_num"
	ColTransDateTransTime = "trans_date_trans_time"
	ColUnixTime           = "unix_time"
	ColAmt                = "amt"
	ColCCNum              = "cc_num"
	ColMerchant           = "merchant"
	ColCategory           = "category"
	ColMerchLat           = "merch_lat"
	ColMerchLong          = "merch_long"
	ColFirst              = "first"
	ColLast               = "last"
	ColGender             = "gender"
	ColDOB                = "dob"
	ColJob                = "job"
	ColStreet             = "street"
	ColCity               = "city"
	ColState              = "state"
	ColZip                = "zip"
	ColCityPop            = "city_pop"
	ColLat                = "lat"
	ColLong               = "long"
	ColIsFraud            = "is_fraud"
)

// BulkRequiredColumns must all appear in a bulk file's header.
var BulkRequiredColumns = []string{
	ColTransDateTransTime,
	ColCCNum,
	ColMerchant,
	ColCategory,
	ColAmt,
	ColFirst,
	ColLast,
	ColIsFraud,
}

// SingleRequiredColumns must all be present in a single-entry submission.
var SingleRequiredColumns = []string{
	ColTransDateTransTime,
	ColTransNum,
	ColCCNum,
	ColMerchant,
	ColCategory,
	ColAmt,
	ColZip,
}

// NumericColumns are the columns carried as numbers. Every Ruleset checks
// them with a numeric FieldKind.
var NumericColumns = []string{
	ColAmt,
	ColLat,
	ColLong,
	ColCityPop,
	ColUnixTime,
	ColMerchLat,
	ColMerchLong,
	ColIsFraud,
}

// DefaultMaxUploadBytes caps a bulk upload accepted over HTTP.
const DefaultMaxUploadBytes = 10 << 20
