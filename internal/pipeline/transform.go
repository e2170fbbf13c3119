package pipeline

import (
	"github.com/dvloznov/fraud-screen/internal/domain"
)

// NormalizeRow validates one raw row against rs and builds the canonical
// record. Numeric fields are parsed, the category is normalized, and blank
// optional fields become nil.
func NormalizeRow(row RawRow, rs *Ruleset) (domain.Transaction, error) {
	v, err := rs.check(row)
	if err != nil {
		return domain.Transaction{}, err
	}

	return domain.Transaction{
		TransNum:           v.optionalString(ColTransNum),
		TransDateTransTime: v.text[ColTransDateTransTime],
		UnixTime:           v.optionalInt64(ColUnixTime),

		Amt:   v.numbers[ColAmt],
		CCNum: v.text[ColCCNum],

		Merchant:  v.text[ColMerchant],
		Category:  v.text[ColCategory],
		MerchLat:  v.optionalFloat64(ColMerchLat),
		MerchLong: v.optionalFloat64(ColMerchLong),

		First:   v.optionalString(ColFirst),
		Last:    v.optionalString(ColLast),
		Gender:  v.optionalString(ColGender),
		DOB:     v.optionalString(ColDOB),
		Job:     v.optionalString(ColJob),
		Street:  v.optionalString(ColStreet),
		City:    v.optionalString(ColCity),
		State:   v.optionalString(ColState),
		Zip:     v.optionalString(ColZip),
		CityPop: v.optionalFloat64(ColCityPop),
		Lat:     v.optionalFloat64(ColLat),
		Long:    v.optionalFloat64(ColLong),

		IsFraud: v.optionalInt(ColIsFraud),
	}, nil
}

// NormalizeRows normalizes every row of a bulk batch. A row that fails a
// rule is excluded from the result and reported with its line number; the
// remaining rows keep their input order.
func NormalizeRows(rows []RawRow, rs *Ruleset) ([]domain.Transaction, []*RowError) {
	txs := make([]domain.Transaction, 0, len(rows))
	var rejected []*RowError

	for _, row := range rows {
		tx, err := NormalizeRow(row, rs)
		if err != nil {
			rejected = append(rejected, &RowError{Line: row.Line, Err: err})
			continue
		}
		txs = append(txs, tx)
	}

	return txs, rejected
}

// fieldNames returns the keys of a single-entry submission.
func fieldNames(fields map[string]string) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	return keys
}

func (v *checkedValues) optionalString(key string) *string {
	s, ok := v.text[key]
	if !ok {
		return nil
	}
	return &s
}

func (v *checkedValues) optionalFloat64(key string) *float64 {
	n, ok := v.numbers[key]
	if !ok {
		return nil
	}
	return &n
}

func (v *checkedValues) optionalInt64(key string) *int64 {
	n, ok := v.numbers[key]
	if !ok {
		return nil
	}
	i := int64(n)
	return &i
}

func (v *checkedValues) optionalInt(key string) *int {
	n, ok := v.numbers[key]
	if !ok {
		return nil
	}
	i := int(n)
	return &i
}
