package pipeline

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dvloznov/fraud-screen/internal/domain"
)

// FieldKind is the type a raw column value must parse as.
type FieldKind int

const (
	KindText     FieldKind = iota
	KindNumber             // finite float
	KindInteger            // finite float with no fractional part
	KindFlag               // 0 or 1
	KindDigits             // ASCII digits only
	KindCategory           // member of domain.Categories
)

// FieldRule constrains one column. Min and Max bound numeric kinds, MinLen
// and MaxLen bound text and digit kinds (zero means unbounded).
type FieldRule struct {
	Field        string
	Kind         FieldKind
	Required     bool // value must be present and non-blank
	Min, Max     *float64
	MinExclusive bool
	MinLen       int
	MaxLen       int
}

// Ruleset is the declarative validation for one ingestion mode. Both modes
// share the same rule machinery and differ only in their tables.
type Ruleset struct {
	Mode            Mode
	RequiredColumns []string
	Rules           []FieldRule
}

func bound(v float64) *float64 { return &v }

// BulkRules validate rows of an uploaded file. Historical exports carry card
// numbers of varying length, so cc_num is only required to be digits.
var BulkRules = &Ruleset{
	Mode:            ModeBulk,
	RequiredColumns: BulkRequiredColumns,
	Rules: []FieldRule{
		{Field: ColTransNum, Kind: KindText},
		{Field: ColTransDateTransTime, Kind: KindText, Required: true},
		{Field: ColUnixTime, Kind: KindInteger},
		{Field: ColAmt, Kind: KindNumber, Required: true, Min: bound(0)},
		{Field: ColCCNum, Kind: KindDigits, Required: true},
		{Field: ColMerchant, Kind: KindText, Required: true},
		{Field: ColCategory, Kind: KindCategory, Required: true},
		{Field: ColMerchLat, Kind: KindNumber, Min: bound(-90), Max: bound(90)},
		{Field: ColMerchLong, Kind: KindNumber, Min: bound(-180), Max: bound(180)},
		{Field: ColFirst, Kind: KindText},
		{Field: ColLast, Kind: KindText},
		{Field: ColGender, Kind: KindText},
		{Field: ColDOB, Kind: KindText},
		{Field: ColJob, Kind: KindText},
		{Field: ColStreet, Kind: KindText},
		{Field: ColCity, Kind: KindText},
		{Field: ColState, Kind: KindText},
		{Field: ColZip, Kind: KindText},
		{Field: ColCityPop, Kind: KindNumber, Min: bound(0)},
		{Field: ColLat, Kind: KindNumber, Min: bound(-90), Max: bound(90)},
		{Field: ColLong, Kind: KindNumber, Min: bound(-180), Max: bound(180)},
		{Field: ColIsFraud, Kind: KindFlag},
	},
}

// SingleRules validate a manually entered record.
var SingleRules = &Ruleset{
	Mode:            ModeSingle,
	RequiredColumns: SingleRequiredColumns,
	Rules: []FieldRule{
		{Field: ColTransNum, Kind: KindText, Required: true, MinLen: 8},
		{Field: ColTransDateTransTime, Kind: KindText, Required: true},
		{Field: ColUnixTime, Kind: KindInteger},
		{Field: ColAmt, Kind: KindNumber, Required: true, Min: bound(0), MinExclusive: true},
		{Field: ColCCNum, Kind: KindDigits, Required: true, MinLen: 13, MaxLen: 19},
		{Field: ColMerchant, Kind: KindText, Required: true},
		{Field: ColCategory, Kind: KindCategory, Required: true},
		{Field: ColMerchLat, Kind: KindNumber, Min: bound(-90), Max: bound(90)},
		{Field: ColMerchLong, Kind: KindNumber, Min: bound(-180), Max: bound(180)},
		{Field: ColFirst, Kind: KindText},
		{Field: ColLast, Kind: KindText},
		{Field: ColGender, Kind: KindText},
		{Field: ColDOB, Kind: KindText},
		{Field: ColJob, Kind: KindText},
		{Field: ColStreet, Kind: KindText},
		{Field: ColCity, Kind: KindText},
		{Field: ColState, Kind: KindText},
		{Field: ColZip, Kind: KindText, Required: true, MinLen: 5},
		{Field: ColCityPop, Kind: KindNumber, Min: bound(0)},
		{Field: ColLat, Kind: KindNumber, Min: bound(-90), Max: bound(90)},
		{Field: ColLong, Kind: KindNumber, Min: bound(-180), Max: bound(180)},
		{Field: ColIsFraud, Kind: KindFlag},
	},
}

// RulesFor returns the ruleset for mode.
func RulesFor(mode Mode) (*Ruleset, error) {
	switch mode {
	case ModeBulk:
		return BulkRules, nil
	case ModeSingle:
		return SingleRules, nil
	default:
		return nil, fmt.Errorf("RulesFor: unknown mode %q", mode)
	}
}

// CheckColumns returns a SchemaError naming every required column absent
// from columns.
func (rs *Ruleset) CheckColumns(columns []string) error {
	if missing := missingColumns(rs.RequiredColumns, columns); len(missing) > 0 {
		return &SchemaError{Missing: missing}
	}
	return nil
}

// checkedValues holds the values of one row after every rule passed. Blank
// optional values are absent from both maps.
type checkedValues struct {
	text    map[string]string
	numbers map[string]float64
}

// check applies every rule to row and returns the validated values. The
// first violation is returned as a FieldTypeError or RangeError.
func (rs *Ruleset) check(row RawRow) (*checkedValues, error) {
	out := &checkedValues{
		text:    make(map[string]string, len(rs.Rules)),
		numbers: make(map[string]float64, len(rs.Rules)),
	}

	for _, rule := range rs.Rules {
		raw, _ := row.Get(rule.Field)
		value := strings.TrimSpace(raw)
		if value == "" {
			if rule.Required {
				return nil, &FieldTypeError{Field: rule.Field, Value: raw, Reason: "value is required"}
			}
			continue
		}

		switch rule.Kind {
		case KindNumber, KindInteger, KindFlag:
			n, err := rule.checkNumber(value)
			if err != nil {
				return nil, err
			}
			out.numbers[rule.Field] = n
		case KindDigits:
			if err := rule.checkDigits(value); err != nil {
				return nil, err
			}
			out.text[rule.Field] = value
		case KindCategory:
			category := domain.NormalizeCategory(value)
			if !domain.IsCategory(category) {
				return nil, &FieldTypeError{Field: rule.Field, Value: value, Reason: "unknown category"}
			}
			out.text[rule.Field] = category
		default:
			if err := rule.checkLength(value); err != nil {
				return nil, err
			}
			out.text[rule.Field] = value
		}
	}

	return out, nil
}

func (r FieldRule) checkNumber(value string) (float64, error) {
	n, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, &FieldTypeError{Field: r.Field, Value: value, Reason: "not a number"}
	}

	switch r.Kind {
	case KindInteger:
		if n != math.Trunc(n) {
			return 0, &FieldTypeError{Field: r.Field, Value: value, Reason: "not an integer"}
		}
	case KindFlag:
		if n != 0 && n != 1 {
			return 0, &FieldTypeError{Field: r.Field, Value: value, Reason: "must be 0 or 1"}
		}
	}

	if r.Min != nil {
		if r.MinExclusive && n <= *r.Min {
			return 0, &RangeError{Field: r.Field, Value: n, Bound: fmt.Sprintf("> %v", *r.Min)}
		}
		if !r.MinExclusive && n < *r.Min {
			return 0, &RangeError{Field: r.Field, Value: n, Bound: r.boundString()}
		}
	}
	if r.Max != nil && n > *r.Max {
		return 0, &RangeError{Field: r.Field, Value: n, Bound: r.boundString()}
	}
	return n, nil
}

func (r FieldRule) boundString() string {
	switch {
	case r.Min != nil && r.Max != nil:
		return fmt.Sprintf("[%v, %v]", *r.Min, *r.Max)
	case r.Min != nil:
		return fmt.Sprintf(">= %v", *r.Min)
	case r.Max != nil:
		return fmt.Sprintf("<= %v", *r.Max)
	}
	return "any"
}

func (r FieldRule) checkDigits(value string) error {
	for _, c := range value {
		if c < '0' || c > '9' {
			return &FieldTypeError{Field: r.Field, Value: value, Reason: "must contain only digits"}
		}
	}
	return r.checkLength(value)
}

func (r FieldRule) checkLength(value string) error {
	n := len([]rune(value))
	if r.MinLen > 0 && n < r.MinLen {
		return &FieldTypeError{Field: r.Field, Value: value, Reason: fmt.Sprintf("must be at least %d characters", r.MinLen)}
	}
	if r.MaxLen > 0 && n > r.MaxLen {
		return &FieldTypeError{Field: r.Field, Value: value, Reason: fmt.Sprintf("must be at most %d characters", r.MaxLen)}
	}
	return nil
}
