package pipeline

import (
	"errors"
	"testing"
)

func fullBulkRow() RawRow {
	return RawRow{Line: 2, Values: map[string]string{
		ColTransDateTransTime: "2019-01-01 00:00:18",
		ColCCNum:              "2703186189652095",
		ColMerchant:           "fraud_Rippin, Kub and Mann",
		ColCategory:           "misc_net",
		ColAmt:                "4.97",
		ColFirst:              "Jennifer",
		ColLast:               "Banks",
		ColGender:             "F",
		ColStreet:             "561 Perry Cove",
		ColCity:               "Moravian Falls",
		ColState:              "NC",
		ColZip:                "28654",
		ColLat:                "36.0788",
		ColLong:               "-81.1781",
		ColCityPop:            "3495",
		ColJob:                "Psychologist, counselling",
		ColDOB:                "1988-03-09",
		ColTransNum:           "0b242abb623afc578575680df30655b9",
		ColUnixTime:           "1325376018",
		ColMerchLat:           "36.011293",
		ColMerchLong:          "-82.048315",
		ColIsFraud:            "0",
	}}
}

func TestNormalizeRow_Bulk(t *testing.T) {
	tx, err := NormalizeRow(fullBulkRow(), BulkRules)
	if err != nil {
		t.Fatalf("NormalizeRow() error = %v", err)
	}

	if tx.Amt != 4.97 {
		t.Errorf("Amt = %v, want 4.97", tx.Amt)
	}
	if tx.Lat == nil || *tx.Lat != 36.0788 || tx.Long == nil || *tx.Long != -81.1781 {
		t.Errorf("Lat/Long = %v/%v", tx.Lat, tx.Long)
	}
	if tx.CityPop == nil || *tx.CityPop != 3495 {
		t.Errorf("CityPop = %v", tx.CityPop)
	}
	if tx.UnixTime == nil || *tx.UnixTime != 1325376018 {
		t.Errorf("UnixTime = %v", tx.UnixTime)
	}
	if tx.IsFraud == nil || *tx.IsFraud != 0 {
		t.Errorf("IsFraud = %v", tx.IsFraud)
	}
	if tx.Zip == nil || *tx.Zip != "28654" {
		t.Errorf("Zip = %v, want string 28654", tx.Zip)
	}
	if tx.Job == nil || *tx.Job != "Psychologist, counselling" {
		t.Errorf("Job = %v", tx.Job)
	}
	if tx.IsFraudInference != nil || tx.Distance != nil || tx.ClosestCluster != nil {
		t.Error("score fields must be unset after normalization")
	}
}

func TestNormalizeRow_AbsentOptionalFieldsAreNil(t *testing.T) {
	row := RawRow{Line: 2, Values: map[string]string{
		ColTransDateTransTime: "2019-01-01 00:00:18",
		ColCCNum:              "2703186189652095",
		ColMerchant:           "Kirlin",
		ColCategory:           "Misc Net",
		ColAmt:                "10",
		ColFirst:              "",
		ColLast:               "Banks",
		ColIsFraud:            "",
	}}

	tx, err := NormalizeRow(row, BulkRules)
	if err != nil {
		t.Fatalf("NormalizeRow() error = %v", err)
	}

	if tx.First != nil {
		t.Errorf("blank first should be nil, got %q", *tx.First)
	}
	if tx.IsFraud != nil {
		t.Errorf("blank is_fraud should be nil, got %d", *tx.IsFraud)
	}
	if tx.Lat != nil || tx.Long != nil || tx.MerchLat != nil || tx.Zip != nil || tx.TransNum != nil {
		t.Error("columns missing from the header must be nil")
	}
	if tx.Category != "misc_net" {
		t.Errorf("Category = %q, want normalized misc_net", tx.Category)
	}
}

func TestNormalizeRows_DropsAndReports(t *testing.T) {
	good := fullBulkRow()

	badAmt := fullBulkRow()
	badAmt.Line = 3
	badAmt.Values[ColAmt] = "ten"

	badLat := fullBulkRow()
	badLat.Line = 4
	badLat.Values[ColLat] = "-95"

	last := fullBulkRow()
	last.Line = 5
	last.Values[ColMerchant] = "Heller"

	txs, rejected := NormalizeRows([]RawRow{good, badAmt, badLat, last}, BulkRules)

	if len(txs) != 2 {
		t.Fatalf("accepted = %d, want 2", len(txs))
	}
	if txs[1].Merchant != "Heller" {
		t.Errorf("order not preserved: %q", txs[1].Merchant)
	}
	if len(rejected) != 2 || rejected[0].Line != 3 || rejected[1].Line != 4 {
		t.Fatalf("rejected = %v", rejected)
	}

	var typeErr *FieldTypeError
	if !errors.As(rejected[0], &typeErr) || typeErr.Field != ColAmt {
		t.Errorf("rejected[0] = %v, want FieldTypeError on amt", rejected[0])
	}
	var rangeErr *RangeError
	if !errors.As(rejected[1], &rangeErr) || rangeErr.Field != ColLat {
		t.Errorf("rejected[1] = %v, want RangeError on lat", rejected[1])
	}
}
