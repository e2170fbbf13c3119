package pipeline

import "testing"

func TestDecodeFields(t *testing.T) {
	fields, err := DecodeFields([]byte(`{"amt": 12.50, "cc_num": 4111111111111111, "zip": "02134", "first": null, "is_fraud": false}`))
	if err != nil {
		t.Fatalf("DecodeFields() error = %v", err)
	}

	want := map[string]string{
		"amt":      "12.50",
		"cc_num":   "4111111111111111",
		"zip":      "02134",
		"first":    "",
		"is_fraud": "0",
	}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("fields[%q] = %q, want %q", k, fields[k], v)
		}
	}
}

func TestDecodeFields_Empty(t *testing.T) {
	fields, err := DecodeFields([]byte("  \n"))
	if err != nil {
		t.Fatalf("DecodeFields() error = %v", err)
	}
	if len(fields) != 0 {
		t.Errorf("expected no fields, got %v", fields)
	}
}

func TestDecodeFields_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `amt=12`},
		{"array", `[1, 2]`},
		{"nested object", `{"amt": {"value": 1}}`},
		{"array value", `{"amt": [1]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeFields([]byte(tt.body)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
