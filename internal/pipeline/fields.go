package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodeFields turns a single-entry JSON object into raw string values. Numbers keep
// their literal text and null becomes blank.
func DecodeFields(body []byte) (map[string]string, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return map[string]string{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}

	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
			fields[k] = ""
		case string:
			fields[k] = val
		case json.Number:
			fields[k] = val.String()
		case bool:
			if val {
				fields[k] = "1"
			} else {
				fields[k] = "0"
			}
		default:
			return nil, fmt.Errorf("field %q must be a string or number", k)
		}
	}
	return fields, nil
}

