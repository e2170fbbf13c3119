// Package inference talks to the external fraud inference service and
// merges its verdicts back onto canonical records.
package inference

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/dvloznov/fraud-screen/internal/domain"
)

// Instance is the reduced feature projection sent for one record. Card
// number and zip are sent as JSON numbers; a zip that is not all digits is
// sent as null.
type Instance struct {
	TransDateTransTime string       `json:"trans_date_trans_time"`
	CCNum              json.Number  `json:"cc_num"`
	Merchant           string       `json:"merchant"`
	Category           string       `json:"category"`
	Amt                float64      `json:"amt"`
	Zip                *json.Number `json:"zip"`
	TransNum           *string      `json:"trans_num"`
}

// Request is the batch body posted to the service.
type Request struct {
	Instances []Instance `json:"instances"`
}

// Prediction is the service's verdict for one instance.
type Prediction struct {
	ClosestCluster    int     `json:"closest_cluster"`
	DistanceToCluster float64 `json:"distance_to_cluster"`
}

// BuildRequest projects txs into a request, preserving order.
func BuildRequest(txs []domain.Transaction) Request {
	req := Request{Instances: make([]Instance, len(txs))}
	for i, tx := range txs {
		req.Instances[i] = Instance{
			TransDateTransTime: tx.TransDateTransTime,
			CCNum:              cardNumber(tx.CCNum),
			Merchant:           tx.Merchant,
			Category:           tx.Category,
			Amt:                tx.Amt,
			Zip:                numericZip(tx.Zip),
			TransNum:           tx.TransNum,
		}
	}
	return req
}

// digitsNumber renders an all-digit string as a JSON number. Leading zeros
// are dropped since JSON numbers cannot carry them.
func digitsNumber(s string) (json.Number, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return "", false
		}
	}
	n := strings.TrimLeft(s, "0")
	if n == "" {
		n = "0"
	}
	return json.Number(n), true
}

func cardNumber(cc string) json.Number {
	n, ok := digitsNumber(cc)
	if !ok {
		return "0"
	}
	return n
}

func numericZip(zip *string) *json.Number {
	if zip == nil {
		return nil
	}
	n, ok := digitsNumber(*zip)
	if !ok {
		return nil
	}
	return &n
}

// responseSchema accepts the nested {"predictions": {"predictions": [...]}}
// envelope the service returns and the flat {"predictions": [...]} form.
const responseSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$defs": {
    "prediction": {
      "type": "object",
      "required": ["closest_cluster", "distance_to_cluster"],
      "properties": {
        "closest_cluster": {"type": "integer", "minimum": -2147483648, "maximum": 2147483647},
        "distance_to_cluster": {"type": "number"}
      }
    },
    "list": {"type": "array", "items": {"$ref": "#/$defs/prediction"}}
  },
  "type": "object",
  "required": ["predictions"],
  "properties": {
    "predictions": {
      "oneOf": [
        {"$ref": "#/$defs/list"},
        {
          "type": "object",
          "required": ["predictions"],
          "properties": {"predictions": {"$ref": "#/$defs/list"}}
        }
      ]
    }
  }
}`

const responseSchemaURL = "https://fraud-screen.schemas.local/inference/response.schema.json"

// compileResponseSchema compiles responseSchema.
func compileResponseSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(responseSchemaURL, strings.NewReader(responseSchema)); err != nil {
		return nil, fmt.Errorf("response schema load failed: %w", err)
	}
	compiled, err := c.Compile(responseSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("response schema compile failed: %w", err)
	}
	return compiled, nil
}

// parsePredictions validates body against schema and extracts the
// predictions list from either envelope.
func parsePredictions(schema *jsonschema.Schema, body []byte) ([]Prediction, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("response schema validation failed: %w", err)
	}

	var envelope struct {
		Predictions json.RawMessage `json:"predictions"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	raw := envelope.Predictions
	if trimmed := strings.TrimSpace(string(raw)); strings.HasPrefix(trimmed, "{") {
		var nested struct {
			Predictions json.RawMessage `json:"predictions"`
		}
		if err := json.Unmarshal(raw, &nested); err != nil {
			return nil, fmt.Errorf("decoding nested predictions: %w", err)
		}
		raw = nested.Predictions
	}

	// closest_cluster may arrive as 3.0; the schema has already checked it
	// is integral.
	var wire []struct {
		ClosestCluster    float64 `json:"closest_cluster"`
		DistanceToCluster float64 `json:"distance_to_cluster"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decoding predictions: %w", err)
	}

	preds := make([]Prediction, len(wire))
	for i, w := range wire {
		if w.ClosestCluster < math.MinInt32 || w.ClosestCluster > math.MaxInt32 {
			return nil, fmt.Errorf("prediction %d: closest_cluster %v out of range", i, w.ClosestCluster)
		}
		preds[i] = Prediction{ClosestCluster: int(w.ClosestCluster), DistanceToCluster: w.DistanceToCluster}
	}
	return preds, nil
}
