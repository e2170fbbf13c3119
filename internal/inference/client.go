package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Predictor invokes the inference service once for a whole batch. There is
// no retry: a failed call fails the batch.
type Predictor interface {
	Predict(ctx context.Context, req Request) ([]Prediction, error)
}

// GatewayError is returned for every failed call to the inference service:
// network failure, non-2xx status or a malformed response.
type GatewayError struct {
	StatusCode int    // 0 when no response was received
	Body       string // first 512 bytes of a non-2xx response
	Err        error
}

func (e *GatewayError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("inference gateway: HTTP %d: %s", e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("inference gateway: %v", e.Err)
	}
	return "inference gateway: unknown error"
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

const maxErrorBody = 512

// DefaultTimeout bounds one inference call when WithTimeout is not given.
const DefaultTimeout = 30 * time.Second

// HTTPPredictor posts requests as JSON to a single endpoint with optional
// Bearer auth.
type HTTPPredictor struct {
	endpoint   string
	token      string
	httpClient *http.Client
	schema     *jsonschema.Schema
}

// Option configures HTTPPredictor behavior.
type Option func(*HTTPPredictor)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *HTTPPredictor) {
		p.httpClient.Timeout = d
	}
}

// WithToken sets the Bearer token sent on every request.
func WithToken(token string) Option {
	return func(p *HTTPPredictor) {
		p.token = token
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *HTTPPredictor) {
		p.httpClient = c
	}
}

// NewHTTPPredictor creates a predictor for endpoint with DefaultTimeout.
func NewHTTPPredictor(endpoint string, opts ...Option) (*HTTPPredictor, error) {
	schema, err := compileResponseSchema()
	if err != nil {
		return nil, fmt.Errorf("NewHTTPPredictor: %w", err)
	}

	p := &HTTPPredictor{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		schema: schema,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Predict posts req and returns the predictions in response order.
func (p *HTTPPredictor) Predict(ctx context.Context, req Request) ([]Prediction, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, &GatewayError{Err: fmt.Errorf("encoding request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &GatewayError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if p.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &GatewayError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &GatewayError{Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyStr := string(body)
		if len(bodyStr) > maxErrorBody {
			bodyStr = bodyStr[:maxErrorBody]
		}
		return nil, &GatewayError{StatusCode: resp.StatusCode, Body: bodyStr}
	}

	preds, err := parsePredictions(p.schema, body)
	if err != nil {
		return nil, &GatewayError{Err: err}
	}
	return preds, nil
}

// MockPredictor is a mock implementation of Predictor for testing.
type MockPredictor struct {
	PredictFunc func(ctx context.Context, req Request) ([]Prediction, error)
}

func (m *MockPredictor) Predict(ctx context.Context, req Request) ([]Prediction, error) {
	if m.PredictFunc != nil {
		return m.PredictFunc(ctx, req)
	}
	return nil, nil
}
