package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/fraud-screen/internal/domain"
	infraBQ "github.com/dvloznov/fraud-screen/internal/infra/bigquery"
	"github.com/dvloznov/fraud-screen/internal/inference"
	"github.com/dvloznov/fraud-screen/internal/logger"
	"github.com/dvloznov/fraud-screen/internal/pipeline"
)

const sampleCSV = `trans_date_trans_time,cc_num,merchant,category,amt,first,last,is_fraud,lat,long,merch_lat,merch_long
2019-01-01 00:00:18,2703186189652095,"fraud_Rippin, Kub and Mann",misc_net,4.97,Jennifer,Banks,0,36.0788,-81.1781,36.011293,-82.048315
2019-01-01 14:00:44,630423337322,Best Buy,shopping_pos,1500,Stephanie,Gill,0,48.8878,-118.2105,49.159047,-118.186462
`

// mockProcessor is a mock BatchProcessor.
type mockProcessor struct {
	ProcessFunc func(ctx context.Context, in pipeline.Input, mode pipeline.Mode) (*pipeline.Result, error)
	gotInput    pipeline.Input
	gotMode     pipeline.Mode
}

func (m *mockProcessor) Process(ctx context.Context, in pipeline.Input, mode pipeline.Mode) (*pipeline.Result, error) {
	m.gotInput = in
	m.gotMode = mode
	if m.ProcessFunc != nil {
		return m.ProcessFunc(ctx, in, mode)
	}
	return &pipeline.Result{BatchID: "b-1", Mode: mode, State: pipeline.StateDone}, nil
}

func quietContext() context.Context {
	return logger.WithContext(context.Background(), zerolog.Nop())
}

func newHandler(p BatchProcessor, exporter infraBQ.ResultExporter) *ScoringHandler {
	return NewScoringHandler(p, exporter, 1<<20, zerolog.Nop())
}

func multipartBody(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func TestScoreBatch_MultipartScoresWithHeuristic(t *testing.T) {
	h := newHandler(pipeline.NewProcessor(), nil)
	body, contentType := multipartBody(t, "transactions.csv", sampleCSV)

	req := httptest.NewRequest(http.MethodPost, "/api/transactions/batch", body).WithContext(quietContext())
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.ScoreBatch(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Mode         string               `json:"mode"`
		State        string               `json:"state"`
		Received     int                  `json:"received"`
		Accepted     int                  `json:"accepted"`
		ScoredBy     string               `json:"scored_by"`
		Exported     bool                 `json:"exported"`
		Transactions []domain.Transaction `json:"transactions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "bulk", resp.Mode)
	assert.Equal(t, "done", resp.State)
	assert.Equal(t, 2, resp.Received)
	assert.Equal(t, 2, resp.Accepted)
	assert.Equal(t, "heuristic", resp.ScoredBy)
	assert.False(t, resp.Exported)
	require.Len(t, resp.Transactions, 2)
	assert.Equal(t, "fraud_Rippin, Kub and Mann", resp.Transactions[0].Merchant)
	require.NotNil(t, resp.Transactions[1].IsFraud)
	assert.Equal(t, 0, *resp.Transactions[1].IsFraud)
}

func TestScoreBatch_RawBody(t *testing.T) {
	proc := &mockProcessor{}
	h := newHandler(proc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/transactions/batch?filename=batch.csv", strings.NewReader(sampleCSV))
	req.Header.Set("Content-Type", "text/csv")
	rec := httptest.NewRecorder()

	h.ScoreBatch(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pipeline.ModeBulk, proc.gotMode)
	assert.Equal(t, "batch.csv", proc.gotInput.Filename)
	assert.Equal(t, sampleCSV, string(proc.gotInput.Data))
}

func TestScoreBatch_TooLarge(t *testing.T) {
	h := NewScoringHandler(&mockProcessor{}, nil, 16, zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/api/transactions/batch?filename=a.csv", strings.NewReader(sampleCSV))
	rec := httptest.NewRecorder()

	h.ScoreBatch(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "PAYLOAD_TOO_LARGE")
}

func TestScoreBatch_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"empty", &pipeline.EmptyInputError{}, http.StatusBadRequest, "EMPTY_INPUT"},
		{"format", &pipeline.FormatError{Filename: "a.pdf"}, http.StatusUnsupportedMediaType, "UNSUPPORTED_FORMAT"},
		{"schema", &pipeline.SchemaError{Missing: []string{"amt"}}, http.StatusUnprocessableEntity, "MISSING_REQUIRED_FIELD"},
		{"field type", &pipeline.FieldTypeError{Field: "amt", Value: "x", Reason: "not a number"}, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"range", &pipeline.RangeError{Field: "lat", Value: 91, Bound: "[-90, 90]"}, http.StatusUnprocessableEntity, "VALUE_OUT_OF_RANGE"},
		{"gateway", &inference.GatewayError{StatusCode: 503, Body: "down"}, http.StatusBadGateway, "UPSTREAM_ERROR"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := &mockProcessor{
				ProcessFunc: func(ctx context.Context, in pipeline.Input, mode pipeline.Mode) (*pipeline.Result, error) {
					return nil, &pipeline.PipelineError{BatchID: "b-1", Stage: pipeline.StateReceived, Err: tt.err}
				},
			}
			h := newHandler(proc, nil)

			req := httptest.NewRequest(http.MethodPost, "/api/transactions/batch?filename=a.csv", strings.NewReader("x"))
			rec := httptest.NewRecorder()
			h.ScoreBatch(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body["code"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestScoreSingle(t *testing.T) {
	h := newHandler(pipeline.NewProcessor(), nil)

	payload := `{
		"trans_date_trans_time": "2024-03-01T02:15",
		"trans_num": "TXN-0001-AB",
		"cc_num": 4532015112830366,
		"merchant": "Electronics Hub",
		"category": "shopping_net",
		"amt": 2450,
		"zip": "10001",
		"lat": 40.7128,
		"long": -74.006,
		"merch_lat": 42.9,
		"merch_long": -74.006,
		"first": null
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/transactions", strings.NewReader(payload)).WithContext(quietContext())
	rec := httptest.NewRecorder()

	h.ScoreSingle(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Mode         string               `json:"mode"`
		Transactions []domain.Transaction `json:"transactions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "single", resp.Mode)
	require.Len(t, resp.Transactions, 1)

	tx := resp.Transactions[0]
	assert.Equal(t, "4532015112830366", tx.CCNum)
	assert.Nil(t, tx.First)
	require.NotNil(t, tx.IsFraud)
	assert.Equal(t, 1, *tx.IsFraud)
	require.NotNil(t, tx.HeuristicScore)
	assert.Equal(t, 7, *tx.HeuristicScore)
}

func TestScoreSingle_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantStatus int
		wantCode   string
	}{
		{"not json", `{"amt":`, http.StatusBadRequest, "INVALID_JSON"},
		{"nested object", `{"amt":{"v":1}}`, http.StatusBadRequest, "INVALID_JSON"},
		{"empty object", `{}`, http.StatusBadRequest, "EMPTY_INPUT"},
		{"missing keys", `{"amt":"10"}`, http.StatusUnprocessableEntity, "MISSING_REQUIRED_FIELD"},
		{
			"short card number",
			`{"trans_date_trans_time":"2024-03-01T10:00","trans_num":"TXN-0001-AB","cc_num":"4532","merchant":"M","category":"travel","amt":10,"zip":"10001"}`,
			http.StatusUnprocessableEntity, "VALIDATION_ERROR",
		},
		{
			"latitude out of range",
			`{"trans_date_trans_time":"2024-03-01T10:00","trans_num":"TXN-0001-AB","cc_num":"4532015112830366","merchant":"M","category":"travel","amt":10,"zip":"10001","lat":123}`,
			http.StatusUnprocessableEntity, "VALUE_OUT_OF_RANGE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHandler(pipeline.NewProcessor(), nil)
			req := httptest.NewRequest(http.MethodPost, "/api/transactions", strings.NewReader(tt.payload)).WithContext(quietContext())
			rec := httptest.NewRecorder()

			h.ScoreSingle(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), tt.wantCode)
		})
	}
}

func TestScoreBatch_Export(t *testing.T) {
	var exportedSource string
	exporter := &infraBQ.MockResultExporter{
		ExportResultFunc: func(ctx context.Context, res *pipeline.Result, source string) error {
			exportedSource = source
			return nil
		},
	}
	h := newHandler(&mockProcessor{}, exporter)

	req := httptest.NewRequest(http.MethodPost, "/api/transactions/batch?filename=march.csv", strings.NewReader(sampleCSV))
	rec := httptest.NewRecorder()
	h.ScoreBatch(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "march.csv", exportedSource)
	assert.Contains(t, rec.Body.String(), `"exported":true`)
}

func TestScoreBatch_ExportFailureStillReturnsResult(t *testing.T) {
	exporter := &infraBQ.MockResultExporter{
		ExportResultFunc: func(ctx context.Context, res *pipeline.Result, source string) error {
			return errors.New("quota exceeded")
		},
	}
	h := newHandler(&mockProcessor{}, exporter)

	req := httptest.NewRequest(http.MethodPost, "/api/transactions/batch?filename=march.csv", strings.NewReader(sampleCSV))
	rec := httptest.NewRecorder()
	h.ScoreBatch(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"exported":false`)
	assert.Contains(t, rec.Body.String(), "quota exceeded")
}

func TestListCategories(t *testing.T) {
	h := newHandler(&mockProcessor{}, nil)
	rec := httptest.NewRecorder()

	h.ListCategories(rec, httptest.NewRequest(http.MethodGet, "/api/categories", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Categories []string `json:"categories"`
		Count      int      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 14, body.Count)
	assert.Contains(t, body.Categories, "grocery_pos")
	assert.Contains(t, body.Categories, "grocery_net")
}
