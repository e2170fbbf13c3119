package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/fraud-screen/internal/api/middleware"
	"github.com/dvloznov/fraud-screen/internal/domain"
	infraBQ "github.com/dvloznov/fraud-screen/internal/infra/bigquery"
	"github.com/dvloznov/fraud-screen/internal/inference"
	"github.com/dvloznov/fraud-screen/internal/logger"
	"github.com/dvloznov/fraud-screen/internal/pipeline"
)

// BatchProcessor runs one batch through the scoring pipeline.
type BatchProcessor interface {
	Process(ctx context.Context, in pipeline.Input, mode pipeline.Mode) (*pipeline.Result, error)
}

// ScoringHandler handles the transaction scoring endpoints.
type ScoringHandler struct {
	processor      BatchProcessor
	exporter       infraBQ.ResultExporter // nil disables export
	maxUploadBytes int64
	log            zerolog.Logger
}

// NewScoringHandler creates a new scoring handler. exporter may be nil.
func NewScoringHandler(processor BatchProcessor, exporter infraBQ.ResultExporter, maxUploadBytes int64, log zerolog.Logger) *ScoringHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = pipeline.DefaultMaxUploadBytes
	}
	return &ScoringHandler{
		processor:      processor,
		exporter:       exporter,
		maxUploadBytes: maxUploadBytes,
		log:            log,
	}
}

// scoreResponse is a pipeline result plus the outcome of the export.
type scoreResponse struct {
	*pipeline.Result
	RequestID   string `json:"request_id,omitempty"`
	Exported    bool   `json:"exported"`
	ExportError string `json:"export_error,omitempty"`
}

// multipartMemory is the part of a multipart upload kept in memory; the
// rest spills to temporary files.
const multipartMemory = 8 << 20

// ScoreBatch handles POST /api/transactions/batch
//
// The file is taken from the multipart field "file", or from the raw body
// with the name given by ?filename=.
func (h *ScoringHandler) ScoreBatch(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.maxUploadBytes {
		h.writeTooLarge(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	in, err := h.readUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeTooLarge(w)
			return
		}
		log := h.requestLogger(r.Context())
		log.Warn().Err(err).Msg("Failed to read upload")
		middleware.WriteErrorCode(w, http.StatusBadRequest, middleware.CodeInvalidUpload, "Invalid upload: "+err.Error())
		return
	}

	h.process(w, r, in, pipeline.ModeBulk, sourceLabel(in.Filename))
}

func (h *ScoringHandler) readUpload(r *http.Request) (pipeline.Input, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return pipeline.Input{}, fmt.Errorf("parsing multipart form: %w", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return pipeline.Input{}, fmt.Errorf("reading form field \"file\": %w", err)
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return pipeline.Input{}, fmt.Errorf("reading uploaded file: %w", err)
		}
		return pipeline.Input{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		}, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return pipeline.Input{}, fmt.Errorf("reading request body: %w", err)
	}
	return pipeline.Input{
		Filename:    r.URL.Query().Get("filename"),
		ContentType: r.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// ScoreSingle handles POST /api/transactions
//
// The body is one JSON object of field name to string or number.
func (h *ScoringHandler) ScoreSingle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeTooLarge(w)
			return
		}
		middleware.WriteErrorCode(w, http.StatusBadRequest, middleware.CodeInvalidJSON, "Invalid request body")
		return
	}

	fields, err := pipeline.DecodeFields(body)
	if err != nil {
		middleware.WriteErrorCode(w, http.StatusBadRequest, middleware.CodeInvalidJSON, err.Error())
		return
	}

	h.process(w, r, pipeline.Input{Fields: fields}, pipeline.ModeSingle, "manual-entry")
}

func (h *ScoringHandler) process(w http.ResponseWriter, r *http.Request, in pipeline.Input, mode pipeline.Mode, source string) {
	ctx := r.Context()
	log := h.requestLogger(ctx)
	ctx = logger.WithContext(ctx, log)

	res, err := h.processor.Process(ctx, in, mode)
	if err != nil {
		writePipelineError(w, err)
		return
	}

	resp := scoreResponse{Result: res, RequestID: middleware.RequestIDFromContext(ctx)}
	if h.exporter != nil {
		if err := h.exporter.ExportResult(ctx, res, source); err != nil {
			log.Error().Err(err).Str("batch_id", res.BatchID).Msg("Failed to export scoring run")
			resp.ExportError = err.Error()
		} else {
			resp.Exported = true
		}
	}

	middleware.WriteJSON(w, http.StatusOK, resp)
}

// requestLogger returns the request-scoped logger set by the middleware, or the
// handler's own logger.
func (h *ScoringHandler) requestLogger(ctx context.Context) zerolog.Logger {
	if _, ok := ctx.Value(logger.LoggerKey).(zerolog.Logger); ok {
		return logger.FromContext(ctx)
	}
	return h.log
}

func (h *ScoringHandler) writeTooLarge(w http.ResponseWriter) {
	middleware.WriteErrorCode(w, http.StatusRequestEntityTooLarge, middleware.CodePayloadTooLarge,
		fmt.Sprintf("File size should be less than %dMB", h.maxUploadBytes>>20))
}

// writePipelineError maps a batch failure onto a status code.
func writePipelineError(w http.ResponseWriter, err error) {
	var (
		emptyErr   *pipeline.EmptyInputError
		formatErr  *pipeline.FormatError
		schemaErr  *pipeline.SchemaError
		fieldErr   *pipeline.FieldTypeError
		rangeErr   *pipeline.RangeError
		gatewayErr *inference.GatewayError
	)

	switch {
	case errors.As(err, &emptyErr):
		middleware.WriteErrorCode(w, http.StatusBadRequest, middleware.CodeEmptyInput, emptyErr.Error())
	case errors.As(err, &formatErr):
		middleware.WriteErrorCode(w, http.StatusUnsupportedMediaType, middleware.CodeUnsupportedMedia, formatErr.Error())
	case errors.As(err, &schemaErr):
		middleware.WriteErrorCode(w, http.StatusUnprocessableEntity, middleware.CodeMissingRequired, schemaErr.Error())
	case errors.As(err, &fieldErr):
		middleware.WriteErrorCode(w, http.StatusUnprocessableEntity, middleware.CodeValidation, fieldErr.Error())
	case errors.As(err, &rangeErr):
		middleware.WriteErrorCode(w, http.StatusUnprocessableEntity, middleware.CodeOutOfRange, rangeErr.Error())
	case errors.As(err, &gatewayErr):
		middleware.WriteErrorCode(w, http.StatusBadGateway, middleware.CodeUpstream, gatewayErr.Error())
	default:
		middleware.WriteErrorCode(w, http.StatusInternalServerError, middleware.CodeInternal, "Failed to score transactions")
	}
}

// ListCategories handles GET /api/categories
func (h *ScoringHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"categories": domain.Categories,
		"count":      len(domain.Categories),
	})
}

// sourceLabel trims a user-supplied filename for export metadata.
func sourceLabel(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "upload"
	}
	return name
}
