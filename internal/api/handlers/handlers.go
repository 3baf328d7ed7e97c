package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/dvloznov/expense-importer/internal/api/middleware"
	"github.com/dvloznov/expense-importer/internal/domain"
	"github.com/dvloznov/expense-importer/internal/pipeline"
	"github.com/dvloznov/expense-importer/internal/storage"
	"github.com/rs/zerolog"
)

// Limits of GET /api/expenses/{year}.
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// Version is reported by GET /.
const Version = "1.0.0"

// multipartOverhead is the room left for form fields and boundaries on top
// of the file size limit.
const multipartOverhead = 1 << 20

// Importer runs the upload pipelines.
type Importer interface {
	Import(ctx context.Context, u pipeline.Upload) (domain.ImportResult, error)
	Preview(ctx context.Context, u pipeline.Upload) (pipeline.PreviewResult, error)
}

// UploadLister lists archived uploads.
type UploadLister interface {
	ListUploads(ctx context.Context, year string) ([]string, error)
}

// writeReadError maps a failed Store read to 503 when the backend is
// unavailable and 500 otherwise.
func writeReadError(w http.ResponseWriter, log zerolog.Logger, err error, message string) {
	if errors.Is(err, storage.ErrUnavailable) {
		log.Error().Err(err).Msg("storage backend unavailable")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Storage backend unavailable")
		return
	}
	log.Error().Err(err).Msg(message)
	middleware.WriteError(w, http.StatusInternalServerError, message)
}

// SystemHandler serves the root and health endpoints.
type SystemHandler struct{}

// Root handles GET /
func (SystemHandler) Root(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "AI Expense Import System API",
		"status":  "running",
		"version": Version,
	})
}

// Health handles GET /health
func (SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// UploadHandler handles spreadsheet upload and preview.
type UploadHandler struct {
	importer       Importer
	maxUploadBytes int64
	log            zerolog.Logger
}

// NewUploadHandler creates a new upload handler.
func NewUploadHandler(importer Importer, maxUploadBytes int64, log zerolog.Logger) *UploadHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = pipeline.DefaultMaxUploadBytes
	}
	return &UploadHandler{importer: importer, maxUploadBytes: maxUploadBytes, log: log}
}

// readUpload pulls the multipart "file" and "year" fields. On failure it
// writes the response and returns false.
func (h *UploadHandler) readUpload(w http.ResponseWriter, r *http.Request) (pipeline.Upload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxUploadBytes + multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "File too large")
			return pipeline.Upload{}, false
		}
		middleware.WriteError(w, http.StatusBadRequest, "Invalid multipart form")
		return pipeline.Upload{}, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "file is required")
		return pipeline.Upload{}, false
	}
	defer file.Close()

	year := r.FormValue("year")
	if year == "" {
		middleware.WriteError(w, http.StatusBadRequest, "year is required")
		return pipeline.Upload{}, false
	}

	// one byte past the limit is enough for validation to reject it
	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Failed to read file")
		return pipeline.Upload{}, false
	}

	return pipeline.Upload{Filename: header.Filename, Year: year, Data: data}, true
}

func (h *UploadHandler) writePipelineError(w http.ResponseWriter, err error, message string) {
	var inputErr *pipeline.InputError
	if errors.As(err, &inputErr) {
		h.log.Warn().Err(err).Msg("rejected upload")
		middleware.WriteError(w, http.StatusBadRequest, inputErr.Error())
		return
	}
	h.log.Error().Err(err).Msg(message)
	middleware.WriteError(w, http.StatusInternalServerError, message)
}

// Upload handles POST /api/upload
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	u, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	result, err := h.importer.Import(r.Context(), u)
	if err != nil {
		h.writePipelineError(w, err, "Failed to import expenses")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, result)
}

// Preview handles POST /api/preview
func (h *UploadHandler) Preview(w http.ResponseWriter, r *http.Request) {
	u, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	result, err := h.importer.Preview(r.Context(), u)
	if err != nil {
		h.writePipelineError(w, err, "Failed to preview expenses")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, result)
}

// ExpensesHandler handles the expense read, search and delete endpoints.
type ExpensesHandler struct {
	store storage.Store
	log   zerolog.Logger
}

// NewExpensesHandler creates a new expenses handler.
func NewExpensesHandler(store storage.Store, log zerolog.Logger) *ExpensesHandler {
	return &ExpensesHandler{store: store, log: log}
}

// ListYears handles GET /api/expenses
func (h *ExpensesHandler) ListYears(w http.ResponseWriter, r *http.Request) {
	years, err := h.store.GetAllYears(r.Context())
	if err != nil {
		writeReadError(w, h.log, err, "Failed to retrieve years")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": domain.StatusOK,
		"years":  years,
		"count":  len(years),
	})
}

// GetByYear handles GET /api/expenses/{year}
func (h *ExpensesHandler) GetByYear(w http.ResponseWriter, r *http.Request) {
	year := r.PathValue("year")

	limit := DefaultListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > MaxListLimit {
			middleware.WriteError(w, http.StatusBadRequest, "limit must be an integer between 1 and 1000")
			return
		}
		limit = n
	}

	expenses, err := h.store.GetExpensesByYear(r.Context(), year, limit)
	if err != nil {
		writeReadError(w, h.log, err, "Failed to retrieve expenses")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":   domain.StatusOK,
		"year":     year,
		"count":    len(expenses),
		"expenses": expenses,
	})
}

// DeleteYear handles DELETE /api/expenses/{year}
func (h *ExpensesHandler) DeleteYear(w http.ResponseWriter, r *http.Request) {
	year := r.PathValue("year")

	result := h.store.DeleteExpensesByYear(r.Context(), year)
	if result.Status == domain.StatusError {
		h.log.Error().Str("year", year).Str("message", result.Message).Msg("Failed to delete expenses")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to delete expenses")
		return
	}

	h.log.Info().Str("year", year).Int("deleted", result.Deleted).Msg("deleted year")
	middleware.WriteJSON(w, http.StatusOK, result)
}

type statsResponse struct {
	Status string `json:"status"`
	domain.YearStats
}

// Stats handles GET /api/stats/{year}
func (h *ExpensesHandler) Stats(w http.ResponseWriter, r *http.Request) {
	year := r.PathValue("year")

	stats, err := h.store.GetYearStatistics(r.Context(), year)
	if err != nil {
		writeReadError(w, h.log, err, "Failed to calculate statistics")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, statsResponse{Status: domain.StatusOK, YearStats: stats})
}

// Search handles GET /api/search
func (h *ExpensesHandler) Search(w http.ResponseWriter, r *http.Request) {
	f, err := ParseSearchFilter(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	expenses, err := h.store.SearchExpenses(r.Context(), f)
	if err != nil {
		writeReadError(w, h.log, err, "Failed to search expenses")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":   domain.StatusOK,
		"count":    len(expenses),
		"expenses": expenses,
	})
}

// ParseSearchFilter reads the search criteria from the query string.
func ParseSearchFilter(r *http.Request) (domain.SearchFilter, error) {
	q := r.URL.Query()
	f := domain.SearchFilter{
		Year:     q.Get("year"),
		Category: q.Get("category"),
		DateFrom: q.Get("date_from"),
		DateTo:   q.Get("date_to"),
	}

	var err error
	if f.MinAmount, err = optionalAmount(q.Get("min_amount")); err != nil {
		return f, errors.New("min_amount must be a number")
	}
	if f.MaxAmount, err = optionalAmount(q.Get("max_amount")); err != nil {
		return f, errors.New("max_amount must be a number")
	}
	return f, nil
}

func optionalAmount(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// UploadsHandler lists archived spreadsheets.
type UploadsHandler struct {
	lister UploadLister
	log    zerolog.Logger
}

// NewUploadsHandler creates a new uploads handler. lister may be nil when
// no archive bucket is configured.
func NewUploadsHandler(lister UploadLister, log zerolog.Logger) *UploadsHandler {
	return &UploadsHandler{lister: lister, log: log}
}

// ListUploads handles GET /api/uploads/{year}
func (h *UploadsHandler) ListUploads(w http.ResponseWriter, r *http.Request) {
	year := r.PathValue("year")

	files := []string{}
	if h.lister != nil {
		var err error
		files, err = h.lister.ListUploads(r.Context(), year)
		if err != nil {
			h.log.Error().Err(err).Str("year", year).Msg("Failed to list uploads")
			middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to list uploads")
			return
		}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": domain.StatusOK,
		"year":   year,
		"files":  files,
		"count":  len(files),
	})
}
