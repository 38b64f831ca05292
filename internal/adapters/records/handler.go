// Package records serves the records API consumed by the record fetcher,
// together with the server-side batch view and its exports.
package records

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"tracceaqua/internal/core"
	"tracceaqua/pkg/domain"
)

const (
	recordsPath   = "/api/v1/records"
	batchesPath   = "/api/v1/batches"
	exportsPath   = "/api/v1/batches/exports"
	maxUploadSize = 10 << 20
)

// Handler provides HTTP access to records, batches and batch exports.
type Handler struct {
	Store   domain.RecordStore
	Batches BatchSource
	Exports ExportScheduler
	Logger  *zap.Logger
}

// NewHandler constructs a handler that groups batches straight from store.
func NewHandler(store domain.RecordStore) *Handler {
	return &Handler{
		Store:   store,
		Batches: core.NewService(core.StoreFetcher{Store: store}),
		Logger:  zap.NewNop(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeError(w, http.StatusInternalServerError, "record store not configured")
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == recordsPath:
		switch r.Method {
		case http.MethodGet:
			h.handleList(w, r)
		case http.MethodPost:
			h.handleUpsert(w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	case strings.HasPrefix(path, recordsPath+"/"):
		h.handleRecord(w, r, strings.TrimPrefix(path, recordsPath+"/"))
	case path == batchesPath:
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleBatches(w, r)
	case strings.HasPrefix(path, exportsPath):
		if h.Exports == nil {
			http.NotFound(w, r)
			return
		}
		h.handleExports(w, r, path)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	query, err := parseRecordQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, err := h.Store.ListRecords(r.Context(), query)
	if err != nil {
		h.logger().Error("list records", zap.String("query", query.Key()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list records failed")
		return
	}
	if records == nil {
		records = []domain.ProductRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) handleUpsert(w http.ResponseWriter, r *http.Request) {
	var records []domain.ProductRecord
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadSize)).Decode(&records); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "records payload required")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid records payload")
		return
	}
	for i, rec := range records {
		if strings.TrimSpace(rec.ID) == "" {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("record %d: id required", i))
			return
		}
	}
	if err := h.Store.PutRecords(r.Context(), records...); err != nil {
		h.logger().Error("put records", zap.Int("records", len(records)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "store records failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"upserted": len(records)})
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request, id string) {
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "record endpoint not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		record, err := h.Store.GetRecord(r.Context(), id)
		var notFound domain.ErrNotFound
		switch {
		case errors.As(err, &notFound):
			writeError(w, http.StatusNotFound, notFound.Error())
		case err != nil:
			h.logger().Error("get record", zap.String("id", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "get record failed")
		default:
			writeJSON(w, http.StatusOK, map[string]any{"record": record})
		}
	case http.MethodDelete:
		deleted, err := h.Store.DeleteRecord(r.Context(), id)
		switch {
		case err != nil:
			h.logger().Error("delete record", zap.String("id", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "delete record failed")
		case !deleted:
			writeError(w, http.StatusNotFound, domain.ErrNotFound{ID: id}.Error())
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handleBatches(w http.ResponseWriter, r *http.Request) {
	if h.Batches == nil {
		writeError(w, http.StatusInternalServerError, "batch service not configured")
		return
	}
	query, err := parseBatchQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	batches, err := h.Batches.Batches(r.Context(), query)
	if err != nil {
		h.logger().Error("group batches", zap.String("query", query.Key()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "group batches failed")
		return
	}
	if batches == nil {
		batches = []domain.BatchSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"batches": batches, "count": len(batches)})
}

type exportRequest struct {
	Query       ExportQuery `json:"query"`
	Formats     []string    `json:"formats"`
	RequestedBy string      `json:"requestedBy"`
	Reason      string      `json:"reason"`
}

func (h *Handler) handleExports(w http.ResponseWriter, r *http.Request, path string) {
	if path == exportsPath {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleExportCreate(w, r)
		return
	}
	if !strings.HasPrefix(path, exportsPath+"/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(path, exportsPath+"/")
	record, ok := h.Exports.GetExport(id)
	if !ok {
		writeError(w, http.StatusNotFound, "export not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"export": record})
}

func (h *Handler) handleExportCreate(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadSize)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid export request payload")
		return
	}
	if err := validateExportQuery(req.Query); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	formats := make([]ExportFormat, 0, len(req.Formats))
	for _, raw := range req.Formats {
		format, err := ParseExportFormat(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		formats = append(formats, format)
	}
	record, err := h.Exports.EnqueueExport(r.Context(), ExportInput{
		Query:       req.Query,
		Formats:     formats,
		RequestedBy: strings.TrimSpace(req.RequestedBy),
		Reason:      req.Reason,
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"export": record})
}

var (
	knownStatuses    = []domain.RecordStatus{domain.StatusDraft, domain.StatusActive, domain.StatusCompleted, domain.StatusRejected}
	knownSourceTypes = []domain.SourceType{domain.SourceFarmed, domain.SourceWildCapture}
	knownRecordSorts = []string{
		domain.RecordSortCreatedAt, domain.RecordSortID, domain.RecordSortStatus,
		domain.RecordSortSourceType, domain.RecordSortQuantity, domain.RecordSortBatchID,
	}
)

func parseRecordQuery(values url.Values) (domain.RecordQuery, error) {
	query := domain.RecordQuery{
		Status:     domain.RecordStatus(strings.ToUpper(strings.TrimSpace(values.Get("status")))),
		SourceType: domain.SourceType(strings.ToUpper(strings.TrimSpace(values.Get("sourceType")))),
		Search:     strings.TrimSpace(values.Get("search")),
		SortBy:     strings.TrimSpace(values.Get("sortBy")),
	}
	if query.Status != "" && !contains(knownStatuses, query.Status) {
		return domain.RecordQuery{}, fmt.Errorf("unsupported status %q", query.Status)
	}
	if query.SourceType != "" && !contains(knownSourceTypes, query.SourceType) {
		return domain.RecordQuery{}, fmt.Errorf("unsupported sourceType %q", query.SourceType)
	}
	if query.SortBy != "" && !contains(knownRecordSorts, query.SortBy) {
		return domain.RecordQuery{}, fmt.Errorf("unsupported sortBy %q", query.SortBy)
	}
	order, err := parseOrder(values.Get("sortOrder"))
	if err != nil {
		return domain.RecordQuery{}, err
	}
	query.SortOrder = order
	return query, nil
}

func parseBatchQuery(values url.Values) (core.BatchQuery, error) {
	recordQuery, err := parseRecordQuery(values)
	if err != nil {
		return core.BatchQuery{}, err
	}
	q := core.BatchQuery{RecordQuery: recordQuery}
	if raw := strings.TrimSpace(values.Get("batchSortBy")); raw != "" {
		field, ok := core.ParseBatchField(raw)
		if !ok {
			return core.BatchQuery{}, fmt.Errorf("unsupported batchSortBy %q", raw)
		}
		q.SortBy = field
	}
	if q.Order, err = parseOrder(values.Get("batchOrder")); err != nil {
		return core.BatchQuery{}, err
	}
	return q, nil
}

func validateExportQuery(q ExportQuery) error {
	if q.Status != "" && !contains(knownStatuses, q.Status) {
		return fmt.Errorf("unsupported status %q", q.Status)
	}
	if q.SourceType != "" && !contains(knownSourceTypes, q.SourceType) {
		return fmt.Errorf("unsupported sourceType %q", q.SourceType)
	}
	if q.BatchSortBy != "" {
		if _, ok := core.ParseBatchField(string(q.BatchSortBy)); !ok {
			return fmt.Errorf("unsupported batchSortBy %q", q.BatchSortBy)
		}
	}
	if q.BatchOrder != "" && q.BatchOrder != domain.SortAsc && q.BatchOrder != domain.SortDesc {
		return fmt.Errorf("unsupported batchOrder %q", q.BatchOrder)
	}
	return nil
}

func parseOrder(raw string) (domain.SortOrder, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return "", nil
	case string(domain.SortAsc):
		return domain.SortAsc, nil
	case string(domain.SortDesc):
		return domain.SortDesc, nil
	default:
		return "", fmt.Errorf("unsupported order %q", raw)
	}
}

func contains[T comparable](values []T, v T) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
