package records

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tracceaqua/internal/blob"
	"tracceaqua/internal/core"
	"tracceaqua/pkg/domain"
)

// ExportFormat names a rendering of the grouped batch view.
type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatCSV  ExportFormat = "csv"
	FormatHTML ExportFormat = "html"
)

// ExportStatus describes the lifecycle stage of an export request.
type ExportStatus string

const (
	ExportStatusQueued    ExportStatus = "queued"
	ExportStatusRunning   ExportStatus = "running"
	ExportStatusSucceeded ExportStatus = "succeeded"
	ExportStatusFailed    ExportStatus = "failed"
)

const exportQueueSize = 32

// ExportQuery is the serialisable form of a batch query.
type ExportQuery struct {
	Status      domain.RecordStatus `json:"status,omitempty"`
	SourceType  domain.SourceType   `json:"sourceType,omitempty"`
	Search      string              `json:"search,omitempty"`
	BatchSortBy core.BatchField     `json:"batchSortBy,omitempty"`
	BatchOrder  domain.SortOrder    `json:"batchOrder,omitempty"`
}

// BatchQuery converts to the pipeline query.
func (q ExportQuery) BatchQuery() core.BatchQuery {
	return core.BatchQuery{
		RecordQuery: domain.RecordQuery{Status: q.Status, SourceType: q.SourceType, Search: q.Search},
		SortBy:      q.BatchSortBy,
		Order:       q.BatchOrder,
	}
}

// ExportArtifact captures a stored export file.
type ExportArtifact struct {
	Key         string            `json:"key"`
	Format      ExportFormat      `json:"format"`
	ContentType string            `json:"contentType"`
	SizeBytes   int64             `json:"sizeBytes"`
	URL         string            `json:"url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// ExportRecord tracks an export request and resulting artifacts.
type ExportRecord struct {
	ID          string           `json:"id"`
	Query       ExportQuery      `json:"query"`
	Formats     []ExportFormat   `json:"formats"`
	Status      ExportStatus     `json:"status"`
	Error       string           `json:"error,omitempty"`
	Batches     int              `json:"batches"`
	Artifacts   []ExportArtifact `json:"artifacts,omitempty"`
	RequestedBy string           `json:"requestedBy,omitempty"`
	Reason      string           `json:"reason,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
	CompletedAt *time.Time       `json:"completedAt,omitempty"`
}

// ExportInput represents an enqueue request for the worker.
type ExportInput struct {
	Query       ExportQuery
	Formats     []ExportFormat
	RequestedBy string
	Reason      string
}

// ExportScheduler queues batch exports and exposes their status.
type ExportScheduler interface {
	EnqueueExport(ctx context.Context, input ExportInput) (ExportRecord, error)
	GetExport(id string) (ExportRecord, bool)
}

// BatchSource produces the grouped and sorted batch view.
type BatchSource interface {
	Batches(ctx context.Context, q core.BatchQuery) ([]domain.BatchSummary, error)
}

// AuditLogger records export audit entries.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry captures audit trail metadata for exports.
type AuditEntry struct {
	ID         string            `json:"id"`
	ExportID   string            `json:"exportId"`
	Action     string            `json:"action"`
	Actor      string            `json:"actor,omitempty"`
	Status     ExportStatus      `json:"status"`
	Query      string            `json:"query"`
	Reason     string            `json:"reason,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
}

const auditAction = "batch_export"

// ErrWorkerStopped is returned by EnqueueExport once Stop has been called.
var ErrWorkerStopped = errors.New("export worker stopped")

// Worker renders batch exports asynchronously into a blob store.
type Worker struct {
	source BatchSource
	store  blob.Store
	audit  AuditLogger
	logger *zap.Logger
	now    func() time.Time

	queue chan string
	mu    sync.RWMutex
	jobs  map[string]*ExportRecord

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker constructs an export worker. A nil logger disables logging.
func NewWorker(source BatchSource, store blob.Store, audit AuditLogger, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		source: source,
		store:  store,
		audit:  audit,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		queue:  make(chan string, exportQueueSize),
		jobs:   make(map[string]*ExportRecord),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing export requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for completion.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case id := <-w.queue:
			w.process(id)
		}
	}
}

// EnqueueExport schedules an export job and returns the queued record.
// Formats default to json and csv; duplicates are dropped.
func (w *Worker) EnqueueExport(ctx context.Context, input ExportInput) (ExportRecord, error) {
	if w.source == nil {
		return ExportRecord{}, errors.New("batch source not configured")
	}
	if w.store == nil {
		return ExportRecord{}, errors.New("export store not configured")
	}
	formats := input.Formats
	if len(formats) == 0 {
		formats = []ExportFormat{FormatJSON, FormatCSV}
	}
	uniq := make([]ExportFormat, 0, len(formats))
	seen := make(map[ExportFormat]struct{}, len(formats))
	for _, format := range formats {
		if _, err := ParseExportFormat(string(format)); err != nil {
			return ExportRecord{}, err
		}
		if _, dup := seen[format]; dup {
			continue
		}
		seen[format] = struct{}{}
		uniq = append(uniq, format)
	}

	now := w.now()
	record := ExportRecord{
		ID:          uuid.NewString(),
		Query:       input.Query,
		Formats:     uniq,
		Status:      ExportStatusQueued,
		RequestedBy: input.RequestedBy,
		Reason:      input.Reason,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	if w.ctx.Err() != nil {
		w.mu.Unlock()
		return ExportRecord{}, ErrWorkerStopped
	}
	select {
	case w.queue <- record.ID:
	default:
		w.mu.Unlock()
		return ExportRecord{}, errors.New("export queue full")
	}
	w.jobs[record.ID] = &record
	queued := record.copy()
	w.mu.Unlock()

	w.audited(ctx, queued, nil)
	return queued, nil
}

// GetExport returns a snapshot of the export record.
func (w *Worker) GetExport(id string) (ExportRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return ExportRecord{}, false
	}
	return record.copy(), true
}

func (w *Worker) process(id string) {
	record, ok := w.update(id, func(r *ExportRecord) { r.Status = ExportStatusRunning })
	if !ok {
		return
	}
	w.audited(w.ctx, record, nil)

	batches, err := w.source.Batches(w.ctx, record.Query.BatchQuery())
	if err != nil {
		w.fail(id, fmt.Sprintf("batch pipeline failed: %v", err))
		return
	}

	artifacts := make([]ExportArtifact, 0, len(record.Formats))
	for _, format := range record.Formats {
		payload, contentType, err := materialize(format, batches)
		if err != nil {
			w.fail(id, err.Error())
			return
		}
		artifact, err := w.store.Put(w.ctx, artifactKey(id, format), bytes.NewReader(payload), blob.PutOptions{
			ContentType: contentType,
			Metadata: map[string]string{
				"export":  id,
				"batches": strconv.Itoa(len(batches)),
			},
		})
		if err != nil {
			w.fail(id, fmt.Sprintf("store artifact failed: %v", err))
			return
		}
		artifacts = append(artifacts, ExportArtifact{
			Key:         artifact.Key,
			Format:      format,
			ContentType: contentType,
			SizeBytes:   artifact.Size,
			URL:         w.presign(artifact.Key),
			Metadata:    artifact.Metadata,
			CreatedAt:   artifact.LastModified,
		})
	}

	done, ok := w.update(id, func(r *ExportRecord) {
		now := w.now()
		r.Status = ExportStatusSucceeded
		r.Error = ""
		r.Batches = len(batches)
		r.Artifacts = artifacts
		r.CompletedAt = &now
	})
	if ok {
		w.audited(w.ctx, done, map[string]string{"artifacts": strconv.Itoa(len(artifacts))})
	}
}

func (w *Worker) presign(key string) string {
	url, err := w.store.PresignURL(w.ctx, key, blob.SignedURLOptions{})
	if err != nil {
		if !errors.Is(err, blob.ErrUnsupported) {
			w.logger.Warn("presign export artifact", zap.String("key", key), zap.Error(err))
		}
		return ""
	}
	return url
}

func (w *Worker) fail(id, reason string) {
	w.logger.Warn("batch export failed", zap.String("export", id), zap.String("reason", reason))
	record, ok := w.update(id, func(r *ExportRecord) {
		now := w.now()
		r.Status = ExportStatusFailed
		r.Error = reason
		r.CompletedAt = &now
	})
	if ok {
		w.audited(w.ctx, record, map[string]string{"error": reason})
	}
}

// update mutates the job under lock and returns a snapshot.
func (w *Worker) update(id string, mutate func(*ExportRecord)) (ExportRecord, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	record, ok := w.jobs[id]
	if !ok {
		return ExportRecord{}, false
	}
	mutate(record)
	record.UpdatedAt = w.now()
	return record.copy(), true
}

func (w *Worker) audited(ctx context.Context, record ExportRecord, metadata map[string]string) {
	if w.audit == nil {
		return
	}
	w.audit.Record(ctx, AuditEntry{
		ID:         uuid.NewString(),
		ExportID:   record.ID,
		Action:     auditAction,
		Actor:      record.RequestedBy,
		Status:     record.Status,
		Query:      record.Query.BatchQuery().Key(),
		Reason:     record.Reason,
		Metadata:   metadata,
		OccurredAt: record.UpdatedAt,
	})
}

// ParseExportFormat normalises a requested format.
func ParseExportFormat(raw string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	case FormatHTML:
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", raw)
	}
}

func artifactKey(id string, format ExportFormat) string {
	return fmt.Sprintf("exports/%s/batches.%s", id, format)
}

var csvHeader = []string{
	"batchId", "commonName", "scientificName", "totalQuantity", "unit",
	"averageProgress", "productCount", "stages", "status", "sourceType",
	"originLocation", "creator", "createdAt",
}

func batchRow(b domain.BatchSummary) []string {
	return []string{
		b.BatchID,
		b.Species.CommonName,
		b.Species.ScientificName,
		formatQuantity(b.TotalQuantity),
		b.Unit,
		strconv.Itoa(b.AverageProgress),
		strconv.Itoa(len(b.Products)),
		strings.Join(b.Stages, "|"),
		string(b.Status),
		string(b.SourceType),
		b.Origin.Location,
		b.Creator.Name,
		formatTime(b.CreatedAt),
	}
}

func materialize(format ExportFormat, batches []domain.BatchSummary) ([]byte, string, error) {
	switch format {
	case FormatJSON:
		payload, err := json.Marshal(map[string]any{"batches": batches})
		if err != nil {
			return nil, "", fmt.Errorf("marshal json: %w", err)
		}
		return payload, "application/json", nil
	case FormatCSV:
		buf := &bytes.Buffer{}
		writer := csv.NewWriter(buf)
		if err := writer.Write(csvHeader); err != nil {
			return nil, "", err
		}
		for _, b := range batches {
			if err := writer.Write(batchRow(b)); err != nil {
				return nil, "", err
			}
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return nil, "", fmt.Errorf("write csv: %w", err)
		}
		return buf.Bytes(), "text/csv", nil
	case FormatHTML:
		rows := make([][]string, len(batches))
		for i, b := range batches {
			rows[i] = batchRow(b)
		}
		buf := &bytes.Buffer{}
		if err := htmlExport.Execute(buf, map[string]any{"Header": csvHeader, "Rows": rows}); err != nil {
			return nil, "", fmt.Errorf("render html: %w", err)
		}
		return buf.Bytes(), "text/html; charset=utf-8", nil
	default:
		return nil, "", fmt.Errorf("unsupported export format %s", format)
	}
}

var htmlExport = template.Must(template.New("batches").Parse(`<!DOCTYPE html><html><head><meta charset="utf-8"><title>Batches</title></head><body><table>` +
	`<thead><tr>{{range .Header}}<th>{{.}}</th>{{end}}</tr></thead>` +
	`<tbody>{{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>{{end}}</tbody>` +
	`</table></body></html>`))

func formatQuantity(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func (r ExportRecord) copy() ExportRecord {
	dup := r
	dup.Formats = append([]ExportFormat(nil), r.Formats...)
	if len(r.Artifacts) > 0 {
		dup.Artifacts = make([]ExportArtifact, len(r.Artifacts))
		for i, a := range r.Artifacts {
			a.Metadata = cloneStrings(a.Metadata)
			dup.Artifacts[i] = a
		}
	}
	if r.CompletedAt != nil {
		completed := *r.CompletedAt
		dup.CompletedAt = &completed
	}
	return dup
}

func cloneStrings(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// ZapAuditLog writes audit entries to a structured logger.
type ZapAuditLog struct {
	Logger *zap.Logger
}

// Record logs the entry at info level.
func (l ZapAuditLog) Record(_ context.Context, entry AuditEntry) {
	if l.Logger == nil {
		return
	}
	l.Logger.Info("audit",
		zap.String("id", entry.ID),
		zap.String("export", entry.ExportID),
		zap.String("action", entry.Action),
		zap.String("actor", entry.Actor),
		zap.String("status", string(entry.Status)),
		zap.String("query", entry.Query),
		zap.String("reason", entry.Reason),
		zap.Any("metadata", entry.Metadata),
		zap.Time("occurredAt", entry.OccurredAt),
	)
}

// MemoryAuditLog captures audit entries in-memory for assertions.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// Record stores an audit entry.
func (l *MemoryAuditLog) Record(_ context.Context, entry AuditEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

// Entries returns a copy of recorded audit entries.
func (l *MemoryAuditLog) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
