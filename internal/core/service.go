package core

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tracceaqua/pkg/domain"
)

// RecordFetcher retrieves a flat record list for a query. Implementations
// return either the complete list or an error, never a partial result.
type RecordFetcher interface {
	FetchRecords(ctx context.Context, query domain.RecordQuery) ([]domain.ProductRecord, error)
}

// StoreFetcher adapts a RecordStore to RecordFetcher for server-side grouping.
type StoreFetcher struct {
	Store domain.RecordStore
}

// FetchRecords implements RecordFetcher.
func (f StoreFetcher) FetchRecords(ctx context.Context, query domain.RecordQuery) ([]domain.ProductRecord, error) {
	if f.Store == nil {
		return nil, fmt.Errorf("record store not configured")
	}
	return f.Store.ListRecords(ctx, query)
}

// BatchQuery combines the backend record query with the local batch ordering.
type BatchQuery struct {
	domain.RecordQuery
	SortBy BatchField
	Order  domain.SortOrder
}

// Service runs the fetch, group and sort pipeline.
type Service struct {
	fetcher     RecordFetcher
	logger      *zap.Logger
	metrics     MetricsRecorder
	tracer      Tracer
	localFilter bool
	now         func() time.Time
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(rec MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer Tracer) ServiceOption {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithLocalFilter re-applies status, source type and search filters to
// fetched records, for backends that ignore the query parameters.
func WithLocalFilter(enabled bool) ServiceOption {
	return func(s *Service) { s.localFilter = enabled }
}

// WithClock overrides the time source used for latency measurement.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a batch pipeline over fetcher.
func NewService(fetcher RecordFetcher, opts ...ServiceOption) *Service {
	s := &Service{
		fetcher: fetcher,
		logger:  zap.NewNop(),
		metrics: noopMetrics{},
		tracer:  noopTracer{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Batches fetches records, groups them into batch summaries and orders the
// summaries by the requested field.
func (s *Service) Batches(ctx context.Context, q BatchQuery) (batches []domain.BatchSummary, err error) {
	const op = "batches"
	ctx, span := s.tracer.Start(ctx, op)
	started := s.now()
	defer func() {
		span.End(err)
		s.metrics.Observe(ctx, op, err == nil, s.now().Sub(started))
	}()

	if s.fetcher == nil {
		return nil, fmt.Errorf("record fetcher not configured")
	}
	records, err := s.fetcher.FetchRecords(ctx, q.RecordQuery)
	if err != nil {
		s.logger.Warn("fetch records failed", zap.String("query", q.Key()), zap.Error(err))
		return nil, fmt.Errorf("fetch records: %w", err)
	}
	if s.localFilter {
		records = q.RecordQuery.Apply(records)
	}
	batches = SortBatches(GroupBatches(records), q.SortBy, q.Order)
	s.logger.Debug("batches grouped",
		zap.String("query", q.Key()),
		zap.Int("records", len(records)),
		zap.Int("batches", len(batches)),
	)
	return batches, nil
}
