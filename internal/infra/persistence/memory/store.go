// Package memory provides an in-memory record store used for tests,
// ephemeral environments and as the working set of the durable stores.
package memory

import (
	"context"
	"fmt"
	"sync"

	"tracceaqua/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.RecordStore = (*Store)(nil)

// Snapshot is the serialisable state of the store: records in insertion order.
type Snapshot struct {
	Records []domain.ProductRecord `json:"records"`
}

// Store keeps records in insertion order. Upserts of an existing id replace
// the record in place.
type Store struct {
	mu      sync.RWMutex
	order   []string
	records map[string]domain.ProductRecord
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{records: make(map[string]domain.ProductRecord)}
}

// ListRecords implements domain.RecordStore.
func (s *Store) ListRecords(_ context.Context, query domain.RecordQuery) ([]domain.ProductRecord, error) {
	s.mu.RLock()
	all := s.listLocked()
	s.mu.RUnlock()
	return query.Apply(all), nil
}

// GetRecord implements domain.RecordStore.
func (s *Store) GetRecord(_ context.Context, id string) (domain.ProductRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return domain.ProductRecord{}, domain.ErrNotFound{ID: id}
	}
	return cloneRecord(rec), nil
}

// PutRecords implements domain.RecordStore. The batch is validated before any
// record is written.
func (s *Store) PutRecords(_ context.Context, records ...domain.ProductRecord) error {
	for i, rec := range records {
		if rec.ID == "" {
			return fmt.Errorf("record %d: id required", i)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		if _, exists := s.records[rec.ID]; !exists {
			s.order = append(s.order, rec.ID)
		}
		s.records[rec.ID] = cloneRecord(rec)
	}
	return nil
}

// DeleteRecord implements domain.RecordStore.
func (s *Store) DeleteRecord(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return false, nil
	}
	delete(s.records, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// ExportState returns a deep copy of the current state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Records: s.listLocked()}
}

// ImportState replaces the store state with the snapshot. Duplicate ids keep
// the last occurrence at the first position.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = s.order[:0]
	s.records = make(map[string]domain.ProductRecord, len(snapshot.Records))
	for _, rec := range snapshot.Records {
		if rec.ID == "" {
			continue
		}
		if _, exists := s.records[rec.ID]; !exists {
			s.order = append(s.order, rec.ID)
		}
		s.records[rec.ID] = cloneRecord(rec)
	}
}

func (s *Store) listLocked() []domain.ProductRecord {
	out := make([]domain.ProductRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, cloneRecord(s.records[id]))
	}
	return out
}

func cloneRecord(rec domain.ProductRecord) domain.ProductRecord {
	if rec.Product != nil {
		product := *rec.Product
		if product.Species != nil {
			species := *product.Species
			product.Species = &species
		}
		rec.Product = &product
	}
	if rec.Stages != nil {
		rec.Stages = append([]domain.Stage(nil), rec.Stages...)
	}
	return rec
}
