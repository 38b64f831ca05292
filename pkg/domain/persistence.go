package domain

import (
	"context"
	"fmt"
)

// RecordStore is a minimal abstraction over durable record backends used by
// the records API.
type RecordStore interface {
	// ListRecords returns records in insertion order after applying the query.
	ListRecords(ctx context.Context, query RecordQuery) ([]ProductRecord, error)
	GetRecord(ctx context.Context, id string) (ProductRecord, error)
	// PutRecords upserts records; existing ids keep their original position.
	PutRecords(ctx context.Context, records ...ProductRecord) error
	// DeleteRecord reports whether the record existed.
	DeleteRecord(ctx context.Context, id string) (bool, error)
}

// ErrNotFound is returned when a record lookup misses.
type ErrNotFound struct {
	ID string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("record %s not found", e.ID)
}
