// Package sqlite persists the record store to an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"tracceaqua/internal/infra/persistence/memory"
	"tracceaqua/pkg/domain"
)

var _ domain.RecordStore = (*Store)(nil)

const recordsBucket = "records"

// Store keeps the working set in memory and snapshots it to a single SQLite
// table as a JSON blob after every successful write.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens (or creates) the database at path and hydrates the store.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "tracceaqua.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{Store: memory.NewStore(), db: db, path: path}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	var payload []byte
	err := s.db.QueryRow(`SELECT payload FROM state WHERE bucket = ?`, recordsBucket).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	var snapshot memory.Snapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return fmt.Errorf("decode records: %w", err)
	}
	s.ImportState(snapshot)
	return nil
}

// persist snapshots the working set. Callers hold s.mu.
func (s *Store) persist(ctx context.Context) error {
	data, err := json.Marshal(s.ExportState())
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, recordsBucket, data); err != nil {
		return fmt.Errorf("upsert %s: %w", recordsBucket, err)
	}
	return nil
}

// PutRecords upserts records and snapshots the state. A failed snapshot
// restores the previous working set.
func (s *Store) PutRecords(ctx context.Context, records ...domain.ProductRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.ExportState()
	if err := s.Store.PutRecords(ctx, records...); err != nil {
		return err
	}
	return s.persistOrRestore(ctx, before)
}

// DeleteRecord removes a record and snapshots the state when it existed.
func (s *Store) DeleteRecord(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.ExportState()
	deleted, err := s.Store.DeleteRecord(ctx, id)
	if err != nil || !deleted {
		return deleted, err
	}
	if err := s.persistOrRestore(ctx, before); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) persistOrRestore(ctx context.Context, before memory.Snapshot) error {
	if err := s.persist(ctx); err != nil {
		s.ImportState(before)
		return err
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
