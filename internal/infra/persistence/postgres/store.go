// Package postgres provides a Postgres-backed record store that mirrors the
// in-memory semantics and rewrites the record table after every write.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"tracceaqua/internal/infra/persistence/memory"
	"tracceaqua/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.RecordStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/tracceaqua?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists records to Postgres while serving reads from memory.
type Store struct {
	*memory.Store
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens a Postgres-backed store using dsn (falls back to defaultDSN),
// ensures the record table exists and hydrates the in-memory working set.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureRecordTable(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	snapshot, err := loadSnapshot(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	mem := memory.NewStore()
	mem.ImportState(snapshot)
	return &Store{Store: mem, db: db}, nil
}

// PutRecords upserts records then rewrites the record table. A failed rewrite
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

// DeleteRecord removes a record and rewrites the table when it existed.
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

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

func ensureRecordTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS product_records (
		id TEXT PRIMARY KEY,
		position BIGINT NOT NULL,
		payload JSONB NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure record table: %w", err)
	}
	return nil
}

type storedRow struct {
	position int64
	record   domain.ProductRecord
}

func loadSnapshot(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, position, payload FROM product_records ORDER BY position`)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stored []storedRow
	for rows.Next() {
		var (
			id      string
			row     storedRow
			payload []byte
		)
		if err := rows.Scan(&id, &row.position, &payload); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan record: %w", err)
		}
		if err := json.Unmarshal(payload, &row.record); err != nil {
			return memory.Snapshot{}, fmt.Errorf("decode record %s: %w", id, err)
		}
		row.record.ID = id
		stored = append(stored, row)
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate records: %w", err)
	}
	sort.SliceStable(stored, func(i, j int) bool { return stored[i].position < stored[j].position })
	snapshot := memory.Snapshot{Records: make([]domain.ProductRecord, 0, len(stored))}
	for _, row := range stored {
		snapshot.Records = append(snapshot.Records, row.record)
	}
	return snapshot, nil
}

// persist rewrites the table from the working set. Callers hold s.mu.
func (s *Store) persist(ctx context.Context) error {
	snapshot := s.ExportState()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `TRUNCATE TABLE product_records`); err != nil {
		return fmt.Errorf("truncate records: %w", err)
	}
	for i, rec := range snapshot.Records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record %s: %w", rec.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO product_records(id,position,payload) VALUES($1,$2,$3) ON CONFLICT(id) DO UPDATE SET position=EXCLUDED.position, payload=EXCLUDED.payload`, rec.ID, int64(i), data); err != nil {
			return fmt.Errorf("upsert record %s: %w", rec.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
