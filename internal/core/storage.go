package core

import (
	"context"
	"fmt"
	"io"

	"tracceaqua/internal/infra/persistence/memory"
	"tracceaqua/internal/infra/persistence/postgres"
	"tracceaqua/internal/infra/persistence/sqlite"
	"tracceaqua/pkg/domain"
)

// StorageDriver identifies a concrete record store implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageConfig selects and parameterises the record store.
type StorageConfig struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
}

// RecordStoreCloser is a record store owning resources that must be released.
type RecordStoreCloser interface {
	domain.RecordStore
	io.Closer
}

type memoryStore struct{ *memory.Store }

func (memoryStore) Close() error { return nil }

// OpenRecordStore opens the configured backend. An empty driver defaults to sqlite.
func OpenRecordStore(ctx context.Context, cfg StorageConfig) (RecordStoreCloser, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memoryStore{memory.NewStore()}, nil
	case StorageSQLite:
		store, err := sqlite.NewStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case StoragePostgres:
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
