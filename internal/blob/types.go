// Package blob is the entry point for blob storage. Callers depend on the
// Store interface and obtain an implementation through Open.
package blob

import (
	"context"

	"tracceaqua/internal/blob/core"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// SignedURLOptions configures URL pre-signing.
	SignedURLOptions = core.SignedURLOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrUnsupported = core.ErrUnsupported
	ErrNotFound    = core.ErrNotFound
	ErrExists      = core.ErrExists
)

// ReadAll fetches a blob body and metadata.
func ReadAll(ctx context.Context, store Store, key string) (Info, []byte, error) {
	return core.ReadAll(ctx, store, key)
}
