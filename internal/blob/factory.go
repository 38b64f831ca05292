package blob

import (
	"context"
	"fmt"

	"tracceaqua/internal/infra/blob/fs"
	memorystore "tracceaqua/internal/infra/blob/memory"
	infraS3 "tracceaqua/internal/infra/blob/s3"
)

// S3Config configures the S3 driver.
type S3Config = infraS3.Config

// Config selects and parameterises a blob backend.
type Config struct {
	Driver Driver
	FSRoot string
	S3     S3Config
}

// Open returns the configured Store. An empty driver defaults to the
// filesystem rooted at FSRoot (default ./blobdata).
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		store, err := fs.New(cfg.FSRoot)
		if err != nil {
			return nil, err
		}
		return store, nil
	case DriverS3:
		store, err := infraS3.New(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return store, nil
	case DriverMemory:
		return memorystore.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
