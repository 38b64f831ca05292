// Package core defines the blob storage contract shared by the export
// pipeline and the concrete backends under internal/infra/blob.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// Driver identifies a concrete blob storage backend implementation.
type Driver string

const (
	DriverFilesystem Driver = "fs"     // local filesystem (default, dev)
	DriverS3         Driver = "s3"     // S3 / MinIO compatible
	DriverMemory     Driver = "memory" // in-memory (tests)
)

// PutOptions specifies optional parameters for Put.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string // small, flat key-value pairs
}

// SignedURLOptions holds options for generating a pre-signed URL.
type SignedURLOptions struct {
	Method string        // only GET is supported
	Expiry time.Duration // default DefaultURLExpiry
}

// DefaultURLExpiry applies when SignedURLOptions.Expiry is unset.
const DefaultURLExpiry = 15 * time.Minute

// Info describes a stored blob.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"sizeBytes"`
	ContentType  string            `json:"contentType,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"lastModified"`
	URL          string            `json:"url,omitempty"`
}

// Store is a minimal S3-like object store. Put is create-only; a second Put
// for the same key fails with ErrExists. Get and Head report ErrNotFound for
// missing keys, Delete reports (false, nil). List is ordered by key.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	PresignURL(ctx context.Context, key string, opts SignedURLOptions) (string, error)
	Driver() Driver
}

var (
	// ErrUnsupported is returned when an optional capability is not available.
	ErrUnsupported = errors.New("blobstore: unsupported operation")
	// ErrNotFound is returned for missing keys.
	ErrNotFound = errors.New("blobstore: not found")
	// ErrExists is returned by Put when the key is already taken.
	ErrExists = errors.New("blobstore: already exists")
)

// ValidateKey rejects empty, absolute and traversing keys and returns the
// cleaned slash-separated form.
func ValidateKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("blob key: empty")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("blob key %q: must be relative with forward slashes", key)
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == ".." {
			return "", fmt.Errorf("blob key %q: traversal not allowed", key)
		}
	}
	return path.Clean(key), nil
}

// ReadAll fetches a blob and its metadata in one call.
func ReadAll(ctx context.Context, store Store, key string) (Info, []byte, error) {
	info, rc, err := store.Get(ctx, key)
	if err != nil {
		return Info{}, nil, err
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return Info{}, nil, fmt.Errorf("read blob %s: %w", key, err)
	}
	return info, data, nil
}

// CloneMetadata copies a metadata map; nil stays nil.
func CloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
