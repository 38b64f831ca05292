// Package fs implements a blob store on the local filesystem.
package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"tracceaqua/internal/blob/core"
)

const metaSuffix = ".meta"

// Store maps keys to files under root. Each blob has a JSON sidecar
// (<file>.meta) carrying content type, user metadata and the sha256 ETag.
// Writes stream to a temp file and are renamed into place.
type Store struct {
	root string
}

// New returns a filesystem-backed blob store rooted at root, creating it if needed.
func New(root string) (*Store, error) {
	if root == "" {
		root = "./blobdata"
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Store{root: root}, nil
}

// Driver returns the blob driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverFilesystem }

// Root returns the directory holding the blobs.
func (s *Store) Root() string { return s.root }

func (s *Store) pathFor(key string) (clean, dataPath, metaPath string, err error) {
	clean, err = core.ValidateKey(key)
	if err != nil {
		return "", "", "", err
	}
	if strings.HasSuffix(clean, metaSuffix) {
		return "", "", "", fmt.Errorf("blob key %q: reserved suffix %s", key, metaSuffix)
	}
	dataPath = filepath.Join(s.root, filepath.FromSlash(clean))
	return clean, dataPath, dataPath + metaSuffix, nil
}

type metaFile struct {
	ContentType string            `json:"contentType,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ETag        string            `json:"etag"`
	Size        int64             `json:"size"`
	CreatedAt   time.Time         `json:"createdAt"`
}

func (m metaFile) info(key, url string) core.Info {
	return core.Info{
		Key:          key,
		Size:         m.Size,
		ContentType:  m.ContentType,
		ETag:         m.ETag,
		Metadata:     core.CloneMetadata(m.Metadata),
		LastModified: m.CreatedAt,
		URL:          url,
	}
}

// Put streams r to a new file; it fails with core.ErrExists if key is taken.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	clean, dataPath, metaPath, err := s.pathFor(key)
	if err != nil {
		return core.Info{}, err
	}
	if _, err := os.Stat(dataPath); err == nil {
		return core.Info{}, fmt.Errorf("blob %s: %w", clean, core.ErrExists)
	}
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o750); err != nil {
		return core.Info{}, fmt.Errorf("create blob dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dataPath), ".tmp-*")
	if err != nil {
		return core.Info{}, fmt.Errorf("create temp blob: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), readerWithContext(ctx, r))
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return core.Info{}, fmt.Errorf("write blob %s: %w", clean, err)
	}
	// Link fails if another writer created the key since the Stat above.
	if err := os.Link(tmp.Name(), dataPath); err != nil {
		if errors.Is(err, iofs.ErrExist) {
			return core.Info{}, fmt.Errorf("blob %s: %w", clean, core.ErrExists)
		}
		return core.Info{}, fmt.Errorf("place blob %s: %w", clean, err)
	}
	meta := metaFile{
		ContentType: opts.ContentType,
		Metadata:    core.CloneMetadata(opts.Metadata),
		ETag:        hex.EncodeToString(h.Sum(nil)),
		Size:        size,
		CreatedAt:   time.Now().UTC(),
	}
	if err := writeMeta(metaPath, meta); err != nil {
		_ = os.Remove(dataPath)
		return core.Info{}, err
	}
	return meta.info(clean, s.localURL(clean)), nil
}

// Get opens the blob for reading. The caller closes the reader.
func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	clean, dataPath, metaPath, err := s.pathFor(key)
	if err != nil {
		return core.Info{}, nil, err
	}
	meta, err := readMeta(clean, metaPath)
	if err != nil {
		return core.Info{}, nil, err
	}
	file, err := os.Open(dataPath)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return core.Info{}, nil, fmt.Errorf("blob %s: %w", clean, core.ErrNotFound)
		}
		return core.Info{}, nil, fmt.Errorf("open blob %s: %w", clean, err)
	}
	return meta.info(clean, s.localURL(clean)), file, nil
}

// Head returns blob metadata only.
func (s *Store) Head(_ context.Context, key string) (core.Info, error) {
	clean, _, metaPath, err := s.pathFor(key)
	if err != nil {
		return core.Info{}, err
	}
	meta, err := readMeta(clean, metaPath)
	if err != nil {
		return core.Info{}, err
	}
	return meta.info(clean, s.localURL(clean)), nil
}

// Delete removes the blob and its sidecar, reporting whether it existed.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	_, dataPath, metaPath, err := s.pathFor(key)
	if err != nil {
		return false, err
	}
	if err := os.Remove(dataPath); err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("delete blob: %w", err)
	}
	_ = os.Remove(metaPath)
	return true, nil
}

// List walks the root and returns blobs whose key starts with prefix.
func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	var infos []core.Info
	err := filepath.WalkDir(s.root, func(p string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, metaSuffix) {
			return nil
		}
		rel, err := filepath.Rel(s.root, strings.TrimSuffix(p, metaSuffix))
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		meta, err := readMeta(key, p)
		if err != nil {
			return err
		}
		infos = append(infos, meta.info(key, s.localURL(key)))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// PresignURL returns an unauthenticated local URL for development use.
func (s *Store) PresignURL(_ context.Context, key string, opts core.SignedURLOptions) (string, error) {
	if opts.Method != "" && !strings.EqualFold(opts.Method, "GET") {
		return "", core.ErrUnsupported
	}
	clean, err := core.ValidateKey(key)
	if err != nil {
		return "", err
	}
	return s.localURL(clean), nil
}

func (s *Store) localURL(key string) string {
	return (&url.URL{Scheme: "http", Host: "local.blob", Path: "/" + key}).String()
}

func writeMeta(path string, meta metaFile) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode blob meta: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write blob meta: %w", err)
	}
	return nil
}

func readMeta(key, path string) (metaFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return metaFile{}, fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
		}
		return metaFile{}, fmt.Errorf("read blob meta: %w", err)
	}
	var meta metaFile
	if err := json.Unmarshal(data, &meta); err != nil {
		return metaFile{}, fmt.Errorf("decode blob meta %s: %w", key, err)
	}
	return meta, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	if ctx == nil {
		return r
	}
	return ctxReader{ctx: ctx, r: r}
}
