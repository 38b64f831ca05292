package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"tracceaqua/internal/blob/core"
)

// fakeS3 serves the subset of the S3 REST API the store uses: path-style
// Head/Get/Put/Delete and ListObjectsV2 with one-key pages.
type fakeS3 struct {
	mu    sync.Mutex
	state map[string]stored
	fail  int // status returned for every request when non-zero
}

type stored struct {
	body        []byte
	contentType string
}

func response(status int, body []byte, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewReader(body)), Header: header}
}

func (m *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != 0 {
		return response(m.fail, nil, nil), nil
	}
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		return m.list(req.URL.Query().Get("prefix"), req.URL.Query().Get("continuation-token")), nil
	}
	switch req.Method {
	case http.MethodHead, http.MethodGet:
		st, ok := m.state[key]
		if !ok {
			return response(http.StatusNotFound, nil, nil), nil
		}
		header := http.Header{
			"Content-Length": {strconv.Itoa(len(st.body))},
			"Content-Type":   {st.contentType},
			"Etag":           {`"etag-` + key + `"`},
			"Last-Modified":  {time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Format(http.TimeFormat)},
		}
		if req.Method == http.MethodHead {
			return response(http.StatusOK, nil, header), nil
		}
		return response(http.StatusOK, st.body, header), nil
	case http.MethodPut:
		if _, exists := m.state[key]; exists && req.Header.Get("If-None-Match") == "*" {
			return response(http.StatusPreconditionFailed, nil, nil), nil
		}
		body, _ := io.ReadAll(req.Body)
		if dec, ok := decodeChunked(body); ok {
			body = dec
		}
		m.state[key] = stored{body: body, contentType: req.Header.Get("Content-Type")}
		return response(http.StatusOK, nil, http.Header{"Etag": {`"etag"`}}), nil
	case http.MethodDelete:
		delete(m.state, key)
		return response(http.StatusNoContent, nil, nil), nil
	}
	return response(http.StatusNotImplemented, nil, nil), nil
}

func (m *fakeS3) list(prefix, token string) *http.Response {
	var keys []string
	for k := range m.state {
		if strings.HasPrefix(k, prefix) && k > token {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><ListBucketResult>`)
	if len(keys) > 1 {
		fmt.Fprintf(&b, "<IsTruncated>true</IsTruncated><NextContinuationToken>%s</NextContinuationToken>", keys[0])
		keys = keys[:1]
	} else {
		b.WriteString("<IsTruncated>false</IsTruncated>")
	}
	for _, k := range keys {
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><ETag>&quot;e&quot;</ETag><LastModified>2024-01-01T00:00:00Z</LastModified></Contents>", k, len(m.state[k].body))
	}
	b.WriteString("</ListBucketResult>")
	return response(http.StatusOK, []byte(b.String()), http.Header{"Content-Type": {"application/xml"}})
}

// decodeChunked unwraps a single-chunk aws-chunked payload, ignoring trailers.
func decodeChunked(b []byte) ([]byte, bool) {
	parts := strings.Split(string(b), "\r\n")
	if len(parts) < 3 {
		return nil, false
	}
	size := parts[0]
	if i := strings.IndexByte(size, ';'); i >= 0 {
		size = size[:i]
	}
	n, err := strconv.ParseInt(size, 16, 64)
	if err != nil || n <= 0 || int64(len(parts[1])) != n {
		return nil, false
	}
	if !strings.HasPrefix(parts[2], "0") {
		return nil, false
	}
	return []byte(parts[1]), true
}

func newFakeStore(t *testing.T) (*Store, *fakeS3) {
	t.Helper()
	fake := &fakeS3{state: make(map[string]stored)}
	store, err := New(context.Background(), Config{
		Bucket:          "exports",
		Endpoint:        "https://mock.s3.local",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		PathStyle:       true,
		HTTPClient:      &http.Client{Transport: fake},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return store, fake
}

func TestStoreLifecycle(t *testing.T) {
	store, _ := newFakeStore(t)
	ctx := context.Background()
	if store.Driver() != core.DriverS3 || store.Bucket() != "exports" {
		t.Fatalf("unexpected driver/bucket")
	}

	info, err := store.Put(ctx, "batches/a.csv", strings.NewReader("batchId\nB1\n"), core.PutOptions{ContentType: "text/csv"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "batches/a.csv" || info.ContentType != "text/csv" || info.ETag != "etag-batches/a.csv" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, "batches/a.csv", strings.NewReader("again"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	_, data, err := core.ReadAll(ctx, store, "batches/a.csv")
	if err != nil || string(data) != "batchId\nB1\n" {
		t.Fatalf("unexpected read %q %v", data, err)
	}

	for _, key := range []string{"batches/b.json", "batches/c.html", "audit/x"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	list, err := store.List(ctx, "batches/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[0].Key != "batches/a.csv" || list[2].Key != "batches/c.html" {
		t.Fatalf("expected paginated listing, got %+v", list)
	}

	url, err := store.PresignURL(ctx, "batches/a.csv", core.SignedURLOptions{Expiry: time.Minute})
	if err != nil || !strings.Contains(url, "X-Amz-Expires=60") {
		t.Fatalf("unexpected presign %q %v", url, err)
	}

	if ok, err := store.Delete(ctx, "batches/a.csv"); !ok || err != nil {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, err := store.Delete(ctx, "batches/a.csv"); ok || err != nil {
		t.Fatalf("expected missing delete, got %v %v", ok, err)
	}
}

func TestStoreNotFoundAndErrors(t *testing.T) {
	store, fake := newFakeStore(t)
	ctx := context.Background()
	if _, err := store.Head(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from head, got %v", err)
	}
	if _, _, err := store.Get(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from get, got %v", err)
	}
	if _, err := store.PresignURL(ctx, "k", core.SignedURLOptions{Method: "PUT"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if _, err := store.Put(ctx, "../x", strings.NewReader("x"), core.PutOptions{}); err == nil {
		t.Fatalf("expected key validation error")
	}

	fake.mu.Lock()
	fake.fail = http.StatusForbidden
	fake.mu.Unlock()
	if _, err := store.Put(ctx, "denied", strings.NewReader("x"), core.PutOptions{}); err == nil || errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected access error, got %v", err)
	}
	if _, err := store.Delete(ctx, "denied"); err == nil {
		t.Fatalf("expected delete error")
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for missing bucket")
	}
}

func TestDecodeChunkedHelper(t *testing.T) {
	if _, ok := decodeChunked([]byte("not-chunked")); ok {
		t.Fatalf("expected plain body to pass through")
	}
	if _, ok := decodeChunked([]byte("5\r\nabc\r\n0\r\n")); ok {
		t.Fatalf("size mismatch should fail")
	}
	if b, ok := decodeChunked([]byte("5\r\nhello\r\n0\r\nx-amz-checksum-crc32:AAAA\r\n\r\n")); !ok || string(b) != "hello" {
		t.Fatalf("expected decode hello")
	}
}
