package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"tracceaqua/internal/infra/persistence/postgres/testutil"
	"tracceaqua/pkg/domain"
)

func openStub(t *testing.T) (*Store, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(driverName, dsn string) (*sql.DB, error) {
		if driverName != defaultDriver {
			t.Fatalf("unexpected driver %s", driverName)
		}
		if dsn != defaultDSN {
			t.Fatalf("expected default dsn, got %s", dsn)
		}
		return db, nil
	})
	t.Cleanup(restore)
	store, err := NewStore(context.Background(), "")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store, conn
}

func TestNewStoreCreatesTableAndHydrates(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.Rows = []testutil.RecordRow{
		{ID: "b", Position: 1, Payload: []byte(`{"id":"b","batchId":"B1","status":"ACTIVE"}`)},
		{ID: "a", Position: 0, Payload: []byte(`{"id":"a","batchId":"B1","status":"DRAFT"}`)},
	}
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	defer restore()

	store, err := NewStore(context.Background(), "postgres://example/db")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if store.DB() != db {
		t.Fatalf("expected DB accessor to return stub")
	}
	if len(conn.Execs) == 0 || !strings.Contains(conn.Execs[0], "CREATE TABLE IF NOT EXISTS product_records") {
		t.Fatalf("expected table DDL, got %v", conn.Execs)
	}
	got, err := store.ListRecords(context.Background(), domain.RecordQuery{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("expected records ordered by position, got %+v", got)
	}
}

func TestPutAndDeleteRewriteTable(t *testing.T) {
	ctx := context.Background()
	store, conn := openStub(t)

	if err := store.PutRecords(ctx,
		domain.ProductRecord{ID: "r1", BatchID: "B1"},
		domain.ProductRecord{ID: "r2", BatchID: "B1"},
	); err != nil {
		t.Fatalf("put: %v", err)
	}
	rows := conn.Rows
	if len(rows) != 2 || rows[0].ID != "r1" || rows[1].Position != 1 {
		t.Fatalf("unexpected rows after put: %v", rows)
	}

	deleted, err := store.DeleteRecord(ctx, "r1")
	if err != nil || !deleted {
		t.Fatalf("delete: %v %v", deleted, err)
	}
	rows = conn.Rows
	if len(rows) != 1 || rows[0].ID != "r2" || rows[0].Position != 0 {
		t.Fatalf("unexpected rows after delete: %v", rows)
	}

	execs := len(conn.Execs)
	if deleted, err := store.DeleteRecord(ctx, "missing"); err != nil || deleted {
		t.Fatalf("expected no-op delete, got %v %v", deleted, err)
	}
	if len(conn.Execs) != execs {
		t.Fatalf("expected no statements for missing delete")
	}
}

func TestPersistFailuresRestoreWorkingSet(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		fail func(*testutil.StubConn)
		want string
	}{
		{"begin", func(c *testutil.StubConn) { c.FailBegin = true }, "begin tx"},
		{"insert", func(c *testutil.StubConn) { c.FailInsert = true }, "upsert record"},
		{"commit", func(c *testutil.StubConn) { c.FailCommit = true }, "commit"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, conn := openStub(t)
			if err := store.PutRecords(ctx,
				domain.ProductRecord{ID: "kept", BatchID: "B1"},
				domain.ProductRecord{ID: "other", BatchID: "B1"},
			); err != nil {
				t.Fatalf("seed: %v", err)
			}
			tc.fail(conn)

			err := store.PutRecords(ctx,
				domain.ProductRecord{ID: "kept", BatchID: "B2"},
				domain.ProductRecord{ID: "x"},
			)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %s error, got %v", tc.want, err)
			}
			var notFound domain.ErrNotFound
			if _, err := store.GetRecord(ctx, "x"); !errors.As(err, &notFound) {
				t.Fatalf("failed put must not be visible, got %v", err)
			}
			kept, err := store.GetRecord(ctx, "kept")
			if err != nil || kept.BatchID != "B1" {
				t.Fatalf("failed put must not replace existing record, got %+v %v", kept, err)
			}

			deleted, err := store.DeleteRecord(ctx, "kept")
			if err == nil || deleted {
				t.Fatalf("expected delete to fail, got %v %v", deleted, err)
			}
			if _, err := store.GetRecord(ctx, "kept"); err != nil {
				t.Fatalf("failed delete must keep record: %v", err)
			}
			if len(conn.Rows) != 2 || conn.Rows[0].ID != "kept" {
				t.Fatalf("table changed by failed writes: %+v", conn.Rows)
			}
		})
	}
}

func TestNewStoreErrors(t *testing.T) {
	ctx := context.Background()

	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return nil, sql.ErrConnDone })
	if _, err := NewStore(ctx, "dsn"); err == nil {
		t.Fatalf("expected open error")
	}
	restore()

	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restore = OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	if _, err := NewStore(ctx, "dsn"); err == nil || !strings.Contains(err.Error(), "ping") {
		t.Fatalf("expected ping error, got %v", err)
	}
	restore()

	db, conn = testutil.NewStubDB()
	conn.Rows = []testutil.RecordRow{{ID: "bad", Payload: []byte("{")}}
	restore = OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore(ctx, "dsn"); err == nil || !strings.Contains(err.Error(), "decode record bad") {
		t.Fatalf("expected decode error, got %v", err)
	}
}
