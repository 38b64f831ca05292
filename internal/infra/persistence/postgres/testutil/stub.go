// Package testutil provides a stub database/sql driver for the postgres
// record store. It understands the product_records DDL, the truncate and
// upsert rewrite, and the ordered select used to hydrate the store. Writes
// issued inside a transaction become visible only on commit.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
)

// RecordRow is one stored row of product_records.
type RecordRow struct {
	ID       string
	Position int64
	Payload  []byte
}

// StubConn records executed statements and keeps committed rows in memory.
type StubConn struct {
	Execs []string
	Rows  []RecordRow

	FailPing   bool
	FailBegin  bool
	FailExec   bool
	FailInsert bool
	FailQuery  bool
	FailCommit bool
	RowsErr    error

	pending []RecordRow
	inTx    bool
}

var driverSeq atomic.Uint64

// NewStubDB registers a sql.DB backed by an in-memory stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{}
	name := fmt.Sprintf("stubpg%d", driverSeq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepared statements not supported")
}

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(context.Context) error {
	if c.FailPing {
		return errors.New("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx. The transaction works on a copy of
// the committed rows.
func (c *StubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, errors.New("begin fail")
	}
	c.pending = append([]RecordRow(nil), c.Rows...)
	c.inTx = true
	return &stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, errors.New("exec fail")
	}
	stmt := strings.ToUpper(strings.TrimSpace(query))
	switch {
	case strings.HasPrefix(stmt, "CREATE TABLE IF NOT EXISTS PRODUCT_RECORDS"):
		return driver.RowsAffected(0), nil
	case strings.HasPrefix(stmt, "TRUNCATE TABLE PRODUCT_RECORDS"):
		rows := c.target()
		n := len(*rows)
		*rows = nil
		return driver.RowsAffected(n), nil
	case strings.HasPrefix(stmt, "INSERT INTO PRODUCT_RECORDS"):
		row, err := recordRow(args)
		if err != nil {
			return nil, err
		}
		if c.FailInsert {
			return nil, fmt.Errorf("insert fail for %s", row.ID)
		}
		upsert(c.target(), row)
		return driver.RowsAffected(1), nil
	}
	return nil, fmt.Errorf("unsupported statement: %s", query)
}

// QueryContext implements driver.QueryerContext for the hydrate select.
func (c *StubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	stmt := strings.ToUpper(strings.Join(strings.Fields(query), " "))
	if !strings.HasPrefix(stmt, "SELECT ID, POSITION, PAYLOAD FROM PRODUCT_RECORDS") {
		return nil, fmt.Errorf("unsupported query: %s", query)
	}
	if c.FailQuery {
		return nil, errors.New("query fail")
	}
	values := make([][]driver.Value, 0, len(c.Rows))
	for _, row := range c.Rows {
		values = append(values, []driver.Value{row.ID, row.Position, row.Payload})
	}
	return &stubRows{rows: values, err: c.RowsErr}, nil
}

func (c *StubConn) target() *[]RecordRow {
	if c.inTx {
		return &c.pending
	}
	return &c.Rows
}

func recordRow(args []driver.NamedValue) (RecordRow, error) {
	if len(args) != 3 {
		return RecordRow{}, fmt.Errorf("insert expects 3 args, got %d", len(args))
	}
	id, ok := args[0].Value.(string)
	if !ok {
		return RecordRow{}, fmt.Errorf("id must be a string, got %T", args[0].Value)
	}
	position, ok := args[1].Value.(int64)
	if !ok {
		return RecordRow{}, fmt.Errorf("position must be int64, got %T", args[1].Value)
	}
	payload, ok := args[2].Value.([]byte)
	if !ok {
		return RecordRow{}, fmt.Errorf("payload must be bytes, got %T", args[2].Value)
	}
	return RecordRow{ID: id, Position: position, Payload: append([]byte(nil), payload...)}, nil
}

func upsert(rows *[]RecordRow, row RecordRow) {
	for i := range *rows {
		if (*rows)[i].ID == row.ID {
			(*rows)[i] = row
			return
		}
	}
	*rows = append(*rows, row)
}

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	t.conn.inTx = false
	if t.conn.FailCommit {
		t.conn.pending = nil
		return errors.New("commit fail")
	}
	t.conn.Rows, t.conn.pending = t.conn.pending, nil
	return nil
}

func (t *stubTx) Rollback() error {
	t.conn.inTx = false
	t.conn.pending = nil
	return nil
}

var rowColumns = []string{"id", "position", "payload"}

type stubRows struct {
	rows [][]driver.Value
	idx  int
	err  error
}

func (r *stubRows) Columns() []string { return rowColumns }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}
