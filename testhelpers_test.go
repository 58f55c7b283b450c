package lensmcp

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"github.com/datalens/lensmcp/internal/dialect"
)

// The engine is tested end to end against an in-process database/sql driver:
// every query travels the real pipeline (read-only gate, slot gate, conn
// pinning, row collection, masking, truncation) and only the wire protocol is
// stubbed out.

// stubHandler receives every query the engine issues and decides the result.
type stubHandler func(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error)

type stubDriver struct {
	handler stubHandler
	opens   int64
}

func (d *stubDriver) Open(name string) (driver.Conn, error) {
	atomic.AddInt64(&d.opens, 1)
	return &stubConn{driver: d}, nil
}

// openCount reports how many physical connections the pool opened. A poisoned
// connection forces a new open on the next acquire; a healthy one is reused.
func (d *stubDriver) openCount() int64 {
	return atomic.LoadInt64(&d.opens)
}

type stubConn struct {
	driver *stubDriver
}

func (c *stubConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("stub driver does not support prepared statements")
}

func (c *stubConn) Close() error { return nil }

func (c *stubConn) Begin() (driver.Tx, error) {
	return nil, fmt.Errorf("stub driver does not support transactions")
}

func (c *stubConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	return c.driver.handler(ctx, query, args)
}

type stubRows struct {
	columns []string
	rows    [][]driver.Value
	pos     int
}

func (r *stubRows) Columns() []string { return r.columns }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.pos])
	r.pos++
	return nil
}

// resultRows builds a driver.Rows result from literal values.
func resultRows(columns []string, rows ...[]driver.Value) driver.Rows {
	return &stubRows{columns: columns, rows: rows}
}

// staticHandler answers every query with the same result set.
func staticHandler(columns []string, rows ...[]driver.Value) stubHandler {
	return func(context.Context, string, []driver.NamedValue) (driver.Rows, error) {
		return resultRows(columns, rows...), nil
	}
}

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

// testConfig returns a minimal valid engine config for stub-backed tests.
func testConfig() Config {
	return Config{
		Driver: "mysql",
		Connection: ConnectionConfig{
			Host:     "localhost",
			User:     "tester",
			Database: "analytics",
		},
	}
}

var stubSeq int64

// newStubLens wires a DataLens around a freshly registered stub driver. Each
// call registers a unique driver name, so tests stay independent and can run
// in parallel.
func newStubLens(t *testing.T, config Config, handler stubHandler) (*DataLens, *stubDriver) {
	t.Helper()

	if err := config.Validate(); err != nil {
		t.Fatalf("config invalid: %v", err)
	}

	drv := &stubDriver{handler: handler}
	name := fmt.Sprintf("lensstub-%d", atomic.AddInt64(&stubSeq, 1))
	sql.Register(name, drv)

	db, err := sql.Open(name, "stub")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	db.SetMaxOpenConns(config.Pool.MaxConns)
	db.SetMaxIdleConns(config.Pool.MaxConns)

	dia, err := dialect.ByName(config.Driver)
	if err != nil {
		t.Fatalf("dialect.ByName: %v", err)
	}

	lens, err := newLens(db, dia, nil, config, testLogger())
	if err != nil {
		t.Fatalf("newLens: %v", err)
	}
	t.Cleanup(func() { lens.Close(context.Background()) })
	return lens, drv
}
