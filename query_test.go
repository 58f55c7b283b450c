package lensmcp

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"
	"testing"
)

func TestQueryReturnsRows(t *testing.T) {
	t.Parallel()
	lens, _ := newStubLens(t, testConfig(), staticHandler(
		[]string{"id", "name"},
		[]driver.Value{int64(1), []byte("alice")},
		[]driver.Value{int64(2), []byte("bob")},
	))

	output := lens.Query(context.Background(), QueryInput{SQL: "SELECT id, name FROM users"})
	if output.Error != "" {
		t.Fatalf("Query error = %q, want none", output.Error)
	}
	if output.RowCount != 2 || len(output.Rows) != 2 {
		t.Fatalf("RowCount = %d, len(Rows) = %d, want 2", output.RowCount, len(output.Rows))
	}
	if output.Truncated {
		t.Fatal("Truncated = true for a result under the cap")
	}
	if len(output.Columns) != 2 || output.Columns[0] != "id" || output.Columns[1] != "name" {
		t.Fatalf("Columns = %v", output.Columns)
	}
	if output.Rows[0]["id"] != int64(1) {
		t.Fatalf("Rows[0][id] = %v (%T), want int64(1)", output.Rows[0]["id"], output.Rows[0]["id"])
	}
	// []byte text columns come back as strings
	if output.Rows[0]["name"] != "alice" {
		t.Fatalf("Rows[0][name] = %v (%T), want string alice", output.Rows[0]["name"], output.Rows[0]["name"])
	}
}

func TestQueryRejectsWriteWithoutTouchingPool(t *testing.T) {
	t.Parallel()
	handlerCalled := false
	lens, drv := newStubLens(t, testConfig(), func(context.Context, string, []driver.NamedValue) (driver.Rows, error) {
		handlerCalled = true
		return resultRows(nil), nil
	})

	output := lens.Query(context.Background(), QueryInput{SQL: "DELETE FROM users"})
	if output.Error == "" {
		t.Fatal("Query accepted a DELETE statement")
	}
	if !strings.Contains(output.Error, "read-only violation") || !strings.Contains(output.Error, "DELETE") {
		t.Fatalf("Query error = %q, want read-only violation naming DELETE", output.Error)
	}
	if handlerCalled {
		t.Fatal("rejected query reached the driver")
	}
	if drv.openCount() != 0 {
		t.Fatalf("rejected query opened %d connections, want 0", drv.openCount())
	}
}

func TestQueryRejectsExplainAnalyzeOfWrite(t *testing.T) {
	t.Parallel()
	// EXPLAIN ANALYZE executes the statement it explains, so explaining a
	// write is a write.
	lens, drv := newStubLens(t, testConfig(), staticHandler([]string{"n"}, []driver.Value{int64(1)}))

	output := lens.Query(context.Background(), QueryInput{SQL: "EXPLAIN ANALYZE DELETE FROM users"})
	if output.Error == "" {
		t.Fatal("Query accepted EXPLAIN ANALYZE of a DELETE")
	}
	if !strings.Contains(output.Error, "read-only violation") {
		t.Fatalf("Query error = %q, want read-only violation", output.Error)
	}
	if drv.openCount() != 0 {
		t.Fatalf("rejected query opened %d connections, want 0", drv.openCount())
	}

	// A plain EXPLAIN ANALYZE of a SELECT still goes through.
	output = lens.Query(context.Background(), QueryInput{SQL: "EXPLAIN ANALYZE SELECT 1"})
	if output.Error != "" {
		t.Fatalf("Query(EXPLAIN ANALYZE SELECT 1) error = %q, want none", output.Error)
	}
}

func TestQueryRejectsStackedStatements(t *testing.T) {
	t.Parallel()
	lens, drv := newStubLens(t, testConfig(), staticHandler([]string{"n"}, []driver.Value{int64(1)}))

	output := lens.Query(context.Background(), QueryInput{SQL: "SELECT 1; DROP TABLE users"})
	if output.Error == "" {
		t.Fatal("Query accepted a stacked write statement")
	}
	if !strings.Contains(output.Error, "read-only violation") {
		t.Fatalf("Query error = %q, want read-only violation", output.Error)
	}
	if drv.openCount() != 0 {
		t.Fatalf("stacked query opened %d connections, want 0", drv.openCount())
	}
}

func TestQueryRowCapTruncates(t *testing.T) {
	t.Parallel()
	config := testConfig()
	config.Query.MaxRows = 3
	rows := make([][]driver.Value, 5)
	for i := range rows {
		rows[i] = []driver.Value{int64(i)}
	}
	lens, _ := newStubLens(t, config, staticHandler([]string{"n"}, rows...))

	output := lens.Query(context.Background(), QueryInput{SQL: "SELECT n FROM big"})
	if output.Error != "" {
		t.Fatalf("Query error = %q, want none", output.Error)
	}
	if output.RowCount != 3 || len(output.Rows) != 3 {
		t.Fatalf("RowCount = %d, want the cap of 3", output.RowCount)
	}
	if !output.Truncated {
		t.Fatal("Truncated = false, want true when the cap is hit")
	}
}

func TestQueryExactlyMaxRowsNotTruncated(t *testing.T) {
	t.Parallel()
	config := testConfig()
	config.Query.MaxRows = 3
	lens, _ := newStubLens(t, config, staticHandler([]string{"n"},
		[]driver.Value{int64(0)}, []driver.Value{int64(1)}, []driver.Value{int64(2)}))

	output := lens.Query(context.Background(), QueryInput{SQL: "SELECT n FROM t"})
	if output.Error != "" {
		t.Fatalf("Query error = %q, want none", output.Error)
	}
	if output.RowCount != 3 || output.Truncated {
		t.Fatalf("RowCount = %d, Truncated = %v, want exactly 3 rows untruncated", output.RowCount, output.Truncated)
	}
}

func TestQueryDriverErrorVerbatim(t *testing.T) {
	t.Parallel()
	const driverMsg = "Error 1054: Unknown column 'emial' in 'field list'"
	lens, _ := newStubLens(t, testConfig(), func(context.Context, string, []driver.NamedValue) (driver.Rows, error) {
		return nil, errors.New(driverMsg)
	})

	output := lens.Query(context.Background(), QueryInput{SQL: "SELECT emial FROM users"})
	if output.Error != driverMsg {
		t.Fatalf("Query error = %q, want the driver message verbatim: %q", output.Error, driverMsg)
	}
}

func TestQueryErrorPromptAppendedAfterOriginal(t *testing.T) {
	t.Parallel()
	const driverMsg = "Error 1054: Unknown column 'emial' in 'field list'"
	const guidance = "Check the table schema with describe_table first."
	config := testConfig()
	config.ErrorPrompts = []ErrorPromptRule{{Pattern: "Unknown column", Message: guidance}}
	lens, _ := newStubLens(t, config, func(context.Context, string, []driver.NamedValue) (driver.Rows, error) {
		return nil, errors.New(driverMsg)
	})

	output := lens.Query(context.Background(), QueryInput{SQL: "SELECT emial FROM users"})
	if !strings.HasPrefix(output.Error, driverMsg) {
		t.Fatalf("Query error = %q, original driver message must stay verbatim at the front", output.Error)
	}
	if !strings.HasSuffix(output.Error, guidance) {
		t.Fatalf("Query error = %q, guidance missing from the end", output.Error)
	}
}

func TestQueryMasksSensitiveValues(t *testing.T) {
	t.Parallel()
	config := testConfig()
	config.Masking = []MaskRule{{Pattern: `[\w.]+@[\w.]+`, Replacement: "***@***"}}
	lens, _ := newStubLens(t, config, staticHandler(
		[]string{"email"},
		[]driver.Value{[]byte("alice@example.com")},
	))

	output := lens.Query(context.Background(), QueryInput{SQL: "SELECT email FROM users"})
	if output.Error != "" {
		t.Fatalf("Query error = %q, want none", output.Error)
	}
	if output.Rows[0]["email"] != "***@***" {
		t.Fatalf("email = %v, want masked", output.Rows[0]["email"])
	}
}

func TestQueryTooLongRejected(t *testing.T) {
	t.Parallel()
	config := testConfig()
	config.Query.MaxSQLLength = 16
	lens, drv := newStubLens(t, config, staticHandler([]string{"n"}, []driver.Value{int64(1)}))

	output := lens.Query(context.Background(), QueryInput{SQL: "SELECT 1 FROM a_table_name_well_past_the_limit"})
	if !strings.Contains(output.Error, "too long") {
		t.Fatalf("Query error = %q, want length rejection", output.Error)
	}
	if drv.openCount() != 0 {
		t.Fatal("oversized query reached the pool")
	}
}

func TestQueryResultLengthTruncation(t *testing.T) {
	t.Parallel()
	config := testConfig()
	config.Query.MaxResultLength = 40
	lens, _ := newStubLens(t, config, staticHandler(
		[]string{"blob"},
		[]driver.Value{[]byte(strings.Repeat("x", 500))},
	))

	output := lens.Query(context.Background(), QueryInput{SQL: "SELECT blob FROM t"})
	if !output.Truncated {
		t.Fatal("Truncated = false, want true for an oversized serialized result")
	}
	if output.Rows != nil {
		t.Fatal("Rows should be dropped when the serialized result is truncated")
	}
	if !strings.Contains(output.Error, "Result is too long") {
		t.Fatalf("Query error = %q, want result-too-long notice", output.Error)
	}
}

func TestQueryEmptyRejected(t *testing.T) {
	t.Parallel()
	lens, _ := newStubLens(t, testConfig(), staticHandler([]string{"n"}, []driver.Value{int64(1)}))

	output := lens.Query(context.Background(), QueryInput{SQL: "   "})
	if !strings.Contains(output.Error, "empty query") {
		t.Fatalf("Query error = %q, want empty-query rejection", output.Error)
	}
}

func TestQueryPostgresASTCrossCheck(t *testing.T) {
	t.Parallel()
	config := testConfig()
	config.Driver = "postgres"
	handlerCalled := false
	lens, _ := newStubLens(t, config, func(context.Context, string, []driver.NamedValue) (driver.Rows, error) {
		handlerCalled = true
		return resultRows([]string{"n"}, []driver.Value{int64(1)}), nil
	})

	// DESCRIBE passes the keyword allowlist but is not PostgreSQL grammar, so
	// the AST cross-check rejects it before execution.
	output := lens.Query(context.Background(), QueryInput{SQL: "DESCRIBE users"})
	if output.Error == "" {
		t.Fatal("Query accepted DESCRIBE on the postgres dialect")
	}
	if !strings.Contains(output.Error, "parse error") {
		t.Fatalf("Query error = %q, want AST parse rejection", output.Error)
	}
	if handlerCalled {
		t.Fatal("rejected query reached the driver")
	}

	output = lens.Query(context.Background(), QueryInput{SQL: "SELECT 1"})
	if output.Error != "" {
		t.Fatalf("Query error = %q, want none for plain SELECT", output.Error)
	}
}
