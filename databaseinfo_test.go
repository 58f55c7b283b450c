package lensmcp

import (
	"context"
	"database/sql/driver"
	"strings"
	"testing"
)

func databaseInfoHandler(stats [][]driver.Value) stubHandler {
	return func(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
		switch {
		case strings.Contains(query, "DATABASE(), VERSION()"):
			return resultRows([]string{"db", "version"}, []driver.Value{"analytics", "8.0.39"}), nil
		case strings.Contains(query, "DATA_LENGTH"):
			return resultRows([]string{"name", "rows", "size_mb"}, stats...), nil
		default:
			return resultRows(nil), nil
		}
	}
}

func TestDescribeDatabase(t *testing.T) {
	t.Parallel()
	lens, _ := newStubLens(t, testConfig(), databaseInfoHandler([][]driver.Value{
		{"orders", int64(120000), float64(84.25)},
		{"users", int64(4200), float64(1.5)},
	}))

	text, err := lens.DescribeDatabase(context.Background())
	if err != nil {
		t.Fatalf("DescribeDatabase: %v", err)
	}
	for _, want := range []string{
		"Database: analytics",
		"Server Version: 8.0.39",
		"Connection: Direct",
		"Total Tables: 2",
		"orders",
		"users",
		"84.25",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("summary missing %q:\n%s", want, text)
		}
	}
}

func TestDescribeDatabaseNoTables(t *testing.T) {
	t.Parallel()
	lens, _ := newStubLens(t, testConfig(), databaseInfoHandler(nil))

	text, err := lens.DescribeDatabase(context.Background())
	if err != nil {
		t.Fatalf("DescribeDatabase: %v", err)
	}
	if !strings.Contains(text, "Total Tables: 0") {
		t.Fatalf("summary = %q, want zero table count", text)
	}
	if strings.Contains(text, "Tables:\n") {
		t.Fatalf("summary should omit the table listing when empty:\n%s", text)
	}
}
