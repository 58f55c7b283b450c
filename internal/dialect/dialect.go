// Package dialect isolates per-database SQL: DSN construction, catalog
// queries for schema inspection, and the database summary used by the schema
// resource. The engine itself only speaks database/sql.
package dialect

import (
	"fmt"
)

// ConnSettings mirrors the engine's connection config without importing it.
type ConnSettings struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// Dialect supplies driver identity and metadata SQL for one database flavor.
// All query methods return SQL using the dialect's own placeholder style plus
// the matching args; result column shapes are identical across dialects so
// the engine scans them uniformly.
type Dialect interface {
	// Name is the dialect identifier ("mysql", "postgres"). It doubles as
	// the URI scheme of the schema resource.
	Name() string
	// DriverName is the database/sql driver registration name.
	DriverName() string
	DSN(c ConnSettings) string

	// ListTablesQuery returns (schema, name, type) rows.
	ListTablesQuery(database string) (string, []interface{})
	// ColumnsQuery returns (name, type, is_nullable "YES"/"NO", default,
	// key marker "PRI" or "") rows in ordinal order.
	ColumnsQuery(schema, table string) (string, []interface{})
	// IndexesQuery returns (name, detail, unique 0/1) rows.
	IndexesQuery(schema, table string) (string, []interface{})
	// RowCountQuery returns a single approximate row count, or no rows if
	// the table is unknown to the catalog statistics.
	RowCountQuery(schema, table string) (string, []interface{})
	// DatabaseInfoQuery returns one (database name, server version) row.
	DatabaseInfoQuery() string
	// TableStatsQuery returns (name, approx rows, size in MB) rows.
	TableStatsQuery(database string) (string, []interface{})
	// DefaultSchema is the schema assumed when a caller names only a table.
	DefaultSchema(database string) string
}

// ByName resolves a dialect by its identifier.
func ByName(name string) (Dialect, error) {
	switch name {
	case "mysql":
		return mysqlDialect{}, nil
	case "postgres":
		return postgresDialect{}, nil
	default:
		return nil, fmt.Errorf("unknown dialect %q", name)
	}
}
