package dialect

import (
	"net"
	"net/url"
	"strconv"

	// Registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"
)

type postgresDialect struct{}

func (postgresDialect) Name() string       { return "postgres" }
func (postgresDialect) DriverName() string { return "pgx" }

func (postgresDialect) DSN(c ConnSettings) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Database,
	}
	if c.SSLMode != "" {
		q := url.Values{}
		q.Set("sslmode", c.SSLMode)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// Postgres catalog queries always look at the current database; the database
// argument is resolved by the connection itself.

func (postgresDialect) ListTablesQuery(database string) (string, []interface{}) {
	return `
SELECT n.nspname, c.relname,
       CASE c.relkind
           WHEN 'r' THEN 'table'
           WHEN 'v' THEN 'view'
           WHEN 'm' THEN 'materialized_view'
           WHEN 'f' THEN 'foreign_table'
           WHEN 'p' THEN 'partitioned_table'
       END
FROM pg_catalog.pg_class c
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE c.relkind IN ('r', 'v', 'm', 'f', 'p')
  AND n.nspname NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
  AND has_table_privilege(c.oid, 'SELECT')
ORDER BY n.nspname, c.relname`, nil
}

func (postgresDialect) ColumnsQuery(schema, table string) (string, []interface{}) {
	return `
SELECT c.column_name, c.data_type, c.is_nullable,
       COALESCE(c.column_default, ''),
       CASE WHEN pk.column_name IS NOT NULL THEN 'PRI' ELSE '' END
FROM information_schema.columns c
LEFT JOIN (
    SELECT kcu.column_name
    FROM information_schema.table_constraints tc
    JOIN information_schema.key_column_usage kcu
        ON tc.constraint_name = kcu.constraint_name
        AND tc.table_schema = kcu.table_schema
    WHERE tc.constraint_type = 'PRIMARY KEY'
        AND tc.table_schema = $1
        AND tc.table_name = $2
) pk ON pk.column_name = c.column_name
WHERE c.table_schema = $1
    AND c.table_name = $2
ORDER BY c.ordinal_position`, []interface{}{schema, table}
}

func (postgresDialect) IndexesQuery(schema, table string) (string, []interface{}) {
	return `
SELECT pi.indexname, pi.indexdef,
       CASE WHEN ix.indisunique THEN 1 ELSE 0 END
FROM pg_catalog.pg_indexes pi
JOIN pg_catalog.pg_class c ON c.relname = pi.indexname AND c.relnamespace = (
    SELECT oid FROM pg_catalog.pg_namespace WHERE nspname = pi.schemaname
)
JOIN pg_catalog.pg_index ix ON ix.indexrelid = c.oid
WHERE pi.schemaname = $1
  AND pi.tablename = $2
ORDER BY pi.indexname`, []interface{}{schema, table}
}

func (postgresDialect) RowCountQuery(schema, table string) (string, []interface{}) {
	return `
SELECT COALESCE(s.n_live_tup, 0)
FROM pg_stat_user_tables s
WHERE s.schemaname = $1 AND s.relname = $2`, []interface{}{schema, table}
}

func (postgresDialect) DatabaseInfoQuery() string {
	return `SELECT current_database(), version()`
}

func (postgresDialect) TableStatsQuery(database string) (string, []interface{}) {
	return `
SELECT c.relname,
       COALESCE(s.n_live_tup, 0),
       ROUND((pg_total_relation_size(c.oid) / 1024.0 / 1024.0)::numeric, 2)
FROM pg_catalog.pg_class c
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
LEFT JOIN pg_stat_user_tables s ON s.relid = c.oid
WHERE c.relkind IN ('r', 'p')
  AND n.nspname NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
ORDER BY c.relname`, nil
}

func (postgresDialect) DefaultSchema(database string) string {
	return "public"
}
