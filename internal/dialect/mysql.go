package dialect

import (
	"net"
	"strconv"

	"github.com/go-sql-driver/mysql"
)

type mysqlDialect struct{}

func (mysqlDialect) Name() string       { return "mysql" }
func (mysqlDialect) DriverName() string { return "mysql" }

func (mysqlDialect) DSN(c ConnSettings) string {
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	cfg.DBName = c.Database
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

func (mysqlDialect) ListTablesQuery(database string) (string, []interface{}) {
	return `
SELECT TABLE_SCHEMA, TABLE_NAME,
       CASE TABLE_TYPE
           WHEN 'BASE TABLE' THEN 'table'
           WHEN 'VIEW' THEN 'view'
           ELSE LOWER(TABLE_TYPE)
       END
FROM information_schema.TABLES
WHERE TABLE_SCHEMA = ?
ORDER BY TABLE_NAME`, []interface{}{database}
}

func (mysqlDialect) ColumnsQuery(schema, table string) (string, []interface{}) {
	return `
SELECT COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE,
       COALESCE(COLUMN_DEFAULT, ''), COLUMN_KEY
FROM information_schema.COLUMNS
WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
ORDER BY ORDINAL_POSITION`, []interface{}{schema, table}
}

func (mysqlDialect) IndexesQuery(schema, table string) (string, []interface{}) {
	return `
SELECT INDEX_NAME,
       GROUP_CONCAT(COLUMN_NAME ORDER BY SEQ_IN_INDEX SEPARATOR ', '),
       CASE WHEN MIN(NON_UNIQUE) = 0 THEN 1 ELSE 0 END
FROM information_schema.STATISTICS
WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
GROUP BY INDEX_NAME
ORDER BY INDEX_NAME`, []interface{}{schema, table}
}

func (mysqlDialect) RowCountQuery(schema, table string) (string, []interface{}) {
	return `
SELECT COALESCE(TABLE_ROWS, 0)
FROM information_schema.TABLES
WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?`, []interface{}{schema, table}
}

func (mysqlDialect) DatabaseInfoQuery() string {
	return `SELECT DATABASE(), VERSION()`
}

func (mysqlDialect) TableStatsQuery(database string) (string, []interface{}) {
	return `
SELECT TABLE_NAME,
       COALESCE(TABLE_ROWS, 0),
       ROUND(((DATA_LENGTH + INDEX_LENGTH) / 1024 / 1024), 2)
FROM information_schema.TABLES
WHERE TABLE_SCHEMA = ?
ORDER BY TABLE_NAME`, []interface{}{database}
}

func (mysqlDialect) DefaultSchema(database string) string {
	// MySQL schemas and databases are the same thing.
	return database
}
