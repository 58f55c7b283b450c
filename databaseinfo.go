package lensmcp

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DescribeDatabase builds the textual summary served by the schema resource:
// database identity, connection type, and per-table statistics. Sizes and row
// counts come from catalog statistics, not table scans.
func (d *DataLens) DescribeDatabase(ctx context.Context) (string, error) {
	startTime := time.Now()

	if err := d.acquireSlot(ctx); err != nil {
		return "", err
	}
	defer d.gate.Release(1)

	queryCtx, cancel := context.WithTimeout(ctx, time.Duration(d.config.Query.SchemaTimeoutSeconds)*time.Second)
	defer cancel()

	conn, err := d.db.Conn(queryCtx)
	if err != nil {
		return "", &ConnectError{Err: err}
	}
	healthy := false
	defer func() { releaseConn(conn, healthy) }()

	var dbName, version string
	if err := conn.QueryRowContext(queryCtx, d.dialect.DatabaseInfoQuery()).Scan(&dbName, &version); err != nil {
		return "", &ExecutionError{Err: fmt.Errorf("database info query failed: %w", err)}
	}

	type tableStat struct {
		name   string
		rows   int64
		sizeMB float64
	}
	var stats []tableStat

	query, args := d.dialect.TableStatsQuery(d.config.Connection.Database)
	rows, err := conn.QueryContext(queryCtx, query, args...)
	if err != nil {
		return "", &ExecutionError{Err: fmt.Errorf("table stats query failed: %w", err)}
	}
	defer rows.Close()
	for rows.Next() {
		var s tableStat
		if err := rows.Scan(&s.name, &s.rows, &s.sizeMB); err != nil {
			return "", &ExecutionError{Err: fmt.Errorf("table stats scan failed: %w", err)}
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return "", &ExecutionError{Err: err}
	}
	healthy = queryCtx.Err() == nil

	connectionKind := "Direct"
	if d.config.Tunnel.Enabled {
		connectionKind = "SSH Tunnel"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Database: %s\n", dbName)
	fmt.Fprintf(&b, "Server Version: %s\n", version)
	fmt.Fprintf(&b, "Connection: %s\n", connectionKind)
	fmt.Fprintf(&b, "Total Tables: %d\n", len(stats))
	if len(stats) > 0 {
		fmt.Fprintf(&b, "\nTables:\n")
		fmt.Fprintf(&b, "%-40s %14s %12s\n", "Table", "Approx. Rows", "Size (MB)")
		fmt.Fprintln(&b, strings.Repeat("-", 68))
		for _, s := range stats {
			fmt.Fprintf(&b, "%-40s %14d %12.2f\n", s.name, s.rows, s.sizeMB)
		}
	}

	d.logger.Info().
		Dur("duration", time.Since(startTime)).
		Int("table_count", len(stats)).
		Msg("DescribeDatabase executed")

	return b.String(), nil
}
