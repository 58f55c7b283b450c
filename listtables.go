package lensmcp

import (
	"context"
	"fmt"
	"time"
)

// ListTables returns all tables and views visible to the connected user.
// The SQL is fixed, dialect-supplied, and read-only; it runs through the same
// slot gate and connection path as ad-hoc queries.
func (d *DataLens) ListTables(ctx context.Context, input ListTablesInput) (*ListTablesOutput, error) {
	startTime := time.Now()

	if err := d.acquireSlot(ctx); err != nil {
		return nil, err
	}
	defer d.gate.Release(1)

	queryCtx, cancel := context.WithTimeout(ctx, time.Duration(d.config.Query.SchemaTimeoutSeconds)*time.Second)
	defer cancel()

	conn, err := d.db.Conn(queryCtx)
	if err != nil {
		return nil, &ConnectError{Err: err}
	}
	healthy := false
	defer func() { releaseConn(conn, healthy) }()

	query, args := d.dialect.ListTablesQuery(d.config.Connection.Database)
	rows, err := conn.QueryContext(queryCtx, query, args...)
	if err != nil {
		return nil, &ExecutionError{Err: fmt.Errorf("ListTables query failed: %w", err)}
	}
	defer rows.Close()

	tables := []TableEntry{}
	for rows.Next() {
		var entry TableEntry
		if err := rows.Scan(&entry.Schema, &entry.Name, &entry.Type); err != nil {
			return nil, &ExecutionError{Err: fmt.Errorf("ListTables scan failed: %w", err)}
		}
		tables = append(tables, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, &ExecutionError{Err: fmt.Errorf("ListTables rows error: %w", err)}
	}
	healthy = queryCtx.Err() == nil

	d.logger.Info().
		Dur("duration", time.Since(startTime)).
		Int("table_count", len(tables)).
		Msg("ListTables executed")

	return &ListTablesOutput{Tables: tables, Count: len(tables)}, nil
}
