package lensmcp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DescribeTable returns columns, indexes, and an approximate row count for
// one table. Everything is resolved through parameterized catalog queries —
// the table name is never interpolated into SQL, so no identifier quoting is
// needed and no injection surface exists.
func (d *DataLens) DescribeTable(ctx context.Context, input DescribeTableInput) (*DescribeTableOutput, error) {
	startTime := time.Now()

	if input.Table == "" {
		return nil, fmt.Errorf("table name is required")
	}
	schema := input.Schema
	if schema == "" {
		schema = d.dialect.DefaultSchema(d.config.Connection.Database)
	}

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

	output := &DescribeTableOutput{
		Schema:  schema,
		Name:    input.Table,
		Columns: []ColumnInfo{},
		Indexes: []IndexInfo{},
	}

	// Columns; an empty set means the table does not exist.
	query, args := d.dialect.ColumnsQuery(schema, input.Table)
	rows, err := conn.QueryContext(queryCtx, query, args...)
	if err != nil {
		return nil, &ExecutionError{Err: fmt.Errorf("DescribeTable columns query failed: %w", err)}
	}
	for rows.Next() {
		var name, typ, nullable, def, key string
		if err := rows.Scan(&name, &typ, &nullable, &def, &key); err != nil {
			rows.Close()
			return nil, &ExecutionError{Err: fmt.Errorf("DescribeTable columns scan failed: %w", err)}
		}
		output.Columns = append(output.Columns, ColumnInfo{
			Name:         name,
			Type:         typ,
			Nullable:     nullable == "YES",
			Default:      def,
			IsPrimaryKey: key == "PRI",
		})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, &ExecutionError{Err: err}
	}
	rows.Close()

	if len(output.Columns) == 0 {
		healthy = true
		return nil, fmt.Errorf("table %q not found in schema %q", input.Table, schema)
	}

	// Indexes.
	query, args = d.dialect.IndexesQuery(schema, input.Table)
	rows, err = conn.QueryContext(queryCtx, query, args...)
	if err != nil {
		return nil, &ExecutionError{Err: fmt.Errorf("DescribeTable indexes query failed: %w", err)}
	}
	for rows.Next() {
		var name, detail string
		var unique int
		if err := rows.Scan(&name, &detail, &unique); err != nil {
			rows.Close()
			return nil, &ExecutionError{Err: fmt.Errorf("DescribeTable indexes scan failed: %w", err)}
		}
		output.Indexes = append(output.Indexes, IndexInfo{
			Name:     name,
			Columns:  detail,
			IsUnique: unique == 1,
		})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, &ExecutionError{Err: err}
	}
	rows.Close()

	// Approximate row count from catalog statistics.
	query, args = d.dialect.RowCountQuery(schema, input.Table)
	if err := conn.QueryRowContext(queryCtx, query, args...).Scan(&output.ApproxRows); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, &ExecutionError{Err: fmt.Errorf("DescribeTable row count failed: %w", err)}
		}
		output.ApproxRows = 0
	}
	healthy = queryCtx.Err() == nil

	d.logger.Info().
		Str("table", input.Table).
		Str("schema", schema).
		Dur("duration", time.Since(startTime)).
		Int("column_count", len(output.Columns)).
		Msg("DescribeTable executed")

	return output, nil
}
