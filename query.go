package lensmcp

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/datalens/lensmcp/internal/readonly"
)

// Query executes the full read-only query pipeline and returns only a
// QueryOutput. All failures (read-only rejections, pool exhaustion, driver
// errors) are converted to output.Error after evaluation against the
// error_prompts rules, so callers only check output.Error.
//
// Pipeline order matters: the read-only verdict is decided before a
// connection slot is claimed, so a rejected query never touches the pool.
func (d *DataLens) Query(ctx context.Context, input QueryInput) *QueryOutput {
	startTime := time.Now()
	sqlText := input.SQL

	// 1. Length check before any parsing.
	if len(sqlText) > d.config.Query.MaxSQLLength {
		return d.handleError(fmt.Errorf("SQL query too long: %d bytes exceeds maximum of %d bytes",
			len(sqlText), d.config.Query.MaxSQLLength))
	}

	// 2. Read-only verdict.
	if err := d.checkReadOnly(sqlText); err != nil {
		return d.handleError(err)
	}

	// 3. Resolve the execution deadline.
	execTimeout, timeoutRule := d.timeouts.Resolve(sqlText)

	// 4. Claim a connection slot, then pin a connection.
	if err := d.acquireSlot(ctx); err != nil {
		return d.handleError(err)
	}
	defer d.gate.Release(1)

	queryCtx, cancel := context.WithTimeout(ctx, execTimeout)
	defer cancel()

	conn, err := d.db.Conn(queryCtx)
	if err != nil {
		return d.handleError(&ConnectError{Err: err})
	}
	healthy := false
	defer func() { releaseConn(conn, healthy) }()

	// 5. Execute and collect, bounded by the row cap.
	rows, err := conn.QueryContext(queryCtx, sqlText)
	if err != nil {
		return d.handleError(&ExecutionError{Err: err})
	}
	output, err := d.collectRows(rows)
	if err != nil {
		return d.handleError(&ExecutionError{Err: err})
	}
	healthy = queryCtx.Err() == nil

	// 6. Post-process: mask sensitive values, cap the serialized size.
	d.masker.Rows(output.Rows)
	d.truncateIfNeeded(output)

	logEvent := d.logger.Info().
		Str("sql", truncateForLog(sqlText, 200)).
		Dur("duration", time.Since(startTime)).
		Int("row_count", output.RowCount)
	if timeoutRule != "" {
		logEvent = logEvent.Str("timeout_rule", timeoutRule)
	}
	if output.Truncated {
		logEvent = logEvent.Bool("truncated", true)
	}
	if d.masker.Active() {
		logEvent = logEvent.Bool("masked", true)
	}
	logEvent.Msg("query executed")

	return output
}

// checkReadOnly applies the keyword/stacked-statement scanner, and for the
// postgres dialect additionally verifies the statement shape on the real
// PostgreSQL AST.
func (d *DataLens) checkReadOnly(sqlText string) error {
	if err := readonly.Check(sqlText); err != nil {
		return err
	}
	if d.dialect.Name() == "postgres" {
		return readonly.CheckPostgres(sqlText)
	}
	return nil
}

// collectRows reads up to max_rows rows into column-keyed maps. When the cap
// is hit the output is flagged Truncated and the remaining rows are left
// unread.
func (d *DataLens) collectRows(rows *sql.Rows) (*QueryOutput, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	values := make([]interface{}, len(columns))
	scanArgs := make([]interface{}, len(columns))
	for i := range values {
		scanArgs[i] = &values[i]
	}

	resultRows := make([]map[string]interface{}, 0)
	truncated := false
	for rows.Next() {
		if len(resultRows) >= d.config.Query.MaxRows {
			truncated = true
			break
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = convertValue(values[i])
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &QueryOutput{
		Columns:   columns,
		Rows:      resultRows,
		RowCount:  len(resultRows),
		Truncated: truncated,
	}, nil
}

// convertValue converts a database/sql-returned value to a JSON-friendly Go
// type. The MySQL driver hands back []byte for text columns; those become
// strings when they are valid UTF-8 and base64 otherwise.
func convertValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case []byte:
		if utf8.Valid(val) {
			return string(val)
		}
		return base64.StdEncoding.EncodeToString(val)
	case float32:
		return convertFloat(float64(val))
	case float64:
		return convertFloat(val)
	default:
		return val
	}
}

// convertFloat maps NaN and infinities to strings, which JSON cannot carry
// as numbers.
func convertFloat(f float64) interface{} {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	default:
		return f
	}
}

// handleError converts any pipeline error into a QueryOutput with an error
// message. The original message is preserved verbatim; matching error_prompts
// guidance is appended after it.
func (d *DataLens) handleError(err error) *QueryOutput {
	annotated, patterns := d.errPrompts.Apply(err.Error())

	logEvent := d.logger.Error().Err(err)
	if len(patterns) > 0 {
		logEvent = logEvent.Strs("error_prompts", patterns)
	}
	logEvent.Msg("query error")

	return &QueryOutput{Error: annotated}
}

// truncateIfNeeded truncates query output rows if their JSON form exceeds
// max_result_length characters.
func (d *DataLens) truncateIfNeeded(output *QueryOutput) {
	jsonBytes, _ := json.Marshal(output.Rows)
	jsonStr := string(jsonBytes)
	if utf8.RuneCountInString(jsonStr) <= d.config.Query.MaxResultLength {
		return
	}
	runes := []rune(jsonStr)
	output.Rows = nil
	output.Truncated = true
	output.Error = string(runes[:d.config.Query.MaxResultLength]) +
		"...[truncated] Result is too long! Add limits in your query!"
}

// truncateForLog truncates a string for log output to avoid oversized log
// entries.
func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	truncateAt := maxLen
	for truncateAt > 0 && !utf8.RuneStart(s[truncateAt]) {
		truncateAt--
	}
	return s[:truncateAt] + "...[truncated]"
}
