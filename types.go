package lensmcp

// QueryInput is the input for the query tool.
type QueryInput struct {
	SQL string `json:"sql"`
}

// QueryOutput is the output of the query tool. All failures (driver errors,
// read-only rejections, pool exhaustion) are placed in Error after being
// evaluated against error_prompts; callers only check Error, never a Go error.
type QueryOutput struct {
	Columns   []string                 `json:"columns"`
	Rows      []map[string]interface{} `json:"rows"`
	RowCount  int                      `json:"row_count"`
	Truncated bool                     `json:"truncated,omitempty"`
	Error     string                   `json:"error,omitempty"`
}

// ListTablesInput is the input for the list_tables tool.
type ListTablesInput struct{}

// TableEntry represents a single table or view in the ListTables output.
type TableEntry struct {
	Schema string `json:"schema"`
	Name   string `json:"name"`
	Type   string `json:"type"` // "table", "view", "materialized_view", ...
}

// ListTablesOutput is the output of the list_tables tool.
type ListTablesOutput struct {
	Tables []TableEntry `json:"tables"`
	Count  int          `json:"count"`
}

// DescribeTableInput is the input for the describe_table tool.
type DescribeTableInput struct {
	Table  string `json:"table"`
	Schema string `json:"schema"` // defaults to the dialect's default schema
}

// ColumnInfo describes a single column.
type ColumnInfo struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Nullable     bool   `json:"nullable"`
	Default      string `json:"default,omitempty"`
	IsPrimaryKey bool   `json:"is_primary_key"`
}

// IndexInfo describes a single index.
type IndexInfo struct {
	Name     string `json:"name"`
	Columns  string `json:"columns"`
	IsUnique bool   `json:"is_unique"`
}

// DescribeTableOutput is the output of the describe_table tool. ApproxRows
// comes from catalog statistics, not a COUNT(*) scan.
type DescribeTableOutput struct {
	Schema     string       `json:"schema"`
	Name       string       `json:"name"`
	Columns    []ColumnInfo `json:"columns"`
	Indexes    []IndexInfo  `json:"indexes"`
	ApproxRows int64        `json:"approx_rows"`
}

// ChartInput is the input for the plot_graph tool.
type ChartInput struct {
	SQL       string `json:"sql"`
	ChartType string `json:"chart_type"` // "bar", "line", "pie", "scatter"
	XColumn   string `json:"x_column"`
	YColumn   string `json:"y_column"`
	Title     string `json:"title"`
}
