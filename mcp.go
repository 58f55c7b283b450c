package lensmcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// toolTags maps each tool to its capability tags. The tags are static
// metadata consulted by the access-control middleware; they never change at
// runtime.
var toolTags = map[string][]string{
	"query":          {"database", "read-only"},
	"list_tables":    {"database", "schema"},
	"describe_table": {"database", "schema"},
	"plot_graph":     {"database", "visualization"},
}

// resourceTags and promptTags play the same role for the non-tool surfaces.
var (
	schemaResourceTags     = []string{"database", "schema"}
	reportPromptTags       = []string{"database", "reporting"}
	queryBuilderPromptTags = []string{"database", "query"}
)

// ToolTags returns the capability tags of a tool (nil for unknown names).
func ToolTags(name string) []string {
	return toolTags[name]
}

// AuthzMiddleware returns a tool-handler middleware that evaluates every
// tool call against the static tag policy before the handler runs. A denied
// call is answered immediately — it never reaches the handler, so it never
// acquires a pooled connection.
func (d *DataLens) AuthzMiddleware() server.ToolHandlerMiddleware {
	return func(next server.ToolHandlerFunc) server.ToolHandlerFunc {
		return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			name := req.Params.Name
			if err := d.policy.Authorize(name, ToolTags(name)); err != nil {
				d.logger.Warn().Str("tool", name).Err(err).Msg("tool call denied by policy")
				return mcp.NewToolResultError(err.Error()), nil
			}
			return next(ctx, req)
		}
	}
}

// RegisterMCPTools registers query, list_tables, describe_table, and
// plot_graph as MCP tools on the given MCP server.
func RegisterMCPTools(mcpServer *server.MCPServer, lens *DataLens) {
	queryTool := mcp.NewTool("query",
		mcp.WithDescription("Execute a read-only SQL query (SELECT, SHOW, DESCRIBE, EXPLAIN) and return results as JSON."),
		mcp.WithString("sql",
			mcp.Required(),
			mcp.Description("The SQL query to execute (read-only only)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(queryTool, lens.loggedToolHandler("query", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sqlText, err := req.RequireString("sql")
		if err != nil {
			return mcp.NewToolResultError("sql parameter is required"), nil
		}
		output := lens.Query(ctx, QueryInput{SQL: sqlText})
		if output.Error != "" {
			return mcp.NewToolResultError(output.Error), nil
		}
		jsonBytes, err := json.Marshal(output)
		if err != nil {
			return mcp.NewToolResultError("failed to marshal query result"), nil
		}
		return mcp.NewToolResultText(string(jsonBytes)), nil
	}))

	listTablesTool := mcp.NewTool("list_tables",
		mcp.WithDescription("List all tables and views in the connected database."),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(listTablesTool, lens.loggedToolHandler("list_tables", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		output, err := lens.ListTables(ctx, ListTablesInput{})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		jsonBytes, err := json.Marshal(output)
		if err != nil {
			return mcp.NewToolResultError("failed to marshal list tables result"), nil
		}
		return mcp.NewToolResultText(string(jsonBytes)), nil
	}))

	describeTableTool := mcp.NewTool("describe_table",
		mcp.WithDescription("Describe the schema of a table: columns, types, indexes, and approximate row count."),
		mcp.WithString("table",
			mcp.Required(),
			mcp.Description("The table name to describe"),
		),
		mcp.WithString("schema",
			mcp.Description("The schema name (defaults to the connected database's default schema)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(describeTableTool, lens.loggedToolHandler("describe_table", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		table, err := req.RequireString("table")
		if err != nil {
			return mcp.NewToolResultError("table parameter is required"), nil
		}
		schema := req.GetString("schema", "")

		output, err := lens.DescribeTable(ctx, DescribeTableInput{Table: table, Schema: schema})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		jsonBytes, err := json.Marshal(output)
		if err != nil {
			return mcp.NewToolResultError("failed to marshal describe table result"), nil
		}
		return mcp.NewToolResultText(string(jsonBytes)), nil
	}))

	plotGraphTool := mcp.NewTool("plot_graph",
		mcp.WithDescription("Execute a read-only SQL query and render a chart (bar, line, pie, or scatter) as a PNG image."),
		mcp.WithString("sql",
			mcp.Required(),
			mcp.Description("SQL SELECT query supplying the data"),
		),
		mcp.WithString("chart_type",
			mcp.Required(),
			mcp.Description("Chart type: bar, line, pie, or scatter"),
		),
		mcp.WithString("x_column",
			mcp.Required(),
			mcp.Description("Column for the x-axis (labels for pie charts)"),
		),
		mcp.WithString("y_column",
			mcp.Required(),
			mcp.Description("Column for the y-axis (values for pie charts)"),
		),
		mcp.WithString("title",
			mcp.Description("Optional chart title"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(plotGraphTool, lens.loggedToolHandler("plot_graph", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		input := ChartInput{
			Title: req.GetString("title", ""),
		}
		var err error
		if input.SQL, err = req.RequireString("sql"); err != nil {
			return mcp.NewToolResultError("sql parameter is required"), nil
		}
		if input.ChartType, err = req.RequireString("chart_type"); err != nil {
			return mcp.NewToolResultError("chart_type parameter is required"), nil
		}
		if input.XColumn, err = req.RequireString("x_column"); err != nil {
			return mcp.NewToolResultError("x_column parameter is required"), nil
		}
		if input.YColumn, err = req.RequireString("y_column"); err != nil {
			return mcp.NewToolResultError("y_column parameter is required"), nil
		}

		png, err := lens.PlotGraph(ctx, input)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultImage(
			fmt.Sprintf("%s chart (%s vs %s)", input.ChartType, input.XColumn, input.YColumn),
			base64.StdEncoding.EncodeToString(png),
			"image/png",
		), nil
	}))
}

// SchemaResourceURI returns the URI of the database summary resource, e.g.
// mysql://schema/analytics.
func (d *DataLens) SchemaResourceURI() string {
	return fmt.Sprintf("%s://schema/%s", d.dialect.Name(), d.config.Connection.Database)
}

// RegisterMCPResources registers the database summary resource. mcp-go's
// middleware hook only covers tools, so the policy check runs at the top of
// the handler — still before any connection is acquired.
func RegisterMCPResources(mcpServer *server.MCPServer, lens *DataLens) {
	resource := mcp.NewResource(lens.SchemaResourceURI(), "Database Information",
		mcp.WithResourceDescription("Overall database information: all tables with approximate row counts and sizes."),
		mcp.WithMIMEType("text/plain"),
	)

	mcpServer.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		if err := lens.policy.Authorize("database_info", schemaResourceTags); err != nil {
			lens.logger.Warn().Err(err).Msg("resource read denied by policy")
			return nil, err
		}
		text, err := lens.DescribeDatabase(ctx)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "text/plain",
				Text:     text,
			},
		}, nil
	})
}

// RegisterMCPPrompts registers the report and query-builder prompt templates.
func RegisterMCPPrompts(mcpServer *server.MCPServer, lens *DataLens) {
	reportPrompt := mcp.NewPrompt("generate_report",
		mcp.WithPromptDescription("Generate a comprehensive data analysis report for a specific table."),
		mcp.WithArgument("table_name",
			mcp.RequiredArgument(),
			mcp.ArgumentDescription("Name of the table to analyze"),
		),
		mcp.WithArgument("metrics",
			mcp.ArgumentDescription("Specific metrics to focus on (default: all)"),
		),
	)

	mcpServer.AddPrompt(reportPrompt, func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		if err := lens.policy.Authorize("generate_report", reportPromptTags); err != nil {
			return nil, err
		}
		table := req.Params.Arguments["table_name"]
		if table == "" {
			return nil, fmt.Errorf("table_name argument is required")
		}
		text := ReportPrompt(table, req.Params.Arguments["metrics"])
		return mcp.NewGetPromptResult(
			"Data analysis report template",
			[]mcp.PromptMessage{
				mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(text)),
			},
		), nil
	})

	builderPrompt := mcp.NewPrompt("query_builder",
		mcp.WithPromptDescription("Generate optimized SQL queries for common data analysis tasks."),
		mcp.WithArgument("table_name",
			mcp.RequiredArgument(),
			mcp.ArgumentDescription("Name of the table to query"),
		),
		mcp.WithArgument("task",
			mcp.ArgumentDescription("Task type: explore, aggregate, trend, or compare"),
		),
		mcp.WithArgument("conditions",
			mcp.ArgumentDescription("Optional WHERE clause conditions"),
		),
	)

	mcpServer.AddPrompt(builderPrompt, func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		if err := lens.policy.Authorize("query_builder", queryBuilderPromptTags); err != nil {
			return nil, err
		}
		table := req.Params.Arguments["table_name"]
		if table == "" {
			return nil, fmt.Errorf("table_name argument is required")
		}
		text := QueryBuilderPrompt(table, req.Params.Arguments["task"], req.Params.Arguments["conditions"])
		return mcp.NewGetPromptResult(
			"SQL query builder template",
			[]mcp.PromptMessage{
				mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(text)),
			},
		), nil
	})
}

// loggedToolHandler wraps a tool handler to log request and response sizes.
func (d *DataLens) loggedToolHandler(tool string, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		reqLen := requestLength(req)
		result, err := handler(ctx, req)
		respLen := resultLength(result)
		d.logger.Info().
			Str("tool", tool).
			Int("request_bytes", reqLen).
			Int("response_bytes", respLen).
			Msg("tool call")
		return result, err
	}
}

// requestLength returns the JSON-encoded byte length of the request arguments.
func requestLength(req mcp.CallToolRequest) int {
	args := req.GetArguments()
	if len(args) == 0 {
		return 0
	}
	b, err := json.Marshal(args)
	if err != nil {
		return 0
	}
	return len(b)
}

// resultLength returns the total byte length of text content in a CallToolResult.
func resultLength(result *mcp.CallToolResult) int {
	if result == nil {
		return 0
	}
	total := 0
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			total += len(tc.Text)
		}
	}
	return total
}
