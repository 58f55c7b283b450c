// Package lensmcp provides safe, read-only database analytics for AI agents
// through the Model Context Protocol (MCP).
//
// It exposes four tools — Query, ListTables, DescribeTable, and PlotGraph —
// plus a database summary resource and analysis prompt templates, over MySQL
// or PostgreSQL, optionally through an SSH tunnel.
//
// Every query passes a read-only gate before touching the database: the first
// keyword of each statement must be SELECT, SHOW, DESCRIBE, or EXPLAIN, and
// stacked statements are rejected as a whole. For PostgreSQL the verdict is
// additionally cross-checked against the real PostgreSQL AST via pg_query.
// Results are capped at a configurable row limit, sensitive values can be
// masked by regex rules, and a static capability-tag policy can deny whole
// tool categories before a connection is ever acquired.
//
// # Library Usage
//
//	lens, err := lensmcp.New(ctx, lensmcp.Config{
//		Driver: "mysql",
//		Connection: lensmcp.ConnectionConfig{
//			Host:     "localhost",
//			User:     "analytics_ro",
//			Database: "analytics",
//		},
//		Pool: lensmcp.PoolConfig{MaxConns: 5},
//	}, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer lens.Close(ctx)
//
//	// Use directly
//	output := lens.Query(ctx, lensmcp.QueryInput{SQL: "SELECT * FROM orders LIMIT 10"})
//
//	// Or register as MCP tools
//	lensmcp.RegisterMCPTools(mcpServer, lens)
//
// # SSH Tunnel
//
// When Tunnel.Enabled is set the engine dials the bastion, opens a local
// loopback forward, and points the connection pool at it. Exactly one of
// Tunnel.KeyPath and Tunnel.Password must be configured; a tunnel failure at
// startup is fatal. On Close the pool drains before the tunnel drops, so
// in-flight queries are never cut mid-stream.
package lensmcp
