package readonly

import (
	"fmt"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// CheckPostgres cross-checks sql against PostgreSQL's actual parser. The
// keyword scanner in Check is deliberately dialect-agnostic; for the postgres
// dialect we can do better and verify the statement shape on the real AST
// (dollar-quoted strings, nested statements, and friends are handled by the
// parser, not by us).
//
// The query must parse, contain exactly one statement, and that statement
// must be a SELECT without an INTO clause, a SHOW, or an EXPLAIN of such a
// statement.
func CheckPostgres(sql string) error {
	result, err := pg_query.Parse(sql)
	if err != nil {
		return &Violation{Reason: fmt.Sprintf("read-only gate: SQL parse error: %v", err)}
	}
	if len(result.Stmts) == 0 {
		return &Violation{Reason: "read-only violation: empty query"}
	}
	if len(result.Stmts) > 1 {
		return &Violation{Reason: fmt.Sprintf(
			"read-only violation: multi-statement queries are not allowed (found %d statements)", len(result.Stmts))}
	}

	return checkReadOnlyNode(result.Stmts[0].Stmt)
}

// checkReadOnlyNode classifies a single parsed statement node. EXPLAIN
// ANALYZE executes the statement it explains, so the verdict for an
// ExplainStmt is the verdict for its inner node.
func checkReadOnlyNode(node *pg_query.Node) error {
	switch n := node.Node.(type) {
	case *pg_query.Node_SelectStmt:
		if n.SelectStmt.IntoClause != nil {
			return &Violation{Reason: "read-only violation: SELECT INTO creates a table"}
		}
		return nil
	case *pg_query.Node_ExplainStmt:
		if n.ExplainStmt.Query != nil {
			return checkReadOnlyNode(n.ExplainStmt.Query)
		}
		return nil
	case *pg_query.Node_VariableShowStmt:
		return nil
	default:
		return &Violation{Reason: fmt.Sprintf(
			"read-only violation: statement is not read-only (only %s)", AllowedList)}
	}
}
