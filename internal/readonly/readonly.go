// Package readonly classifies SQL statements as read-only or not. It is the
// gate in front of every query-shaped tool: only SELECT, SHOW, DESCRIBE and
// EXPLAIN statements pass, and stacked statements hidden behind an allowed
// first keyword are rejected as well.
package readonly

import (
	"fmt"
	"strings"
)

// Violation is the rejection verdict. It is a caller-input problem, never
// retried and never fatal to the process.
type Violation struct {
	Reason string
}

func (v *Violation) Error() string {
	return v.Reason
}

var allowedKeywords = map[string]bool{
	"SELECT":   true,
	"SHOW":     true,
	"DESCRIBE": true,
	"DESC":     true,
	"EXPLAIN":  true,
}

// AllowedList is the human-readable allowlist used in rejection messages.
const AllowedList = "SELECT, SHOW, DESCRIBE, EXPLAIN"

// Check returns nil if sql is a read-only statement, or a *Violation.
//
// A first-keyword check alone is not enough: "SELECT 1; DROP TABLE x" starts
// with an allowed keyword but stacks a write behind a statement terminator.
// Check therefore splits the input on terminators (aware of quoting and
// comments) and requires every non-empty statement to start with an allowed
// keyword. Pure function, safe for concurrent use.
func Check(sql string) error {
	stmts := splitStatements(sql)

	checked := 0
	for _, stmt := range stmts {
		kw := firstKeyword(stmt)
		if kw == "" {
			continue
		}
		checked++
		if !allowedKeywords[kw] {
			return &Violation{Reason: fmt.Sprintf(
				"read-only violation: %s statements are not allowed (only %s)", kw, AllowedList)}
		}
		if kw == "EXPLAIN" {
			if v := checkExplainTarget(explainRest(stmt)); v != nil {
				return v
			}
		}
		if hasIntoFileTarget(stmt) {
			return &Violation{Reason: "read-only violation: INTO OUTFILE/DUMPFILE writes server-side files"}
		}
	}
	if checked == 0 {
		return &Violation{Reason: "read-only violation: empty query"}
	}
	return nil
}

// splitStatements splits sql on ';' terminators that appear outside string
// literals, quoted identifiers, and comments. Comment bodies are dropped so
// a keyword cannot hide behind them.
func splitStatements(sql string) []string {
	var stmts []string
	var cur strings.Builder

	i := 0
	n := len(sql)
	for i < n {
		c := sql[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			// quoted region: copy until the matching unescaped quote
			end := skipQuoted(sql, i)
			cur.WriteString(sql[i:end])
			i = end
		case c == '-' && i+1 < n && sql[i+1] == '-':
			i = skipLineComment(sql, i+2)
			cur.WriteByte(' ')
		case c == '#':
			i = skipLineComment(sql, i+1)
			cur.WriteByte(' ')
		case c == '/' && i+1 < n && sql[i+1] == '*':
			i = skipBlockComment(sql, i+2)
			cur.WriteByte(' ')
		case c == ';':
			stmts = append(stmts, cur.String())
			cur.Reset()
			i++
		default:
			cur.WriteByte(c)
			i++
		}
	}
	stmts = append(stmts, cur.String())
	return stmts
}

// skipQuoted returns the index just past the quoted region starting at i
// (s[i] is the opening quote). Backslash escapes and doubled quotes stay
// inside the region (MySQL string syntax).
func skipQuoted(s string, i int) int {
	quote := s[i]
	i++
	for i < len(s) {
		switch {
		case s[i] == '\\' && i+1 < len(s):
			i += 2
		case s[i] == quote:
			if i+1 < len(s) && s[i+1] == quote {
				i += 2
				continue
			}
			return i + 1
		default:
			i++
		}
	}
	return i
}

func skipLineComment(sql string, i int) int {
	for i < len(sql) && sql[i] != '\n' {
		i++
	}
	return i
}

func skipBlockComment(sql string, i int) int {
	for i+1 < len(sql) {
		if sql[i] == '*' && sql[i+1] == '/' {
			return i + 2
		}
		i++
	}
	return len(sql)
}

// firstKeyword returns the first SQL keyword of stmt, uppercased. Comments
// have already been stripped by splitStatements. Returns "" for blank input.
func firstKeyword(stmt string) string {
	stmt = strings.TrimSpace(stmt)
	if stmt == "" {
		return ""
	}
	end := 0
	for end < len(stmt) && isKeywordChar(stmt[end]) {
		end++
	}
	if end == 0 {
		// starts with punctuation, e.g. "(SELECT ...)" — peel parens
		if stmt[0] == '(' {
			return firstKeyword(stmt[1:])
		}
		return strings.ToUpper(stmt[:1])
	}
	return strings.ToUpper(stmt[:end])
}

func isKeywordChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

// explainRest returns the text following the leading EXPLAIN keyword of stmt,
// peeling the same parentheses firstKeyword peels.
func explainRest(stmt string) string {
	stmt = strings.TrimSpace(stmt)
	for len(stmt) > 0 && stmt[0] == '(' {
		stmt = strings.TrimSpace(stmt[1:])
	}
	i := 0
	for i < len(stmt) && isKeywordChar(stmt[i]) {
		i++
	}
	return stmt[i:]
}

// checkExplainTarget validates what an EXPLAIN statement explains. EXPLAIN
// ANALYZE executes the inner statement for real on both MySQL 8 and
// PostgreSQL, so EXPLAIN is only read-only when its target is. Explain
// options (ANALYZE, VERBOSE, FORMAT=..., parenthesized option lists) are
// skipped; the target must then start with an allowed keyword, or be a bare
// table reference (the MySQL "EXPLAIN tbl_name" describe form).
func checkExplainTarget(rest string) *Violation {
	for {
		rest = strings.TrimSpace(rest)
		if rest == "" {
			return &Violation{Reason: "read-only violation: EXPLAIN without a statement"}
		}
		if rest[0] == '(' {
			// parenthesized option list, e.g. (ANALYZE, FORMAT JSON)
			depth := 0
			i := 0
			for ; i < len(rest); i++ {
				if rest[i] == '(' {
					depth++
				}
				if rest[i] == ')' {
					depth--
					if depth == 0 {
						i++
						break
					}
				}
			}
			rest = rest[i:]
			continue
		}
		word, after := splitLeadingWord(rest)
		switch strings.ToUpper(word) {
		case "ANALYZE", "VERBOSE":
			rest = after
			continue
		case "FORMAT":
			after = strings.TrimSpace(after)
			if strings.HasPrefix(after, "=") {
				_, after = splitLeadingWord(strings.TrimSpace(after[1:]))
			}
			rest = after
			continue
		}
		break
	}

	kw := firstKeyword(rest)
	switch {
	case kw == "EXPLAIN":
		return checkExplainTarget(explainRest(rest))
	case allowedKeywords[kw]:
		return nil
	case isBareTableRef(rest):
		return nil
	}
	return &Violation{Reason: fmt.Sprintf(
		"read-only violation: EXPLAIN of a %s statement is not allowed (only %s)", kw, AllowedList)}
}

func splitLeadingWord(s string) (string, string) {
	i := 0
	for i < len(s) && isKeywordChar(s[i]) {
		i++
	}
	return s[:i], s[i:]
}

// isBareTableRef reports whether s is a single table reference with nothing
// after it. A lone identifier can never be an executable write, so the
// describe form of EXPLAIN stays allowed.
func isBareTableRef(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isKeywordChar(c) || (c >= '0' && c <= '9') || c == '.' || c == '$' || c == '`' || c == '"' {
			continue
		}
		return false
	}
	return true
}

// hasIntoFileTarget reports whether stmt (comments already stripped by
// splitStatements) contains INTO OUTFILE or INTO DUMPFILE outside string
// literals. Both write files on the database server.
func hasIntoFileTarget(stmt string) bool {
	prev := ""
	i := 0
	for i < len(stmt) {
		c := stmt[i]
		if c == '\'' || c == '"' || c == '`' {
			i = skipQuoted(stmt, i)
			prev = ""
			continue
		}
		if isKeywordChar(c) {
			start := i
			for i < len(stmt) && isKeywordChar(stmt[i]) {
				i++
			}
			word := strings.ToUpper(stmt[start:i])
			if prev == "INTO" && (word == "OUTFILE" || word == "DUMPFILE") {
				return true
			}
			prev = word
			continue
		}
		i++
	}
	return false
}
