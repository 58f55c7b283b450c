package errprompt

import (
	"strings"
	"testing"
)

func TestApplyNoMatch(t *testing.T) {
	t.Parallel()
	m, err := NewMatcher([]Rule{{Pattern: "deadlock", Message: "Retry later."}})
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}
	msg, patterns := m.Apply("syntax error at line 1")
	if msg != "syntax error at line 1" {
		t.Fatalf("Apply = %q, want unchanged message", msg)
	}
	if patterns != nil {
		t.Fatalf("Apply patterns = %v, want nil", patterns)
	}
}

func TestApplyPreservesOriginalAndAppends(t *testing.T) {
	t.Parallel()
	m, err := NewMatcher([]Rule{
		{Pattern: "Unknown column", Message: "Check the schema with describe_table."},
	})
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}
	original := "Unknown column 'foo' in 'field list'"
	msg, patterns := m.Apply(original)
	if !strings.HasPrefix(msg, original) {
		t.Fatalf("Apply = %q, original message must stay verbatim at the front", msg)
	}
	if !strings.HasSuffix(msg, "Check the schema with describe_table.") {
		t.Fatalf("Apply = %q, guidance missing from the end", msg)
	}
	if len(patterns) != 1 || patterns[0] != "Unknown column" {
		t.Fatalf("Apply patterns = %v, want [Unknown column]", patterns)
	}
}

func TestApplyMultipleMatches(t *testing.T) {
	t.Parallel()
	m, err := NewMatcher([]Rule{
		{Pattern: "timeout", Message: "Add a LIMIT clause."},
		{Pattern: "context deadline", Message: "The query exceeded its time budget."},
	})
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}
	msg, patterns := m.Apply("timeout: context deadline exceeded")
	if !strings.Contains(msg, "Add a LIMIT clause.") || !strings.Contains(msg, "The query exceeded its time budget.") {
		t.Fatalf("Apply = %q, want both guidance messages", msg)
	}
	if len(patterns) != 2 {
		t.Fatalf("Apply patterns = %v, want 2 entries", patterns)
	}
}

func TestNewMatcherInvalidPattern(t *testing.T) {
	t.Parallel()
	_, err := NewMatcher([]Rule{{Pattern: "[bad(", Message: "x"}})
	if err == nil {
		t.Fatal("NewMatcher = nil error, want invalid regex error")
	}
}
