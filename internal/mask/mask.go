// Package mask rewrites sensitive string values in result rows using
// operator-configured regex rules (phone numbers, emails, tokens). Masking
// happens after execution and before the result leaves the server.
package mask

import (
	"fmt"
	"regexp"
)

// Rule pairs a value regex with its replacement.
type Rule struct {
	Pattern     string
	Replacement string
}

type compiledRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Masker applies the rules to every string value in a row set, recursing
// into nested maps and arrays (JSON columns).
type Masker struct {
	rules []compiledRule
}

// NewMasker compiles the rules. Returns an error on an invalid pattern.
func NewMasker(rules []Rule) (*Masker, error) {
	compiled := make([]compiledRule, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("mask: invalid regex pattern %q: %v", r.Pattern, err)
		}
		compiled[i] = compiledRule{pattern: re, replacement: r.Replacement}
	}
	return &Masker{rules: compiled}, nil
}

// Active reports whether any rules are configured.
func (m *Masker) Active() bool {
	return len(m.rules) > 0
}

// Rows masks every value in rows in place and returns rows for chaining.
func (m *Masker) Rows(rows []map[string]interface{}) []map[string]interface{} {
	if !m.Active() {
		return rows
	}
	for _, row := range rows {
		for k, v := range row {
			row[k] = m.value(v)
		}
	}
	return rows
}

func (m *Masker) value(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		for _, rule := range m.rules {
			val = rule.pattern.ReplaceAllString(val, rule.replacement)
		}
		return val
	case map[string]interface{}:
		for k, nested := range val {
			val[k] = m.value(nested)
		}
		return val
	case []interface{}:
		for i, nested := range val {
			val[i] = m.value(nested)
		}
		return val
	default:
		// numbers, bools, nil pass through untouched
		return v
	}
}
