// Package timeout resolves per-query execution deadlines from regex rules,
// so known-heavy query shapes can get longer (or shorter) budgets than the
// default.
package timeout

import (
	"fmt"
	"regexp"
	"time"
)

// Rule pairs a SQL regex with a timeout.
type Rule struct {
	Pattern string
	Timeout time.Duration
}

type compiledRule struct {
	pattern *regexp.Regexp
	timeout time.Duration
}

// Resolver picks a timeout for a SQL string. First matching rule wins;
// otherwise the default applies. Immutable after construction.
type Resolver struct {
	rules          []compiledRule
	defaultTimeout time.Duration
}

// NewResolver compiles the rules. Returns an error on an invalid pattern.
func NewResolver(defaultTimeout time.Duration, rules []Rule) (*Resolver, error) {
	compiled := make([]compiledRule, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("timeout: invalid regex pattern %q: %v", r.Pattern, err)
		}
		compiled[i] = compiledRule{pattern: re, timeout: r.Timeout}
	}
	return &Resolver{rules: compiled, defaultTimeout: defaultTimeout}, nil
}

// Resolve returns the timeout for sql and the pattern that selected it
// ("" when the default applied). The pattern is only used for logging.
func (r *Resolver) Resolve(sql string) (time.Duration, string) {
	for _, rule := range r.rules {
		if rule.pattern.MatchString(sql) {
			return rule.timeout, rule.pattern.String()
		}
	}
	return r.defaultTimeout, ""
}
