// Package errprompt appends operator-configured guidance to error messages
// that match known patterns. The original error text is always preserved
// verbatim; guidance is only ever appended after it.
package errprompt

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule pairs an error-message regex with a guidance message.
type Rule struct {
	Pattern string
	Message string
}

type compiledRule struct {
	pattern *regexp.Regexp
	message string
}

// Matcher evaluates error messages against the rule list, top to bottom.
type Matcher struct {
	rules []compiledRule
}

// NewMatcher compiles the rules. Returns an error on an invalid pattern.
func NewMatcher(rules []Rule) (*Matcher, error) {
	compiled := make([]compiledRule, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("errprompt: invalid regex pattern %q: %v", r.Pattern, err)
		}
		compiled[i] = compiledRule{pattern: re, message: r.Message}
	}
	return &Matcher{rules: compiled}, nil
}

// Apply returns errMsg with all matching guidance messages appended, plus the
// patterns that matched (for logging). With no match it returns errMsg
// unchanged and a nil slice.
func (m *Matcher) Apply(errMsg string) (string, []string) {
	var messages []string
	var patterns []string
	for _, rule := range m.rules {
		if rule.pattern.MatchString(errMsg) {
			messages = append(messages, rule.message)
			patterns = append(patterns, rule.pattern.String())
		}
	}
	if len(messages) == 0 {
		return errMsg, nil
	}
	return errMsg + "\n\n" + strings.Join(messages, "\n"), patterns
}
