// Package policy implements static capability-tag access control. Every
// inbound invocation (tool call, resource read, prompt render) carries a set
// of capability tags; the policy maps tags to allow/deny and is consulted
// before any database interaction.
package policy

import (
	"fmt"
)

// Denial is the structured rejection returned by Authorize. It is resolved
// entirely within the server and returned to the caller, never fatal.
type Denial struct {
	Invocation string
	Tag        string
}

func (d *Denial) Error() string {
	return fmt.Sprintf("access denied: %q requires the %q capability, which this policy denies", d.Invocation, d.Tag)
}

// Policy is an immutable tag -> allow/deny table, built once at startup.
// Rules for unknown tags default to allow; the "private" tag defaults to
// deny unless the policy explicitly allows it.
type Policy struct {
	allow map[string]bool
}

// New builds a Policy from a tag -> "allow"|"deny" map. Any other rule value
// is an error.
func New(rules map[string]string) (*Policy, error) {
	allow := make(map[string]bool, len(rules)+1)
	allow["private"] = false
	for tag, rule := range rules {
		switch rule {
		case "allow":
			allow[tag] = true
		case "deny":
			allow[tag] = false
		default:
			return nil, fmt.Errorf("policy: rule for tag %q must be \"allow\" or \"deny\", got %q", tag, rule)
		}
	}
	return &Policy{allow: allow}, nil
}

// Authorize checks the invocation's tags against the policy. Deny takes
// precedence over allow: a single denied tag rejects the invocation even if
// every other tag is allowed. Stateless and safe for concurrent use.
func (p *Policy) Authorize(invocation string, tags []string) error {
	for _, tag := range tags {
		if allowed, known := p.allow[tag]; known && !allowed {
			return &Denial{Invocation: invocation, Tag: tag}
		}
	}
	return nil
}
