package errhint

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule maps a database error message pattern to an operator hint.
type Rule struct {
	Pattern string
	Hint    string
}

type compiledRule struct {
	pattern *regexp.Regexp
	hint    string
}

// Matcher looks up hints for execution error messages. Immutable after
// construction.
type Matcher struct {
	rules []compiledRule
}

// NewMatcher compiles rules in order. Returns an error on invalid regex
// patterns or an empty hint.
func NewMatcher(rules []Rule) (*Matcher, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("errhint: invalid regex pattern %q: %v", r.Pattern, err)
		}
		if strings.TrimSpace(r.Hint) == "" {
			return nil, fmt.Errorf("errhint: pattern %q has an empty hint", r.Pattern)
		}
		compiled = append(compiled, compiledRule{pattern: re, hint: r.Hint})
	}
	return &Matcher{rules: compiled}, nil
}

// Match returns the hint of the first rule matching errMsg, or "" when
// nothing matches.
func (m *Matcher) Match(errMsg string) string {
	for _, rule := range m.rules {
		if rule.pattern.MatchString(errMsg) {
			return rule.hint
		}
	}
	return ""
}
