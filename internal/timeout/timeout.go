package timeout

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// Rule is the timeout manager's own rule type. A zero Timeout means the
// matching statements run without a gateway deadline.
type Rule struct {
	Pattern string
	Timeout time.Duration
}

// Config is the timeout manager's own config type. A zero DefaultTimeout
// leaves statement time to the database engine.
type Config struct {
	DefaultTimeout time.Duration
	Rules          []Rule
}

type compiledRule struct {
	pattern *regexp.Regexp
	source  string
	timeout time.Duration
}

// Manager resolves statement timeouts by matching SQL text against rules.
type Manager struct {
	rules          []compiledRule
	defaultTimeout time.Duration
}

// NewManager creates a new Manager. Returns an error on invalid regex
// patterns or negative durations.
func NewManager(config Config) (*Manager, error) {
	if config.DefaultTimeout < 0 {
		return nil, fmt.Errorf("timeout: default timeout must not be negative, got %v", config.DefaultTimeout)
	}
	compiled := make([]compiledRule, len(config.Rules))
	for i, r := range config.Rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("timeout: invalid regex pattern %q: %v", r.Pattern, err)
		}
		if r.Timeout < 0 {
			return nil, fmt.Errorf("timeout: rule %q timeout must not be negative, got %v", r.Pattern, r.Timeout)
		}
		compiled[i] = compiledRule{pattern: re, source: r.Pattern, timeout: r.Timeout}
	}
	return &Manager{rules: compiled, defaultTimeout: config.DefaultTimeout}, nil
}

// GetTimeout returns the timeout for the given SQL.
// First matching rule wins. Falls back to default.
func (m *Manager) GetTimeout(sql string) time.Duration {
	d, _ := m.GetTimeoutWithPattern(sql)
	return d
}

// GetTimeoutWithPattern is GetTimeout that also returns the matching rule
// pattern, or "" when the default applied.
func (m *Manager) GetTimeoutWithPattern(sql string) (time.Duration, string) {
	for _, rule := range m.rules {
		if rule.pattern.MatchString(sql) {
			return rule.timeout, rule.source
		}
	}
	return m.defaultTimeout, ""
}

// WithDeadline derives a context bounded by the timeout resolved for sql.
// When the resolved timeout is zero the parent is returned with a no-op
// cancel.
func (m *Manager) WithDeadline(parent context.Context, sql string) (context.Context, context.CancelFunc, time.Duration) {
	d := m.GetTimeout(sql)
	if d <= 0 {
		return parent, func() {}, 0
	}
	ctx, cancel := context.WithTimeout(parent, d)
	return ctx, cancel, d
}
