package errhint

import (
	"strings"
	"testing"
)

func newMatcher(t *testing.T, rules ...Rule) *Matcher {
	t.Helper()
	m, err := NewMatcher(rules)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return m
}

func TestMatch_InvalidObjectName(t *testing.T) {
	t.Parallel()
	m := newMatcher(t, Rule{Pattern: `(?i)invalid object name`, Hint: "The table is missing. Check the database name in the connection string."})
	got := m.Match("mssql: Invalid object name 'dbo.AppMeta'.")
	if got != "The table is missing. Check the database name in the connection string." {
		t.Fatalf("unexpected hint: %q", got)
	}
}

func TestMatch_NoMatch(t *testing.T) {
	t.Parallel()
	m := newMatcher(t,
		Rule{Pattern: `(?i)deadlock`, Hint: "Retry the request."},
		Rule{Pattern: `(?i)login failed`, Hint: "Check credentials."},
	)
	if got := m.Match("mssql: Incorrect syntax near 'FROM'."); got != "" {
		t.Fatalf("expected no hint, got %q", got)
	}
}

func TestMatch_FirstMatchWins(t *testing.T) {
	t.Parallel()
	m := newMatcher(t,
		Rule{Pattern: `(?i)constraint`, Hint: "A constraint was violated."},
		Rule{Pattern: `(?i)unique`, Hint: "The row already exists."},
	)
	got := m.Match("UNIQUE constraint failed: meta.k")
	if got != "A constraint was violated." {
		t.Fatalf("expected only the first matching hint, got %q", got)
	}
	if got := m.Match("unique index ix_k"); got != "The row already exists." {
		t.Fatalf("expected the second rule to match on its own, got %q", got)
	}
}

func TestMatch_NoRules(t *testing.T) {
	t.Parallel()
	m := newMatcher(t)
	if got := m.Match("anything"); got != "" {
		t.Fatalf("expected empty hint, got %q", got)
	}
}

func TestNewMatcher_InvalidRegex(t *testing.T) {
	t.Parallel()
	_, err := NewMatcher([]Rule{{Pattern: `[invalid`, Hint: "x"}})
	if err == nil || !strings.Contains(err.Error(), "invalid regex pattern") {
		t.Fatalf("expected invalid regex error, got %v", err)
	}
}

func TestNewMatcher_EmptyHint(t *testing.T) {
	t.Parallel()
	_, err := NewMatcher([]Rule{{Pattern: `x`, Hint: "  "}})
	if err == nil || !strings.Contains(err.Error(), "empty hint") {
		t.Fatalf("expected empty hint error, got %v", err)
	}
}
