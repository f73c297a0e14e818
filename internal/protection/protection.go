package protection

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rickchristie/sqlgate/internal/sqlscan"
)

// DefaultForbiddenKeywords are always rejected. Entries ending in "_" or
// "*" match any word with that prefix.
var DefaultForbiddenKeywords = []string{
	"create", "alter", "drop", "truncate",
	"grant", "revoke", "deny",
	"xp_", "sp_configure", "sp_executesql",
	"openrowset", "openquery", "opendatasource",
	// T-SQL batches need no semicolons, so these are caught anywhere.
	"shutdown", "dbcc", "backup", "restore", "kill", "reconfigure", "bulk",
}

// DefaultGuardedSchemas are checked in addition to the schemas named by
// the allow-lists.
var DefaultGuardedSchemas = []string{"sys", "information_schema"}

// AllowedVerbs is the fixed set of statement head verbs.
var AllowedVerbs = []string{"select", "insert", "update", "delete", "exec", "with"}

// ErrEmptyQuery is returned for empty or whitespace-only query text.
var ErrEmptyQuery = errors.New("Empty query")

// Rule identifies which admission check rejected a statement.
type Rule string

const (
	RuleForbiddenKeyword    Rule = "forbidden_keyword"
	RuleVerbNotAllowed      Rule = "verb_not_allowed"
	RuleObjectNotAllowed    Rule = "object_not_allowed"
	RuleProcedureNotAllowed Rule = "procedure_not_allowed"
)

// Violation is a rejected statement. Subject is the offending keyword,
// verb or object exactly as the caller wrote it (without quoting).
type Violation struct {
	Rule    Rule
	Subject string
}

func (v *Violation) Error() string {
	switch v.Rule {
	case RuleForbiddenKeyword:
		return fmt.Sprintf("Forbidden SQL keyword: %s", v.Subject)
	case RuleVerbNotAllowed:
		verb := v.Subject
		if verb == "" {
			verb = "(none)"
		}
		return fmt.Sprintf("Verb not allowed: %s (only SELECT/INSERT/UPDATE/DELETE/EXEC/WITH are allowed)", verb)
	case RuleObjectNotAllowed:
		return fmt.Sprintf("Object not allowed: %s", v.Subject)
	case RuleProcedureNotAllowed:
		if v.Subject == "" {
			return "Procedure not allowed: EXEC requires an allow-listed stored procedure"
		}
		return fmt.Sprintf("Procedure not allowed: %s", v.Subject)
	default:
		return fmt.Sprintf("statement rejected: %s", v.Subject)
	}
}

// Config is the protection checker's own config type.
type Config struct {
	Dialect           sqlscan.Dialect
	AllowedObjects    []string
	AllowedProcedures []string
	// ForbiddenKeywords is used as given; callers merge in DefaultForbiddenKeywords.
	ForbiddenKeywords []string
	// GuardedSchemas nil means DefaultGuardedSchemas.
	GuardedSchemas     []string
	FoldIdentifierCase bool
	// AllowUnqualifiedNames permits bare names in table positions. When
	// false only CTE names, temp tables, table variables and function calls
	// may appear there unqualified, and UPDATE or DELETE targets may name
	// an alias.
	AllowUnqualifiedNames bool
}

// Admission is what the checker learned about an accepted statement.
type Admission struct {
	Verb string
	// Objects are the distinct allow-listed names referenced, in first-seen order.
	Objects []string
	// Procedures are the EXEC targets, in source order.
	Procedures []string
	// Insert is set for INSERT statements whose target could be read.
	Insert *sqlscan.InsertShape
}

// Checker validates SQL statements against the forbidden keyword list and
// the verb, object and procedure allow-lists. It is immutable after
// construction and safe for concurrent use.
type Checker struct {
	dialect    sqlscan.Dialect
	fold       bool
	bareNames  bool
	objects    map[string]bool
	procedures map[string]bool
	guarded    map[string]bool
	verbs      map[string]bool
	exact      map[string]bool
	prefixes   []string
}

// NewChecker creates a new Checker with the given config. Returns an error
// when an allow-list entry is not a two-part schema.name.
func NewChecker(config Config) (*Checker, error) {
	c := &Checker{
		dialect:    config.Dialect,
		fold:       config.FoldIdentifierCase,
		bareNames:  config.AllowUnqualifiedNames,
		objects:    make(map[string]bool),
		procedures: make(map[string]bool),
		guarded:    make(map[string]bool),
		verbs:      make(map[string]bool),
		exact:      make(map[string]bool),
	}

	for _, v := range AllowedVerbs {
		c.verbs[v] = true
	}

	add := func(set map[string]bool, entry, list string) error {
		n, ok := sqlscan.ParseName(entry, c.dialect)
		if !ok || len(n.Parts) != 2 || n.HasEmptyPart() {
			return fmt.Errorf("protection: %s entry %q must be schema.name", list, entry)
		}
		set[n.Key(c.fold)] = true
		c.guarded[strings.ToLower(n.Parts[0])] = true
		return nil
	}
	for _, o := range config.AllowedObjects {
		if err := add(c.objects, o, "allowed_objects"); err != nil {
			return nil, err
		}
	}
	for _, p := range config.AllowedProcedures {
		if err := add(c.procedures, p, "allowed_procedures"); err != nil {
			return nil, err
		}
	}

	guarded := config.GuardedSchemas
	if guarded == nil {
		guarded = DefaultGuardedSchemas
	}
	for _, s := range guarded {
		c.guarded[strings.ToLower(strings.TrimSpace(s))] = true
	}

	for _, kw := range config.ForbiddenKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		switch {
		case kw == "" || kw == "*":
			return nil, fmt.Errorf("protection: forbidden keyword %q is empty", kw)
		case strings.HasSuffix(kw, "*"):
			c.prefixes = append(c.prefixes, strings.TrimSuffix(kw, "*"))
		case strings.HasSuffix(kw, "_"):
			c.prefixes = append(c.prefixes, kw)
		default:
			c.exact[kw] = true
		}
	}
	return c, nil
}

// Check runs the forbidden keyword filter, then the verb, object and
// procedure allow-lists. Returns ErrEmptyQuery, a *Violation, or the
// admission for an accepted statement. The query text is never rewritten.
func (c *Checker) Check(sql string) (*Admission, error) {
	if strings.TrimSpace(sql) == "" {
		return nil, ErrEmptyQuery
	}

	tokens := sqlscan.Scan(sql, c.dialect)
	if err := c.checkForbidden(tokens); err != nil {
		return nil, err
	}

	code := sqlscan.StripComments(tokens)
	verb := sqlscan.HeadVerb(code)
	if !c.verbs[verb] {
		return nil, &Violation{Rule: RuleVerbNotAllowed, Subject: verb}
	}
	for _, stmt := range sqlscan.Statements(code) {
		if v := sqlscan.HeadVerb(stmt); !c.verbs[v] {
			return nil, &Violation{Rule: RuleVerbNotAllowed, Subject: v}
		}
	}

	// EXEC targets first so an unknown procedure is reported as one.
	procedures, err := c.checkExec(code)
	if err != nil {
		return nil, err
	}
	names := sqlscan.Names(code)
	sources := tableSources(code)
	objects, err := c.checkObjects(names, tablePositions(sources))
	if err != nil {
		return nil, err
	}
	if !c.bareNames {
		if err := c.checkUnqualified(code, names, sources); err != nil {
			return nil, err
		}
	}

	adm := &Admission{Verb: verb, Objects: objects, Procedures: procedures}
	if verb == "insert" {
		if shape, ok := sqlscan.ParseInsert(code); ok {
			adm.Insert = &shape
		}
	}
	return adm, nil
}

// Key returns the comparison key used for allow-list membership.
func (c *Checker) Key(n sqlscan.Name) string {
	return n.Key(c.fold)
}

// checkForbidden matches keywords as whole words in code, inside string
// literals and comments, and against the full content of quoted identifiers.
func (c *Checker) checkForbidden(tokens []sqlscan.Token) error {
	for _, t := range tokens {
		switch t.Kind {
		case sqlscan.Word:
			if c.forbidden(t.Text) {
				return &Violation{Rule: RuleForbiddenKeyword, Subject: strings.ToLower(t.Text)}
			}
		case sqlscan.QuotedIdent:
			if c.forbidden(t.Value) {
				return &Violation{Rule: RuleForbiddenKeyword, Subject: strings.ToLower(t.Value)}
			}
		case sqlscan.String, sqlscan.Comment:
			for _, w := range sqlscan.Words(t.Value) {
				if c.forbidden(w) {
					return &Violation{Rule: RuleForbiddenKeyword, Subject: strings.ToLower(w)}
				}
			}
		}
	}
	return nil
}

func (c *Checker) forbidden(word string) bool {
	w := strings.ToLower(word)
	if c.exact[w] {
		return true
	}
	for _, p := range c.prefixes {
		if strings.HasPrefix(w, p) {
			return true
		}
	}
	return false
}

// checkObjects applies the allow-lists to every qualified name. A name in
// a table position (tables holds its byte position) is checked whole
// whatever its schema. Elsewhere a name whose first part is a guarded
// schema is checked on schema.object (a third part is a column). A guarded
// schema in a later part, an omitted part, or three or more unguarded
// parts are checked whole, which rejects database and server prefixes.
// Other two-part names in expressions are alias.column.
func (c *Checker) checkObjects(names []sqlscan.Name, tables map[int]bool) ([]string, error) {
	var objects []string
	seen := make(map[string]bool)
	for _, n := range names {
		if !n.Qualified() {
			continue
		}
		target, ok := n, true
		if !tables[n.Pos] {
			target, ok = c.objectTarget(n)
		}
		if !ok {
			continue
		}
		key := c.Key(target)
		if !c.objects[key] && !c.procedures[key] {
			return nil, &Violation{Rule: RuleObjectNotAllowed, Subject: target.String()}
		}
		if !seen[key] {
			seen[key] = true
			objects = append(objects, target.String())
		}
	}
	return objects, nil
}

func (c *Checker) objectTarget(n sqlscan.Name) (sqlscan.Name, bool) {
	if n.HasEmptyPart() {
		return n, true
	}
	at := -1
	for i, p := range n.Parts {
		if c.guarded[strings.ToLower(p)] {
			at = i
			break
		}
	}
	switch {
	case at == 0:
		return n.Prefix(2), true
	case at > 0:
		return n, true
	case len(n.Parts) >= 3:
		return n, true
	default:
		return n, false
	}
}

// checkExec requires every EXEC/EXECUTE in code, not only the head verb,
// to name an allowed procedure, optionally after "@status =".
func (c *Checker) checkExec(code []sqlscan.Token) ([]string, error) {
	var procedures []string
	for i, t := range code {
		if !t.IsKeyword("exec", "execute") {
			continue
		}
		j := i + 1
		if j+1 < len(code) && code[j].Kind == sqlscan.Variable && code[j+1].IsPunct("=") {
			j += 2
		}
		n, ok := sqlscan.NameAt(code, j)
		if !ok {
			return nil, &Violation{Rule: RuleProcedureNotAllowed}
		}
		if !c.procedures[c.Key(n)] {
			return nil, &Violation{Rule: RuleProcedureNotAllowed, Subject: n.String()}
		}
		procedures = append(procedures, n.String())
	}
	return procedures, nil
}
