package protection

import (
	"strings"

	"github.com/rickchristie/sqlgate/internal/sqlscan"
)

// tableSource is a name read at a table position.
type tableSource struct {
	name sqlscan.Name
	// quoted is set when the name starts with a quoted identifier.
	quoted bool
	// target is set for UPDATE and DELETE targets, which may name an alias
	// declared in a later FROM clause.
	target bool
}

// tableSources reads the name at every table position of code: after JOIN,
// APPLY, INTO, UPDATE, DELETE and INSERT, and every comma-separated entry
// of a FROM list. Derived tables, table variables and placeholders are
// not names and are skipped.
func tableSources(code []sqlscan.Token) []tableSource {
	var sources []tableSource
	var opens []int
	add := func(j int, target bool) {
		for j < len(code) && code[j].IsKeyword("lateral", "only") {
			j++
		}
		if n, ok := sqlscan.NameAt(code, j); ok {
			quoted := code[j].Kind == sqlscan.QuotedIdent
			sources = append(sources, tableSource{name: n, quoted: quoted, target: target})
		}
	}

	for i, t := range code {
		switch {
		case t.IsPunct("("):
			opens = append(opens, i)
		case t.IsPunct(")"):
			if len(opens) > 0 {
				opens = opens[:len(opens)-1]
			}
		case t.IsKeyword("join", "apply", "into"):
			add(i+1, false)
		case t.IsKeyword("update"):
			// SELECT ... FOR UPDATE [OF t] is a lock clause.
			if i > 0 && code[i-1].IsKeyword("for") {
				continue
			}
			add(skipTop(code, i+1), true)
		case t.IsKeyword("delete"):
			j := skipTop(code, i+1)
			if j < len(code) && code[j].IsKeyword("from") {
				continue
			}
			add(j, true)
		case t.IsKeyword("insert"):
			j := skipTop(code, i+1)
			if j < len(code) && code[j].IsKeyword("into") {
				continue
			}
			add(j, false)
		case t.IsKeyword("from"):
			// IS [NOT] DISTINCT FROM, and the FROM of EXTRACT, TRIM and
			// SUBSTRING, do not introduce tables.
			if i > 0 && code[i-1].IsKeyword("distinct") {
				continue
			}
			if len(opens) > 0 && !opensQuery(code, opens[len(opens)-1]) {
				continue
			}
			for _, j := range fromList(code, i) {
				add(j, false)
			}
		}
	}
	return sources
}

// fromList returns the index of the first token of every entry in the
// FROM list introduced at code[i]. Joined sources are read by their JOIN.
func fromList(code []sqlscan.Token, i int) []int {
	starts := []int{i + 1}
	depth := 0
	for k := i + 1; k < len(code); k++ {
		t := code[k]
		switch {
		case t.IsPunct("("):
			depth++
		case t.IsPunct(")"):
			depth--
			if depth < 0 {
				return starts
			}
		case depth > 0:
		case t.IsPunct(";"):
			return starts
		case t.IsPunct(","):
			starts = append(starts, k+1)
		case t.Kind == sqlscan.Word && fromListEnd[strings.ToLower(t.Text)]:
			return starts
		}
	}
	return starts
}

var fromListEnd = map[string]bool{
	"where": true, "group": true, "order": true, "having": true, "union": true,
	"except": true, "intersect": true, "option": true, "for": true, "window": true,
	"limit": true, "offset": true, "fetch": true, "returning": true, "output": true,
	"select": true, "insert": true, "update": true, "delete": true, "exec": true,
	"execute": true, "set": true, "values": true, "into": true, "declare": true,
	"if": true, "begin": true, "end": true, "while": true, "return": true,
}

// opensQuery reports whether the parenthesis at code[p] starts a subquery.
func opensQuery(code []sqlscan.Token, p int) bool {
	return p+1 < len(code) && code[p+1].IsKeyword("select", "with")
}

// skipTop steps over TOP (n) [PERCENT] or TOP n starting at code[j].
func skipTop(code []sqlscan.Token, j int) int {
	if j >= len(code) || !code[j].IsKeyword("top") {
		return j
	}
	j++
	if j < len(code) && code[j].IsPunct("(") {
		depth := 0
		for ; j < len(code); j++ {
			if code[j].IsPunct("(") {
				depth++
			} else if code[j].IsPunct(")") {
				depth--
				if depth == 0 {
					break
				}
			}
		}
	}
	j++
	if j < len(code) && code[j].IsKeyword("percent") {
		j++
	}
	return j
}

// tablePositions returns the byte positions of the qualified names in
// sources.
func tablePositions(sources []tableSource) map[int]bool {
	pos := make(map[int]bool)
	for _, s := range sources {
		if s.name.Qualified() {
			pos[s.name.Pos] = true
		}
	}
	return pos
}

// checkUnqualified rejects bare names in table positions. A CTE name, a
// temp table or a function call is allowed anywhere; an UPDATE or DELETE
// target may also be an alias.
func (c *Checker) checkUnqualified(code []sqlscan.Token, names []sqlscan.Name, sources []tableSource) error {
	ctes, aliases := localNames(code, names)
	for _, s := range sources {
		n := s.name
		if n.Qualified() {
			continue
		}
		if n.End < len(code) && code[n.End].IsPunct("(") {
			continue
		}
		bare := n.Parts[0]
		key := strings.ToLower(bare)
		if strings.HasPrefix(bare, "#") || ctes[key] || (s.target && aliases[key]) {
			continue
		}
		// UPDATE STATISTICS and similar keyword forms are caught elsewhere.
		if !s.quoted && isClauseKeyword(bare) {
			continue
		}
		return &Violation{Rule: RuleObjectNotAllowed, Subject: bare}
	}
	return nil
}

// localNames collects CTE names, and separately the aliases following a
// qualified name together with the last part of every qualified name,
// all lower-cased.
func localNames(code []sqlscan.Token, names []sqlscan.Name) (ctes, aliases map[string]bool) {
	ctes = make(map[string]bool)
	aliases = make(map[string]bool)
	for _, n := range names {
		if !n.Qualified() {
			continue
		}
		aliases[strings.ToLower(n.Parts[len(n.Parts)-1])] = true
		k := n.End
		if k < len(code) && code[k].IsKeyword("as") {
			k++
		}
		if k < len(code) && code[k].IsIdent() && !isClauseKeyword(code[k].Value) {
			aliases[strings.ToLower(code[k].Value)] = true
		}
	}

	// name AS ( ... ) and name (cols) AS ( ... )
	for i := 1; i+1 < len(code); i++ {
		if !code[i].IsKeyword("as") || !code[i+1].IsPunct("(") {
			continue
		}
		k := i - 1
		if code[k].IsPunct(")") {
			depth := 0
			for ; k >= 0; k-- {
				if code[k].IsPunct(")") {
					depth++
				} else if code[k].IsPunct("(") {
					depth--
					if depth == 0 {
						break
					}
				}
			}
			k--
		}
		if k >= 0 && code[k].IsIdent() {
			ctes[strings.ToLower(code[k].Value)] = true
		}
	}
	return ctes, aliases
}

var clauseKeywords = map[string]bool{
	"where": true, "set": true, "on": true, "join": true, "inner": true, "left": true,
	"right": true, "full": true, "cross": true, "outer": true, "group": true, "order": true,
	"having": true, "union": true, "except": true, "intersect": true, "values": true,
	"select": true, "output": true, "with": true, "option": true, "top": true,
	"statistics": true, "default": true, "apply": true, "for": true, "when": true,
}

func isClauseKeyword(word string) bool {
	return clauseKeywords[strings.ToLower(word)]
}
