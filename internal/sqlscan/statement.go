package sqlscan

import (
	"strconv"
	"strings"
)

// HeadVerb returns the first code token lower-cased, or "" for a statement
// without code.
func HeadVerb(code []Token) string {
	if len(code) == 0 {
		return ""
	}
	return strings.ToLower(code[0].Text)
}

// Statements splits code on semicolons outside parentheses. Empty
// statements are dropped.
func Statements(code []Token) [][]Token {
	var stmts [][]Token
	start, depth := 0, 0
	for i, t := range code {
		switch {
		case t.IsPunct("("):
			depth++
		case t.IsPunct(")"):
			depth--
		case t.IsPunct(";") && depth <= 0:
			if i > start {
				stmts = append(stmts, code[start:i])
			}
			start = i + 1
		}
	}
	if start < len(code) {
		stmts = append(stmts, code[start:])
	}
	return stmts
}

// Ordinals maps the index of every placeholder token in code to its
// zero-based parameter position. "?" placeholders count up in source
// order; PostgreSQL "$n" placeholders use n-1.
func Ordinals(code []Token) map[int]int {
	ordinals := make(map[int]int)
	next := 0
	for i, t := range code {
		if t.Kind != Placeholder {
			continue
		}
		if t.Text == "?" {
			ordinals[i] = next
			next++
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(t.Text, "$"))
		if err == nil && n > 0 {
			ordinals[i] = n - 1
		}
	}
	return ordinals
}

// InsertShape describes an INSERT statement well enough to bind
// parameters to target columns.
type InsertShape struct {
	Target Name
	// Columns is the explicit column list, nil when the statement has none.
	Columns []string
	// Bindings maps a parameter position to the column its VALUES slot
	// targets. Only slots holding a bare placeholder are bound.
	Bindings map[int]string
}

// ParseInsert reads INSERT [INTO] target [(cols)] ... VALUES (...), (...).
// It reports false when code is not an INSERT with a readable target.
func ParseInsert(code []Token) (InsertShape, bool) {
	if len(code) == 0 || !code[0].IsKeyword("insert") {
		return InsertShape{}, false
	}
	i := 1
	if i < len(code) && code[i].IsKeyword("into") {
		i++
	}
	target, ok := NameAt(code, i)
	if !ok {
		return InsertShape{}, false
	}
	shape := InsertShape{Target: target, Bindings: make(map[int]string)}
	i = target.End

	if i < len(code) && code[i].IsPunct("(") {
		shape.Columns = []string{}
		i++
		for i < len(code) && !code[i].IsPunct(")") {
			if code[i].IsIdent() {
				n, _ := NameAt(code, i)
				shape.Columns = append(shape.Columns, n.Parts[len(n.Parts)-1])
				i = n.End
				continue
			}
			i++
		}
		i++
	}

	i = valuesKeyword(code, i)
	if i < 0 {
		return shape, true
	}
	ordinals := Ordinals(code)
	i++
	for i < len(code) && code[i].IsPunct("(") {
		end := bindRow(code, i, shape, ordinals)
		i = end
		if i < len(code) && code[i].IsPunct(",") {
			i++
			continue
		}
		break
	}
	return shape, true
}

// valuesKeyword finds VALUES at parenthesis depth zero from code[from],
// skipping an OUTPUT clause. It returns -1 for INSERT ... SELECT/EXEC.
func valuesKeyword(code []Token, from int) int {
	depth := 0
	for i := from; i < len(code); i++ {
		switch {
		case code[i].IsPunct("("):
			depth++
		case code[i].IsPunct(")"):
			depth--
		case depth == 0 && code[i].IsKeyword("values"):
			return i
		}
	}
	return -1
}

// bindRow binds one parenthesized VALUES row starting at code[open] and
// returns the index just past its closing parenthesis.
func bindRow(code []Token, open int, shape InsertShape, ordinals map[int]int) int {
	depth := 0
	slot := 0
	slotStart := open + 1
	for i := open; i < len(code); i++ {
		switch {
		case code[i].IsPunct("("):
			depth++
		case code[i].IsPunct(")"):
			depth--
			if depth == 0 {
				bindSlot(code, slotStart, i, slot, shape, ordinals)
				return i + 1
			}
		case depth == 1 && code[i].IsPunct(","):
			bindSlot(code, slotStart, i, slot, shape, ordinals)
			slot++
			slotStart = i + 1
		}
	}
	return len(code)
}

func bindSlot(code []Token, from, to, slot int, shape InsertShape, ordinals map[int]int) {
	if to-from != 1 || code[from].Kind != Placeholder || slot >= len(shape.Columns) {
		return
	}
	if ord, ok := ordinals[from]; ok {
		shape.Bindings[ord] = shape.Columns[slot]
	}
}

// Rebind rewrites "?" placeholders to PostgreSQL "$n" form. Placeholders
// inside literals and comments are left alone.
func Rebind(sql string) string {
	tokens := Scan(sql, Postgres)
	var b strings.Builder
	last := 0
	n := 0
	for _, t := range tokens {
		if t.Kind != Placeholder || t.Text != "?" {
			continue
		}
		n++
		b.WriteString(sql[last:t.Pos])
		b.WriteString("$")
		b.WriteString(strconv.Itoa(n))
		last = t.Pos + len(t.Text)
	}
	if n == 0 {
		return sql
	}
	b.WriteString(sql[last:])
	return b.String()
}
