package sqlscan

import (
	"strings"

	"golang.org/x/text/cases"
)

// Name is a dotted object reference such as dbo.AppMeta or [srv].[db]..[t].
// Parts hold the unquoted components; an omitted component (db..t) is "".
type Name struct {
	Parts []string
	Pos   int
	// End is the index in the code token slice just past the name.
	End int
}

// String joins the parts with dots, without any quoting.
func (n Name) String() string {
	return strings.Join(n.Parts, ".")
}

// Qualified reports whether the name has more than one part.
func (n Name) Qualified() bool {
	return len(n.Parts) > 1
}

// HasEmptyPart reports whether any component was omitted.
func (n Name) HasEmptyPart() bool {
	for _, p := range n.Parts {
		if p == "" {
			return true
		}
	}
	return false
}

// Prefix returns the name truncated to its first k parts.
func (n Name) Prefix(k int) Name {
	if k >= len(n.Parts) {
		return n
	}
	return Name{Parts: n.Parts[:k], Pos: n.Pos, End: n.End}
}

// Key is the comparison form of the name: the first part (the schema for
// a two-part name) is lower-cased, the remaining parts are kept as written
// unless fold is set, in which case they are Unicode case-folded.
func (n Name) Key(fold bool) string {
	parts := make([]string, len(n.Parts))
	for i, p := range n.Parts {
		switch {
		case i == 0 && len(n.Parts) > 1:
			parts[i] = strings.ToLower(p)
		case fold:
			parts[i] = cases.Fold().String(p)
		default:
			parts[i] = p
		}
	}
	return strings.Join(parts, ".")
}

// NameAt reads a dotted name starting at code[i]. It reports false when
// code[i] is not an identifier. Comments must already be stripped.
func NameAt(code []Token, i int) (Name, bool) {
	if i >= len(code) || !code[i].IsIdent() {
		return Name{}, false
	}
	n := Name{Parts: []string{code[i].Value}, Pos: code[i].Pos}
	j := i + 1
	for j < len(code) && code[j].Kind == Dot {
		switch {
		case j+1 < len(code) && code[j+1].IsIdent():
			n.Parts = append(n.Parts, code[j+1].Value)
			j += 2
		case j+1 < len(code) && code[j+1].Kind == Dot:
			n.Parts = append(n.Parts, "")
			j++
		default:
			// t.* or a trailing dot
			n.End = j
			return n, true
		}
	}
	n.End = j
	return n, true
}

// Names returns every maximal dotted name in code, qualified or not, in
// source order. A name never starts in the middle of another name.
func Names(code []Token) []Name {
	var names []Name
	for i := 0; i < len(code); {
		if code[i].IsIdent() && (i == 0 || code[i-1].Kind != Dot) {
			n, _ := NameAt(code, i)
			names = append(names, n)
			i = n.End
			continue
		}
		i++
	}
	return names
}

// ParseName parses a configured object name such as "dbo.AppMeta" or
// "[dbo].[AppMeta]". It reports false unless the text is exactly one name.
func ParseName(text string, d Dialect) (Name, bool) {
	code := Code(text, d)
	n, ok := NameAt(code, 0)
	if !ok || n.End != len(code) {
		return Name{}, false
	}
	return n, true
}
