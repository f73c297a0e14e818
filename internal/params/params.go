package params

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/rickchristie/sqlgate/internal/sqlscan"
)

// Rule declares an object whose binary columns arrive as base64 text.
// An empty Columns list means every string parameter of an INSERT into
// the object is a binary payload.
type Rule struct {
	Object  string
	Columns []string
}

// Config is the adapter's own config type.
type Config struct {
	Dialect            sqlscan.Dialect
	FoldIdentifierCase bool
	BinaryColumns      []Rule
}

type tableRule struct {
	all     bool
	columns map[string]bool
}

// Adapter turns base64 text parameters into binary payloads for INSERTs
// into declared objects. It is immutable after construction.
type Adapter struct {
	fold   bool
	tables map[string]tableRule
}

// NewAdapter creates a new Adapter. Returns an error when a rule object
// is not a two-part schema.name.
func NewAdapter(config Config) (*Adapter, error) {
	a := &Adapter{fold: config.FoldIdentifierCase, tables: make(map[string]tableRule)}
	for _, r := range config.BinaryColumns {
		n, ok := sqlscan.ParseName(r.Object, config.Dialect)
		if !ok || len(n.Parts) != 2 || n.HasEmptyPart() {
			return nil, fmt.Errorf("params: binary_columns object %q must be schema.name", r.Object)
		}
		tr := tableRule{all: len(r.Columns) == 0, columns: make(map[string]bool)}
		for _, c := range r.Columns {
			tr.columns[strings.ToLower(strings.TrimSpace(c))] = true
		}
		a.tables[n.Key(a.fold)] = tr
	}
	return a, nil
}

// Adapt returns params with declared binary parameters decoded from
// standard base64. Parameters that are not strings, are not bound to a
// declared column, or fail to decode are passed through unchanged. The
// input slice is never modified. The second result lists the decoded
// positions.
//
// When the INSERT has no column list, positions cannot be mapped to
// columns and every string parameter is treated as binary.
func (a *Adapter) Adapt(insert *sqlscan.InsertShape, params []any) ([]any, []int) {
	if insert == nil || len(params) == 0 {
		return params, nil
	}
	rule, ok := a.tables[insert.Target.Key(a.fold)]
	if !ok {
		return params, nil
	}

	out := make([]any, len(params))
	copy(out, params)
	var decoded []int
	for i := range out {
		if !rule.all && insert.Columns != nil {
			col, bound := insert.Bindings[i]
			if !bound || !rule.columns[strings.ToLower(col)] {
				continue
			}
		}
		s, ok := out[i].(string)
		if !ok {
			continue
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			continue
		}
		out[i] = b
		decoded = append(decoded, i)
	}
	return out, decoded
}
