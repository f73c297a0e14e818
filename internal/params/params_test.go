package params

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/rickchristie/sqlgate/internal/sqlscan"
)

func newAdapter(t *testing.T, rules ...Rule) *Adapter {
	t.Helper()
	a, err := NewAdapter(Config{Dialect: sqlscan.TSQL, BinaryColumns: rules})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return a
}

func shape(t *testing.T, sql string) *sqlscan.InsertShape {
	t.Helper()
	s, ok := sqlscan.ParseInsert(sqlscan.Code(sql, sqlscan.TSQL))
	if !ok {
		t.Fatalf("expected insert shape for %q", sql)
	}
	return &s
}

func TestDecodeDeclaredColumn(t *testing.T) {
	t.Parallel()
	a := newAdapter(t, Rule{Object: "dbo.NoteRules", Columns: []string{"Payload"}})
	in := []any{"abcd", "aGVsbG8=", int64(3)}
	out, decoded := a.Adapt(shape(t, "INSERT INTO dbo.NoteRules (Name, Payload, N) VALUES (?, ?, ?)"), in)

	if out[0] != "abcd" {
		t.Fatalf("expected undeclared column untouched, got %v", out[0])
	}
	b, ok := out[1].([]byte)
	if !ok || !bytes.Equal(b, []byte("hello")) {
		t.Fatalf("expected decoded hello, got %#v", out[1])
	}
	if out[2] != int64(3) {
		t.Fatalf("expected int untouched, got %v", out[2])
	}
	if !reflect.DeepEqual(decoded, []int{1}) {
		t.Fatalf("expected decoded [1], got %v", decoded)
	}
	if in[1] != "aGVsbG8=" {
		t.Fatal("expected input slice to be unchanged")
	}
}

func TestColumnMatchIsCaseInsensitive(t *testing.T) {
	t.Parallel()
	a := newAdapter(t, Rule{Object: "dbo.NoteRules", Columns: []string{"payload"}})
	out, _ := a.Adapt(shape(t, "INSERT INTO dbo.NoteRules ([PAYLOAD]) VALUES (?)"), []any{"aGk="})
	if _, ok := out[0].([]byte); !ok {
		t.Fatalf("expected decoded payload, got %#v", out[0])
	}
}

func TestInvalidBase64FallsBack(t *testing.T) {
	t.Parallel()
	a := newAdapter(t, Rule{Object: "dbo.NoteRules"})
	out, decoded := a.Adapt(shape(t, "INSERT INTO dbo.NoteRules VALUES (?)"), []any{"not base64!"})
	if out[0] != "not base64!" || len(decoded) != 0 {
		t.Fatalf("expected silent fallback, got %#v %v", out[0], decoded)
	}
}

func TestTableWideRuleDecodesAllStrings(t *testing.T) {
	t.Parallel()
	a := newAdapter(t, Rule{Object: "dbo.NoteRules"})
	out, decoded := a.Adapt(
		shape(t, "INSERT INTO dbo.NoteRules (Name, Payload) VALUES (?, ?)"),
		[]any{"abcd", "aGVsbG8=", nil, true},
	)
	if _, ok := out[0].([]byte); !ok {
		t.Fatalf("expected table-wide decode of param 0, got %#v", out[0])
	}
	if out[2] != nil || out[3] != true {
		t.Fatalf("expected non-strings untouched, got %#v", out)
	}
	if !reflect.DeepEqual(decoded, []int{0, 1}) {
		t.Fatalf("expected decoded [0 1], got %v", decoded)
	}
}

func TestNoColumnListDecodesAllStrings(t *testing.T) {
	t.Parallel()
	a := newAdapter(t, Rule{Object: "dbo.NoteRules", Columns: []string{"Payload"}})
	out, _ := a.Adapt(shape(t, "INSERT INTO dbo.NoteRules VALUES (?, ?)"), []any{"abcd", "aGk="})
	for i, v := range out {
		if _, ok := v.([]byte); !ok {
			t.Fatalf("expected param %d decoded, got %#v", i, v)
		}
	}
}

func TestUndeclaredTablePassesThrough(t *testing.T) {
	t.Parallel()
	a := newAdapter(t, Rule{Object: "dbo.NoteRules"})
	in := []any{"aGk="}
	out, decoded := a.Adapt(shape(t, "INSERT INTO dbo.AppMeta (V) VALUES (?)"), in)
	if out[0] != "aGk=" || decoded != nil {
		t.Fatalf("expected pass-through, got %#v", out)
	}
}

func TestNonInsertPassesThrough(t *testing.T) {
	t.Parallel()
	a := newAdapter(t, Rule{Object: "dbo.NoteRules"})
	out, _ := a.Adapt(nil, []any{"aGk="})
	if out[0] != "aGk=" {
		t.Fatalf("expected pass-through, got %#v", out[0])
	}
}

func TestBracketedTargetMatches(t *testing.T) {
	t.Parallel()
	a := newAdapter(t, Rule{Object: "[dbo].[NoteRules]"})
	out, _ := a.Adapt(shape(t, "INSERT INTO DBO.[NoteRules] VALUES (?)"), []any{"aGk="})
	if _, ok := out[0].([]byte); !ok {
		t.Fatalf("expected decode, got %#v", out[0])
	}
}

func TestInvalidRuleObject(t *testing.T) {
	t.Parallel()
	if _, err := NewAdapter(Config{BinaryColumns: []Rule{{Object: "NoteRules"}}}); err == nil {
		t.Fatal("expected error for unqualified object")
	}
}
