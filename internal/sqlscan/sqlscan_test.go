package sqlscan

import (
	"reflect"
	"testing"
)

func kinds(tokens []Token) []Kind {
	out := make([]Kind, len(tokens))
	for i, t := range tokens {
		out[i] = t.Kind
	}
	return out
}

func names(code []Token) []string {
	var out []string
	for _, n := range Names(code) {
		if n.Qualified() {
			out = append(out, n.String())
		}
	}
	return out
}

// --- Scan ---

func TestScanBasicSelect(t *testing.T) {
	t.Parallel()
	got := kinds(Scan("SELECT a, 1 FROM dbo.T WHERE b = ?", TSQL))
	want := []Kind{Word, Word, Punct, Number, Word, Word, Dot, Word, Word, Word, Punct, Placeholder}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestScanStringEscapes(t *testing.T) {
	t.Parallel()
	tokens := Scan("SELECT 'it''s', N'ünicode'", TSQL)
	if tokens[1].Kind != String || tokens[1].Value != "it's" {
		t.Fatalf("expected string it's, got %+v", tokens[1])
	}
	if tokens[3].Kind != String || tokens[3].Value != "ünicode" {
		t.Fatalf("expected N string, got %+v", tokens[3])
	}
}

func TestScanBracketIdentifier(t *testing.T) {
	t.Parallel()
	tokens := Scan("SELECT [Create Date], [a]]b] FROM [dbo].[AppMeta]", TSQL)
	if tokens[1].Kind != QuotedIdent || tokens[1].Value != "Create Date" {
		t.Fatalf("expected quoted identifier, got %+v", tokens[1])
	}
	if tokens[3].Value != "a]b" {
		t.Fatalf("expected escaped bracket, got %q", tokens[3].Value)
	}
}

func TestScanBracketIsPunctInPostgres(t *testing.T) {
	t.Parallel()
	tokens := Scan("SELECT a[1]", Postgres)
	if tokens[2].Kind != Punct || tokens[2].Text != "[" {
		t.Fatalf("expected [ punct, got %+v", tokens[2])
	}
}

func TestScanComments(t *testing.T) {
	t.Parallel()
	code := Code("SELECT 1 -- drop table\n/* grant */ FROM x", TSQL)
	got := kinds(code)
	want := []Kind{Word, Number, Word, Word}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestScanNestedBlockComment(t *testing.T) {
	t.Parallel()
	// SQL Server ends the comment at the second */, so DROP is code.
	code := Code("/* /* */ -- */ DROP TABLE x", TSQL)
	if len(code) == 0 || !code[0].IsKeyword("drop") {
		t.Fatalf("expected DROP as first code token, got %+v", code)
	}
}

func TestScanSQLiteBlockCommentDoesNotNest(t *testing.T) {
	t.Parallel()
	code := Code("/* /* */ SELECT 1", SQLite)
	if len(code) == 0 || !code[0].IsKeyword("select") {
		t.Fatalf("expected SELECT after comment, got %+v", code)
	}
}

func TestScanNumberDoesNotSwallowKeyword(t *testing.T) {
	t.Parallel()
	code := Code("SELECT 1DROP TABLE x", TSQL)
	if code[1].Text != "1" || !code[2].IsKeyword("drop") {
		t.Fatalf("expected 1 then DROP, got %+v", code)
	}
}

func TestScanNumbers(t *testing.T) {
	t.Parallel()
	for _, text := range []string{"42", "3.14", "1e10", "2.5E-3", "0x1F"} {
		tokens := Scan(text, TSQL)
		if len(tokens) != 1 || tokens[0].Kind != Number || tokens[0].Text != text {
			t.Errorf("expected single number %q, got %+v", text, tokens)
		}
	}
}

func TestScanVariables(t *testing.T) {
	t.Parallel()
	tokens := Scan("SELECT @@ROWCOUNT, @p1", TSQL)
	if tokens[1].Kind != Variable || tokens[1].Text != "@@ROWCOUNT" {
		t.Fatalf("expected @@ROWCOUNT variable, got %+v", tokens[1])
	}
	if tokens[3].Kind != Variable || tokens[3].Text != "@p1" {
		t.Fatalf("expected @p1 variable, got %+v", tokens[3])
	}
}

func TestScanPostgresDollarQuote(t *testing.T) {
	t.Parallel()
	tokens := Scan("SELECT $body$ it's drop $body$, $1", Postgres)
	if tokens[1].Kind != String || tokens[1].Value != " it's drop " {
		t.Fatalf("expected dollar-quoted string, got %+v", tokens[1])
	}
	if tokens[3].Kind != Placeholder || tokens[3].Text != "$1" {
		t.Fatalf("expected $1 placeholder, got %+v", tokens[3])
	}
}

func TestScanPostgresEscapeString(t *testing.T) {
	t.Parallel()
	tokens := Scan(`SELECT E'a\'b'`, Postgres)
	if tokens[1].Kind != String || tokens[1].Value != "a'b" {
		t.Fatalf("expected escaped string, got %+v", tokens[1])
	}
}

func TestScanUnterminatedString(t *testing.T) {
	t.Parallel()
	tokens := Scan("SELECT 'abc", TSQL)
	if len(tokens) != 2 || tokens[1].Kind != String || tokens[1].Value != "abc" {
		t.Fatalf("expected unterminated string to run to end, got %+v", tokens)
	}
}

func TestWords(t *testing.T) {
	t.Parallel()
	got := Words("please DROP the xp_cmdshell; now")
	want := []string{"please", "DROP", "the", "xp_cmdshell", "now"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

// --- Names ---

func TestNamesQualified(t *testing.T) {
	t.Parallel()
	code := Code("SELECT m.Id FROM [dbo].[AppMeta] m JOIN dbo . Snapshots s ON s.Id = m.Id", TSQL)
	got := names(code)
	want := []string{"m.Id", "dbo.AppMeta", "dbo.Snapshots", "s.Id", "m.Id"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestNamesCommentBetweenParts(t *testing.T) {
	t.Parallel()
	code := Code("SELECT * FROM dbo/**/./**/Secret", TSQL)
	got := names(code)
	if !reflect.DeepEqual(got, []string{"dbo.Secret"}) {
		t.Fatalf("expected dbo.Secret, got %v", got)
	}
}

func TestNamesEmptyPart(t *testing.T) {
	t.Parallel()
	code := Code("EXEC master..xp_cmdshell 'dir'", TSQL)
	all := Names(code)
	var found Name
	for _, n := range all {
		if n.Qualified() {
			found = n
		}
	}
	if !reflect.DeepEqual(found.Parts, []string{"master", "", "xp_cmdshell"}) || !found.HasEmptyPart() {
		t.Fatalf("expected master..xp_cmdshell with empty part, got %+v", found)
	}
}

func TestNamesStar(t *testing.T) {
	t.Parallel()
	code := Code("SELECT t.* FROM dbo.T t", TSQL)
	got := names(code)
	if !reflect.DeepEqual(got, []string{"dbo.T"}) {
		t.Fatalf("expected only dbo.T, got %v", got)
	}
}

func TestNameKey(t *testing.T) {
	t.Parallel()
	n := Name{Parts: []string{"DBO", "AppMeta"}}
	if got := n.Key(false); got != "dbo.AppMeta" {
		t.Fatalf("expected dbo.AppMeta, got %q", got)
	}
	if got := n.Key(true); got != "dbo.appmeta" {
		t.Fatalf("expected dbo.appmeta, got %q", got)
	}
}

func TestParseName(t *testing.T) {
	t.Parallel()
	n, ok := ParseName("[dbo].[NoteRules]", TSQL)
	if !ok || n.String() != "dbo.NoteRules" {
		t.Fatalf("expected dbo.NoteRules, got %+v ok=%v", n, ok)
	}
	if _, ok := ParseName("dbo.A dbo.B", TSQL); ok {
		t.Fatal("expected two names to be rejected")
	}
	if _, ok := ParseName("", TSQL); ok {
		t.Fatal("expected empty text to be rejected")
	}
}

// --- Statement shape ---

func TestHeadVerb(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"  SELECT 1":         "select",
		"-- note\nexec dbo.p": "exec",
		"SELECT*FROM dbo.T":   "select",
		"":                    "",
	}
	for sql, want := range cases {
		if got := HeadVerb(Code(sql, TSQL)); got != want {
			t.Errorf("HeadVerb(%q): expected %q, got %q", sql, want, got)
		}
	}
}

func TestStatements(t *testing.T) {
	t.Parallel()
	code := Code("SELECT 1; ; SHUTDOWN WITH NOWAIT;EXEC dbo.p @x = ';';", TSQL)
	var heads []string
	for _, stmt := range Statements(code) {
		heads = append(heads, HeadVerb(stmt))
	}
	want := []string{"select", "shutdown", "exec"}
	if !reflect.DeepEqual(heads, want) {
		t.Fatalf("expected heads %v, got %v", want, heads)
	}
	if got := Statements(Code("SELECT (1; 2)", TSQL)); len(got) != 1 {
		t.Fatalf("semicolon inside parentheses must not split, got %d statements", len(got))
	}
	if got := Statements(nil); len(got) != 0 {
		t.Fatalf("expected no statements, got %v", got)
	}
}

func TestOrdinals(t *testing.T) {
	t.Parallel()
	code := Code("SELECT ? , '?', ?", TSQL)
	ords := Ordinals(code)
	if len(ords) != 2 || ords[1] != 0 || ords[5] != 1 {
		t.Fatalf("unexpected ordinals %v", ords)
	}
}

func TestParseInsertBindings(t *testing.T) {
	t.Parallel()
	code := Code("INSERT INTO dbo.NoteRules (Name, Payload, Created) VALUES (?, ?, GETDATE())", TSQL)
	shape, ok := ParseInsert(code)
	if !ok {
		t.Fatal("expected insert shape")
	}
	if shape.Target.String() != "dbo.NoteRules" {
		t.Fatalf("expected target dbo.NoteRules, got %s", shape.Target)
	}
	want := map[int]string{0: "Name", 1: "Payload"}
	if !reflect.DeepEqual(shape.Bindings, want) {
		t.Fatalf("expected %v, got %v", want, shape.Bindings)
	}
}

func TestParseInsertMultiRowAndOutput(t *testing.T) {
	t.Parallel()
	code := Code("INSERT dbo.T (A, B) OUTPUT inserted.Id VALUES (?, UPPER(?)), (?, ?)", TSQL)
	shape, ok := ParseInsert(code)
	if !ok {
		t.Fatal("expected insert shape")
	}
	want := map[int]string{0: "A", 2: "A", 3: "B"}
	if !reflect.DeepEqual(shape.Bindings, want) {
		t.Fatalf("expected %v, got %v", want, shape.Bindings)
	}
}

func TestParseInsertWithoutColumnList(t *testing.T) {
	t.Parallel()
	shape, ok := ParseInsert(Code("INSERT INTO dbo.T VALUES (?, ?)", TSQL))
	if !ok {
		t.Fatal("expected insert shape")
	}
	if shape.Columns != nil || len(shape.Bindings) != 0 {
		t.Fatalf("expected no columns or bindings, got %+v", shape)
	}
}

func TestParseInsertNotInsert(t *testing.T) {
	t.Parallel()
	if _, ok := ParseInsert(Code("UPDATE dbo.T SET a = ?", TSQL)); ok {
		t.Fatal("expected UPDATE to be rejected")
	}
}

func TestRebind(t *testing.T) {
	t.Parallel()
	got := Rebind("SELECT * FROM t WHERE a = ? AND b = '?' AND c = ? -- ?")
	want := "SELECT * FROM t WHERE a = $1 AND b = '?' AND c = $2 -- ?"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
