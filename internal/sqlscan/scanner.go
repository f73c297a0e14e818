package sqlscan

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Dialect selects the quoting and comment rules used by the scanner.
type Dialect int

const (
	// TSQL is SQL Server: [bracket] identifiers, N'' strings, nested block comments.
	TSQL Dialect = iota
	// Postgres adds E'' strings, $tag$ dollar quoting and $n placeholders.
	Postgres
	// SQLite accepts [bracket] and `backtick` identifiers; block comments do not nest.
	SQLite
)

// String returns the dialect name.
func (d Dialect) String() string {
	switch d {
	case TSQL:
		return "tsql"
	case Postgres:
		return "postgres"
	case SQLite:
		return "sqlite"
	default:
		return "unknown"
	}
}

// Kind tags a token.
type Kind int

const (
	Word        Kind = iota + 1 // keyword or bare identifier
	QuotedIdent                 // [x], "x" or `x`
	String                      // 'x', N'x', E'x', $$x$$
	Number
	Variable    // @x, @@x
	Placeholder // ?, $1
	Dot
	Punct
	Comment
)

var kindNames = map[Kind]string{
	Word:        "word",
	QuotedIdent: "quoted_ident",
	String:      "string",
	Number:      "number",
	Variable:    "variable",
	Placeholder: "placeholder",
	Dot:         "dot",
	Punct:       "punct",
	Comment:     "comment",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "invalid"
}

// Token is one lexical element of a statement.
// Text is the raw source slice; Value is the content with quoting removed
// (identifier name, string contents, comment body).
type Token struct {
	Kind  Kind
	Text  string
	Value string
	Pos   int
}

// IsIdent reports whether the token can be part of an object name.
func (t Token) IsIdent() bool {
	return t.Kind == Word || t.Kind == QuotedIdent
}

// IsKeyword reports whether t is a bare word equal (case-insensitively) to any of kw.
func (t Token) IsKeyword(kw ...string) bool {
	if t.Kind != Word {
		return false
	}
	for _, k := range kw {
		if strings.EqualFold(t.Text, k) {
			return true
		}
	}
	return false
}

// IsPunct reports whether t is the single punctuation character p.
func (t Token) IsPunct(p string) bool {
	return t.Kind == Punct && t.Text == p
}

// Scan splits sql into tokens. Whitespace is dropped; comments are kept.
// Unterminated literals and comments run to the end of the input.
func Scan(sql string, d Dialect) []Token {
	s := &scanner{src: sql, dialect: d}
	var tokens []Token
	for {
		tok, ok := s.next()
		if !ok {
			return tokens
		}
		tokens = append(tokens, tok)
	}
}

// Code returns the tokens of sql that are not comments.
func Code(sql string, d Dialect) []Token {
	return StripComments(Scan(sql, d))
}

// StripComments filters comment tokens out of tokens.
func StripComments(tokens []Token) []Token {
	out := make([]Token, 0, len(tokens))
	for _, t := range tokens {
		if t.Kind != Comment {
			out = append(out, t)
		}
	}
	return out
}

type scanner struct {
	src     string
	pos     int
	dialect Dialect
}

func (s *scanner) peek(off int) byte {
	if s.pos+off < len(s.src) {
		return s.src[s.pos+off]
	}
	return 0
}

func (s *scanner) next() (Token, bool) {
	for s.pos < len(s.src) {
		r, size := utf8.DecodeRuneInString(s.src[s.pos:])
		if !unicode.IsSpace(r) {
			break
		}
		s.pos += size
	}
	if s.pos >= len(s.src) {
		return Token{}, false
	}

	start := s.pos
	c := s.src[s.pos]
	switch {
	case c == '-' && s.peek(1) == '-':
		end := strings.IndexByte(s.src[start:], '\n')
		if end < 0 {
			end = len(s.src)
		} else {
			end += start
		}
		s.pos = end
		return s.token(Comment, start, s.src[start+2:end]), true

	case c == '/' && s.peek(1) == '*':
		return s.blockComment(start), true

	case c == '\'':
		return s.delimited(String, start, start, '\'', false), true

	case (c == 'N' || c == 'n') && s.peek(1) == '\'':
		return s.delimited(String, start, start+1, '\'', false), true

	case (c == 'E' || c == 'e') && s.peek(1) == '\'' && s.dialect == Postgres:
		return s.delimited(String, start, start+1, '\'', true), true

	case c == '"':
		return s.delimited(QuotedIdent, start, start, '"', false), true

	case c == '[' && s.dialect != Postgres:
		return s.delimited(QuotedIdent, start, start, ']', false), true

	case c == '`' && s.dialect == SQLite:
		return s.delimited(QuotedIdent, start, start, '`', false), true

	case c == '$' && s.dialect == Postgres:
		if isDigit(s.peek(1)) {
			s.pos++
			for s.pos < len(s.src) && isDigit(s.src[s.pos]) {
				s.pos++
			}
			return s.token(Placeholder, start, ""), true
		}
		if tok, ok := s.dollarQuoted(start); ok {
			return tok, true
		}
		s.pos++
		return s.token(Punct, start, ""), true

	case c == '?':
		s.pos++
		return s.token(Placeholder, start, ""), true

	case c == '@':
		s.pos++
		if s.peek(0) == '@' {
			s.pos++
		}
		s.consumeIdentChars()
		return s.token(Variable, start, ""), true

	case c == '.':
		s.pos++
		return s.token(Dot, start, ""), true

	case isDigit(c):
		// Letters are never absorbed: SQL Server reads "1DROP" as 1 followed by DROP.
		if c == '0' && (s.peek(1) == 'x' || s.peek(1) == 'X') {
			s.pos += 2
			for s.pos < len(s.src) && isHexDigit(s.src[s.pos]) {
				s.pos++
			}
			return s.token(Number, start, ""), true
		}
		for s.pos < len(s.src) && (isDigit(s.src[s.pos]) || s.src[s.pos] == '.') {
			s.pos++
		}
		if e := s.peek(0); e == 'e' || e == 'E' {
			switch {
			case isDigit(s.peek(1)):
				s.pos++
			case (s.peek(1) == '+' || s.peek(1) == '-') && isDigit(s.peek(2)):
				s.pos += 2
			}
			for s.pos < len(s.src) && isDigit(s.src[s.pos]) {
				s.pos++
			}
		}
		return s.token(Number, start, ""), true
	}

	r, size := utf8.DecodeRuneInString(s.src[s.pos:])
	if isIdentStart(r) {
		s.pos += size
		s.consumeIdentChars()
		tok := s.token(Word, start, "")
		tok.Value = tok.Text
		return tok, true
	}

	s.pos += size
	return s.token(Punct, start, ""), true
}

func (s *scanner) token(kind Kind, start int, value string) Token {
	return Token{Kind: kind, Text: s.src[start:s.pos], Value: value, Pos: start}
}

func (s *scanner) consumeIdentChars() {
	for s.pos < len(s.src) {
		r, size := utf8.DecodeRuneInString(s.src[s.pos:])
		if !isIdentChar(r) {
			return
		}
		s.pos += size
	}
}

// delimited scans a quoted run whose opening delimiter sits at open.
// A doubled closing delimiter is an escaped literal delimiter.
func (s *scanner) delimited(kind Kind, start, open int, close byte, backslash bool) Token {
	var b strings.Builder
	i := open + 1
	for i < len(s.src) {
		c := s.src[i]
		if backslash && c == '\\' && i+1 < len(s.src) {
			b.WriteByte(s.src[i+1])
			i += 2
			continue
		}
		if c == close {
			if i+1 < len(s.src) && s.src[i+1] == close {
				b.WriteByte(close)
				i += 2
				continue
			}
			i++
			s.pos = i
			return s.token(kind, start, b.String())
		}
		b.WriteByte(c)
		i++
	}
	s.pos = len(s.src)
	return s.token(kind, start, b.String())
}

// blockComment scans /* ... */. SQL Server and PostgreSQL nest block
// comments, so depth is tracked for those dialects.
func (s *scanner) blockComment(start int) Token {
	nested := s.dialect != SQLite
	depth := 0
	i := start
	for i < len(s.src) {
		if s.src[i] == '/' && i+1 < len(s.src) && s.src[i+1] == '*' {
			if depth == 0 || nested {
				depth++
			}
			i += 2
			continue
		}
		if s.src[i] == '*' && i+1 < len(s.src) && s.src[i+1] == '/' {
			depth--
			i += 2
			if depth == 0 {
				s.pos = i
				return s.token(Comment, start, s.src[start+2:i-2])
			}
			continue
		}
		i++
	}
	s.pos = len(s.src)
	return s.token(Comment, start, s.src[start+2:])
}

// dollarQuoted scans $tag$ ... $tag$. It reports false when the text at
// start is not a dollar-quote opener.
func (s *scanner) dollarQuoted(start int) (Token, bool) {
	i := start + 1
	for i < len(s.src) && (isASCIILetter(s.src[i]) || s.src[i] == '_' || (i > start+1 && isDigit(s.src[i]))) {
		i++
	}
	if i >= len(s.src) || s.src[i] != '$' {
		return Token{}, false
	}
	tag := s.src[start : i+1]
	body := i + 1
	end := strings.Index(s.src[body:], tag)
	if end < 0 {
		s.pos = len(s.src)
		return s.token(String, start, s.src[body:]), true
	}
	s.pos = body + end + len(tag)
	return s.token(String, start, s.src[body:body+end]), true
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isHexDigit(b byte) bool {
	return isDigit(b) || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isIdentStart(r rune) bool {
	return r == '_' || r == '#' || unicode.IsLetter(r)
}

func isIdentChar(r rune) bool {
	return r == '_' || r == '#' || r == '$' || r == '@' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Words splits free text (string or comment contents) into identifier-like
// runs, used for keyword matching inside literals.
func Words(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !isIdentChar(r)
	})
}
