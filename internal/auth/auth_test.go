package auth

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func expectPanic(t *testing.T, contains string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected panic containing %q, got none", contains)
		}
		if !strings.Contains(fmt.Sprint(r), contains) {
			t.Fatalf("expected panic containing %q, got %v", contains, r)
		}
	}()
	fn()
}

func TestMatchingToken(t *testing.T) {
	t.Parallel()
	g := NewGuard(Config{Token: "s3cret"})
	if err := g.Check("s3cret"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMismatchedToken(t *testing.T) {
	t.Parallel()
	g := NewGuard(Config{Token: "s3cret"})
	for _, supplied := range []string{"", "s3cre", "s3cret ", "S3CRET"} {
		if err := g.Check(supplied); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized for %q, got %v", supplied, err)
		}
	}
}

func TestOpenMode(t *testing.T) {
	t.Parallel()
	g := NewGuard(Config{OpenMode: true})
	if !g.Open() {
		t.Fatal("expected open guard")
	}
	if err := g.Check(""); err != nil {
		t.Fatalf("unexpected error in open mode: %v", err)
	}
}

func TestMissingTokenPanics(t *testing.T) {
	t.Parallel()
	expectPanic(t, "open_mode", func() {
		NewGuard(Config{})
	})
}

func TestTokenAndOpenModePanics(t *testing.T) {
	t.Parallel()
	expectPanic(t, "mutually exclusive", func() {
		NewGuard(Config{Token: "x", OpenMode: true})
	})
}

func TestHeaderDefaultAndCanonical(t *testing.T) {
	t.Parallel()
	if h := NewGuard(Config{Token: "x"}).Header(); h != "X-Token" {
		t.Fatalf("expected X-Token, got %q", h)
	}
	if h := NewGuard(Config{Token: "x", Header: "x-api-key"}).Header(); h != "X-Api-Key" {
		t.Fatalf("expected X-Api-Key, got %q", h)
	}
}
