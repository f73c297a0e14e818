package main

import (
	"errors"
	"os"
	"testing"

	"github.com/99designs/keyring"
)

func TestMain(m *testing.M) {
	// Tests never touch the developer's real keychain.
	openKeyring = func() (keyring.Keyring, error) {
		return nil, errors.New("no keychain in tests")
	}
	os.Exit(m.Run())
}

// useArrayKeyring swaps in an in-memory keyring for the duration of t.
// Callers must not be parallel.
func useArrayKeyring(t *testing.T, items ...keyring.Item) keyring.Keyring {
	t.Helper()
	ring := keyring.NewArrayKeyring(items)
	prev := openKeyring
	openKeyring = func() (keyring.Keyring, error) { return ring, nil }
	t.Cleanup(func() { openKeyring = prev })
	return ring
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("SQLGATE_CONFIG_PATH", "")
	if got := resolveConfigPath(); got != defaultConfigPath {
		t.Fatalf("expected default path, got %q", got)
	}

	t.Setenv("SQLGATE_CONFIG_PATH", "/etc/sqlgate.yaml")
	if got := resolveConfigPath(); got != "/etc/sqlgate.yaml" {
		t.Fatalf("expected env path, got %q", got)
	}

	configPath = "flag.json"
	t.Cleanup(func() { configPath = "" })
	if got := resolveConfigPath(); got != "flag.json" {
		t.Fatalf("expected flag to win, got %q", got)
	}
}
