package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"

	"github.com/99designs/keyring"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// keychainService namespaces sqlgate entries in the OS credential store.
const keychainService = "sqlgate"

// Keys stored in the OS keychain.
const (
	keyAPIToken   = "api-token"
	keyDBPassword = "db-password"
	keyConnString = "connstring"
)

var secretKeys = map[string]string{
	keyAPIToken:   "shared secret expected in the auth header",
	keyDBPassword: "database password used when connecting from config fields",
	keyConnString: "full driver connection string, overrides connection fields",
}

// openKeyring opens the native credential store. Replaced in tests.
var openKeyring = func() (keyring.Keyring, error) {
	cfg := keyring.Config{
		ServiceName: keychainService,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.WinCredBackend,
			keyring.SecretServiceBackend,
			keyring.KWalletBackend,
			keyring.PassBackend,
		},
		PassPrefix:    keychainService,
		WinCredPrefix: keychainService,
	}
	ring, err := keyring.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("no OS keychain available on %s: %w", runtime.GOOS, err)
	}
	return ring, nil
}

// lookupSecret returns the value of env if set, otherwise the keychain
// entry for key. A missing keychain or entry yields "".
func lookupSecret(env, key string) string {
	if v := os.Getenv(env); v != "" {
		return v
	}
	ring, err := openKeyring()
	if err != nil {
		return ""
	}
	item, err := ring.Get(key)
	if err != nil {
		return ""
	}
	return string(item.Data)
}

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage secrets stored in the OS keychain",
	Long:  "Manage secrets stored in the OS keychain. Keys: " + strings.Join(knownSecretKeys(), ", ") + ".",
}

var secretSetCmd = &cobra.Command{
	Use:   "set <key>",
	Short: "Store a secret (value is read from stdin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateSecretKey(args[0]); err != nil {
			return err
		}
		value, err := readSecretValue(cmd.InOrStdin(), cmd.ErrOrStderr(), args[0])
		if err != nil {
			return err
		}
		return setSecret(args[0], value, cmd.OutOrStdout())
	},
}

var secretGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Report whether a secret is stored",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateSecretKey(args[0]); err != nil {
			return err
		}
		return describeSecret(args[0], cmd.OutOrStdout())
	},
}

var secretDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Remove a stored secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateSecretKey(args[0]); err != nil {
			return err
		}
		return deleteSecret(args[0], cmd.OutOrStdout())
	},
}

func init() {
	secretCmd.AddCommand(secretSetCmd, secretGetCmd, secretDeleteCmd)
}

func knownSecretKeys() []string {
	keys := make([]string, 0, len(secretKeys))
	for k := range secretKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func validateSecretKey(key string) error {
	if _, ok := secretKeys[key]; !ok {
		return fmt.Errorf("unknown secret key %q (known: %s)", key, strings.Join(knownSecretKeys(), ", "))
	}
	return nil
}

// readSecretValue reads without echo from a terminal, or one line from in.
func readSecretValue(in io.Reader, prompt io.Writer, key string) (string, error) {
	if f, ok := in.(*os.File); ok && isTTY(f.Fd()) {
		fmt.Fprintf(prompt, "Value for %s: ", key)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("failed to read value: %w", err)
		}
		return validateSecretValue(string(b))
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read value: %w", err)
	}
	return validateSecretValue(strings.TrimRight(line, "\r\n"))
}

func validateSecretValue(v string) (string, error) {
	if strings.TrimSpace(v) == "" {
		return "", errors.New("secret value must not be empty")
	}
	return v, nil
}

func setSecret(key, value string, out io.Writer) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}
	if err := ring.Set(keyring.Item{Key: key, Data: []byte(value), Label: "sqlgate " + key}); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	fmt.Fprintf(out, "Stored %s in the OS keychain.\n", key)
	return nil
}

// describeSecret never prints the value itself.
func describeSecret(key string, out io.Writer) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}
	item, err := ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		fmt.Fprintf(out, "%s: not set\n", key)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	fmt.Fprintf(out, "%s: set (%d bytes) - %s\n", key, len(item.Data), secretKeys[key])
	return nil
}

func deleteSecret(key string, out io.Writer) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}
	if err := ring.Remove(key); err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			fmt.Fprintf(out, "%s: not set\n", key)
			return nil
		}
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	fmt.Fprintf(out, "Deleted %s.\n", key)
	return nil
}
