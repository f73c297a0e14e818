package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	sqlgate "github.com/rickchristie/sqlgate"
)

func TestDoctorValidConfig(t *testing.T) {
	t.Parallel()
	path := writeConfigFile(t, t.TempDir(), validServerConfig())

	var buf bytes.Buffer
	if err := doctor(&buf, false, path, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	if strings.Contains(output, "✗") {
		t.Fatalf("expected all checks to pass, but found failures in output:\n%s", output)
	}
	for _, want := range []string{
		"Config file loads",
		"database.driver is valid (sqlserver)",
		"server.port is > 0 (8080)",
		"Allow-lists are valid (2 objects, 1 procedures)",
		"All regex patterns compile",
		"Auth token source (config file)",
		"curl -s http://localhost:8080/sql",
		`-H "X-Token: $SQLGATE_API_TOKEN"`,
		"SELECT * FROM dbo.AppMeta",
	} {
		if !strings.Contains(output, want) {
			t.Fatalf("expected %q in output:\n%s", want, output)
		}
	}
	if strings.Contains(output, "MCP Clients") {
		t.Fatalf("MCP snippets should only print when mcp_enabled:\n%s", output)
	}
}

func TestDoctorMCPSnippets(t *testing.T) {
	t.Parallel()
	cfg := validServerConfig()
	cfg.Server.MCPEnabled = true
	cfg.Auth.Header = "X-Gate"
	path := writeConfigFile(t, t.TempDir(), cfg)

	var buf bytes.Buffer
	if err := doctor(&buf, false, path, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()
	if !strings.Contains(output, "claude mcp add --transport http sqlgate http://localhost:8080/mcp") {
		t.Fatalf("expected MCP command in output:\n%s", output)
	}
	if !strings.Contains(output, `"X-Gate": "<token>"`) {
		t.Fatalf("expected custom header in snippet:\n%s", output)
	}
}

func TestDoctorMissingConfig(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	if err := doctor(&buf, false, "/nonexistent/path/config.json", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()
	if !strings.Contains(output, "✗ Config file loads") {
		t.Fatalf("expected failed load check in output:\n%s", output)
	}
	if !strings.Contains(output, "Fix the issues above") {
		t.Fatalf("expected fix message in output:\n%s", output)
	}
	if strings.Contains(output, "Sample Request") {
		t.Fatalf("snippets should not print when checks fail:\n%s", output)
	}
}

func TestDoctorInvalidJSON(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{invalid json}"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	var buf bytes.Buffer
	doctor(&buf, false, path, false)
	if !strings.Contains(buf.String(), "failed to parse") {
		t.Fatalf("expected parse failure in output:\n%s", buf.String())
	}
}

func TestDoctorInvalidDriver(t *testing.T) {
	t.Parallel()
	cfg := validServerConfig()
	cfg.Database.Driver = "oracle"
	path := writeConfigFile(t, t.TempDir(), cfg)

	var buf bytes.Buffer
	doctor(&buf, false, path, false)
	if !strings.Contains(buf.String(), "✗ database.driver is valid") {
		t.Fatalf("expected driver failure in output:\n%s", buf.String())
	}
}

func TestDoctorUnqualifiedAllowListEntry(t *testing.T) {
	t.Parallel()
	cfg := validServerConfig()
	cfg.Protection.AllowedObjects = []string{"AppMeta"}
	path := writeConfigFile(t, t.TempDir(), cfg)

	var buf bytes.Buffer
	doctor(&buf, false, path, false)
	output := buf.String()
	if !strings.Contains(output, "✗ Allow-lists are valid") || !strings.Contains(output, `"AppMeta" must be schema.name`) {
		t.Fatalf("expected allow-list failure in output:\n%s", output)
	}
}

func TestDoctorEmptyAllowLists(t *testing.T) {
	t.Parallel()
	cfg := validServerConfig()
	cfg.Protection.AllowedObjects = nil
	cfg.Protection.AllowedProcedures = nil
	path := writeConfigFile(t, t.TempDir(), cfg)

	var buf bytes.Buffer
	doctor(&buf, false, path, false)
	if !strings.Contains(buf.String(), "✗ At least one allowed object or procedure") {
		t.Fatalf("expected empty allow-list failure in output:\n%s", buf.String())
	}
}

func TestDoctorInvalidRegex(t *testing.T) {
	t.Parallel()
	cfg := validServerConfig()
	cfg.ErrorHints = append(cfg.ErrorHints, sqlgate.ErrorHintRule{Pattern: "(unclosed", Hint: "x"})
	path := writeConfigFile(t, t.TempDir(), cfg)

	var buf bytes.Buffer
	doctor(&buf, false, path, false)
	output := buf.String()
	if !strings.Contains(output, "✗ error_hints[0] regex compiles") {
		t.Fatalf("expected regex failure in output:\n%s", output)
	}
	if strings.Contains(output, "All regex patterns compile") {
		t.Fatalf("unexpected success line in output:\n%s", output)
	}
}

func TestDoctorTokenAndOpenMode(t *testing.T) {
	t.Parallel()
	cfg := validServerConfig()
	cfg.Auth.OpenMode = true
	path := writeConfigFile(t, t.TempDir(), cfg)

	var buf bytes.Buffer
	doctor(&buf, false, path, false)
	if !strings.Contains(buf.String(), "✗ auth.token and auth.open_mode are not both set") {
		t.Fatalf("expected auth failure in output:\n%s", buf.String())
	}
}

func TestDoctorMissingToken(t *testing.T) {
	t.Setenv("SQLGATE_API_TOKEN", "")
	cfg := validServerConfig()
	cfg.Auth.Token = ""
	path := writeConfigFile(t, t.TempDir(), cfg)

	var buf bytes.Buffer
	doctor(&buf, false, path, false)
	if !strings.Contains(buf.String(), "✗ Auth token source") {
		t.Fatalf("expected token failure in output:\n%s", buf.String())
	}

	t.Setenv("SQLGATE_API_TOKEN", "env-token")
	buf.Reset()
	doctor(&buf, false, path, false)
	if !strings.Contains(buf.String(), "✓ Auth token source (SQLGATE_API_TOKEN)") {
		t.Fatalf("expected env token source in output:\n%s", buf.String())
	}
}

func TestDoctorPingSQLite(t *testing.T) {
	t.Setenv("SQLGATE_CONNSTRING", "")
	cfg := validServerConfig()
	cfg.Database.Driver = "sqlite"
	cfg.Protection.AllowedObjects = []string{"main.AppMeta"}
	cfg.Protection.AllowedProcedures = nil
	cfg.Connection.DBName = filepath.Join(t.TempDir(), "ping.db")
	path := writeConfigFile(t, t.TempDir(), cfg)

	var buf bytes.Buffer
	if err := doctor(&buf, false, path, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "✓ Database reachable") {
		t.Fatalf("expected successful ping in output:\n%s", buf.String())
	}
}

func TestPrintCheckColor(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	printCheck(&buf, true, true, "ok")
	printCheck(&buf, true, false, "bad")
	out := buf.String()
	if !strings.Contains(out, "\033[32m✓\033[0m ok") || !strings.Contains(out, "\033[31m✗\033[0m bad") {
		t.Fatalf("unexpected output %q", out)
	}
}
