package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	sqlgate "github.com/rickchristie/sqlgate"
	"github.com/rickchristie/sqlgate/internal/configure"
	"github.com/rickchristie/sqlgate/internal/dbexec"
	"github.com/rickchristie/sqlgate/internal/meta"
	"github.com/rickchristie/sqlgate/internal/protection"
)

var doctorPing bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Validate the configuration and print client snippets",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.ErrOrStderr()
		return doctor(w, isTTY(os.Stderr.Fd()), resolveConfigPath(), doctorPing)
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorPing, "ping", false, "Also connect to the database and run a ping")
}

func doctor(w io.Writer, useColor bool, configPath string, ping bool) error {
	printBanner(w, useColor)
	fmt.Fprintf(w, "sqlgate %s\n\n", meta.Version)

	config, ok := doctorValidateConfig(w, useColor, configPath)
	if ok && ping {
		ok = doctorPingDatabase(w, useColor, config)
	}
	if !ok {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Fix the issues above and run 'sqlgate doctor' again.")
		return nil
	}

	fmt.Fprintln(w)
	printClientSnippets(w, useColor, config)
	return nil
}

// doctorValidateConfig loads and validates the config file, printing check results.
// Returns the parsed config and true if all checks passed.
func doctorValidateConfig(w io.Writer, useColor bool, configPath string) (*sqlgate.ServerConfig, bool) {
	config, err := configure.Load(configPath)
	if err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Config file loads: %v", err))
		return nil, false
	}
	printCheck(w, useColor, true, fmt.Sprintf("Config file loads (%s)", configPath))

	allPassed := true
	check := func(pass bool, msg string) {
		printCheck(w, useColor, pass, msg)
		if !pass {
			allPassed = false
		}
	}

	driver, err := dbexec.ParseDriver(config.Database.Driver)
	if err != nil {
		check(false, fmt.Sprintf("database.driver is valid: %v", err))
		return config, false
	}
	check(true, fmt.Sprintf("database.driver is valid (%s)", driver))

	check(config.Database.MaxConns > 0, fmt.Sprintf("database.max_conns is > 0 (%d)", config.Database.MaxConns))
	check(config.Connection.DBName != "" || os.Getenv("SQLGATE_CONNSTRING") != "",
		fmt.Sprintf("connection.dbname is set (%q)", config.Connection.DBName))
	check(config.Server.Port > 0, fmt.Sprintf("server.port is > 0 (%d)", config.Server.Port))

	_, err = protection.NewChecker(protection.Config{
		Dialect:           driver.Dialect(),
		AllowedObjects:    config.Protection.AllowedObjects,
		AllowedProcedures: config.Protection.AllowedProcedures,
		ForbiddenKeywords: config.Protection.ForbiddenKeywords,
	})
	if err != nil {
		check(false, fmt.Sprintf("Allow-lists are valid: %v", err))
	} else {
		check(true, fmt.Sprintf("Allow-lists are valid (%d objects, %d procedures)",
			len(config.Protection.AllowedObjects), len(config.Protection.AllowedProcedures)))
	}
	if len(config.Protection.AllowedObjects) == 0 && len(config.Protection.AllowedProcedures) == 0 {
		check(false, "At least one allowed object or procedure is configured")
	}

	regexOK := true
	checkRegex := func(field string, i int, pattern string) {
		if _, err := regexp.Compile(pattern); err != nil {
			check(false, fmt.Sprintf("%s[%d] regex compiles: %v", field, i, err))
			regexOK = false
		}
	}
	for i, rule := range config.ErrorHints {
		checkRegex("error_hints", i, rule.Pattern)
	}
	for i, rule := range config.Sanitization {
		checkRegex("sanitization", i, rule.Pattern)
	}
	for i, rule := range config.Query.TimeoutRules {
		checkRegex("query.timeout_rules", i, rule.Pattern)
	}
	if regexOK {
		check(true, "All regex patterns compile")
	}

	switch {
	case config.Auth.OpenMode && config.Auth.Token != "":
		check(false, "auth.token and auth.open_mode are not both set")
	case config.Auth.OpenMode:
		check(true, "Auth token source (open mode, requests are not authenticated)")
	case config.Auth.Token != "":
		check(true, "Auth token source (config file)")
	case os.Getenv("SQLGATE_API_TOKEN") != "":
		check(true, "Auth token source (SQLGATE_API_TOKEN)")
	case lookupSecret("SQLGATE_API_TOKEN", keyAPIToken) != "":
		check(true, "Auth token source (OS keychain)")
	default:
		check(false, fmt.Sprintf("Auth token source (set SQLGATE_API_TOKEN or run 'sqlgate secret set %s')", keyAPIToken))
	}

	return config, allPassed
}

// doctorPingDatabase opens the configured database and pings it once.
func doctorPingDatabase(w io.Writer, useColor bool, config *sqlgate.ServerConfig) bool {
	cfg := config.Config
	// Doctor never needs the real token to ping.
	cfg.Auth = sqlgate.AuthConfig{OpenMode: true}

	g, err := sqlgate.New(resolveConnString(config), cfg, zerolog.Nop())
	if err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Database reachable: %v", err))
		return false
	}
	defer g.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Database.ConnectTimeoutSeconds+5)*time.Second)
	defer cancel()
	if err := g.Ping(ctx); err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Database reachable: %v", err))
		return false
	}
	printCheck(w, useColor, true, "Database reachable")
	return true
}

// printCheck prints a colored ✓ or ✗ check line.
func printCheck(w io.Writer, useColor bool, pass bool, msg string) {
	mark, color := "✓", "\033[32m"
	if !pass {
		mark, color = "✗", "\033[31m"
	}
	if useColor {
		fmt.Fprintf(w, "  %s%s\033[0m %s\n", color, mark, msg)
	} else {
		fmt.Fprintf(w, "  %s %s\n", mark, msg)
	}
}

// printClientSnippets prints a sample request and, when MCP is enabled,
// agent configuration snippets.
func printClientSnippets(w io.Writer, useColor bool, config *sqlgate.ServerConfig) {
	base := fmt.Sprintf("http://localhost:%d", config.Server.Port)
	header := config.Auth.Header
	if header == "" {
		header = "X-Token"
	}

	heading := func(title string) {
		if useColor {
			fmt.Fprintf(w, "\033[1;32m%s\033[0m\n", title)
		} else {
			fmt.Fprintln(w, title)
		}
	}

	heading("Sample Request")
	fmt.Fprintln(w)
	object := "dbo.AppMeta"
	if len(config.Protection.AllowedObjects) > 0 {
		object = config.Protection.AllowedObjects[0]
	}
	fmt.Fprintf(w, "  curl -s %s/sql \\\n", base)
	if !config.Auth.OpenMode {
		fmt.Fprintf(w, "    -H \"%s: $SQLGATE_API_TOKEN\" \\\n", header)
	}
	fmt.Fprintf(w, "    -H 'Content-Type: application/json' \\\n")
	fmt.Fprintf(w, "    -d '{\"query\":\"SELECT * FROM %s\",\"params\":[]}'\n", object)
	fmt.Fprintln(w)

	if !config.Server.MCPEnabled {
		return
	}

	url := base + mcpPath
	heading("MCP Clients")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  claude mcp add --transport http sqlgate %s --header \"%s: $SQLGATE_API_TOKEN\"\n\n", url, header)
	fmt.Fprintf(w, `  {
    "mcpServers": {
      "sqlgate": {
        "type": "http",
        "url": "%s",
        "headers": { "%s": "<token>" }
      }
    }
  }
`, url, header)
}
