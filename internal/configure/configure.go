package configure

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	sqlgate "github.com/rickchristie/sqlgate"
)

// Run runs the interactive configuration wizard.
// Reads existing config (if any), prompts for each field,
// writes updated config to the given path.
func Run(configPath string) error {
	return run(configPath, os.Stdin, os.Stderr)
}

func run(configPath string, input io.Reader, output io.Writer) error {
	cfg, isNew := loadExisting(configPath)
	if isNew {
		applyDefaults(cfg)
	}

	p := &prompter{
		scanner: bufio.NewScanner(input),
		output:  output,
		isNew:   isNew,
	}

	fmt.Fprintf(output, "sqlgate configuration wizard\n")
	fmt.Fprintf(output, "Config file: %s\n\n", configPath)

	fmt.Fprintf(output, "=== Database ===\n")
	cfg.Database.Driver = p.promptEnum("database.driver", cfg.Database.Driver, drivers)
	cfg.Database.MaxConns = p.promptPositiveInt("database.max_conns", cfg.Database.MaxConns, "must be > 0")
	cfg.Database.ConnectTimeoutSeconds = p.promptNonNegativeInt("database.connect_timeout_seconds", cfg.Database.ConnectTimeoutSeconds, "seconds, 0 = 10")

	fmt.Fprintf(output, "\n=== Connection ===\n")
	if cfg.Database.Driver == "sqlite" {
		cfg.Connection.DBName = p.promptStringWithHint("connection.dbname", cfg.Connection.DBName, "database file path")
	} else {
		cfg.Connection.Host = p.promptString("connection.host", cfg.Connection.Host)
		cfg.Connection.Port = p.promptPositiveInt("connection.port", cfg.Connection.Port, "must be > 0")
		cfg.Connection.DBName = p.promptStringWithHint("connection.dbname", cfg.Connection.DBName, "required")
		cfg.Connection.User = p.promptStringWithHint("connection.user", cfg.Connection.User, "empty = prompt at startup")
		cfg.Connection.AppName = p.promptString("connection.app_name", cfg.Connection.AppName)
	}
	switch cfg.Database.Driver {
	case "sqlserver":
		cfg.Connection.Encrypt = p.promptEnum("connection.encrypt", cfg.Connection.Encrypt, encryptModes)
		cfg.Connection.Trusted = p.promptBool("connection.trusted", cfg.Connection.Trusted)
	case "postgres":
		cfg.Connection.SSLMode = p.promptEnum("connection.sslmode", cfg.Connection.SSLMode, sslModes)
	}

	fmt.Fprintf(output, "\n=== Server ===\n")
	cfg.Server.Port = p.promptPositiveInt("server.port", cfg.Server.Port, "must be > 0")
	cfg.Server.HealthCheckPath = p.promptStringWithHint("server.health_check_path", cfg.Server.HealthCheckPath, "e.g. /health")
	cfg.Server.MetricsEnabled = p.promptBool("server.metrics_enabled", cfg.Server.MetricsEnabled)
	if cfg.Server.MetricsEnabled {
		cfg.Server.MetricsPath = p.promptString("server.metrics_path", cfg.Server.MetricsPath)
	}
	cfg.Server.MCPEnabled = p.promptBool("server.mcp_enabled", cfg.Server.MCPEnabled)

	fmt.Fprintf(output, "\n=== Logging ===\n")
	cfg.Logging.Level = p.promptEnum("logging.level", cfg.Logging.Level, logLevels)
	cfg.Logging.Format = p.promptEnum("logging.format", cfg.Logging.Format, logFormats)
	cfg.Logging.Output = p.promptStringWithHint("logging.output", cfg.Logging.Output, "stdout, stderr, or file path")

	// The token itself is never written by the wizard.
	fmt.Fprintf(output, "\n=== Auth ===\n")
	fmt.Fprintf(output, "  The token is read from SQLGATE_API_TOKEN or the OS keychain (sqlgate secret set api-token).\n")
	cfg.Auth.Header = p.promptString("auth.header", cfg.Auth.Header)
	cfg.Auth.OpenMode = p.promptBool("auth.open_mode", cfg.Auth.OpenMode)

	fmt.Fprintf(output, "\n=== Query ===\n")
	cfg.Query.MaxSQLLength = p.promptPositiveInt("query.max_sql_length", cfg.Query.MaxSQLLength, "bytes, must be > 0")
	cfg.Query.TimeoutSeconds = p.promptNonNegativeInt("query.timeout_seconds", cfg.Query.TimeoutSeconds, "seconds, 0 = no limit")

	fmt.Fprintf(output, "\n=== Protection ===\n")
	cfg.Protection.FoldIdentifierCase = p.promptBool("protection.fold_identifier_case", cfg.Protection.FoldIdentifierCase)
	cfg.Protection.AllowUnqualifiedNames = p.promptBool("protection.allow_unqualified_names", cfg.Protection.AllowUnqualifiedNames)

	fmt.Fprintf(output, "\n=== Allowed Objects ===\n")
	cfg.Protection.AllowedObjects = p.promptQualifiedNames("protection.allowed_objects", cfg.Protection.AllowedObjects)

	fmt.Fprintf(output, "\n=== Allowed Procedures ===\n")
	cfg.Protection.AllowedProcedures = p.promptQualifiedNames("protection.allowed_procedures", cfg.Protection.AllowedProcedures)

	fmt.Fprintf(output, "\n=== Extra Forbidden Keywords ===\n")
	cfg.Protection.ForbiddenKeywords = p.promptStrings("protection.forbidden_keywords", "keyword", cfg.Protection.ForbiddenKeywords)

	fmt.Fprintf(output, "\n=== Binary Columns ===\n")
	cfg.Params.BinaryColumns = p.promptBinaryColumns(cfg.Params.BinaryColumns)

	fmt.Fprintf(output, "\n=== Timeout Rules ===\n")
	cfg.Query.TimeoutRules = p.promptTimeoutRules(cfg.Query.TimeoutRules)

	fmt.Fprintf(output, "\n=== Error Hints ===\n")
	cfg.ErrorHints = p.promptErrorHints(cfg.ErrorHints)

	fmt.Fprintf(output, "\n=== Sanitization Rules ===\n")
	cfg.Sanitization = p.promptSanitizationRules(cfg.Sanitization)

	if err := Write(configPath, cfg); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(output, "\nConfiguration saved to %s\n", configPath)
	return nil
}

// Load reads a JSON or YAML (by .yaml/.yml extension) config file.
func Load(configPath string) (*sqlgate.ServerConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}
	var cfg sqlgate.ServerConfig
	if isYAML(configPath) {
		err = yaml.Unmarshal(data, &cfg)
	} else {
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}
	return &cfg, nil
}

// Write stores cfg at configPath in the format its extension selects,
// creating the directory if needed.
func Write(configPath string, cfg *sqlgate.ServerConfig) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	var data []byte
	var err error
	if isYAML(configPath) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// The file may hold auth.token.
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write file %s: %w", configPath, err)
	}
	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func loadExisting(configPath string) (*sqlgate.ServerConfig, bool) {
	cfg, err := Load(configPath)
	if err != nil {
		return &sqlgate.ServerConfig{}, true
	}
	return cfg, false
}

// applyDefaults sets sensible default values for a new configuration.
func applyDefaults(cfg *sqlgate.ServerConfig) {
	cfg.Database.Driver = "sqlserver"
	cfg.Database.MaxConns = 5
	cfg.Database.ConnectTimeoutSeconds = 10
	cfg.Connection.Host = "localhost"
	cfg.Connection.Port = 1433
	cfg.Connection.Encrypt = "true"
	cfg.Connection.AppName = "sqlgate"
	cfg.Server.Port = 8080
	cfg.Server.HealthCheckPath = "/health"
	cfg.Server.MetricsPath = "/metrics"
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.Output = "stderr"
	cfg.Query.MaxSQLLength = 100000
	cfg.Params.BinaryColumns = append([]sqlgate.BinaryColumnRule(nil), sqlgate.DefaultBinaryColumns...)
}

var (
	drivers      = []string{"sqlserver", "postgres", "sqlite"}
	encryptModes = []string{"disable", "false", "true", "strict"}
	sslModes     = []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}
	logLevels    = []string{"debug", "info", "warn", "error"}
	logFormats   = []string{"json", "text"}
)

var qualifiedName = regexp.MustCompile(`^[^.\s]+\.[^.\s]+$`)

// prompter handles reading user input and displaying prompts.
type prompter struct {
	scanner *bufio.Scanner
	output  io.Writer
	isNew   bool
}

func (p *prompter) readLine() string {
	if p.scanner.Scan() {
		return strings.TrimSpace(p.scanner.Text())
	}
	return ""
}

func (p *prompter) valueLabel() string {
	if p.isNew {
		return "default"
	}
	return "current"
}

func (p *prompter) promptString(field string, current string) string {
	fmt.Fprintf(p.output, "%s (%s: %q): ", field, p.valueLabel(), current)
	if input := p.readLine(); input != "" {
		return input
	}
	return current
}

func (p *prompter) promptStringWithHint(field string, current string, hint string) string {
	fmt.Fprintf(p.output, "%s [%s] (%s: %q): ", field, hint, p.valueLabel(), current)
	if input := p.readLine(); input != "" {
		return input
	}
	return current
}

// promptIntMin reads an integer >= min, keeping current on empty input.
func (p *prompter) promptIntMin(field string, current int, hint string, min int) int {
	for {
		fmt.Fprintf(p.output, "%s [%s] (%s: %d): ", field, hint, p.valueLabel(), current)
		input := p.readLine()
		if input == "" {
			return current
		}
		val, err := strconv.Atoi(input)
		if err != nil {
			fmt.Fprintf(p.output, "  Invalid integer %q, try again.\n", input)
			continue
		}
		if val < min {
			fmt.Fprintf(p.output, "  Value must be >= %d, try again.\n", min)
			continue
		}
		return val
	}
}

func (p *prompter) promptPositiveInt(field string, current int, hint string) int {
	return p.promptIntMin(field, current, hint, 1)
}

func (p *prompter) promptNonNegativeInt(field string, current int, hint string) int {
	return p.promptIntMin(field, current, hint, 0)
}

func (p *prompter) promptBool(field string, current bool) bool {
	for {
		fmt.Fprintf(p.output, "%s (%s: %v): ", field, p.valueLabel(), current)
		input := p.readLine()
		if input == "" {
			return current
		}
		switch strings.ToLower(input) {
		case "true", "t", "yes", "y", "1":
			return true
		case "false", "f", "no", "n", "0":
			return false
		default:
			fmt.Fprintf(p.output, "  Invalid value %q, use true/false/yes/no, try again.\n", input)
		}
	}
}

func (p *prompter) promptEnum(field string, current string, allowed []string) string {
	for {
		fmt.Fprintf(p.output, "%s (%s: %q, options: %s): ", field, p.valueLabel(), current, strings.Join(allowed, ", "))
		input := p.readLine()
		if input == "" {
			return current
		}
		for _, v := range allowed {
			if input == v {
				return input
			}
		}
		fmt.Fprintf(p.output, "  Invalid value %q, must be one of: %s\n", input, strings.Join(allowed, ", "))
	}
}

// editList runs the [a]dd, [r]emove, [c]ontinue loop shared by every
// list field.
func editList[T any](p *prompter, label string, items []T, show func(T) string, add func() T) []T {
	for {
		if len(items) == 0 {
			fmt.Fprintf(p.output, "  (no entries)\n")
		}
		for i, it := range items {
			fmt.Fprintf(p.output, "  [%d] %s\n", i, show(it))
		}
		fmt.Fprintf(p.output, "[a]dd, [r]emove, [c]ontinue? ")
		switch strings.ToLower(p.readLine()) {
		case "a":
			items = append(items, add())
		case "r":
			items = removeByIndex(p, label, items)
		case "c", "":
			return items
		default:
			fmt.Fprintf(p.output, "  Unknown choice, try again.\n")
		}
	}
}

func (p *prompter) promptStrings(label, field string, current []string) []string {
	return editList(p, label, current,
		func(s string) string { return strconv.Quote(s) },
		func() string { return p.promptNewField(field) })
}

func (p *prompter) promptQualifiedNames(label string, current []string) []string {
	return editList(p, label, current,
		func(s string) string { return s },
		func() string { return p.promptNewQualifiedName("name (schema.name)") })
}

func (p *prompter) promptBinaryColumns(current []sqlgate.BinaryColumnRule) []sqlgate.BinaryColumnRule {
	return editList(p, "binary column rule", current,
		func(r sqlgate.BinaryColumnRule) string {
			return fmt.Sprintf("object=%s columns=%v", r.Object, r.Columns)
		},
		func() sqlgate.BinaryColumnRule {
			object := p.promptNewQualifiedName("object (schema.name)")
			return sqlgate.BinaryColumnRule{Object: object, Columns: splitList(p.promptNewField("columns (comma-separated, empty = all)"))}
		})
}

func (p *prompter) promptTimeoutRules(current []sqlgate.TimeoutRule) []sqlgate.TimeoutRule {
	return editList(p, "timeout rule", current,
		func(r sqlgate.TimeoutRule) string {
			return fmt.Sprintf("pattern=%q timeout_seconds=%d", r.Pattern, r.TimeoutSeconds)
		},
		func() sqlgate.TimeoutRule {
			pattern := p.promptNewRegexField("pattern")
			return sqlgate.TimeoutRule{Pattern: pattern, TimeoutSeconds: p.promptNewPositiveIntField("timeout_seconds")}
		})
}

func (p *prompter) promptErrorHints(current []sqlgate.ErrorHintRule) []sqlgate.ErrorHintRule {
	return editList(p, "error hint", current,
		func(r sqlgate.ErrorHintRule) string {
			return fmt.Sprintf("pattern=%q hint=%q", r.Pattern, r.Hint)
		},
		func() sqlgate.ErrorHintRule {
			pattern := p.promptNewRegexField("pattern")
			return sqlgate.ErrorHintRule{Pattern: pattern, Hint: p.promptNewField("hint")}
		})
}

func (p *prompter) promptSanitizationRules(current []sqlgate.SanitizationRule) []sqlgate.SanitizationRule {
	return editList(p, "sanitization rule", current,
		func(r sqlgate.SanitizationRule) string {
			return fmt.Sprintf("pattern=%q replacement=%q columns=%v description=%q", r.Pattern, r.Replacement, r.Columns, r.Description)
		},
		func() sqlgate.SanitizationRule {
			pattern := p.promptNewRegexField("pattern")
			replacement := p.promptNewField("replacement")
			columns := splitList(p.promptNewField("columns (comma-separated, empty = all)"))
			return sqlgate.SanitizationRule{
				Pattern:     pattern,
				Replacement: replacement,
				Columns:     columns,
				Description: p.promptNewField("description"),
			}
		})
}

func (p *prompter) promptNewField(name string) string {
	fmt.Fprintf(p.output, "  %s: ", name)
	return p.readLine()
}

func (p *prompter) promptNewQualifiedName(name string) string {
	for {
		input := p.promptNewField(name)
		if qualifiedName.MatchString(input) {
			return input
		}
		fmt.Fprintf(p.output, "  %q is not a two-part schema.name, try again.\n", input)
	}
}

func (p *prompter) promptNewRegexField(name string) string {
	for {
		fmt.Fprintf(p.output, "  %s (regex): ", name)
		input := p.readLine()
		if input == "" {
			return ""
		}
		if _, err := regexp.Compile(input); err != nil {
			fmt.Fprintf(p.output, "  Invalid regex %q: %v, try again.\n", input, err)
			continue
		}
		return input
	}
}

func (p *prompter) promptNewPositiveIntField(name string) int {
	for {
		fmt.Fprintf(p.output, "  %s (must be > 0): ", name)
		input := p.readLine()
		val, err := strconv.Atoi(input)
		if err != nil || val <= 0 {
			fmt.Fprintf(p.output, "  Value is required and must be > 0, try again.\n")
			continue
		}
		return val
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// removeByIndex removes one element chosen by the user from items.
func removeByIndex[T any](p *prompter, label string, items []T) []T {
	if len(items) == 0 {
		fmt.Fprintf(p.output, "  No %s entries to remove.\n", label)
		return items
	}
	fmt.Fprintf(p.output, "  Index to remove: ")
	idx, err := strconv.Atoi(p.readLine())
	if err != nil || idx < 0 || idx >= len(items) {
		fmt.Fprintf(p.output, "  Invalid index.\n")
		return items
	}
	return append(items[:idx], items[idx+1:]...)
}
