package sqlgate

// Config is the base configuration used by library mode via New().
type Config struct {
	Database     DatabaseConfig     `json:"database" yaml:"database"`
	Protection   ProtectionConfig   `json:"protection" yaml:"protection"`
	Params       ParamsConfig       `json:"params" yaml:"params"`
	Auth         AuthConfig         `json:"auth" yaml:"auth"`
	Query        QueryConfig        `json:"query" yaml:"query"`
	ErrorHints   []ErrorHintRule    `json:"error_hints" yaml:"error_hints"`
	Sanitization []SanitizationRule `json:"sanitization" yaml:"sanitization"`
}

// ServerConfig embeds Config and adds server-only fields for CLI mode.
type ServerConfig struct {
	Config     `yaml:",inline"`
	Connection ConnectionConfig `json:"connection" yaml:"connection"`
	Server     ServerSettings   `json:"server" yaml:"server"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
}

// DatabaseConfig selects the backend and bounds connection usage.
type DatabaseConfig struct {
	Driver                string `json:"driver" yaml:"driver"` // sqlserver (default), postgres, sqlite
	ConnectTimeoutSeconds int    `json:"connect_timeout_seconds" yaml:"connect_timeout_seconds"`
	MaxConns              int    `json:"max_conns" yaml:"max_conns"`
	// InitStatements run on every new connection, e.g. SET options or ATTACH.
	InitStatements []string `json:"init_statements" yaml:"init_statements"`
}

// ConnectionConfig holds database connection parameters used by CLI mode
// when no full connection string is supplied.
type ConnectionConfig struct {
	Host    string `json:"host" yaml:"host"`
	Port    int    `json:"port" yaml:"port"`
	DBName  string `json:"dbname" yaml:"dbname"`
	User    string `json:"user" yaml:"user"`
	SSLMode string `json:"sslmode" yaml:"sslmode"` // postgres only
	Encrypt string `json:"encrypt" yaml:"encrypt"` // sqlserver only: disable, false, true, strict
	AppName string `json:"app_name" yaml:"app_name"`
	// Trusted uses integrated authentication (sqlserver) instead of a password.
	Trusted bool `json:"trusted" yaml:"trusted"`
}

// ServerSettings holds HTTP server settings for CLI mode.
type ServerSettings struct {
	Port            int    `json:"port" yaml:"port"`
	HealthCheckPath string `json:"health_check_path" yaml:"health_check_path"`
	MetricsEnabled  bool   `json:"metrics_enabled" yaml:"metrics_enabled"`
	MetricsPath     string `json:"metrics_path" yaml:"metrics_path"`
	MCPEnabled      bool   `json:"mcp_enabled" yaml:"mcp_enabled"`
}

// LoggingConfig holds logging settings for CLI mode.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json, text
	Output string `json:"output" yaml:"output"` // stderr, stdout, or file path
}

// ProtectionConfig holds the allow-lists. Every entry is a two-part
// schema.name. Objects and procedures not listed are rejected.
type ProtectionConfig struct {
	AllowedObjects    []string `json:"allowed_objects" yaml:"allowed_objects"`
	AllowedProcedures []string `json:"allowed_procedures" yaml:"allowed_procedures"`
	// ForbiddenKeywords are added to the built-in list; they cannot remove from it.
	ForbiddenKeywords []string `json:"forbidden_keywords" yaml:"forbidden_keywords"`
	// GuardedSchemas are added to sys and information_schema.
	GuardedSchemas        []string `json:"guarded_schemas" yaml:"guarded_schemas"`
	FoldIdentifierCase    bool     `json:"fold_identifier_case" yaml:"fold_identifier_case"`
	AllowUnqualifiedNames bool     `json:"allow_unqualified_names" yaml:"allow_unqualified_names"`
}

// ParamsConfig declares which INSERT parameters carry base64 binary data.
// A nil BinaryColumns uses DefaultBinaryColumns; an empty list disables decoding.
type ParamsConfig struct {
	BinaryColumns []BinaryColumnRule `json:"binary_columns" yaml:"binary_columns"`
}

// BinaryColumnRule names an object and the columns holding binary payloads.
// No columns means every string parameter of an INSERT into the object.
type BinaryColumnRule struct {
	Object  string   `json:"object" yaml:"object"`
	Columns []string `json:"columns" yaml:"columns"`
}

// DefaultBinaryColumns is used when params.binary_columns is absent.
var DefaultBinaryColumns = []BinaryColumnRule{{Object: "dbo.NoteRules"}}

// AuthConfig holds the shared secret. OpenMode must be set explicitly to
// run without a token.
type AuthConfig struct {
	Token    string `json:"token" yaml:"token"`
	OpenMode bool   `json:"open_mode" yaml:"open_mode"`
	Header   string `json:"header" yaml:"header"` // default X-Token
}

// QueryConfig holds query execution settings. TimeoutSeconds 0 leaves
// statements unbounded.
type QueryConfig struct {
	MaxSQLLength   int           `json:"max_sql_length" yaml:"max_sql_length"`
	TimeoutSeconds int           `json:"timeout_seconds" yaml:"timeout_seconds"`
	TimeoutRules   []TimeoutRule `json:"timeout_rules" yaml:"timeout_rules"`
}

// TimeoutRule maps a SQL pattern to a specific timeout duration.
type TimeoutRule struct {
	Pattern        string `json:"pattern" yaml:"pattern"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// ErrorHintRule maps a database error message pattern to a hint returned
// alongside the error detail.
type ErrorHintRule struct {
	Pattern string `json:"pattern" yaml:"pattern"`
	Hint    string `json:"hint" yaml:"hint"`
}

// SanitizationRule defines a regex-based field sanitization rule.
type SanitizationRule struct {
	Pattern     string   `json:"pattern" yaml:"pattern"`
	Replacement string   `json:"replacement" yaml:"replacement"`
	Columns     []string `json:"columns" yaml:"columns"`
	Description string   `json:"description" yaml:"description"`
}
