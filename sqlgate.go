package sqlgate

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rickchristie/sqlgate/internal/auth"
	"github.com/rickchristie/sqlgate/internal/dbexec"
	"github.com/rickchristie/sqlgate/internal/errhint"
	"github.com/rickchristie/sqlgate/internal/params"
	"github.com/rickchristie/sqlgate/internal/protection"
	"github.com/rickchristie/sqlgate/internal/sanitize"
	"github.com/rickchristie/sqlgate/internal/timeout"
)

const (
	defaultMaxSQLLength          = 100000
	defaultConnectTimeoutSeconds = 10
)

// Gateway admits and executes SQL requests. All exported methods are
// safe for concurrent use from multiple goroutines; nothing it holds is
// mutated after New returns.
type Gateway struct {
	config     Config
	exec       dbexec.Executor
	semaphore  chan struct{}
	guard      *auth.Guard
	protection *protection.Checker
	params     *params.Adapter
	sanitizer  *sanitize.Sanitizer
	hints      *errhint.Matcher
	timeoutMgr *timeout.Manager
	metrics    *metrics
	logger     zerolog.Logger
}

// New creates a new Gateway.
// connString is passed to the selected driver unchanged (for sqlserver a
// sqlserver:// URL or an ADO-style string, for sqlite a file path).
// No connection is opened until the first request.
// Panics on invalid config. Returns error only for runtime failures
// (e.g., an unparseable connection string).
func New(connString string, config Config, logger zerolog.Logger) (*Gateway, error) {
	if connString == "" {
		panic("sqlgate: connString must be non-empty")
	}
	driver, err := dbexec.ParseDriver(config.Database.Driver)
	if err != nil {
		panic(fmt.Sprintf("sqlgate: invalid database.driver: %v", err))
	}
	config.Database.Driver = string(driver)
	applyDefaults(&config)

	exec, err := dbexec.New(dbexec.Config{
		Driver:         driver,
		ConnString:     connString,
		ConnectTimeout: time.Duration(config.Database.ConnectTimeoutSeconds) * time.Second,
		MaxConns:       config.Database.MaxConns,
		InitStatements: config.Database.InitStatements,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create executor: %w", err)
	}
	return newGateway(exec, config, logger), nil
}

// applyDefaults fills zero values and panics on values no default can fix.
func applyDefaults(config *Config) {
	if config.Database.MaxConns <= 0 {
		panic("sqlgate: database.max_conns must be > 0")
	}
	if config.Database.ConnectTimeoutSeconds < 0 {
		panic("sqlgate: database.connect_timeout_seconds must be >= 0")
	}
	if config.Database.ConnectTimeoutSeconds == 0 {
		config.Database.ConnectTimeoutSeconds = defaultConnectTimeoutSeconds
	}
	if config.Query.MaxSQLLength < 0 {
		panic("sqlgate: query.max_sql_length must be > 0")
	}
	if config.Query.MaxSQLLength == 0 {
		config.Query.MaxSQLLength = defaultMaxSQLLength
	}
	if config.Query.TimeoutSeconds < 0 {
		panic("sqlgate: query.timeout_seconds must be >= 0")
	}
	for _, rule := range config.Query.TimeoutRules {
		if rule.TimeoutSeconds < 0 {
			panic(fmt.Sprintf("sqlgate: timeout_rule with pattern %q has timeout_seconds < 0", rule.Pattern))
		}
	}
	if config.Params.BinaryColumns == nil {
		config.Params.BinaryColumns = DefaultBinaryColumns
	}
}

// newGateway wires the pipeline stages around exec. config must already
// have defaults applied.
func newGateway(exec dbexec.Executor, config Config, logger zerolog.Logger) *Gateway {
	driver, err := dbexec.ParseDriver(config.Database.Driver)
	if err != nil {
		panic(fmt.Sprintf("sqlgate: invalid database.driver: %v", err))
	}
	dialect := driver.Dialect()

	guard := auth.NewGuard(auth.Config{
		Token:    config.Auth.Token,
		OpenMode: config.Auth.OpenMode,
		Header:   config.Auth.Header,
	})
	if guard.Open() {
		logger.Warn().Msg("auth.open_mode is enabled: requests are accepted without a token")
	}

	checker, err := protection.NewChecker(protection.Config{
		Dialect:               dialect,
		AllowedObjects:        config.Protection.AllowedObjects,
		AllowedProcedures:     config.Protection.AllowedProcedures,
		ForbiddenKeywords:     mergeLists(protection.DefaultForbiddenKeywords, config.Protection.ForbiddenKeywords),
		GuardedSchemas:        mergeLists(protection.DefaultGuardedSchemas, config.Protection.GuardedSchemas),
		FoldIdentifierCase:    config.Protection.FoldIdentifierCase,
		AllowUnqualifiedNames: config.Protection.AllowUnqualifiedNames,
	})
	if err != nil {
		panic(fmt.Sprintf("sqlgate: %v", err))
	}
	if len(config.Protection.AllowedObjects) == 0 && len(config.Protection.AllowedProcedures) == 0 {
		logger.Warn().Msg("protection allow-lists are empty: every schema-qualified statement will be rejected")
	}

	adapter, err := params.NewAdapter(params.Config{
		Dialect:            dialect,
		FoldIdentifierCase: config.Protection.FoldIdentifierCase,
		BinaryColumns:      mapBinaryColumnRules(config.Params.BinaryColumns),
	})
	if err != nil {
		panic(fmt.Sprintf("sqlgate: %v", err))
	}

	san, err := sanitize.NewSanitizer(mapSanitizationRules(config.Sanitization))
	if err != nil {
		panic(fmt.Sprintf("sqlgate: %v", err))
	}

	hints, err := errhint.NewMatcher(mapErrorHintRules(config.ErrorHints))
	if err != nil {
		panic(fmt.Sprintf("sqlgate: %v", err))
	}

	timeoutRules := make([]timeout.Rule, len(config.Query.TimeoutRules))
	for i, r := range config.Query.TimeoutRules {
		timeoutRules[i] = timeout.Rule{
			Pattern: r.Pattern,
			Timeout: time.Duration(r.TimeoutSeconds) * time.Second,
		}
	}
	tmgr, err := timeout.NewManager(timeout.Config{
		DefaultTimeout: time.Duration(config.Query.TimeoutSeconds) * time.Second,
		Rules:          timeoutRules,
	})
	if err != nil {
		panic(fmt.Sprintf("sqlgate: %v", err))
	}

	return &Gateway{
		config:     config,
		exec:       exec,
		semaphore:  make(chan struct{}, config.Database.MaxConns),
		guard:      guard,
		protection: checker,
		params:     adapter,
		sanitizer:  san,
		hints:      hints,
		timeoutMgr: tmgr,
		metrics:    newMetrics(),
		logger:     logger,
	}
}

// Close releases the executor. Connections never outlive a request, so
// nothing is in flight once requests have drained.
func (g *Gateway) Close() error {
	return g.exec.Close()
}

// Ping opens one database connection within the connect timeout and
// closes it. Request handling never pings.
func (g *Gateway) Ping(ctx context.Context) error {
	return g.exec.Ping(ctx)
}

// AuthHeader returns the canonical name of the header carrying the token.
func (g *Gateway) AuthHeader() string {
	return g.guard.Header()
}

// mergeLists returns base followed by the entries of extra.
func mergeLists(base, extra []string) []string {
	merged := make([]string, 0, len(base)+len(extra))
	merged = append(merged, base...)
	return append(merged, extra...)
}

// mapBinaryColumnRules converts sqlgate BinaryColumnRules to internal params.Rules.
func mapBinaryColumnRules(rules []BinaryColumnRule) []params.Rule {
	result := make([]params.Rule, len(rules))
	for i, r := range rules {
		result[i] = params.Rule{Object: r.Object, Columns: r.Columns}
	}
	return result
}

// mapSanitizationRules converts sqlgate SanitizationRules to internal sanitize.Rules.
func mapSanitizationRules(rules []SanitizationRule) []sanitize.Rule {
	result := make([]sanitize.Rule, len(rules))
	for i, r := range rules {
		result[i] = sanitize.Rule{
			Pattern:     r.Pattern,
			Replacement: r.Replacement,
			Columns:     r.Columns,
		}
	}
	return result
}

// mapErrorHintRules converts sqlgate ErrorHintRules to internal errhint.Rules.
func mapErrorHintRules(rules []ErrorHintRule) []errhint.Rule {
	result := make([]errhint.Rule, len(rules))
	for i, r := range rules {
		result[i] = errhint.Rule{Pattern: r.Pattern, Hint: r.Hint}
	}
	return result
}
