package dbexec

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rickchristie/sqlgate/internal/sqlscan"
)

// Driver names a supported database backend.
type Driver string

const (
	DriverSQLServer Driver = "sqlserver"
	DriverPostgres  Driver = "postgres"
	DriverSQLite    Driver = "sqlite"
)

// DefaultConnectTimeout bounds connection establishment when none is configured.
const DefaultConnectTimeout = 10 * time.Second

// ParseDriver maps a configured driver name to a Driver. An empty name
// selects SQL Server.
func ParseDriver(name string) (Driver, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sqlserver", "mssql":
		return DriverSQLServer, nil
	case "postgres", "postgresql", "pgx":
		return DriverPostgres, nil
	case "sqlite", "sqlite3":
		return DriverSQLite, nil
	default:
		return "", fmt.Errorf("dbexec: unsupported driver %q (want sqlserver, postgres or sqlite)", name)
	}
}

// Dialect returns the SQL dialect the driver speaks.
func (d Driver) Dialect() sqlscan.Dialect {
	switch d {
	case DriverPostgres:
		return sqlscan.Postgres
	case DriverSQLite:
		return sqlscan.SQLite
	default:
		return sqlscan.TSQL
	}
}

// Config is the executor's own config type.
type Config struct {
	Driver         Driver
	ConnString     string
	ConnectTimeout time.Duration
	MaxConns       int
	// InitStatements run on every new connection before the statement.
	InitStatements []string
}

// Statement is one admitted statement with its positional arguments.
type Statement struct {
	SQL  string
	Args []any
}

// Result is the outcome of one statement. HasResultSet is true when the
// driver described columns; otherwise RowsAffected holds the modified row
// count, or -1 when the driver cannot report it.
type Result struct {
	Columns      []string
	Rows         [][]any
	RowsAffected int64
	HasResultSet bool
}

// Executor runs one statement per call on a connection opened for that
// call and closed before it returns.
type Executor interface {
	Execute(ctx context.Context, stmt Statement) (*Result, error)
	Ping(ctx context.Context) error
	Close() error
}

// New creates the executor for config.Driver. No connection is opened.
func New(config Config, logger zerolog.Logger) (Executor, error) {
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if config.MaxConns <= 0 {
		return nil, fmt.Errorf("dbexec: max_conns must be > 0, got %d", config.MaxConns)
	}
	logger = logger.With().Str("driver", string(config.Driver)).Logger()

	switch config.Driver {
	case DriverSQLServer:
		// Row counts arrive on the driver message queue.
		return newSQLExecutor(config, "mssql", "", logger)
	case DriverSQLite:
		return newSQLExecutor(config, "sqlite", "SELECT changes()", logger)
	case DriverPostgres:
		return newPgxExecutor(config, logger)
	default:
		return nil, fmt.Errorf("dbexec: unsupported driver %q", config.Driver)
	}
}

func emptyMutation(affected int64) *Result {
	return &Result{Columns: []string{}, Rows: [][]any{}, RowsAffected: affected}
}
