package dbexec

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	// Drivers registered with database/sql: "mssql" and "sqlite".
	_ "github.com/denisenkom/go-mssqldb"
	_ "modernc.org/sqlite"
)

// sqlExecutor runs statements through database/sql. Idle connections are
// never kept, so every Execute dials its own physical connection.
type sqlExecutor struct {
	db             *sql.DB
	driver         Driver
	connectTimeout time.Duration
	initStatements []string
	// rowCountQuery reads the last statement's count in the same
	// transaction. Empty when the driver reports counts as messages.
	rowCountQuery string
	logger        zerolog.Logger
}

func newSQLExecutor(config Config, driverName, rowCountQuery string, logger zerolog.Logger) (*sqlExecutor, error) {
	connString := config.ConnString
	if rowCountQuery == "" {
		var err error
		if connString, err = withRowCounts(connString); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open(driverName, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", config.Driver, err)
	}
	db.SetMaxOpenConns(config.MaxConns)
	db.SetMaxIdleConns(0)
	return &sqlExecutor{
		db:             db,
		driver:         config.Driver,
		connectTimeout: config.ConnectTimeout,
		initStatements: config.InitStatements,
		rowCountQuery:  rowCountQuery,
		logger:         logger,
	}, nil
}

// connect acquires a connection within the connect timeout and runs the
// init statements on it.
func (e *sqlExecutor) connect(ctx context.Context) (*sql.Conn, error) {
	connCtx, cancel := context.WithTimeout(ctx, e.connectTimeout)
	defer cancel()

	start := time.Now()
	conn, err := e.db.Conn(connCtx)
	if err != nil {
		return nil, err
	}
	for _, stmt := range e.initStatements {
		if _, err := conn.ExecContext(connCtx, stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("init statement failed: %w", err)
		}
	}
	e.logger.Debug().Dur("duration", time.Since(start)).Msg("connection opened")
	return conn, nil
}

// Execute runs stmt in a transaction on a fresh connection. The
// connection is closed on every return path.
func (e *sqlExecutor) Execute(ctx context.Context, stmt Statement) (*Result, error) {
	conn, err := e.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if e.rowCountQuery == "" {
		return e.executeWithMessages(ctx, tx, stmt)
	}

	rows, err := tx.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}
	result, err := e.collect(rows)
	if err != nil {
		return nil, err
	}
	if !result.HasResultSet {
		result.RowsAffected = e.rowsAffected(ctx, tx)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

// executeWithMessages runs stmt with a message queue attached. Row counts
// and SQL errors arrive on the queue while collect reads the result set.
func (e *sqlExecutor) executeWithMessages(ctx context.Context, tx *sql.Tx, stmt Statement) (*Result, error) {
	msgs := newMessageLog()
	args := append(append([]any{}, stmt.Args...), msgs.ret)
	rows, err := tx.QueryContext(ctx, stmt.SQL, args...)
	if err != nil {
		return nil, err
	}
	msgs.start()
	result, err := e.collect(rows)
	affected, sqlErr := msgs.finish()
	if err != nil {
		return nil, err
	}
	if sqlErr != nil {
		return nil, sqlErr
	}
	if !result.HasResultSet {
		result.RowsAffected = affected
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

// collect reads every row of the first result set. A statement without a
// column description yields an empty mutation result.
func (e *sqlExecutor) collect(rows *sql.Rows) (*Result, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		for rows.Next() {
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return emptyMutation(-1), nil
	}

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	dbTypes := make([]string, len(colTypes))
	for i, ct := range colTypes {
		dbTypes[i] = strings.ToUpper(ct.DatabaseTypeName())
	}

	result := &Result{Columns: columns, Rows: make([][]any, 0), HasResultSet: true}
	for rows.Next() {
		values := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		for i, v := range values {
			values[i] = normalizeSQLValue(e.driver, dbTypes[i], v)
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// rowsAffected asks the session for the count of the statement that just
// ran. Returns -1 when the count is unavailable.
func (e *sqlExecutor) rowsAffected(ctx context.Context, tx *sql.Tx) int64 {
	var n int64
	if err := tx.QueryRowContext(ctx, e.rowCountQuery).Scan(&n); err != nil {
		e.logger.Debug().Err(err).Msg("row count unavailable")
		return -1
	}
	return n
}

// Ping opens a connection within the connect timeout and closes it.
func (e *sqlExecutor) Ping(ctx context.Context) error {
	conn, err := e.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return conn.PingContext(ctx)
}

func (e *sqlExecutor) Close() error {
	return e.db.Close()
}
