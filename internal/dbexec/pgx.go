package dbexec

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/rickchristie/sqlgate/internal/sqlscan"
)

// pgxExecutor opens one pgx connection per statement. "?" placeholders
// are rewritten to $n before the statement is sent.
type pgxExecutor struct {
	connConfig     *pgx.ConnConfig
	connectTimeout time.Duration
	initStatements []string
	logger         zerolog.Logger
}

func newPgxExecutor(config Config, logger zerolog.Logger) (*pgxExecutor, error) {
	connConfig, err := pgx.ParseConfig(config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	// Describe first so parameters of any Go type are encoded by OID.
	connConfig.DefaultQueryExecMode = pgx.QueryExecModeDescribeExec
	return &pgxExecutor{
		connConfig:     connConfig,
		connectTimeout: config.ConnectTimeout,
		initStatements: config.InitStatements,
		logger:         logger,
	}, nil
}

func (e *pgxExecutor) connect(ctx context.Context) (*pgx.Conn, error) {
	connCtx, cancel := context.WithTimeout(ctx, e.connectTimeout)
	defer cancel()

	start := time.Now()
	conn, err := pgx.ConnectConfig(connCtx, e.connConfig.Copy())
	if err != nil {
		return nil, err
	}
	for _, stmt := range e.initStatements {
		if _, err := conn.Exec(connCtx, stmt, pgx.QueryExecModeSimpleProtocol); err != nil {
			conn.Close(context.WithoutCancel(ctx))
			return nil, fmt.Errorf("init statement failed: %w", err)
		}
	}
	e.logger.Debug().Dur("duration", time.Since(start)).Msg("connection opened")
	return conn, nil
}

func (e *pgxExecutor) Execute(ctx context.Context, stmt Statement) (*Result, error) {
	conn, err := e.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close(context.WithoutCancel(ctx))

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(context.WithoutCancel(ctx))

	rows, err := tx.Query(ctx, sqlscan.Rebind(stmt.SQL), stmt.Args...)
	if err != nil {
		return nil, err
	}
	result, err := collectPgxRows(rows)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return result, nil
}

func collectPgxRows(rows pgx.Rows) (*Result, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	if len(fields) == 0 {
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return emptyMutation(rows.CommandTag().RowsAffected()), nil
	}

	columns := make([]string, len(fields))
	for i, fd := range fields {
		columns[i] = fd.Name
	}

	result := &Result{Columns: columns, Rows: make([][]any, 0), HasResultSet: true}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		for i, v := range values {
			values[i] = normalizePgxValue(v)
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (e *pgxExecutor) Ping(ctx context.Context) error {
	conn, err := e.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close(context.WithoutCancel(ctx))
	return conn.Ping(ctx)
}

// Close is a no-op; connections never outlive a call.
func (e *pgxExecutor) Close() error {
	return nil
}
