package sqlgate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/rickchristie/sqlgate/internal/dbexec"
	"github.com/rickchristie/sqlgate/internal/encode"
)

// Execute runs the full pipeline for one request: token check, admission
// checks, parameter adaptation, execution and result encoding. Every
// failure is returned as an *Error whose StatusCode decides the HTTP
// status. A rejected request never reaches the database.
func (g *Gateway) Execute(ctx context.Context, input ExecuteInput) (*QueryOutput, error) {
	startTime := time.Now()

	output, verb, err := g.execute(ctx, input, startTime)
	if err != nil {
		return nil, g.fail(ctx, input.Query, verb, startTime, err)
	}
	g.metrics.observe(verb, startTime, nil)
	return output, nil
}

// fail classifies err, attaches any configured hint, and records it.
func (g *Gateway) fail(ctx context.Context, sql, verb string, startTime time.Time, err error) *Error {
	gerr := classify(err)
	if gerr.Kind == KindExecution && gerr.Hint == "" {
		gerr.Hint = g.hints.Match(gerr.Detail)
	}
	g.metrics.observe(verb, startTime, gerr)
	g.logFailure(g.requestLogger(ctx), sql, gerr, time.Since(startTime))
	return gerr
}

func (g *Gateway) execute(ctx context.Context, input ExecuteInput, startTime time.Time) (*QueryOutput, string, error) {
	// 1. Token
	if err := g.guard.Check(input.Token); err != nil {
		return nil, "", err
	}

	// 2. Length and parameter shape (before any scanning)
	if len(input.Query) > g.config.Query.MaxSQLLength {
		return nil, "", badRequest(fmt.Sprintf("Query too long: %d bytes exceeds maximum of %d bytes", len(input.Query), g.config.Query.MaxSQLLength), nil)
	}
	args, err := scalarParams(input.Params)
	if err != nil {
		return nil, "", err
	}

	// 3. Forbidden keywords, verb, objects and procedures
	adm, err := g.protection.Check(input.Query)
	if err != nil {
		return nil, "", err
	}

	// 4. Binary parameters of declared INSERT targets
	args, decoded := g.params.Adapt(adm.Insert, args)

	// 5. Execute
	result, timeoutRule, err := g.run(ctx, input.Query, args)
	if err != nil {
		return nil, adm.Verb, err
	}

	// 6. Encode
	output := g.buildOutput(result)

	logger := g.requestLogger(ctx)
	logEvent := logger.Info().
		Str("sql", truncateForLog(input.Query, 200)).
		Str("verb", adm.Verb).
		Dur("duration", time.Since(startTime)).
		Int("param_count", len(args))
	if output.RowCount != nil {
		logEvent = logEvent.Int("row_count", *output.RowCount)
	} else {
		logEvent = logEvent.Int64("rows_affected", *output.AffectedRows)
	}
	if len(decoded) > 0 {
		logEvent = logEvent.Ints("binary_params", decoded)
	}
	if timeoutRule != "" {
		logEvent = logEvent.Str("timeout_rule", timeoutRule)
	}
	if g.sanitizer.HasRules() && output.RowCount != nil {
		logEvent = logEvent.Bool("sanitized", true)
	}
	logEvent.Msg("query executed")

	return output, adm.Verb, nil
}

// run holds a concurrency slot for the duration of one statement. Once
// started, a statement is not aborted when the caller goes away; only a
// configured timeout bounds it.
func (g *Gateway) run(ctx context.Context, sql string, args []any) (*dbexec.Result, string, error) {
	select {
	case g.semaphore <- struct{}{}:
	case <-ctx.Done():
		return nil, "", fmt.Errorf("failed to acquire query slot: all %d connection slots are in use, context cancelled while waiting: %w", cap(g.semaphore), ctx.Err())
	}
	defer func() { <-g.semaphore }()

	g.metrics.inFlight.Inc()
	defer g.metrics.inFlight.Dec()

	d, timeoutRule := g.timeoutMgr.GetTimeoutWithPattern(sql)
	execCtx, cancel, _ := g.timeoutMgr.WithDeadline(context.WithoutCancel(ctx), sql)
	defer cancel()

	result, err := g.exec.Execute(execCtx, dbexec.Statement{SQL: sql, Args: args})
	if err != nil {
		if d > 0 && errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return nil, timeoutRule, fmt.Errorf("statement timed out after %s: %w", d, err)
		}
		return nil, timeoutRule, err
	}
	return result, timeoutRule, nil
}

// buildOutput sanitizes and encodes a driver result. Exactly one of
// RowCount and AffectedRows is set.
func (g *Gateway) buildOutput(result *dbexec.Result) *QueryOutput {
	if !result.HasResultSet {
		affected := result.RowsAffected
		return &QueryOutput{Columns: []string{}, Rows: [][]any{}, AffectedRows: &affected}
	}
	rows := result.Rows
	if g.sanitizer.HasRules() {
		rows = g.sanitizer.SanitizeRows(result.Columns, rows)
	}
	rows = encode.Rows(rows)
	n := len(rows)
	return &QueryOutput{Columns: result.Columns, Rows: rows, RowCount: &n}
}

// scalarParams validates positional parameters and converts JSON numbers
// into int64 or float64. The input slice is not modified.
func scalarParams(params []any) ([]any, error) {
	if len(params) == 0 {
		return nil, nil
	}
	args := make([]any, len(params))
	for i, p := range params {
		switch v := p.(type) {
		case nil, string, bool, []byte,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64, time.Time:
			args[i] = v
		case json.Number:
			if n, err := v.Int64(); err == nil {
				args[i] = n
				continue
			}
			f, err := v.Float64()
			if err != nil {
				return nil, badRequest(fmt.Sprintf("Invalid parameter %d: %v", i, err), err)
			}
			args[i] = f
		default:
			return nil, badRequest(fmt.Sprintf("Invalid parameter %d: only scalar values are supported, got %T", i, p), nil)
		}
	}
	return args, nil
}

// logFailure logs rejections at warn and execution failures at error.
func (g *Gateway) logFailure(logger zerolog.Logger, sql string, err *Error, elapsed time.Duration) {
	switch err.Kind {
	case KindExecution:
		logEvent := logger.Error().Err(err.Err).
			Str("sql", truncateForLog(sql, 200)).
			Dur("duration", elapsed)
		if err.Hint != "" {
			logEvent = logEvent.Bool("hinted", true)
		}
		logEvent.Msg("query error")
	case KindUnauthorized:
		logger.Warn().Str("kind", err.Kind.String()).Msg("request rejected")
	default:
		logEvent := logger.Warn().
			Str("kind", err.Kind.String()).
			Str("sql", truncateForLog(sql, 200)).
			Str("detail", err.Detail)
		if err.Rule != "" {
			logEvent = logEvent.Str("rule", string(err.Rule))
		}
		logEvent.Msg("request rejected")
	}
}

// truncateForLog truncates a string for log output to avoid oversized log entries.
func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	truncateAt := maxLen
	for truncateAt > 0 && !utf8.RuneStart(s[truncateAt]) {
		truncateAt--
	}
	return s[:truncateAt] + "...[truncated]"
}
