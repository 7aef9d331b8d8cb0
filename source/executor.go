package source

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/citegraph/errors"
	"github.com/teranos/citegraph/internal/util"
)

// statementPrefixLen bounds how much statement text is carried into logs
// and error context.
const statementPrefixLen = 80

// Executor runs scripts against one source connection. The connection is
// held for the lifetime of a pipeline run and never shared across runs.
type Executor struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewExecutor creates an executor over an open source connection.
func NewExecutor(db *sql.DB, logger *zap.SugaredLogger) *Executor {
	return &Executor{db: db, logger: logger}
}

// Ping verifies the source is reachable. A failure here is fatal for the
// run: it wraps ErrSourceConnection.
func (e *Executor) Ping(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		return errors.Wrap(errors.ErrSourceConnection, err.Error())
	}
	return nil
}

// RunScript executes a script's statements in order.
//
// Queries are materialized; commands execute in autocommit mode, each
// committed individually, so partial progress survives a later failure.
// Unknown statements are attempted first as a query, then as a command,
// with the fallback logged; both failing records a classification error
// and the script continues.
//
// Primary result selection: if primaryStatement > 0, that 1-based statement
// is authoritative and must be a query; otherwise the largest result by row
// count wins.
//
// A failed query is critical: the remaining statements are skipped and the
// returned error wraps ErrCriticalQuery. A failed command is non-critical:
// logged and ignored (constraints and indexes often already exist).
func (e *Executor) RunScript(ctx context.Context, script *Script, primaryStatement int) (*ScriptResult, error) {
	result := &ScriptResult{
		Script:  script,
		Started: time.Now(),
	}
	defer func() { result.Ended = time.Now() }()

	if primaryStatement > len(script.Statements) {
		return result, errors.Newf("primary statement %d out of range: script %s has %d statements",
			primaryStatement, script.Name, len(script.Statements))
	}

	var criticalErr error

	for _, stmt := range script.Statements {
		outcome := StatementOutcome{Index: stmt.Index, Kind: stmt.Kind}

		if criticalErr != nil {
			outcome.Skipped = true
			result.Outcomes = append(result.Outcomes, outcome)
			continue
		}

		switch stmt.Kind {
		case KindQuery:
			rs, err := e.runQuery(ctx, stmt)
			if err != nil {
				outcome.Err = errors.WrapCriticalQuery(err, "statement "+util.Truncate(stmt.Text, statementPrefixLen))
				outcome.ErrMessage = outcome.Err.Error()
				criticalErr = outcome.Err
				e.logger.Errorw("Critical query failed, aborting remaining statements",
					"script", script.Name,
					"statement", util.Truncate(stmt.Text, statementPrefixLen),
					"error", err)
			} else {
				outcome.RowsReturned = rs.Len()
				result.retainPrimary(rs, primaryStatement)
			}

		case KindCommand:
			affected, err := e.runCommand(ctx, stmt)
			if err != nil {
				outcome.Err = errors.Wrap(errors.ErrNonCriticalCommand, err.Error())
				outcome.ErrMessage = outcome.Err.Error()
				e.logger.Warnw("Non-critical command failed, continuing",
					"script", script.Name,
					"statement", util.Truncate(stmt.Text, statementPrefixLen),
					"error", err)
			} else {
				outcome.RowsAffected = affected
			}

		case KindUnknown:
			e.logger.Warnw("Statement matched neither heuristic, attempting query then command",
				"script", script.Name,
				"statement", util.Truncate(stmt.Text, statementPrefixLen))

			rs, qErr := e.runQuery(ctx, stmt)
			if qErr == nil {
				outcome.Kind = KindQuery
				outcome.RowsReturned = rs.Len()
				result.retainPrimary(rs, primaryStatement)
				break
			}

			affected, cErr := e.runCommand(ctx, stmt)
			if cErr == nil {
				outcome.Kind = KindCommand
				outcome.RowsAffected = affected
				break
			}

			outcome.Err = errors.Wrapf(errors.ErrStatementUnclassifiable,
				"query attempt: %v; command attempt: %v; statement %s",
				qErr, cErr, util.Truncate(stmt.Text, statementPrefixLen))
			outcome.ErrMessage = outcome.Err.Error()
			e.logger.Warnw("Statement unclassifiable after dual attempt, skipping",
				"script", script.Name,
				"statement", util.Truncate(stmt.Text, statementPrefixLen))
		}

		result.Outcomes = append(result.Outcomes, outcome)
	}

	if criticalErr != nil {
		return result, criticalErr
	}

	if primaryStatement > 0 && result.Primary == nil {
		return result, errors.Newf("primary statement %d of script %s produced no result set",
			primaryStatement, script.Name)
	}

	return result, nil
}

// retainPrimary keeps rs as the script's primary result when it is the
// explicitly declared statement, or (with no declaration) when it is the
// largest result observed so far.
func (sr *ScriptResult) retainPrimary(rs *ResultSet, primaryStatement int) {
	if primaryStatement > 0 {
		if rs.StatementIndex == primaryStatement {
			sr.Primary = rs
		}
		return
	}
	if sr.Primary == nil || rs.Len() > sr.Primary.Len() {
		sr.Primary = rs
	}
}

// runQuery executes a query and materializes every row. Values are scanned
// as interface{}; the batch engine maps them by column name.
func (e *Executor) runQuery(ctx context.Context, stmt Statement) (*ResultSet, error) {
	rows, err := e.db.QueryContext(ctx, stmt.Text)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	rs := &ResultSet{Columns: columns, StatementIndex: stmt.Index}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		scanTargets := make([]interface{}, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, err
		}
		// Normalize []byte to string so property maps are JSON-friendly
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		rs.Rows = append(rs.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	e.logger.Debugw("Query returned",
		"statement_index", stmt.Index,
		"rows", rs.Len())

	return rs, nil
}

// runCommand executes a side-effecting statement. Each command commits
// individually (autocommit); there is no transaction spanning the script.
func (e *Executor) runCommand(ctx context.Context, stmt Statement) (int64, error) {
	res, err := e.db.ExecContext(ctx, stmt.Text)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		// Drivers without affected-row support still count as success
		return 0, nil
	}
	return affected, nil
}
