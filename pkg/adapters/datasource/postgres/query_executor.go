package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/ekaya-inc/clearquote-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/clearquote-engine/pkg/apperrors"
	"github.com/ekaya-inc/clearquote-engine/pkg/guardrail"
)

// SQLSTATE codes the executor reports distinctly in logs.
const (
	sqlStateQueryCanceled   = "57014" // statement_timeout fired
	sqlStateReadOnlyViolate = "25006" // write attempted in a read-only transaction
)

// Query runs a prepared query in a read-only transaction:
//
//	BEGIN READ ONLY
//	SELECT set_config('statement_timeout', '<ms>', true)   -- SET LOCAL
//	<positional SQL with bound args>
//	ROLLBACK
//
// At most q.MaxRows rows are read; if more were available the result is
// marked Truncated. The transaction is always rolled back.
func (a *Adapter) Query(ctx context.Context, q *guardrail.PreparedQuery) (*datasource.ResultSet, error) {
	if q == nil {
		return nil, &apperrors.ExecutionError{Cause: errors.New("no query to execute")}
	}

	ctx, cancel := context.WithTimeout(ctx, q.StatementTimeout+a.grace)
	defer cancel()

	tx, err := a.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, a.fail("begin read-only transaction", err)
	}
	defer func() {
		// Rollback after a cancelled ctx would fail and close the conn.
		if rbErr := tx.Rollback(context.Background()); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			a.logger.Warn("Failed to roll back read-only transaction", zap.Error(rbErr))
		}
	}()

	timeoutMs := strconv.FormatInt(q.StatementTimeout.Milliseconds(), 10)
	if _, err := tx.Exec(ctx, "SELECT set_config('statement_timeout', $1, true)", timeoutMs); err != nil {
		return nil, a.fail("set statement timeout", err)
	}

	rows, err := tx.Query(ctx, q.PositionalSQL, q.Args...)
	if err != nil {
		return nil, a.fail("execute query", err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]datasource.ColumnInfo, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = datasource.ColumnInfo{
			Name: fd.Name,
			Type: a.typeName(fd.DataTypeOID),
		}
	}

	result := &datasource.ResultSet{
		Columns: columns,
		Rows:    make([][]any, 0),
	}
	for rows.Next() {
		if q.MaxRows > 0 && len(result.Rows) >= q.MaxRows {
			result.Truncated = true
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, a.fail("read row values", err)
		}
		result.Rows = append(result.Rows, values)
	}

	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, a.fail("iterate rows", err)
	}

	return result, nil
}

// fail logs the failure class and wraps err as an ExecutionError.
func (a *Adapter) fail(step string, err error) error {
	fields := []zap.Field{zap.String("step", step), zap.String("reason", failureReason(err))}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		fields = append(fields, zap.String("sqlstate", pgErr.Code))
	}
	a.logger.Warn("Query execution failed", fields...)

	return &apperrors.ExecutionError{Cause: fmt.Errorf("%s: %w", step, err)}
}

// failureReason classifies an execution error for logs and audit events.
func failureReason(err error) string {
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr) && pgErr.Code == sqlStateQueryCanceled:
		return "statement_timeout"
	case errors.As(err, &pgErr) && pgErr.Code == sqlStateReadOnlyViolate:
		return "read_only_violation"
	case errors.As(err, &pgErr):
		return "database_error"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "connection_error"
	}
}

// FailureReason returns the classification of an execution error, or "" if
// err is not one.
func FailureReason(err error) string {
	var execErr *apperrors.ExecutionError
	if !errors.As(err, &execErr) {
		return ""
	}
	return failureReason(execErr.Cause)
}
