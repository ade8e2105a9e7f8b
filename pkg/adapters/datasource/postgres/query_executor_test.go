//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/clearquote-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/clearquote-engine/pkg/apperrors"
	"github.com/ekaya-inc/clearquote-engine/pkg/guardrail"
	"github.com/ekaya-inc/clearquote-engine/pkg/testhelpers"
)

func setupAdapter(t *testing.T) *Adapter {
	t.Helper()
	testDB := testhelpers.GetTestDB(t)
	adapter := NewAdapterFromPool(testDB.Pool, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = adapter.Close() })
	return adapter
}

func prepared(sql string, maxRows int, timeout time.Duration, args ...any) *guardrail.PreparedQuery {
	return &guardrail.PreparedQuery{
		SQL:              sql,
		PositionalSQL:    sql,
		Args:             args,
		MaxRows:          maxRows,
		StatementTimeout: timeout,
	}
}

func TestAdapter_TestConnection(t *testing.T) {
	adapter := setupAdapter(t)
	require.NoError(t, adapter.TestConnection(context.Background()))
}

func TestAdapter_Query_Simple(t *testing.T) {
	adapter := setupAdapter(t)

	result, err := adapter.Query(context.Background(), prepared("SELECT 1 AS num, 'hello' AS greeting", 200, time.Second))
	require.NoError(t, err)

	assert.Equal(t, []string{"num", "greeting"}, result.ColumnNames())
	assert.Equal(t, "INT4", result.Columns[0].Type)
	assert.Equal(t, "TEXT", result.Columns[1].Type)
	require.Equal(t, 1, result.RowCount())
	assert.Equal(t, []any{int32(1), "hello"}, result.Rows[0])
	assert.False(t, result.Truncated)
}

func TestAdapter_Query_BindsPositionalArgs(t *testing.T) {
	adapter := setupAdapter(t)

	result, err := adapter.Query(context.Background(), prepared("SELECT $1::int + 1 AS n, $2::text AS panel", 200, time.Second, 41, "hood"))
	require.NoError(t, err)
	require.Equal(t, 1, result.RowCount())
	assert.Equal(t, []any{int32(42), "hood"}, result.Rows[0])
}

func TestAdapter_Query_RowCap(t *testing.T) {
	adapter := setupAdapter(t)
	ctx := context.Background()

	result, err := adapter.Query(ctx, prepared("SELECT g FROM generate_series(1, 10) AS g", 3, time.Second))
	require.NoError(t, err)
	assert.Equal(t, 3, result.RowCount())
	assert.True(t, result.Truncated)

	result, err = adapter.Query(ctx, prepared("SELECT g FROM generate_series(1, 3) AS g", 3, time.Second))
	require.NoError(t, err)
	assert.Equal(t, 3, result.RowCount())
	assert.False(t, result.Truncated, "exactly max rows is not truncation")
}

func TestAdapter_Query_NoResults(t *testing.T) {
	adapter := setupAdapter(t)

	result, err := adapter.Query(context.Background(), prepared("SELECT card_id FROM vehicle_cards WHERE 1 = 0", 200, time.Second))
	require.NoError(t, err)
	assert.Equal(t, 0, result.RowCount())
	assert.NotNil(t, result.Rows)
	assert.Equal(t, []string{"card_id"}, result.ColumnNames())
}

func TestAdapter_Query_StatementTimeout(t *testing.T) {
	adapter := setupAdapter(t)

	_, err := adapter.Query(context.Background(), prepared("SELECT pg_sleep(5)", 200, 200*time.Millisecond))

	var execErr *apperrors.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "statement_timeout", FailureReason(err))
}

func TestAdapter_Query_ReadOnly(t *testing.T) {
	adapter := setupAdapter(t)

	_, err := adapter.Query(context.Background(), prepared("CREATE TEMP TABLE scratch (id int)", 200, time.Second))

	var execErr *apperrors.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "read_only_violation", FailureReason(err))
}

func TestAdapter_Query_DatabaseError(t *testing.T) {
	adapter := setupAdapter(t)

	_, err := adapter.Query(context.Background(), prepared("SELECT * FROM nonexistent_table_xyz", 200, time.Second))

	var execErr *apperrors.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "database_error", FailureReason(err))
}

func TestAdapter_Query_CancelledContext(t *testing.T) {
	adapter := setupAdapter(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := adapter.Query(ctx, prepared("SELECT 1", 200, time.Second))

	var execErr *apperrors.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestAdapter_DiscoverColumns(t *testing.T) {
	adapter := setupAdapter(t)

	columns, err := adapter.DiscoverColumns(context.Background(), []string{"public"})
	require.NoError(t, err)

	drift := datasource.CompareAllowlist(map[string][]string{
		"vehicle_cards": {"card_id", "manufacturer"},
		"repairs":       {"repair_cost"},
	}, columns)
	assert.True(t, drift.Empty(), "demo schema should match: %+v", drift)
}
