package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/clearquote-engine/pkg/apperrors"
	"github.com/ekaya-inc/clearquote-engine/pkg/middleware"
)

func setupTestLogger(t *testing.T) (*zap.Logger, *observer.ObservedLogs) {
	t.Helper()
	core, recorded := observer.New(zapcore.DebugLevel)
	return zap.New(core), recorded
}

func requestContext() context.Context {
	ctx := middleware.WithRequestID(context.Background(), "req-1")
	return middleware.WithClientIP(ctx, "192.168.1.100:4000")
}

func decodeEvent(t *testing.T, entry observer.LoggedEntry) map[string]any {
	t.Helper()
	raw, ok := entry.ContextMap()["event_json"].(string)
	require.True(t, ok, "event_json field missing")

	var event map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &event))
	return event
}

func TestNewSecurityAuditor(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)

	auditor.LogQueryExecution(context.Background(), uuid.New(), "SELECT 1", 1, false, time.Millisecond)

	require.Equal(t, 1, recorded.Len())
	assert.Equal(t, "security_audit", recorded.All()[0].LoggerName)

	assert.NotPanics(t, func() {
		NewSecurityAuditor(nil).LogQueryExecution(context.Background(), uuid.New(), "SELECT 1", 1, false, 0)
	})
}

func TestLogInjectionAttempt(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)
	queryID := uuid.New()

	auditor.LogInjectionAttempt(requestContext(), queryID, SQLInjectionDetails{
		ParamName:   "model",
		ParamValue:  "x' OR '1'='1" + strings.Repeat("A", 200),
		Fingerprint: "s&sos",
		Rejected:    true,
	})

	logs := recorded.All()
	require.Len(t, logs, 1)
	entry := logs[0]

	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "SQL injection attempt detected", entry.Message)
	assert.Equal(t, "model", entry.ContextMap()["param_name"])
	assert.Equal(t, "s&sos", entry.ContextMap()["fingerprint"])
	assert.Equal(t, "critical", entry.ContextMap()["severity"])
	assert.Equal(t, "req-1", entry.ContextMap()["request_id"])
	assert.Equal(t, true, entry.ContextMap()["rejected"])

	event := decodeEvent(t, entry)
	assert.Equal(t, string(EventSQLInjectionAttempt), event["event_type"])
	assert.Equal(t, queryID.String(), event["query_id"])
	assert.Equal(t, "192.168.1.100:4000", event["client_ip"])

	details := event["details"].(map[string]any)
	value := details["param_value"].(string)
	assert.LessOrEqual(t, len(value), maxParamValueLength+3)
	assert.True(t, strings.HasPrefix(value, "x' OR '1'='1"))
}

func TestLogRejection(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)

	auditor.LogRejection(requestContext(), uuid.New(),
		"SELECT * FROM users WHERE name = 'alice'",
		&apperrors.DisallowedTableError{Tables: []string{"users"}})

	logs := recorded.All()
	require.Len(t, logs, 1)
	entry := logs[0]

	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, apperrors.CodeDisallowedTable, entry.ContextMap()["code"])
	assert.Equal(t, "query references disallowed tables: users", entry.ContextMap()["reason"])

	event := decodeEvent(t, entry)
	assert.Equal(t, string(EventQueryRejected), event["event_type"])
	assert.Equal(t, "warning", event["severity"])
	details := event["details"].(map[string]any)
	assert.Equal(t, "SELECT * FROM users WHERE name = '?'", details["sql"])
}

func TestLogQueryExecution(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)

	auditor.LogQueryExecution(requestContext(), uuid.New(), "SELECT count(*) FROM repairs LIMIT 200", 200, true, 1500*time.Millisecond)

	logs := recorded.All()
	require.Len(t, logs, 1)
	entry := logs[0]

	assert.Equal(t, zapcore.InfoLevel, entry.Level)
	assert.Equal(t, "Query executed", entry.Message)
	assert.Equal(t, int64(200), entry.ContextMap()["rows"])
	assert.Equal(t, true, entry.ContextMap()["truncated"])

	details := decodeEvent(t, entry)["details"].(map[string]any)
	assert.Equal(t, float64(1500), details["duration_ms"])
	assert.NotContains(t, details, "failure")
}

func TestLogExecutionFailure(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)

	auditor.LogExecutionFailure(context.Background(), uuid.New(), "SELECT pg_sleep(10)", "statement_timeout", 8*time.Second)

	logs := recorded.All()
	require.Len(t, logs, 1)
	entry := logs[0]

	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "statement_timeout", entry.ContextMap()["failure"])

	event := decodeEvent(t, entry)
	assert.Equal(t, string(EventExecutionFailure), event["event_type"])
	assert.NotContains(t, event, "request_id", "omitted outside a request")
}

func TestLogRejection_UnknownErrorCode(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	NewSecurityAuditor(logger).LogRejection(context.Background(), uuid.New(), "", errors.New("boom"))

	require.Equal(t, 1, recorded.Len())
	assert.Equal(t, apperrors.CodeInternal, recorded.All()[0].ContextMap()["code"])
}
