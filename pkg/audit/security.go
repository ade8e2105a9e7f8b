// Package audit provides security audit logging for SIEM consumption.
// Guardrail rejections, flagged parameter values and executed queries are
// logged as structured JSON events under the "security_audit" logger.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/clearquote-engine/pkg/apperrors"
	"github.com/ekaya-inc/clearquote-engine/pkg/logging"
	"github.com/ekaya-inc/clearquote-engine/pkg/middleware"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventSQLInjectionAttempt is logged when libinjection flags a bound parameter value.
	EventSQLInjectionAttempt SecurityEventType = "sql_injection_attempt"
	// EventQueryRejected is logged when the guardrail refuses candidate SQL.
	EventQueryRejected SecurityEventType = "query_rejected"
	// EventQueryExecution is logged for every executed query.
	EventQueryExecution SecurityEventType = "query_execution"
	// EventExecutionFailure is logged when the database refuses or times out a query.
	EventExecutionFailure SecurityEventType = "execution_failure"
)

const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// maxParamValueLength bounds how much of a flagged value is recorded.
const maxParamValueLength = 100

// SecurityEvent represents an auditable security event.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	QueryID   uuid.UUID         `json:"query_id"`
	RequestID string            `json:"request_id,omitempty"`
	ClientIP  string            `json:"client_ip,omitempty"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"`
}

// SQLInjectionDetails contains specifics of a flagged parameter value.
type SQLInjectionDetails struct {
	ParamName   string `json:"param_name"`
	ParamValue  string `json:"param_value"`
	Fingerprint string `json:"fingerprint"` // libinjection fingerprint for pattern analysis
	Rejected    bool   `json:"rejected"`
}

// RejectionDetails describes a guardrail rejection. SQL is sanitized.
type RejectionDetails struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
	SQL    string `json:"sql"`
}

// ExecutionDetails describes an executed or failed query.
type ExecutionDetails struct {
	SQL        string `json:"sql"`
	Rows       int    `json:"rows"`
	Truncated  bool   `json:"truncated"`
	DurationMs int64  `json:"duration_ms"`
	Failure    string `json:"failure,omitempty"`
}

// SecurityAuditor logs security events for SIEM consumption.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates a new security auditor with a dedicated
// "security_audit" logger namespace.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SecurityAuditor{logger: logger.Named("security_audit")}
}

func (a *SecurityAuditor) event(ctx context.Context, eventType SecurityEventType, queryID uuid.UUID, severity string, details any) []zap.Field {
	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		QueryID:   queryID,
		RequestID: middleware.RequestIDFromContext(ctx),
		ClientIP:  middleware.ClientIPFromContext(ctx),
		Details:   details,
		Severity:  severity,
	}

	// Marshaling these fixed types cannot fail.
	eventJSON, _ := json.Marshal(event)

	return []zap.Field{
		zap.String("event_json", string(eventJSON)),
		zap.String("query_id", queryID.String()),
		zap.String("request_id", event.RequestID),
		zap.String("client_ip", event.ClientIP),
		zap.String("severity", severity),
	}
}

// LogInjectionAttempt records a parameter value libinjection flagged. It is
// logged at ERROR level with "critical" severity for immediate alerting.
func (a *SecurityAuditor) LogInjectionAttempt(ctx context.Context, queryID uuid.UUID, details SQLInjectionDetails) {
	details.ParamValue = logging.TruncateString(details.ParamValue, maxParamValueLength)
	fields := a.event(ctx, EventSQLInjectionAttempt, queryID, SeverityCritical, details)

	a.logger.Error("SQL injection attempt detected", append(fields,
		zap.String("param_name", details.ParamName),
		zap.String("fingerprint", details.Fingerprint),
		zap.Bool("rejected", details.Rejected),
	)...)
}

// LogRejection records a guardrail rejection at WARN level. Rejections are
// usually a model mistake, not an attack.
func (a *SecurityAuditor) LogRejection(ctx context.Context, queryID uuid.UUID, sqlText string, reason error) {
	details := RejectionDetails{
		Code:   apperrors.Code(reason),
		Reason: logging.SanitizeError(reason),
		SQL:    logging.SanitizeQuery(sqlText),
	}
	fields := a.event(ctx, EventQueryRejected, queryID, SeverityWarning, details)

	a.logger.Warn("Query rejected by guardrail", append(fields,
		zap.String("code", details.Code),
		zap.String("reason", details.Reason),
	)...)
}

// LogQueryExecution records an executed query at INFO level.
func (a *SecurityAuditor) LogQueryExecution(ctx context.Context, queryID uuid.UUID, sqlText string, rows int, truncated bool, elapsed time.Duration) {
	details := ExecutionDetails{
		SQL:        logging.SanitizeQuery(sqlText),
		Rows:       rows,
		Truncated:  truncated,
		DurationMs: elapsed.Milliseconds(),
	}
	fields := a.event(ctx, EventQueryExecution, queryID, SeverityInfo, details)

	a.logger.Info("Query executed", append(fields,
		zap.Int("rows", rows),
		zap.Bool("truncated", truncated),
	)...)
}

// LogExecutionFailure records a query the database failed to run. failure
// is a short classification such as "statement_timeout".
func (a *SecurityAuditor) LogExecutionFailure(ctx context.Context, queryID uuid.UUID, sqlText, failure string, elapsed time.Duration) {
	details := ExecutionDetails{
		SQL:        logging.SanitizeQuery(sqlText),
		DurationMs: elapsed.Milliseconds(),
		Failure:    failure,
	}
	fields := a.event(ctx, EventExecutionFailure, queryID, SeverityWarning, details)

	a.logger.Warn("Query execution failed", append(fields,
		zap.String("failure", failure),
	)...)
}
