package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/clearquote-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/clearquote-engine/pkg/answer"
	"github.com/ekaya-inc/clearquote-engine/pkg/apperrors"
	"github.com/ekaya-inc/clearquote-engine/pkg/audit"
	"github.com/ekaya-inc/clearquote-engine/pkg/cache"
	"github.com/ekaya-inc/clearquote-engine/pkg/guardrail"
	"github.com/ekaya-inc/clearquote-engine/pkg/llm"
	"github.com/ekaya-inc/clearquote-engine/pkg/logging"
	"github.com/ekaya-inc/clearquote-engine/pkg/sql"
)

// validationFailedPrefix starts the clarification returned for rejected SQL.
const validationFailedPrefix = "SQL failed validation: "

// AskService answers natural-language questions about the store.
type AskService interface {
	// Ask translates, checks, executes and renders one question. Policy
	// rejections come back as a clarification result, not an error.
	Ask(ctx context.Context, question string) (*AskResult, error)

	// Validate runs SQL through the guardrail without executing it.
	Validate(ctx context.Context, req *ValidateRequest) (*ValidationResult, error)
}

// Translator produces candidate SQL for a question.
type Translator interface {
	Translate(ctx context.Context, question string, today time.Time) (*llm.Translation, error)
}

// AskResult is the response to one question.
type AskResult struct {
	NeedsClarification    bool     `json:"needs_clarification"`
	ClarificationQuestion string   `json:"clarification_question"`
	SQL                   string   `json:"sql"`
	Answer                string   `json:"answer"`
	Notes                 []string `json:"notes"`
	RowsReturned          int      `json:"rows_returned"`
}

// ValidateRequest is SQL with its parameter values.
type ValidateRequest struct {
	SQL    string         `json:"sql"`
	Params map[string]any `json:"params"`
}

// ValidationResult is the guardrail's verdict. On acceptance SQL is the
// limit-bounded text that would run.
type ValidationResult struct {
	Valid              bool     `json:"valid"`
	Code               string   `json:"code,omitempty"`
	Reason             string   `json:"reason,omitempty"`
	SQL                string   `json:"sql,omitempty"`
	Parameters         []string `json:"parameters,omitempty"`
	FlaggedParams      []string `json:"flagged_params,omitempty"`
	MaxRows            int      `json:"max_rows,omitempty"`
	StatementTimeoutMs int64    `json:"statement_timeout_ms,omitempty"`
}

// AskConfig wires the ask pipeline.
type AskConfig struct {
	Translator Translator
	Guard      *guardrail.Guard
	Executor   datasource.QueryExecutor
	Cache      *cache.TranslationCache
	Auditor    *audit.SecurityAuditor
	// FailureReason classifies execution errors for audit events.
	FailureReason func(error) string
}

type askService struct {
	translator    Translator
	guard         *guardrail.Guard
	executor      datasource.QueryExecutor
	cache         *cache.TranslationCache
	auditor       *audit.SecurityAuditor
	failureReason func(error) string
	now           func() time.Time
	logger        *zap.Logger
}

var _ AskService = (*askService)(nil)

// NewAskService creates the ask pipeline. Cache and Auditor are optional.
func NewAskService(cfg AskConfig, logger *zap.Logger) AskService {
	if logger == nil {
		logger = zap.NewNop()
	}
	auditor := cfg.Auditor
	if auditor == nil {
		auditor = audit.NewSecurityAuditor(logger)
	}
	failureReason := cfg.FailureReason
	if failureReason == nil {
		failureReason = apperrors.Code
	}
	return &askService{
		translator:    cfg.Translator,
		guard:         cfg.Guard,
		executor:      cfg.Executor,
		cache:         cfg.Cache,
		auditor:       auditor,
		failureReason: failureReason,
		now:           time.Now,
		logger:        logger.Named("ask"),
	}
}

func (s *askService) Ask(ctx context.Context, question string) (*AskResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, apperrors.ErrEmptyQuestion
	}
	today := s.now().UTC()

	tr, cached := s.cache.Get(ctx, question, today)
	if !cached {
		var err error
		tr, err = s.translator.Translate(ctx, question, today)
		if err != nil {
			return nil, fmt.Errorf("translate question: %w", err)
		}
	}

	if tr.NeedsClarification {
		if !cached {
			s.cache.Put(ctx, question, today, tr)
		}
		return &AskResult{
			NeedsClarification:    true,
			ClarificationQuestion: tr.ClarificationQuestion,
			Notes:                 assumptionNotes(tr.Assumptions),
		}, nil
	}

	queryID := uuid.New()
	prepared, err := s.prepare(ctx, queryID, guardrail.CandidateQuery{SQL: tr.SQL, Params: tr.Params})
	if err != nil {
		if apperrors.IsRejection(err) {
			return &AskResult{
				NeedsClarification:    true,
				ClarificationQuestion: validationFailedPrefix + err.Error(),
				Notes:                 []string{},
			}, nil
		}
		return nil, err
	}
	if !cached {
		s.cache.Put(ctx, question, today, tr)
	}

	start := time.Now()
	rs, err := s.executor.Query(ctx, prepared)
	elapsed := time.Since(start)
	if err != nil {
		s.auditor.LogExecutionFailure(ctx, queryID, prepared.SQL, s.failureReason(err), elapsed)
		return nil, err
	}
	s.auditor.LogQueryExecution(ctx, queryID, prepared.SQL, rs.RowCount(), rs.Truncated, elapsed)

	ans := answer.Format(question, rs.ColumnNames(), rs.Rows, tr.Assumptions)
	if rs.Truncated {
		ans.Notes = append(ans.Notes, fmt.Sprintf("Result truncated to %d rows.", prepared.MaxRows))
	}

	s.logger.Info("Question answered",
		zap.String("query_id", queryID.String()),
		zap.Bool("cached_translation", cached),
		zap.Int("rows", rs.RowCount()),
		zap.Duration("execution", elapsed))

	return &AskResult{
		SQL:          prepared.SQL,
		Answer:       ans.Text,
		Notes:        ans.Notes,
		RowsReturned: rs.RowCount(),
	}, nil
}

// prepare runs the guardrail and audits what it finds.
func (s *askService) prepare(ctx context.Context, queryID uuid.UUID, q guardrail.CandidateQuery) (*guardrail.PreparedQuery, error) {
	prepared, err := s.guard.Prepare(q)
	if err != nil {
		var suspicious *apperrors.SuspiciousParameterError
		if errors.As(err, &suspicious) {
			flagged := make(map[string]any, len(suspicious.Names))
			for _, name := range suspicious.Names {
				flagged[name] = q.Params[name]
			}
			s.auditFindings(ctx, queryID, sql.ScanParameters(flagged), true)
		}
		s.auditor.LogRejection(ctx, queryID, q.SQL, err)
		return nil, err
	}
	s.auditFindings(ctx, queryID, prepared.Findings, false)
	return prepared, nil
}

func (s *askService) auditFindings(ctx context.Context, queryID uuid.UUID, findings []sql.ParameterFinding, rejected bool) {
	for _, f := range findings {
		s.auditor.LogInjectionAttempt(ctx, queryID, audit.SQLInjectionDetails{
			ParamName:   f.Name,
			ParamValue:  f.Value,
			Fingerprint: f.Fingerprint,
			Rejected:    rejected,
		})
	}
}

func (s *askService) Validate(ctx context.Context, req *ValidateRequest) (*ValidationResult, error) {
	if req == nil || strings.TrimSpace(req.SQL) == "" {
		return nil, errors.New("sql is required")
	}

	prepared, err := s.prepare(ctx, uuid.New(), guardrail.CandidateQuery{SQL: req.SQL, Params: req.Params})
	if err != nil {
		result := &ValidationResult{Code: apperrors.Code(err)}

		var suspicious *apperrors.SuspiciousParameterError
		var syntax *apperrors.SyntaxError
		switch {
		case errors.As(err, &syntax):
			// The parser message quotes the input.
			result.Reason = "SQL could not be parsed"
			s.logger.Debug("Validation syntax error", zap.String("error", logging.SanitizeError(err)))
		case errors.As(err, &suspicious):
			result.Reason = err.Error()
			result.FlaggedParams = suspicious.Names
		case apperrors.IsRejection(err):
			result.Reason = err.Error()
		default:
			return nil, err
		}
		return result, nil
	}

	flagged := make([]string, len(prepared.Findings))
	for i, f := range prepared.Findings {
		flagged[i] = f.Name
	}
	return &ValidationResult{
		Valid:              true,
		SQL:                prepared.SQL,
		Parameters:         prepared.ParamNames,
		FlaggedParams:      flagged,
		MaxRows:            prepared.MaxRows,
		StatementTimeoutMs: prepared.StatementTimeout.Milliseconds(),
	}, nil
}

func assumptionNotes(assumptions []string) []string {
	if len(assumptions) == 0 {
		return []string{}
	}
	return []string{"Assumptions: " + strings.Join(assumptions, "; ")}
}
