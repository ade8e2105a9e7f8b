package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/clearquote-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/clearquote-engine/pkg/apperrors"
	"github.com/ekaya-inc/clearquote-engine/pkg/audit"
	"github.com/ekaya-inc/clearquote-engine/pkg/cache"
	"github.com/ekaya-inc/clearquote-engine/pkg/guardrail"
	"github.com/ekaya-inc/clearquote-engine/pkg/llm"
	"github.com/ekaya-inc/clearquote-engine/pkg/policy"
)

type fakeTranslator struct {
	translation *llm.Translation
	err         error
	calls       int
	lastToday   time.Time
}

func (f *fakeTranslator) Translate(ctx context.Context, question string, today time.Time) (*llm.Translation, error) {
	f.calls++
	f.lastToday = today
	return f.translation, f.err
}

type fakeExecutor struct {
	result *datasource.ResultSet
	err    error
	calls  int
	last   *guardrail.PreparedQuery
}

func (f *fakeExecutor) Query(ctx context.Context, q *guardrail.PreparedQuery) (*datasource.ResultSet, error) {
	f.calls++
	f.last = q
	return f.result, f.err
}

func (f *fakeExecutor) Close() error { return nil }

type askFixture struct {
	svc        AskService
	translator *fakeTranslator
	executor   *fakeExecutor
	auditLogs  *observer.ObservedLogs
}

func newAskFixture(t *testing.T, guardCfg guardrail.Config, tc *cache.TranslationCache) *askFixture {
	t.Helper()

	guard, err := guardrail.New(policy.Default(), guardCfg)
	require.NoError(t, err)

	core, logs := observer.New(zapcore.DebugLevel)
	f := &askFixture{
		translator: &fakeTranslator{},
		executor:   &fakeExecutor{},
		auditLogs:  logs,
	}
	f.svc = NewAskService(AskConfig{
		Translator: f.translator,
		Guard:      guard,
		Executor:   f.executor,
		Cache:      tc,
		Auditor:    audit.NewSecurityAuditor(zap.New(core)),
	}, zaptest.NewLogger(t))

	f.svc.(*askService).now = func() time.Time {
		return time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	}
	return f
}

func (f *askFixture) auditMessages() []string {
	var msgs []string
	for _, e := range f.auditLogs.All() {
		msgs = append(msgs, e.Message)
	}
	return msgs
}

func TestAsk_ScalarAnswer(t *testing.T) {
	f := newAskFixture(t, guardrail.Config{}, nil)
	f.translator.translation = &llm.Translation{
		SQL:         "SELECT COUNT(*) AS count FROM damage_detections WHERE severity = :severity AND detected_at >= :start_date",
		Params:      map[string]any{"severity": "severe", "start_date": "2025-03-01"},
		Assumptions: []string{"this month means since March 1"},
	}
	f.executor.result = &datasource.ResultSet{
		Columns: []datasource.ColumnInfo{{Name: "count", Type: "INT8"}},
		Rows:    [][]any{{int64(1523)}},
	}

	res, err := f.svc.Ask(context.Background(), "  How many severe damages this month?  ")
	require.NoError(t, err)

	assert.False(t, res.NeedsClarification)
	assert.Equal(t, "There are 1,523 records matching your criteria.", res.Answer)
	assert.Equal(t, []string{"Assumptions: this month means since March 1"}, res.Notes)
	assert.Equal(t, 1, res.RowsReturned)
	assert.Equal(t, "SELECT COUNT(*) AS count FROM damage_detections WHERE severity = :severity AND detected_at >= :start_date LIMIT 200", res.SQL)

	require.NotNil(t, f.executor.last)
	assert.Equal(t, []any{"severe", "2025-03-01"}, f.executor.last.Args)
	assert.Equal(t, 200, f.executor.last.MaxRows)
	assert.Equal(t, 8*time.Second, f.executor.last.StatementTimeout)
	assert.Equal(t, time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC), f.translator.lastToday)

	assert.Equal(t, []string{"Query executed"}, f.auditMessages())
}

func TestAsk_TruncatedResultAddsNote(t *testing.T) {
	f := newAskFixture(t, guardrail.Config{MaxRows: 2}, nil)
	f.translator.translation = &llm.Translation{SQL: "SELECT model FROM vehicle_cards"}
	f.executor.result = &datasource.ResultSet{
		Columns:   []datasource.ColumnInfo{{Name: "model"}},
		Rows:      [][]any{{"Corolla"}, {"Civic"}},
		Truncated: true,
	}

	res, err := f.svc.Ask(context.Background(), "list models")
	require.NoError(t, err)

	assert.Equal(t, "Here are the results:\n\nmodel: Corolla\nmodel: Civic", res.Answer)
	assert.Equal(t, []string{"Result truncated to 2 rows."}, res.Notes)
	assert.Equal(t, "SELECT model FROM vehicle_cards LIMIT 2", res.SQL)
}

func TestAsk_Clarification(t *testing.T) {
	f := newAskFixture(t, guardrail.Config{}, nil)
	f.translator.translation = &llm.Translation{
		NeedsClarification:    true,
		ClarificationQuestion: "Which time period?",
	}

	res, err := f.svc.Ask(context.Background(), "how many repairs?")
	require.NoError(t, err)

	assert.True(t, res.NeedsClarification)
	assert.Equal(t, "Which time period?", res.ClarificationQuestion)
	assert.Empty(t, res.SQL)
	assert.Zero(t, f.executor.calls)
}

func TestAsk_RejectionBecomesClarification(t *testing.T) {
	tests := []struct {
		name       string
		sql        string
		params     map[string]any
		wantReason string
	}{
		{"write", "DELETE FROM repairs", nil, "SQL failed validation: forbidden operation detected: Delete"},
		{"disallowed table", "SELECT * FROM users", nil, "SQL failed validation: query references disallowed tables: users"},
		{"missing param", "SELECT * FROM repairs WHERE created_at >= :start_date", nil, "SQL failed validation: missing SQL parameters: start_date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAskFixture(t, guardrail.Config{}, nil)
			f.translator.translation = &llm.Translation{SQL: tt.sql, Params: tt.params}

			res, err := f.svc.Ask(context.Background(), "question")
			require.NoError(t, err)

			assert.True(t, res.NeedsClarification)
			assert.Equal(t, tt.wantReason, res.ClarificationQuestion)
			assert.Empty(t, res.SQL, "rejected SQL is not echoed")
			assert.Zero(t, f.executor.calls)
			assert.Equal(t, []string{"Query rejected by guardrail"}, f.auditMessages())
		})
	}
}

func TestAsk_SyntaxErrorIsInternal(t *testing.T) {
	f := newAskFixture(t, guardrail.Config{}, nil)
	f.translator.translation = &llm.Translation{SQL: "SELEC nonsense FROM"}

	_, err := f.svc.Ask(context.Background(), "question")

	var syntax *apperrors.SyntaxError
	require.ErrorAs(t, err, &syntax)
	assert.False(t, apperrors.IsRejection(err))
	assert.Zero(t, f.executor.calls)
}

func TestAsk_SuspiciousParameters(t *testing.T) {
	translation := &llm.Translation{
		SQL:    "SELECT * FROM repairs WHERE panel_name = :panel",
		Params: map[string]any{"panel": "' OR '1'='1"},
	}

	t.Run("audited but executed by default", func(t *testing.T) {
		f := newAskFixture(t, guardrail.Config{}, nil)
		f.translator.translation = translation
		f.executor.result = &datasource.ResultSet{}

		res, err := f.svc.Ask(context.Background(), "question")
		require.NoError(t, err)
		assert.Equal(t, "No results matched your query for the specified filters.", res.Answer)
		assert.Equal(t, []string{"SQL injection attempt detected", "Query executed"}, f.auditMessages())
	})

	t.Run("rejected when strict", func(t *testing.T) {
		f := newAskFixture(t, guardrail.Config{RejectSuspiciousParams: true}, nil)
		f.translator.translation = translation

		res, err := f.svc.Ask(context.Background(), "question")
		require.NoError(t, err)
		assert.True(t, res.NeedsClarification)
		assert.Zero(t, f.executor.calls)
		assert.Equal(t, []string{"SQL injection attempt detected", "Query rejected by guardrail"}, f.auditMessages())
		assert.Equal(t, true, f.auditLogs.All()[0].ContextMap()["rejected"])
	})
}

func TestAsk_ExecutionFailure(t *testing.T) {
	f := newAskFixture(t, guardrail.Config{}, nil)
	f.translator.translation = &llm.Translation{SQL: "SELECT * FROM quotes"}
	f.executor.err = &apperrors.ExecutionError{Cause: errors.New("canceling statement due to statement timeout")}

	_, err := f.svc.Ask(context.Background(), "question")

	var execErr *apperrors.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, []string{"Query execution failed"}, f.auditMessages())
	assert.Equal(t, apperrors.CodeExecution, f.auditLogs.All()[0].ContextMap()["failure"])
}

func TestAsk_TranslatorFailure(t *testing.T) {
	f := newAskFixture(t, guardrail.Config{}, nil)
	f.translator.err = llm.NewError(llm.ErrorTypeEndpoint, "server error", true, nil)

	_, err := f.svc.Ask(context.Background(), "question")
	require.Error(t, err)
	assert.Equal(t, llm.ErrorTypeEndpoint, llm.GetErrorType(err))
}

func TestAsk_EmptyQuestion(t *testing.T) {
	f := newAskFixture(t, guardrail.Config{}, nil)

	_, err := f.svc.Ask(context.Background(), " \n ")
	assert.ErrorIs(t, err, apperrors.ErrEmptyQuestion)
	assert.Zero(t, f.translator.calls)
}

func TestAsk_CachesAcceptedTranslations(t *testing.T) {
	tc := cache.NewTranslationCache(cache.NewMemoryStore(0), "test:", time.Hour, zaptest.NewLogger(t))
	f := newAskFixture(t, guardrail.Config{}, tc)
	f.translator.translation = &llm.Translation{SQL: "SELECT COUNT(*) AS count FROM quotes"}
	f.executor.result = &datasource.ResultSet{
		Columns: []datasource.ColumnInfo{{Name: "count"}},
		Rows:    [][]any{{int64(4)}},
	}

	for i := 0; i < 3; i++ {
		res, err := f.svc.Ask(context.Background(), "How many quotes?")
		require.NoError(t, err)
		assert.Equal(t, "There are 4 records matching your criteria.", res.Answer)
	}
	assert.Equal(t, 1, f.translator.calls)
	assert.Equal(t, 3, f.executor.calls)
}

func TestAsk_DoesNotCacheRejectedTranslations(t *testing.T) {
	tc := cache.NewTranslationCache(cache.NewMemoryStore(0), "test:", time.Hour, zaptest.NewLogger(t))
	f := newAskFixture(t, guardrail.Config{}, tc)
	f.translator.translation = &llm.Translation{SQL: "SELECT * FROM users"}

	for i := 0; i < 2; i++ {
		_, err := f.svc.Ask(context.Background(), "who are the users?")
		require.NoError(t, err)
	}
	assert.Equal(t, 2, f.translator.calls)
}

func TestValidate(t *testing.T) {
	f := newAskFixture(t, guardrail.Config{MaxRows: 50, StatementTimeout: 2 * time.Second}, nil)

	tests := []struct {
		name string
		req  *ValidateRequest
		want ValidationResult
	}{
		{
			name: "accepted",
			req: &ValidateRequest{
				SQL:    "SELECT panel_name FROM repairs WHERE created_at >= :start_date",
				Params: map[string]any{"start_date": "2025-01-01"},
			},
			want: ValidationResult{
				Valid:              true,
				SQL:                "SELECT panel_name FROM repairs WHERE created_at >= :start_date LIMIT 50",
				Parameters:         []string{"start_date"},
				FlaggedParams:      []string{},
				MaxRows:            50,
				StatementTimeoutMs: 2000,
			},
		},
		{
			name: "forbidden",
			req:  &ValidateRequest{SQL: "DROP TABLE repairs"},
			want: ValidationResult{Code: apperrors.CodeForbiddenOperation, Reason: "forbidden operation detected: Drop"},
		},
		{
			name: "syntax error hides parser message",
			req:  &ValidateRequest{SQL: "SELEC * FROM repairs"},
			want: ValidationResult{Code: apperrors.CodeSyntax, Reason: "SQL could not be parsed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.Validate(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
	assert.Zero(t, f.executor.calls)

	_, err := f.svc.Validate(context.Background(), &ValidateRequest{SQL: "  "})
	assert.Error(t, err)
}
