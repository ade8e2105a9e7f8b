// Package guardrail turns untrusted candidate SQL into a query that is safe to
// hand to the executor: a single allowlisted SELECT, row-bounded, with every
// placeholder bound.
package guardrail

import (
	"errors"
	"fmt"
	"time"

	"github.com/ekaya-inc/clearquote-engine/pkg/apperrors"
	"github.com/ekaya-inc/clearquote-engine/pkg/policy"
	"github.com/ekaya-inc/clearquote-engine/pkg/sql"
)

const (
	DefaultMaxRows          = 200
	DefaultStatementTimeout = 8000 * time.Millisecond
)

// CandidateQuery is SQL text plus its parameter values, as produced by the
// translator.
type CandidateQuery struct {
	SQL    string
	Params map[string]any
}

// PreparedQuery is a candidate that passed every check. It carries the
// execution constraints the executor must apply.
type PreparedQuery struct {
	// SQL is the validated, limit-bounded text with named placeholders.
	SQL string
	// PositionalSQL is SQL with placeholders rewritten to $1, $2, ...
	PositionalSQL string
	// Args are the bound values in positional order.
	Args []any
	// ParamNames are the placeholder names in positional order.
	ParamNames []string

	MaxRows          int
	StatementTimeout time.Duration

	// Findings are parameter values libinjection flagged. Populated only when
	// suspicious values are not rejected outright.
	Findings []sql.ParameterFinding
}

// Config holds the guard's execution bounds.
type Config struct {
	MaxRows                int
	StatementTimeout       time.Duration
	RejectSuspiciousParams bool
}

// Guard runs the guardrail pipeline. It is immutable after construction and
// safe for concurrent use.
type Guard struct {
	policy *policy.AllowlistPolicy
	cfg    Config
}

// New creates a Guard. Zero MaxRows or StatementTimeout fall back to the
// defaults; negative values are rejected.
func New(p *policy.AllowlistPolicy, cfg Config) (*Guard, error) {
	if p == nil {
		return nil, errors.New("guardrail requires an allowlist policy")
	}
	if cfg.MaxRows < 0 {
		return nil, fmt.Errorf("max rows must be positive, got %d", cfg.MaxRows)
	}
	if cfg.StatementTimeout < 0 {
		return nil, fmt.Errorf("statement timeout must be positive, got %s", cfg.StatementTimeout)
	}
	if cfg.MaxRows == 0 {
		cfg.MaxRows = DefaultMaxRows
	}
	if cfg.StatementTimeout == 0 {
		cfg.StatementTimeout = DefaultStatementTimeout
	}
	return &Guard{policy: p, cfg: cfg}, nil
}

// Policy returns the allowlist the guard enforces.
func (g *Guard) Policy() *policy.AllowlistPolicy {
	return g.policy
}

// MaxRows returns the row cap applied to every query.
func (g *Guard) MaxRows() int {
	return g.cfg.MaxRows
}

// StatementTimeout returns the server-side timeout applied to every query.
func (g *Guard) StatementTimeout() time.Duration {
	return g.cfg.StatementTimeout
}

// Prepare runs the candidate through the pipeline, stopping at the first
// rejection:
//
//	strip comments -> parse -> validate -> enforce limit -> check bindings -> bind
//
// Rejections are returned as the typed errors in apperrors. Parse failures are
// *apperrors.SyntaxError.
func (g *Guard) Prepare(q CandidateQuery) (*PreparedQuery, error) {
	text, err := sql.StripComments(q.SQL)
	if err != nil {
		return nil, err
	}

	tree, err := sql.Parse(text)
	if err != nil {
		return nil, err
	}
	if err := sql.Validate(tree, g.policy); err != nil {
		return nil, err
	}

	limited := sql.EnforceLimit(text, g.cfg.MaxRows)

	if err := sql.CheckBindings(limited, q.Params); err != nil {
		return nil, err
	}

	positional, names := sql.ToPositional(limited)
	args, err := sql.BindArgs(names, q.Params)
	if err != nil {
		return nil, err
	}

	findings := scanBound(names, q.Params)
	if len(findings) > 0 && g.cfg.RejectSuspiciousParams {
		flagged := make([]string, len(findings))
		for i, f := range findings {
			flagged[i] = f.Name
		}
		return nil, &apperrors.SuspiciousParameterError{Names: flagged}
	}

	return &PreparedQuery{
		SQL:              limited,
		PositionalSQL:    positional,
		Args:             args,
		ParamNames:       names,
		MaxRows:          g.cfg.MaxRows,
		StatementTimeout: g.cfg.StatementTimeout,
		Findings:         findings,
	}, nil
}

// scanBound screens only the values that will actually be bound.
func scanBound(names []string, params map[string]any) []sql.ParameterFinding {
	if len(names) == 0 {
		return nil
	}
	bound := make(map[string]any, len(names))
	for _, name := range names {
		bound[name] = params[name]
	}
	return sql.ScanParameters(bound)
}
