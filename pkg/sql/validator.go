// Package sql is the guardrail's SQL layer: parsing, policy validation, limit
// injection and placeholder binding checks for model-generated queries.
package sql

import (
	"sort"

	"github.com/ekaya-inc/clearquote-engine/pkg/apperrors"
	"github.com/ekaya-inc/clearquote-engine/pkg/policy"
)

// Validate checks a parsed query against the allowlist policy. A nil return
// means the query is accepted.
//
// The checks run in order and stop at the first rejection:
//  1. The input is exactly one statement and that statement is a SELECT.
//  2. No node anywhere in the tree has a forbidden kind or calls a forbidden
//     function. Only the first such node in traversal order is reported.
//  3. Every referenced table is allowlisted. All offenders are reported.
//
// Column sets in the policy are not checked.
func Validate(tree SyntaxTree, p *policy.AllowlistPolicy) error {
	if err := checkRoot(tree, p); err != nil {
		return err
	}
	if err := checkForbiddenNodes(tree, p); err != nil {
		return err
	}
	return checkTables(tree, p)
}

// ValidateSQL parses sqlQuery and validates it. Parse failures are returned as
// *apperrors.SyntaxError.
func ValidateSQL(sqlQuery string, p *policy.AllowlistPolicy) error {
	tree, err := Parse(sqlQuery)
	if err != nil {
		return err
	}
	return Validate(tree, p)
}

// checkRoot requires a single SELECT root. A single root whose own kind is
// forbidden (DROP, INSERT, ...) is reported as a forbidden operation so the
// caller learns which operation was attempted.
func checkRoot(tree SyntaxTree, p *policy.AllowlistPolicy) error {
	kind := tree.RootKind()
	if tree.StatementCount() == 1 && kind == "Select" {
		return nil
	}
	if tree.StatementCount() == 1 && p.IsForbidden(kind) {
		return &apperrors.ForbiddenOperationError{Kind: kind}
	}
	return &apperrors.NotASelectError{Kind: kind}
}

func checkForbiddenNodes(tree SyntaxTree, p *policy.AllowlistPolicy) error {
	var found error
	tree.Walk(func(n Node) bool {
		switch {
		case p.IsForbidden(n.Kind):
			found = &apperrors.ForbiddenOperationError{Kind: n.Kind}
		case p.IsForbiddenFunction(n.Func):
			found = &apperrors.ForbiddenFunctionError{Name: n.Func}
		default:
			return true
		}
		return false
	})
	return found
}

func checkTables(tree SyntaxTree, p *policy.AllowlistPolicy) error {
	offenders := make(map[string]struct{})
	for _, ref := range tree.Tables() {
		switch {
		case ref.Catalog != "" || !p.AllowsSchema(ref.Schema):
			offenders[ref.String()] = struct{}{}
		case !p.HasTable(ref.Name):
			offenders[ref.Name] = struct{}{}
		}
	}
	if len(offenders) == 0 {
		return nil
	}

	tables := make([]string, 0, len(offenders))
	for name := range offenders {
		tables = append(tables, name)
	}
	sort.Strings(tables)
	return &apperrors.DisallowedTableError{Tables: tables}
}
