// Package apperrors defines the error taxonomy shared by the guardrail, the
// execution layer and the boundaries that talk to callers.
package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyQuestion = errors.New("question is required")
	ErrNoSQL         = errors.New("translator returned no SQL and did not ask for clarification")
)

// Rejection codes, stable across releases. Used in API and MCP error payloads.
const (
	CodeSyntax             = "syntax_error"
	CodeNotASelect         = "not_a_select"
	CodeForbiddenOperation = "forbidden_operation"
	CodeForbiddenFunction  = "forbidden_function"
	CodeDisallowedTable    = "disallowed_table"
	CodeMissingParameter   = "missing_parameter"
	CodeSuspiciousParam    = "suspicious_parameter"
	CodeExecution          = "execution_failed"
	CodeInternal           = "internal_error"
)

// SyntaxError means the candidate SQL could not be parsed.
type SyntaxError struct {
	Message string
}

func (e *SyntaxError) Error() string {
	return "invalid SQL: " + e.Message
}

// NotASelectError means the statement list did not consist of exactly one SELECT.
// Kind is the root kind that was found ("" for an empty statement list,
// "StatementList" when more than one statement was supplied).
type NotASelectError struct {
	Kind string
}

func (e *NotASelectError) Error() string {
	return "only SELECT queries are allowed"
}

// ForbiddenOperationError names the first mutating or DDL construct found in
// traversal order. Later occurrences are not reported.
type ForbiddenOperationError struct {
	Kind string
}

func (e *ForbiddenOperationError) Error() string {
	return fmt.Sprintf("forbidden operation detected: %s", e.Kind)
}

// ForbiddenFunctionError names the first call to a forbidden function found
// in traversal order.
type ForbiddenFunctionError struct {
	Name string
}

func (e *ForbiddenFunctionError) Error() string {
	return fmt.Sprintf("forbidden function call detected: %s", e.Name)
}

// DisallowedTableError lists every referenced table that is outside the allowlist.
type DisallowedTableError struct {
	Tables []string
}

func (e *DisallowedTableError) Error() string {
	return fmt.Sprintf("query references disallowed tables: %s", strings.Join(e.Tables, ", "))
}

// MissingParameterError lists every placeholder without a bound value.
type MissingParameterError struct {
	Names []string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("missing SQL parameters: %s", strings.Join(e.Names, ", "))
}

// SuspiciousParameterError lists parameters whose values carry SQL injection
// fingerprints. Only returned when strict parameter screening is enabled.
type SuspiciousParameterError struct {
	Names []string
}

func (e *SuspiciousParameterError) Error() string {
	return fmt.Sprintf("suspicious values in SQL parameters: %s", strings.Join(e.Names, ", "))
}

// ExecutionError wraps any failure of the execution collaborator: timeouts,
// read-only violations, connection problems. Never carries partial results.
type ExecutionError struct {
	Cause error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("query execution failed: %v", e.Cause)
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// IsRejection reports whether err is a policy rejection the caller can act on
// by rephrasing the question. Syntax and execution failures are not rejections.
func IsRejection(err error) bool {
	var (
		notSelect  *NotASelectError
		forbidden  *ForbiddenOperationError
		function   *ForbiddenFunctionError
		disallowed *DisallowedTableError
		missing    *MissingParameterError
		suspicious *SuspiciousParameterError
	)
	return errors.As(err, &notSelect) ||
		errors.As(err, &forbidden) ||
		errors.As(err, &function) ||
		errors.As(err, &disallowed) ||
		errors.As(err, &missing) ||
		errors.As(err, &suspicious)
}

// Code maps an error to its stable rejection code.
func Code(err error) string {
	var (
		syntax     *SyntaxError
		notSelect  *NotASelectError
		forbidden  *ForbiddenOperationError
		function   *ForbiddenFunctionError
		disallowed *DisallowedTableError
		missing    *MissingParameterError
		suspicious *SuspiciousParameterError
		execErr    *ExecutionError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &syntax):
		return CodeSyntax
	case errors.As(err, &notSelect):
		return CodeNotASelect
	case errors.As(err, &forbidden):
		return CodeForbiddenOperation
	case errors.As(err, &function):
		return CodeForbiddenFunction
	case errors.As(err, &disallowed):
		return CodeDisallowedTable
	case errors.As(err, &missing):
		return CodeMissingParameter
	case errors.As(err, &suspicious):
		return CodeSuspiciousParam
	case errors.As(err, &execErr):
		return CodeExecution
	default:
		return CodeInternal
	}
}
