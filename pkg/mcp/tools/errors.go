package tools

import (
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/clearquote-engine/pkg/apperrors"
	"github.com/ekaya-inc/clearquote-engine/pkg/llm"
)

// ErrorResponse represents a structured error in tool results.
// Returning it as a tool result keeps the message visible to the client
// instead of being swallowed as a protocol error.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use this for failures the caller can act on (empty question, translator
// unavailable). Internal failures are returned as Go errors.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	jsonBytes, _ := json.Marshal(ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
	})
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

var errInternal = errors.New("internal error")

// serviceErrorResult maps an ask pipeline error to a tool result. It returns
// a nil result and a generic error for failures with nothing to act on.
func serviceErrorResult(err error) (*mcp.CallToolResult, error) {
	var (
		llmErr  *llm.Error
		execErr *apperrors.ExecutionError
	)
	switch {
	case errors.Is(err, apperrors.ErrEmptyQuestion):
		return NewErrorResult("missing_question", "A question is required."), nil
	case errors.As(err, &llmErr) && llmErr.Type == llm.ErrorTypeResponse:
		return NewErrorResult("translation_failed", "The question could not be translated. Please rephrase it."), nil
	case errors.As(err, &llmErr):
		return NewErrorResult("translator_unavailable", "The translation service is unavailable. Please try again later."), nil
	case errors.As(err, &execErr):
		return NewErrorResult(apperrors.CodeExecution, "The query could not be executed."), nil
	default:
		return nil, errInternal
	}
}
