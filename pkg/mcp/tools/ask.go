package tools

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/clearquote-engine/pkg/logging"
	"github.com/ekaya-inc/clearquote-engine/pkg/services"
)

// AskToolDeps contains dependencies for the ask and validate_sql tools.
type AskToolDeps struct {
	AskService services.AskService
	Logger     *zap.Logger
}

// RegisterAskTools registers ask and validate_sql.
func RegisterAskTools(s *server.MCPServer, deps *AskToolDeps) {
	registerAskTool(s, deps)
	registerValidateSQLTool(s, deps)
}

func registerAskTool(s *server.MCPServer, deps *AskToolDeps) {
	tool := mcp.NewTool(
		"ask",
		mcp.WithDescription(
			"Answer a question about vehicle damage, repairs and quotes in plain English. "+
				"The question is translated to a read-only SQL query over the allowlisted tables, "+
				"executed with a row cap, and the rows are rendered as a short answer. "+
				"If the question is ambiguous or the generated query is refused, "+
				"needs_clarification is true and clarification_question says what to change.",
		),
		mcp.WithString(
			"question",
			mcp.Required(),
			mcp.Description("The question, e.g. \"What is the average repair cost for rear bumper damage in the last 30 days?\""),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		result, err := deps.AskService.Ask(ctx, question)
		if err != nil {
			deps.Logger.Warn("ask tool failed", zap.String("error", logging.SanitizeError(err)))
			return serviceErrorResult(err)
		}
		return jsonResult(result)
	})
}

func registerValidateSQLTool(s *server.MCPServer, deps *AskToolDeps) {
	tool := mcp.NewTool(
		"validate_sql",
		mcp.WithDescription(
			"Check a SQL query against the guardrail without running it. "+
				"Only a single SELECT over allowlisted tables is accepted; named parameters use :name syntax "+
				"and every one must have a value in params. Accepted queries are returned with the row limit applied.",
		),
		mcp.WithString(
			"sql",
			mcp.Required(),
			mcp.Description("The SQL query to check"),
		),
		mcp.WithObject(
			"params",
			mcp.Description("Parameter values keyed by name, e.g. {\"start_date\": \"2025-01-01\"}"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sqlText, err := req.RequireString("sql")
		if err != nil || strings.TrimSpace(sqlText) == "" {
			return NewErrorResult("missing_sql", "SQL query is required"), nil
		}

		result, err := deps.AskService.Validate(ctx, &services.ValidateRequest{
			SQL:    sqlText,
			Params: getOptionalObject(req, "params"),
		})
		if err != nil {
			deps.Logger.Warn("validate_sql tool failed", zap.String("error", logging.SanitizeError(err)))
			return serviceErrorResult(err)
		}
		return jsonResult(result)
	})
}
