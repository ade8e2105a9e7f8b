package mcp

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/clearquote-engine/pkg/logging"
	"github.com/ekaya-inc/clearquote-engine/pkg/middleware"
)

// ToolCallLogger records one log line per tool call with its duration and
// outcome. Arguments are logged by the HTTP-level MCP request logger.
type ToolCallLogger struct {
	logger *zap.Logger
	now    func() time.Time

	// startTimes tracks when tool calls begin, keyed by JSON-RPC request ID.
	startTimes sync.Map
}

// NewToolCallLogger creates a ToolCallLogger.
func NewToolCallLogger(logger *zap.Logger) *ToolCallLogger {
	return &ToolCallLogger{
		logger: logger.Named("mcp-tools"),
		now:    time.Now,
	}
}

// Hooks returns mcp-go Hooks configured to capture tool call events.
func (a *ToolCallLogger) Hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(a.beforeCallTool)
	hooks.AddAfterCallTool(a.afterCallTool)
	hooks.AddOnError(a.onError)
	return hooks
}

func (a *ToolCallLogger) beforeCallTool(_ context.Context, id any, _ *mcplib.CallToolRequest) {
	a.startTimes.Store(id, a.now())
}

func (a *ToolCallLogger) afterCallTool(ctx context.Context, id any, req *mcplib.CallToolRequest, result *mcplib.CallToolResult) {
	fields := append(a.baseFields(ctx, id, req), summarizeResult(result)...)
	if result != nil && result.IsError {
		a.logger.Info("Tool call returned error result", fields...)
		return
	}
	a.logger.Info("Tool call completed", fields...)
}

func (a *ToolCallLogger) onError(ctx context.Context, id any, method mcplib.MCPMethod, message any, err error) {
	if method != mcplib.MethodToolsCall {
		return
	}
	req, ok := message.(*mcplib.CallToolRequest)
	if !ok {
		return
	}

	fields := append(a.baseFields(ctx, id, req), zap.String("error", logging.SanitizeError(err)))
	a.logger.Warn("Tool call failed", fields...)
}

func (a *ToolCallLogger) baseFields(ctx context.Context, id any, req *mcplib.CallToolRequest) []zap.Field {
	start := a.now()
	if v, ok := a.startTimes.LoadAndDelete(id); ok {
		start = v.(time.Time)
	}
	return []zap.Field{
		zap.String("tool", req.Params.Name),
		zap.Int64("duration_ms", a.now().Sub(start).Milliseconds()),
		zap.String("request_id", middleware.RequestIDFromContext(ctx)),
	}
}

// summarizeResult pulls the outcome fields out of a tool's JSON payload.
func summarizeResult(result *mcplib.CallToolResult) []zap.Field {
	if result == nil {
		return nil
	}
	fields := []zap.Field{zap.Bool("is_error", result.IsError)}

	for _, c := range result.Content {
		tc, ok := c.(mcplib.TextContent)
		if !ok {
			continue
		}
		var partial struct {
			RowsReturned       *int    `json:"rows_returned"`
			NeedsClarification *bool   `json:"needs_clarification"`
			Valid              *bool   `json:"valid"`
			Code               *string `json:"code"`
		}
		if err := json.Unmarshal([]byte(tc.Text), &partial); err != nil {
			break
		}
		if partial.RowsReturned != nil {
			fields = append(fields, zap.Int("rows_returned", *partial.RowsReturned))
		}
		if partial.NeedsClarification != nil {
			fields = append(fields, zap.Bool("needs_clarification", *partial.NeedsClarification))
		}
		if partial.Valid != nil {
			fields = append(fields, zap.Bool("valid", *partial.Valid))
		}
		if partial.Code != nil {
			fields = append(fields, zap.String("code", *partial.Code))
		}
		break
	}
	return fields
}
