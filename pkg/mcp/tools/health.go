package tools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const healthCheckTimeout = 2 * time.Second

// HealthToolDeps contains dependencies for the health tool. DB and
// TranslatorState may be nil.
type HealthToolDeps struct {
	Version         string
	DB              interface{ TestConnection(ctx context.Context) error }
	TranslatorState func() string
}

type healthResult struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	Database   string `json:"database"`
	Translator string `json:"translator,omitempty"`
}

// RegisterHealthTool adds a health check tool to the MCP server.
func RegisterHealthTool(s *server.MCPServer, deps *HealthToolDeps) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health status, version, database reachability and translator circuit state"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := healthResult{Status: "ok", Version: deps.Version, Database: "not_configured"}
		if deps.DB != nil {
			pingCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
			defer cancel()
			if err := deps.DB.TestConnection(pingCtx); err != nil {
				result.Status = "degraded"
				result.Database = "unreachable"
			} else {
				result.Database = "ok"
			}
		}
		if deps.TranslatorState != nil {
			result.Translator = deps.TranslatorState()
		}
		return jsonResult(result)
	})
}
