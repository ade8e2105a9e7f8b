package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewServer(t *testing.T) {
	logger := zap.NewNop()
	s := NewServer("clearquote-engine", "1.0.0", logger, nil)

	require.NotNil(t, s)
	require.NotNil(t, s.MCP())
	assert.Same(t, logger, s.logger)
	assert.NotNil(t, s.NewStreamableHTTPServer())
}

func TestServer_RegisterTool(t *testing.T) {
	s := NewServer("clearquote-engine", "1.0.0", zap.NewNop(), nil)

	called := false
	s.RegisterTool(mcp.NewTool("echo", mcp.WithDescription("echo")), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		called = true
		return mcp.NewToolResultText("pong"), nil
	})
	assert.False(t, called, "handler should not be called during registration")

	raw, err := json.Marshal(s.MCP().HandleMessage(context.Background(),
		[]byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo","arguments":{}}}`)))
	require.NoError(t, err)

	assert.True(t, called)
	assert.Contains(t, string(raw), "pong")
}
