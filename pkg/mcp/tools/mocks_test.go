package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/clearquote-engine/pkg/services"
)

type mockAskService struct {
	askResult      *services.AskResult
	askErr         error
	validateResult *services.ValidationResult
	validateErr    error

	gotQuestion string
	gotValidate *services.ValidateRequest
}

func (m *mockAskService) Ask(ctx context.Context, question string) (*services.AskResult, error) {
	m.gotQuestion = question
	return m.askResult, m.askErr
}

func (m *mockAskService) Validate(ctx context.Context, req *services.ValidateRequest) (*services.ValidationResult, error) {
	m.gotValidate = req
	return m.validateResult, m.validateErr
}

// toolResponse is the decoded JSON-RPC reply to a tools/call.
type toolResponse struct {
	Result *struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) toolResponse {
	t.Helper()
	argsJSON, err := json.Marshal(args)
	require.NoError(t, err)

	msg := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":%q,"arguments":%s}}`, name, argsJSON)
	raw, err := json.Marshal(s.HandleMessage(context.Background(), []byte(msg)))
	require.NoError(t, err)

	var resp toolResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp
}

func listTools(t *testing.T, s *server.MCPServer) []string {
	t.Helper()
	raw, err := json.Marshal(s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/list","id":1}`)))
	require.NoError(t, err)

	var response struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &response))

	names := make([]string, 0, len(response.Result.Tools))
	for _, tool := range response.Result.Tools {
		names = append(names, tool.Name)
	}
	return names
}
