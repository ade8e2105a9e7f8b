package tools

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/clearquote-engine/pkg/apperrors"
	"github.com/ekaya-inc/clearquote-engine/pkg/llm"
	"github.com/ekaya-inc/clearquote-engine/pkg/services"
)

func newAskServer(svc *mockAskService) *server.MCPServer {
	s := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	RegisterAskTools(s, &AskToolDeps{AskService: svc, Logger: zap.NewNop()})
	return s
}

func TestRegisterAskTools(t *testing.T) {
	names := listTools(t, newAskServer(&mockAskService{}))
	assert.ElementsMatch(t, []string{"ask", "validate_sql"}, names)
}

func TestAskTool_Success(t *testing.T) {
	svc := &mockAskService{askResult: &services.AskResult{
		SQL:          "SELECT COUNT(*) AS count FROM quotes LIMIT 200",
		Answer:       "There are 12 matching records.",
		Notes:        []string{},
		RowsReturned: 1,
	}}

	resp := callTool(t, newAskServer(svc), "ask", map[string]any{"question": "How many quotes?"})

	require.Nil(t, resp.Error)
	require.NotNil(t, resp.Result)
	assert.False(t, resp.Result.IsError)
	assert.Equal(t, "How many quotes?", svc.gotQuestion)

	var result services.AskResult
	require.NoError(t, json.Unmarshal([]byte(resp.Result.Content[0].Text), &result))
	assert.Equal(t, "There are 12 matching records.", result.Answer)
}

func TestAskTool_Errors(t *testing.T) {
	tests := []struct {
		name     string
		args     map[string]any
		askErr   error
		wantCode string
	}{
		{"missing argument", map[string]any{}, nil, "invalid_parameters"},
		{"empty question", map[string]any{"question": " "}, apperrors.ErrEmptyQuestion, "missing_question"},
		{"translator down", map[string]any{"question": "q"},
			llm.NewError(llm.ErrorTypeRateLimit, "rate limited", true, nil), "translator_unavailable"},
		{"bad model output", map[string]any{"question": "q"},
			llm.NewError(llm.ErrorTypeResponse, "invalid JSON", false, nil), "translation_failed"},
		{"execution failure", map[string]any{"question": "q"},
			&apperrors.ExecutionError{Cause: errors.New("timeout")}, apperrors.CodeExecution},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := callTool(t, newAskServer(&mockAskService{askErr: tt.askErr}), "ask", tt.args)

			require.NotNil(t, resp.Result)
			assert.True(t, resp.Result.IsError)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal([]byte(resp.Result.Content[0].Text), &body))
			assert.Equal(t, tt.wantCode, body.Code)
		})
	}
}

func TestAskTool_InternalErrorIsGeneric(t *testing.T) {
	svc := &mockAskService{askErr: errors.New("pool exhausted: host=db.internal")}

	resp := callTool(t, newAskServer(svc), "ask", map[string]any{"question": "q"})

	require.NotNil(t, resp.Error)
	assert.NotContains(t, resp.Error.Message, "db.internal")
}

func TestValidateSQLTool(t *testing.T) {
	svc := &mockAskService{validateResult: &services.ValidationResult{
		Valid:      true,
		SQL:        "SELECT * FROM repairs WHERE repair_cost > :min_cost LIMIT 200",
		Parameters: []string{"min_cost"},
		MaxRows:    200,
	}}

	resp := callTool(t, newAskServer(svc), "validate_sql", map[string]any{
		"sql":    "SELECT * FROM repairs WHERE repair_cost > :min_cost",
		"params": map[string]any{"min_cost": 500},
	})

	require.NotNil(t, resp.Result)
	assert.False(t, resp.Result.IsError)
	require.NotNil(t, svc.gotValidate)
	assert.Equal(t, float64(500), svc.gotValidate.Params["min_cost"])

	var result services.ValidationResult
	require.NoError(t, json.Unmarshal([]byte(resp.Result.Content[0].Text), &result))
	assert.True(t, result.Valid)
	assert.Equal(t, []string{"min_cost"}, result.Parameters)
}

func TestValidateSQLTool_MissingSQL(t *testing.T) {
	svc := &mockAskService{}

	resp := callTool(t, newAskServer(svc), "validate_sql", map[string]any{"sql": ""})

	require.NotNil(t, resp.Result)
	assert.True(t, resp.Result.IsError)
	assert.Nil(t, svc.gotValidate)
	assert.Contains(t, resp.Result.Content[0].Text, "missing_sql")
}
