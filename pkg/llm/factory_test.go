package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewClientFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		want    any
		wantErr bool
	}{
		{
			name: "default provider is openai",
			cfg:  Config{Endpoint: "http://localhost:11434/v1", Model: "llama3"},
			want: &Client{},
		},
		{
			name: "openai explicit",
			cfg:  Config{Provider: "OpenAI", Endpoint: "https://api.openai.com/v1", Model: "gpt-4o-mini"},
			want: &Client{},
		},
		{
			name: "anthropic",
			cfg:  Config{Provider: "anthropic", Model: "claude-3-5-haiku-latest", APIKey: "k"},
			want: &AnthropicClient{},
		},
		{
			name:    "anthropic without key",
			cfg:     Config{Provider: "anthropic", Model: "claude-3-5-haiku-latest"},
			wantErr: true,
		},
		{
			name:    "openai without endpoint",
			cfg:     Config{Provider: "openai", Model: "gpt-4o-mini"},
			wantErr: true,
		},
		{
			name:    "unknown provider",
			cfg:     Config{Provider: "bard", Model: "x"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClientFromConfig(&tt.cfg, zaptest.NewLogger(t))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, client)
			assert.Equal(t, tt.cfg.Model, client.GetModel())
		})
	}
}

func TestNewAnthropicClient_DefaultMaxTokens(t *testing.T) {
	client, err := NewAnthropicClient(&Config{Model: "claude-3-5-haiku-latest", APIKey: "k"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, DefaultAnthropicMaxTokens, client.maxTokens)
	assert.Empty(t, client.GetEndpoint())
}
