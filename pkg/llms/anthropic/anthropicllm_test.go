package anthropic_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/mcpchat/pkg/llms/anthropic"
	"github.com/invopop/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

func TestNew(t *testing.T) {
	t.Setenv(anthropic.TokenEnvVarName, "")

	tests := []struct {
		name        string
		opts        []anthropic.Option
		wantErr     bool
		errContains string
	}{
		{
			name:        "missing token",
			opts:        []anthropic.Option{anthropic.WithModel("claude-3-5-sonnet-20241022")},
			wantErr:     true,
			errContains: "missing API key",
		},
		{
			name:        "missing model",
			opts:        []anthropic.Option{anthropic.WithToken("fake-token")},
			wantErr:     true,
			errContains: "model is required",
		},
		{
			name: "valid configuration",
			opts: []anthropic.Option{
				anthropic.WithToken("fake-token"),
				anthropic.WithModel("claude-3-5-sonnet-20241022"),
			},
		},
		{
			name: "with custom base URL and client",
			opts: []anthropic.Option{
				anthropic.WithToken("fake-token"),
				anthropic.WithModel("claude-3-5-sonnet-20241022"),
				anthropic.WithBaseURL("https://custom.anthropic.com"),
				anthropic.WithHTTPClient(&http.Client{}),
				anthropic.WithMaxRetries(1),
			},
		},
		{
			name: "with beta header",
			opts: []anthropic.Option{
				anthropic.WithToken("fake-token"),
				anthropic.WithModel("claude-3-5-sonnet-20241022"),
				anthropic.WithAnthropicBetaHeader("beta-feature-1"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allm, err := anthropic.New(tt.opts...)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				assert.Nil(t, allm)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, allm.Client)
				assert.Equal(t, "claude-3-5-sonnet-20241022", allm.GetName())
				assert.Equal(t, llms.ProviderAnthropic, allm.GetProviderType())
			}
		})
	}
}

func TestNewWithEnvironmentVariable(t *testing.T) {
	t.Setenv(anthropic.TokenEnvVarName, "env-token")

	llm, err := anthropic.New(anthropic.WithModel("claude-3-5-sonnet-20241022"))
	require.NoError(t, err)
	assert.Equal(t, "env-token", llm.Options.Token)
}

func TestProcessMessages(t *testing.T) {
	t.Parallel()

	call := func(id string) llms.ToolCall {
		return llms.ToolCall{ID: id, Type: "function", FunctionCall: &llms.FunctionCall{Name: "get_weather", Arguments: `{"location": "Boston"}`}}
	}
	resp := func(id string) llms.Message {
		return llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{ToolCallID: id, Content: "sunny"})
	}

	tests := []struct {
		name         string
		messages     []llms.Message
		wantMessages int
		wantSystem   string
		wantErr      bool
		errContains  string
	}{
		{
			name:     "empty messages",
			messages: []llms.Message{},
		},
		{
			name: "multiple system messages",
			messages: []llms.Message{
				llms.MessageFromTextParts(llms.RoleSystem, "You are a helpful assistant."),
				llms.MessageFromTextParts(llms.RoleSystem, "Always be polite and respectful."),
			},
			wantSystem: "You are a helpful assistant.\nAlways be polite and respectful.",
		},
		{
			name: "human message with text",
			messages: []llms.Message{
				llms.MessageFromTextParts(llms.RoleHuman, "Hello, how are you?"),
			},
			wantMessages: 1,
		},
		{
			name: "tool round trip",
			messages: []llms.Message{
				llms.MessageFromTextParts(llms.RoleHuman, "weather?"),
				llms.MessageFromToolCalls(llms.RoleAI, call("1"), call("2")),
				resp("1"),
				resp("2"),
				llms.MessageFromToolCalls(llms.RoleAI, call("3")),
				resp("3"),
			},
			// consecutive tool results collapse into one user message
			wantMessages: 5,
		},
		{
			name: "unsupported role",
			messages: []llms.Message{
				llms.MessageFromTextParts("generic", "hi"),
			},
			wantErr:     true,
			errContains: "unsupported message type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			messages, system, err := anthropic.ProcessMessages(tt.messages)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
			} else {
				require.NoError(t, err)
				assert.Len(t, messages, tt.wantMessages)
				assert.Equal(t, tt.wantSystem, system)
			}
		})
	}
}

func TestProcessMessages_MergesToolResults(t *testing.T) {
	t.Parallel()

	messages, _, err := anthropic.ProcessMessages([]llms.Message{
		llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{ToolCallID: "1", Content: "a"}),
		llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{ToolCallID: "2", Content: "b"}),
	})
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Len(t, messages[0].Content, 2)
}

func TestToTools(t *testing.T) {
	t.Parallel()

	props := orderedmap.New[string, *jsonschema.Schema]()
	props.Set("location", &jsonschema.Schema{Type: "string", Description: "The city name"})
	weather := &jsonschema.Schema{Type: "object", Properties: props, Required: []string{"location"}}

	tests := []struct {
		name      string
		tools     []llms.Tool
		wantTools int
	}{
		{
			name:      "nil tools",
			tools:     nil,
			wantTools: 0,
		},
		{
			name: "single tool",
			tools: []llms.Tool{
				{
					Function: &llms.FunctionDefinition{
						Name:        "get_weather",
						Description: "Get current weather",
						Parameters:  weather,
					},
				},
			},
			wantTools: 1,
		},
		{
			name: "tool without parameters",
			tools: []llms.Tool{
				{
					Function: &llms.FunctionDefinition{
						Name:        "list_topics",
						Description: "List topics",
					},
				},
			},
			wantTools: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result := anthropic.ToTools(tt.tools)
			if tt.wantTools == 0 {
				assert.Nil(t, result)
				return
			}
			require.Len(t, result, tt.wantTools)
			tool := result[0]
			require.NotNil(t, tool.OfTool)
			assert.Equal(t, tt.tools[0].Function.Name, tool.OfTool.Name)
			assert.Equal(t, "object", string(tool.OfTool.InputSchema.Type))
			if tt.tools[0].Function.Parameters != nil {
				assert.Equal(t, []string{"location"}, tool.OfTool.InputSchema.Required)
				assert.Contains(t, tool.OfTool.InputSchema.Properties, "location")
			}
		})
	}
}

func TestHandleSystemMessage(t *testing.T) {
	t.Parallel()

	res, err := anthropic.HandleSystemMessage(llms.MessageFromTextParts(llms.RoleSystem, "You are a helpful assistant."))
	require.NoError(t, err)
	assert.Equal(t, "You are a helpful assistant.", res)

	_, err = anthropic.HandleSystemMessage(llms.MessageFromToolResponse(llms.RoleSystem, llms.ToolCallResponse{}))
	assert.ErrorIs(t, err, anthropic.ErrInvalidContentType)
}

func TestHandleAIMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		msg         llms.Message
		wantErr     bool
		errContains string
	}{
		{
			name: "text content",
			msg:  llms.MessageFromTextParts(llms.RoleAI, "I'm doing well, thank you!"),
		},
		{
			name: "tool call",
			msg: llms.MessageFromParts(llms.RoleAI, llms.ToolCall{
				ID:           "call_123",
				FunctionCall: &llms.FunctionCall{Name: "get_weather", Arguments: `{"location": "Boston"}`},
			}),
		},
		{
			name: "malformed arguments are replaced",
			msg: llms.MessageFromParts(llms.RoleAI, llms.ToolCall{
				ID:           "call_123",
				FunctionCall: &llms.FunctionCall{Name: "get_weather", Arguments: `{invalid-json`},
			}),
		},
		{
			name:        "empty parts",
			msg:         llms.Message{Role: llms.RoleAI},
			wantErr:     true,
			errContains: "no valid content",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result, err := anthropic.HandleAIMessage(tt.msg)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
			} else {
				require.NoError(t, err)
				assert.NotEmpty(t, result.Content)
			}
		})
	}
}

func TestHandleToolMessage(t *testing.T) {
	t.Parallel()

	_, err := anthropic.HandleToolMessage(llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{ToolCallID: "call_123", Content: "sunny"}))
	require.NoError(t, err)

	_, err = anthropic.HandleToolMessage(llms.MessageFromTextParts(llms.RoleTool, "Not a tool response"))
	assert.ErrorIs(t, err, anthropic.ErrInvalidContentType)

	_, err = anthropic.HandleToolMessage(llms.Message{Role: llms.RoleTool})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no valid content")
}

func TestGenerateContent(t *testing.T) {
	t.Parallel()

	var body map[string]any
	var apiKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			http.NotFound(w, r)
			return
		}
		apiKey = r.Header.Get("X-Api-Key")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
  "id": "msg_1",
  "type": "message",
  "role": "assistant",
  "model": "claude-3-5-sonnet-20241022",
  "content": [
    {"type": "text", "text": "Let me search."},
    {"type": "tool_use", "id": "toolu_1", "name": "search_papers", "input": {"topic": "physics"}}
  ],
  "stop_reason": "tool_use",
  "usage": {"input_tokens": 10, "output_tokens": 5}
}`))
	}))
	defer srv.Close()

	llm, err := anthropic.New(
		anthropic.WithToken("fake-token"),
		anthropic.WithModel("claude-3-5-sonnet-20241022"),
		anthropic.WithBaseURL(srv.URL),
		anthropic.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)

	resp, err := llm.GenerateContent(context.Background(), []llms.Message{
		llms.MessageFromTextParts(llms.RoleSystem, "be brief"),
		llms.MessageFromTextParts(llms.RoleHuman, "find physics papers"),
	}, llms.WithMaxTokens(512), llms.WithTools([]llms.Tool{{
		Type:     "function",
		Function: &llms.FunctionDefinition{Name: "search_papers", Description: "search"},
	}}))
	require.NoError(t, err)

	assert.Equal(t, "fake-token", apiKey)
	assert.EqualValues(t, 512, body["max_tokens"])
	assert.Len(t, body["tools"], 1)
	assert.NotNil(t, body["system"])

	require.Len(t, resp.Choices, 2)
	assert.Equal(t, "Let me search.", resp.Choices[0].Content)
	require.Len(t, resp.Choices[1].ToolCalls, 1)
	tc := resp.Choices[1].ToolCalls[0]
	assert.Equal(t, "toolu_1", tc.ID)
	assert.Equal(t, "function", tc.Type)
	assert.Equal(t, "search_papers", tc.FunctionCall.Name)
	assert.JSONEq(t, `{"topic":"physics"}`, tc.FunctionCall.Arguments)
}
