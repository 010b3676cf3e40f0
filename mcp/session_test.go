package mcp_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/effective-security/mcpchat/mcp"
	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer() *gomcp.Server {
	server := gomcp.NewServer(&gomcp.Implementation{Name: "test-server", Version: "1.0.0"}, nil)
	server.AddTool(&gomcp.Tool{
		Name:        "echo",
		Description: "Echo the text",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"text": map[string]any{"type": "string"}},
			"required":   []string{"text"},
		},
	}, func(_ context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		var args struct {
			Text string `json:"text"`
		}
		_ = json.Unmarshal(req.Params.Arguments, &args)
		return &gomcp.CallToolResult{Content: []gomcp.Content{&gomcp.TextContent{Text: "echo: " + args.Text}}}, nil
	})
	server.AddResource(&gomcp.Resource{URI: "papers://folders", Name: "folders", MIMEType: "text/markdown"},
		func(_ context.Context, req *gomcp.ReadResourceRequest) (*gomcp.ReadResourceResult, error) {
			return &gomcp.ReadResourceResult{Contents: []*gomcp.ResourceContents{
				{URI: req.Params.URI, MIMEType: "text/markdown", Text: "# Folders"},
			}}, nil
		})
	server.AddResourceTemplate(&gomcp.ResourceTemplate{URITemplate: "papers://{topic}", Name: "topic"},
		func(_ context.Context, req *gomcp.ReadResourceRequest) (*gomcp.ReadResourceResult, error) {
			return &gomcp.ReadResourceResult{Contents: []*gomcp.ResourceContents{
				{URI: req.Params.URI, MIMEType: "text/markdown", Text: "# " + req.Params.URI},
			}}, nil
		})
	server.AddPrompt(&gomcp.Prompt{
		Name:      "generate_search_prompt",
		Arguments: []*gomcp.PromptArgument{{Name: "topic", Required: true}},
	}, func(_ context.Context, req *gomcp.GetPromptRequest) (*gomcp.GetPromptResult, error) {
		return &gomcp.GetPromptResult{Messages: []*gomcp.PromptMessage{
			{Role: "user", Content: &gomcp.TextContent{Text: "Search for " + req.Params.Arguments["topic"]}},
		}}, nil
	})
	return server
}

func connect(t *testing.T, server *gomcp.Server) mcp.Session {
	t.Helper()
	ctx := context.Background()
	serverTransport, clientTransport := gomcp.NewInMemoryTransports()
	go func() {
		_ = server.Run(ctx, serverTransport)
	}()

	session, err := mcp.Connect(ctx, mcp.StaticTransport(clientTransport))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = session.Close()
	})
	return session
}

func TestSession(t *testing.T) {
	ctx := context.Background()
	session := connect(t, newTestServer())

	tools, err := session.ListTools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "echo", tools[0].Name)

	res, err := session.CallTool(ctx, "echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	assert.Equal(t, "echo: hi", res.Content[0].(*gomcp.TextContent).Text)

	resources, err := session.ListResources(ctx)
	require.NoError(t, err)
	require.Len(t, resources, 1)
	assert.Equal(t, "papers://folders", resources[0].URI)

	templates, err := session.ListResourceTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, "papers://{topic}", templates[0].URITemplate)

	rr, err := session.ReadResource(ctx, "papers://physics")
	require.NoError(t, err)
	require.Len(t, rr.Contents, 1)
	assert.Equal(t, "# papers://physics", rr.Contents[0].Text)

	rr, err = session.ReadResource(ctx, "papers://folders")
	require.NoError(t, err)
	require.Len(t, rr.Contents, 1)
	assert.Equal(t, "# Folders", rr.Contents[0].Text)

	prompts, err := session.ListPrompts(ctx)
	require.NoError(t, err)
	require.Len(t, prompts, 1)
	assert.Equal(t, "generate_search_prompt", prompts[0].Name)

	pr, err := session.GetPrompt(ctx, "generate_search_prompt", map[string]string{"topic": "physics"})
	require.NoError(t, err)
	require.Len(t, pr.Messages, 1)
	assert.Equal(t, "Search for physics", pr.Messages[0].Content.(*gomcp.TextContent).Text)
}

func TestSession_ToolsOnly(t *testing.T) {
	ctx := context.Background()
	server := gomcp.NewServer(&gomcp.Implementation{Name: "tools-only", Version: "1.0.0"}, nil)
	server.AddTool(&gomcp.Tool{Name: "noop", InputSchema: map[string]any{"type": "object"}},
		func(context.Context, *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
			return &gomcp.CallToolResult{Content: []gomcp.Content{&gomcp.TextContent{Text: "ok"}}}, nil
		})
	session := connect(t, server)

	resources, err := session.ListResources(ctx)
	require.NoError(t, err)
	assert.Empty(t, resources)

	templates, err := session.ListResourceTemplates(ctx)
	require.NoError(t, err)
	assert.Empty(t, templates)

	prompts, err := session.ListPrompts(ctx)
	require.NoError(t, err)
	assert.Empty(t, prompts)
}

func TestConnect_Errors(t *testing.T) {
	t.Parallel()
	_, err := mcp.Connect(context.Background(), nil)
	assert.EqualError(t, err, "transport factory is required")

	_, err = mcp.Connect(context.Background(), mcp.ServerConfig{Transport: "grpc"}.Factory())
	assert.EqualError(t, err, `failed to create transport: unsupported transport: "grpc"`)
}
