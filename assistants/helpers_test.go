package assistants_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/assistants"
	"github.com/effective-security/mcpchat/pkg/llms"
	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
)

type toolHandler func(ctx context.Context, args map[string]any) (*gomcp.CallToolResult, error)

type toolCall struct {
	Name string
	Args map[string]any
}

// testSession is a scripted provider that records the tool calls.
type testSession struct {
	lock sync.Mutex

	tools     []*gomcp.Tool
	handlers  map[string]toolHandler
	resources []*gomcp.Resource
	templates []*gomcp.ResourceTemplate
	prompts   []*gomcp.Prompt
	contents  map[string]*gomcp.ReadResourceResult
	messages  map[string]func(args map[string]string) (*gomcp.GetPromptResult, error)
	listErr   error

	calls  []toolCall
	closed bool
}

func newTestSession() *testSession {
	return &testSession{
		handlers: map[string]toolHandler{},
		contents: map[string]*gomcp.ReadResourceResult{},
		messages: map[string]func(args map[string]string) (*gomcp.GetPromptResult, error){},
	}
}

// addTool declares a tool with string arguments, the first one is required.
func (s *testSession) addTool(name string, handler toolHandler, args ...string) *testSession {
	props := map[string]any{}
	for _, a := range args {
		props[a] = map[string]any{"type": "string"}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(args) > 0 {
		schema["required"] = []string{args[0]}
	}
	s.tools = append(s.tools, &gomcp.Tool{Name: name, Description: name + " tool", InputSchema: schema})
	s.handlers[name] = handler
	return s
}

func (s *testSession) ListTools(context.Context) ([]*gomcp.Tool, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.tools, nil
}

func (s *testSession) ListResources(context.Context) ([]*gomcp.Resource, error) {
	return s.resources, nil
}

func (s *testSession) ListResourceTemplates(context.Context) ([]*gomcp.ResourceTemplate, error) {
	return s.templates, nil
}

func (s *testSession) ListPrompts(context.Context) ([]*gomcp.Prompt, error) {
	return s.prompts, nil
}

func (s *testSession) CallTool(ctx context.Context, name string, args map[string]any) (*gomcp.CallToolResult, error) {
	s.lock.Lock()
	s.calls = append(s.calls, toolCall{Name: name, Args: args})
	h := s.handlers[name]
	s.lock.Unlock()
	if h == nil {
		return nil, errors.Newf("unknown tool: %s", name)
	}
	return h(ctx, args)
}

func (s *testSession) ReadResource(_ context.Context, uri string) (*gomcp.ReadResourceResult, error) {
	res, ok := s.contents[uri]
	if !ok {
		return nil, errors.Newf("resource not found: %s", uri)
	}
	return res, nil
}

func (s *testSession) GetPrompt(_ context.Context, name string, args map[string]string) (*gomcp.GetPromptResult, error) {
	fn, ok := s.messages[name]
	if !ok {
		return nil, errors.Newf("prompt not found: %s", name)
	}
	return fn(args)
}

func (s *testSession) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.closed = true
	return nil
}

func (s *testSession) toolCalls() []toolCall {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]toolCall(nil), s.calls...)
}

func textResult(text string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{Content: []gomcp.Content{&gomcp.TextContent{Text: text}}}
}

func staticTool(text string) toolHandler {
	return func(context.Context, map[string]any) (*gomcp.CallToolResult, error) {
		return textResult(text), nil
	}
}

// researchSession declares search_papers, extract_info and summarize_paper.
func researchSession(ids ...string) *testSession {
	js, _ := json.Marshal(ids)
	return newTestSession().
		addTool("search_papers", staticTool(string(js)), "topic", "max_results").
		addTool("extract_info", func(_ context.Context, args map[string]any) (*gomcp.CallToolResult, error) {
			return textResult("detail " + args["paper_id"].(string)), nil
		}, "paper_id").
		addTool("summarize_paper", func(_ context.Context, args map[string]any) (*gomcp.CallToolResult, error) {
			return textResult("summary of " + args["text"].(string)), nil
		}, "text")
}

type modelCall struct {
	Messages []llms.Message
	Options  llms.CallOptions
}

// testModel returns the scripted responses in order.
type testModel struct {
	provider  llms.ProviderType
	lock      sync.Mutex
	responses []*llms.ContentResponse
	err       error
	calls     []modelCall
}

func newTestModel(responses ...*llms.ContentResponse) *testModel {
	return &testModel{provider: llms.ProviderOpenAI, responses: responses}
}

func (m *testModel) GetName() string                    { return "test-model" }
func (m *testModel) GetProviderType() llms.ProviderType { return m.provider }

func (m *testModel) GenerateContent(_ context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.calls = append(m.calls, modelCall{
		Messages: append([]llms.Message(nil), messages...),
		Options:  llms.NewCallOptions(llms.CallOptions{}, options...),
	})
	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return nil, errors.New("no more responses")
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	return resp, nil
}

func textResponse(text string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: text}}}
}

func toolCallResponse(calls ...llms.ToolCall) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{ToolCalls: calls}}}
}

func newToolCall(id, name, args string) llms.ToolCall {
	return llms.ToolCall{
		ID:           id,
		Type:         "function",
		FunctionCall: &llms.FunctionCall{Name: name, Arguments: args},
	}
}

func connectEngine(t *testing.T, model llms.Model, session *testSession, opts ...assistants.Option) *assistants.Engine {
	t.Helper()
	engine := assistants.NewEngine(model, opts...)
	require.NoError(t, engine.ConnectSession(context.Background(), session))
	t.Cleanup(func() {
		_ = engine.Close()
	})
	return engine
}

type toolMsg struct {
	ID      string
	Name    string
	Content string
}

// toolMessages returns the tool responses of the history in order.
func toolMessages(history []llms.Message) []toolMsg {
	var list []toolMsg
	for _, m := range history {
		if m.Role != llms.RoleTool {
			continue
		}
		for _, r := range m.ToolResponses() {
			list = append(list, toolMsg{ID: r.ToolCallID, Name: r.Name, Content: r.Content})
		}
	}
	return list
}

func callNames(calls []toolCall) []string {
	names := make([]string, 0, len(calls))
	for _, c := range calls {
		names = append(names, c.Name)
	}
	return names
}
