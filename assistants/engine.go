package assistants

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/chatmodel"
	"github.com/effective-security/mcpchat/mcp"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/mcpchat/pkg/llmutils"
	"github.com/effective-security/mcpchat/pkg/metricskey"
	"github.com/effective-security/mcpchat/pkg/prompts"
	"github.com/effective-security/mcpchat/registry"
	"github.com/effective-security/mcpchat/tools"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
)

// Engine drives the model against the tools, resources and prompts of
// one connected provider. Queries are processed one at a time.
type Engine struct {
	llm llms.Model
	cfg *Config

	// turn serializes queries
	turn sync.Mutex

	lock      sync.RWMutex
	session   mcp.Session
	chat      chatmodel.ChatContext
	catalog   *registry.Catalog
	tools     *tools.Table
	chain     *ChainPlan
	resources map[string]mcp.Session
	prompts   map[string]chatmodel.PromptDescriptor
}

// NewEngine returns an engine that is not connected yet.
func NewEngine(llm llms.Model, opts ...Option) *Engine {
	return &Engine{
		llm: llm,
		cfg: NewConfig(opts...),
	}
}

// Name returns the engine name.
func (e *Engine) Name() string {
	return e.cfg.Name
}

// Config returns the engine configuration.
func (e *Engine) Config() *Config {
	return e.cfg
}

// Connect establishes a session with the provider and populates the catalog.
func (e *Engine) Connect(ctx context.Context, factory mcp.TransportFactory) error {
	session, err := mcp.Connect(ctx, factory)
	if err != nil {
		return err
	}
	if err = e.ConnectSession(ctx, session); err != nil {
		_ = session.Close()
		return err
	}
	return nil
}

// ConnectSession takes ownership of an established session, discovers
// its capabilities and starts a new conversation.
func (e *Engine) ConnectSession(ctx context.Context, session mcp.Session) error {
	e.turn.Lock()
	defer e.turn.Unlock()

	e.lock.RLock()
	connected := e.session != nil
	e.lock.RUnlock()
	if connected {
		return errors.WithStack(chatmodel.ErrAlreadyConnected)
	}

	catalog, err := registry.Discover(ctx, session)
	if err != nil {
		return err
	}

	table, err := tools.NewTable()
	if err != nil {
		return err
	}
	for _, desc := range catalog.Tools {
		if err = table.Add(tools.NewRemoteTool(session, desc)); err != nil {
			return errors.Mark(err, chatmodel.ErrCatalogDiscovery)
		}
	}

	var history []llms.Message
	if e.cfg.useSystemPrompt {
		msg, err := prompts.SystemPromptTemplate(e.cfg.SystemPrompt).FormatMessage(map[string]any{
			"tools":     catalog.ToolNames(),
			"resources": catalog.ResourceURIs(),
			"prompts":   catalog.PromptNames(),
		})
		if err != nil {
			return errors.Wrap(err, "failed to render system prompt")
		}
		history = append(history, msg)
	}

	chat := chatmodel.NewChatContext("")
	chatCtx := chatmodel.WithChatContext(ctx, chat)
	if len(history) > 0 {
		if err = e.cfg.Store.Add(chatCtx, history...); err != nil {
			return err
		}
	}

	e.lock.Lock()
	e.session = session
	e.chat = chat
	e.catalog = catalog
	e.tools = table
	e.chain = e.cfg.Chain.Resolve(chatCtx, table)
	e.resources = resourceSessions(session, catalog)
	e.prompts = promptMap(catalog)
	e.lock.Unlock()

	logger.ContextKV(chatCtx, xlog.INFO,
		"status", "connected",
		"engine", e.cfg.Name,
		"chat_id", chat.GetChatID(),
		"tools", table.Names(),
		"chain", e.chain != nil,
	)
	return nil
}

// Close discards the conversation and closes the session.
func (e *Engine) Close() error {
	e.turn.Lock()
	defer e.turn.Unlock()

	e.lock.RLock()
	chat := e.chat
	e.lock.RUnlock()
	if chat == nil {
		return nil
	}
	return e.disconnect(chatmodel.WithChatContext(context.Background(), chat))
}

func (e *Engine) disconnect(ctx context.Context) error {
	if err := e.cfg.Store.Reset(ctx); err != nil {
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "reset_history_failed",
			"err", err.Error(),
		)
	}

	e.lock.Lock()
	session := e.session
	e.session = nil
	e.chat = nil
	e.catalog = nil
	e.tools = nil
	e.chain = nil
	e.resources = nil
	e.prompts = nil
	e.lock.Unlock()

	if session == nil {
		return nil
	}
	if err := session.Close(); err != nil {
		return errors.Wrap(err, "failed to close session")
	}
	return nil
}

// Connected returns true if a session is established.
func (e *Engine) Connected() bool {
	e.lock.RLock()
	defer e.lock.RUnlock()
	return e.session != nil
}

// Catalog returns the capabilities discovered at connection time.
func (e *Engine) Catalog() *registry.Catalog {
	e.lock.RLock()
	defer e.lock.RUnlock()
	return e.catalog
}

// Tools returns the tool table.
func (e *Engine) Tools() *tools.Table {
	e.lock.RLock()
	defer e.lock.RUnlock()
	return e.tools
}

// Chain returns the resolved chain plan, nil when chaining is disabled.
func (e *Engine) Chain() *ChainPlan {
	e.lock.RLock()
	defer e.lock.RUnlock()
	return e.chain
}

// ChatID returns the ID of the current conversation, empty when not connected.
func (e *Engine) ChatID() string {
	e.lock.RLock()
	defer e.lock.RUnlock()
	if e.chat == nil {
		return ""
	}
	return e.chat.GetChatID()
}

// History returns a copy of the conversation.
func (e *Engine) History() []llms.Message {
	e.lock.RLock()
	chat := e.chat
	e.lock.RUnlock()
	if chat == nil {
		return nil
	}
	return e.cfg.Store.Messages(chatmodel.WithChatContext(context.Background(), chat))
}

// chatContext returns ctx bound to the current conversation.
func (e *Engine) chatContext(ctx context.Context) (context.Context, error) {
	e.lock.RLock()
	defer e.lock.RUnlock()
	if e.session == nil {
		return nil, errors.WithStack(chatmodel.ErrNotConnected)
	}
	return chatmodel.WithChatContext(ctx, e.chat), nil
}

// SubmitQuery runs one turn and returns the final answer.
// Recovered tool failures are part of the conversation, only
// model and connection failures are returned.
func (e *Engine) SubmitQuery(ctx context.Context, query string) (string, error) {
	e.turn.Lock()
	defer e.turn.Unlock()
	return e.submitQuery(ctx, query)
}

func (e *Engine) submitQuery(ctx context.Context, query string) (string, error) {
	cctx, err := e.chatContext(ctx)
	if err != nil {
		return "", err
	}

	defer metricskey.PerfQuery.MeasureSince(time.Now(), e.cfg.Name)

	cb := e.cfg.CallbackHandler
	if cb != nil {
		cb.OnQueryStart(cctx, query)
	}

	answer, err := e.run(cctx, query)
	if err != nil {
		metricskey.StatsQueriesFailed.IncrCounter(1, e.cfg.Name)
		if cb != nil {
			cb.OnQueryError(cctx, query, err)
		}
		logger.ContextKV(cctx, xlog.ERROR,
			"status", "query_failed",
			"engine", e.cfg.Name,
			"query", slices.StringUpto(query, 64),
			"err", err.Error(),
		)
		return "", err
	}

	metricskey.StatsQueriesSucceeded.IncrCounter(1, e.cfg.Name)
	if cb != nil {
		cb.OnQueryEnd(cctx, query, answer)
	}
	return answer, nil
}

func (e *Engine) run(ctx context.Context, query string) (string, error) {
	st := e.cfg.Store

	if err := st.Add(ctx, llms.MessageFromTextParts(llms.RoleHuman, query)); err != nil {
		return "", err
	}

	table := e.Tools()
	plan := e.Chain()

	var toolOpts []llms.CallOption
	if table.Len() > 0 {
		if e.llm.GetProviderType().Supports(llms.CapabilityFunctionCalling) {
			toolOpts = append(toolOpts,
				llms.WithTools(table.LLMTools()),
				llms.WithToolChoice(llms.ToolChoiceAuto),
			)
		} else {
			logger.ContextKV(ctx, xlog.WARNING,
				"status", "tools_not_supported",
				"provider", e.llm.GetProviderType(),
				"model", e.llm.GetName(),
			)
		}
	}

	resp, err := e.generate(ctx, st.Messages(ctx), toolOpts...)
	if err != nil {
		return "", err
	}

	text, toolCalls := mergeChoices(resp)
	if len(toolCalls) == 0 {
		if text != "" {
			if err = st.Add(ctx, llms.MessageFromTextParts(llms.RoleAI, text)); err != nil {
				return "", err
			}
		}
		return text, nil
	}

	aiMsg := llms.AssistantMessage(text, toolCalls...)
	if err = st.Add(ctx, aiMsg); err != nil {
		return "", err
	}

	var chained []llms.Message
	for _, tc := range toolCalls {
		req := chatmodel.ToolCallRequestFromLLM(tc)
		msg, result, err := e.dispatch(ctx, req)
		if aerr := st.Add(ctx, msg); aerr != nil {
			return "", aerr
		}
		if err == nil && plan.ShouldChain(req.ToolName) {
			chained = append(chained, e.runChain(ctx, plan, result)...)
		}
	}
	if len(chained) > 0 {
		if err = st.Add(ctx, chained...); err != nil {
			return "", err
		}
	}

	var followupOpts []llms.CallOption
	if len(toolOpts) > 0 && !e.llm.GetProviderType().Supports(llms.CapabilityToollessFollowup) {
		// the provider needs the definitions of the tools used in the history
		followupOpts = append(followupOpts,
			llms.WithTools(table.LLMTools()),
			llms.WithToolChoice(llms.ToolChoiceNone),
		)
	}

	resp, err = e.generate(ctx, st.Messages(ctx), followupOpts...)
	if err != nil {
		return "", err
	}

	answer, ignored := mergeChoices(resp)
	if len(ignored) > 0 {
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "followup_tool_calls_ignored",
			"count", len(ignored),
		)
	}
	if answer != "" {
		if err = st.Add(ctx, llms.MessageFromTextParts(llms.RoleAI, answer)); err != nil {
			return "", err
		}
	}
	return answer, nil
}

// generate calls the model and records the usage.
func (e *Engine) generate(ctx context.Context, msgs []llms.Message, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	cb := e.cfg.CallbackHandler
	modelName := e.llm.GetName()

	if cb != nil {
		cb.OnLLMCallStart(ctx, e.llm, msgs)
	}

	sent := llmutils.CountMessagesContentSize(msgs)
	metricskey.StatsLLMMessagesSent.IncrCounter(float64(len(msgs)), e.cfg.Name, modelName)
	metricskey.StatsLLMBytesSent.IncrCounter(float64(sent), e.cfg.Name, modelName)

	started := time.Now()
	resp, err := e.llm.GenerateContent(ctx, msgs, e.cfg.GetCallOptions(opts...)...)
	metricskey.PerfLLMCall.MeasureSince(started, e.cfg.Name, modelName)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate content from LLM")
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, errors.New("LLM returned no choices")
	}

	received := llmutils.CountResponseContentSize(resp)
	metricskey.StatsLLMBytesReceived.IncrCounter(float64(received), e.cfg.Name, modelName)
	metricskey.StatsLLMBytesTotal.IncrCounter(float64(sent+received), e.cfg.Name, modelName)

	in, out, total := llmutils.CountTokens(resp)
	if total > 0 {
		metricskey.StatsLLMInputTokens.IncrCounter(float64(in), e.cfg.Name, modelName)
		metricskey.StatsLLMOutputTokens.IncrCounter(float64(out), e.cfg.Name, modelName)
		metricskey.StatsLLMTotalTokens.IncrCounter(float64(total), e.cfg.Name, modelName)
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "llm_response",
		"model", modelName,
		"messages", len(msgs),
		"bytes_sent", sent,
		"bytes_received", received,
		"tokens", total,
	)

	if cb != nil {
		cb.OnLLMCallEnd(ctx, e.llm, resp)
	}
	return resp, nil
}

// mergeChoices joins the text of all choices and collects their tool calls in order.
func mergeChoices(resp *llms.ContentResponse) (string, []llms.ToolCall) {
	var texts []string
	var calls []llms.ToolCall
	for _, choice := range resp.Choices {
		if choice == nil {
			continue
		}
		if strings.TrimSpace(choice.Content) != "" {
			texts = append(texts, choice.Content)
		}
		for _, tc := range choice.ToolCalls {
			if tc.FunctionCall == nil {
				continue
			}
			if tc.ID == "" {
				tc.ID = "call_" + uuid.NewString()
			}
			tc.Type = values.StringsCoalesce(tc.Type, llms.ToolTypeFunction)
			calls = append(calls, tc)
		}
	}
	return strings.Join(texts, "\n\n"), calls
}

func resourceSessions(session mcp.Session, catalog *registry.Catalog) map[string]mcp.Session {
	m := make(map[string]mcp.Session, len(catalog.Resources))
	for _, r := range catalog.Resources {
		m[r.URI] = session
	}
	return m
}

func promptMap(catalog *registry.Catalog) map[string]chatmodel.PromptDescriptor {
	m := make(map[string]chatmodel.PromptDescriptor, len(catalog.Prompts))
	for _, p := range catalog.Prompts {
		m[p.Name] = p
	}
	return m
}
