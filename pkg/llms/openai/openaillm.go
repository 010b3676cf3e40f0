package openai

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/mcpchat/pkg/llms/openai/internal/openaiclient"
	"github.com/effective-security/x/values"
	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/packages/param"
)

// ErrEmptyResponse is returned when the model returns no choices.
var ErrEmptyResponse = openaiclient.ErrEmptyResponse

type ChatMessage = openaisdk.ChatCompletionMessageParamUnion

// LLM is a chat model of OpenAI or an Azure OpenAI deployment.
type LLM struct {
	client *openaiclient.Client
}

var _ llms.Model = (*LLM)(nil)

// New returns a new OpenAI LLM.
func New(opts ...Option) (*LLM, error) {
	c, err := newClient(opts...)
	if err != nil {
		return nil, err
	}
	return &LLM{client: c}, nil
}

// GetName returns the model or deployment name.
func (o *LLM) GetName() string {
	return o.client.Model
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderType(o.client.Provider)
}

// GenerateContent implements the Model interface.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) { //nolint: lll, cyclop, goerr113, funlen
	opts := llms.NewCallOptions(llms.CallOptions{}, options...)

	chatMsgs, err := ChatMessagesFromMessages(messages)
	if err != nil {
		return nil, err
	}

	req := &openaisdk.ChatCompletionNewParams{
		Model:    openaisdk.ChatModel(opts.Model),
		Messages: chatMsgs,
	}
	if len(opts.StopWords) > 0 {
		req.Stop.OfStringArray = opts.StopWords
	}
	if opts.Temperature != 0 {
		req.Temperature = param.NewOpt(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		req.MaxCompletionTokens = param.NewOpt(int64(opts.MaxTokens))
	}

	for _, tool := range opts.Tools {
		t, err := toolFromTool(tool)
		if err != nil {
			return nil, errors.Wrap(err, "failed to convert llms tool to openai tool")
		}
		req.Tools = append(req.Tools, t)
	}
	if len(req.Tools) > 0 {
		req.ToolChoice.OfAuto = param.NewOpt(values.StringsCoalesce(string(opts.ToolChoice), openaiclient.DefaultToolChoice))
	}

	result, err := o.client.CreateChat(ctx, req)
	if err != nil {
		return nil, err
	}

	choices := make([]*llms.ContentChoice, len(result.Choices))
	for i, c := range result.Choices {
		choices[i] = &llms.ContentChoice{
			Content:    c.Message.Content,
			StopReason: c.FinishReason,
			GenerationInfo: map[string]any{
				"CompletionTokens": result.Usage.CompletionTokens,
				"PromptTokens":     result.Usage.PromptTokens,
				"TotalTokens":      result.Usage.TotalTokens,
			},
		}

		for _, tool := range c.Message.ToolCalls {
			choices[i].ToolCalls = append(choices[i].ToolCalls, llms.ToolCall{
				ID:   tool.ID,
				Type: tool.Type,
				FunctionCall: &llms.FunctionCall{
					Name:      tool.Function.Name,
					Arguments: tool.Function.Arguments,
				},
			})
		}
	}
	return &llms.ContentResponse{Choices: choices}, nil
}

// ChatMessagesFromMessages converts the conversation into chat completion
// messages. A tool message yields one chat message per tool response.
func ChatMessagesFromMessages(messages []llms.Message) ([]ChatMessage, error) {
	chatMsgs := make([]ChatMessage, 0, len(messages))
	for _, mc := range messages {
		switch mc.Role {
		case llms.RoleSystem:
			chatMsgs = append(chatMsgs, openaisdk.SystemMessage(mc.Text()))
		case llms.RoleHuman:
			chatMsgs = append(chatMsgs, openaisdk.UserMessage(mc.Text()))
		case llms.RoleAI:
			msg := &openaisdk.ChatCompletionAssistantMessageParam{
				ToolCalls: toolCallsFromToolCalls(mc.ToolCalls()),
			}
			// content is omitted only when the message carries tool calls
			if text := mc.Text(); text != "" || len(msg.ToolCalls) == 0 {
				msg.Content.OfString = param.NewOpt(text)
			}
			chatMsgs = append(chatMsgs, ChatMessage{OfAssistant: msg})
		case llms.RoleTool:
			responses := mc.ToolResponses()
			if len(responses) == 0 {
				return nil, errors.Errorf("expected tool responses for role %v", mc.Role)
			}
			for _, p := range responses {
				chatMsgs = append(chatMsgs, openaisdk.ToolMessage(p.Content, p.ToolCallID))
			}
		default:
			return nil, errors.WithMessagef(llms.ErrUnexpectedRole, "role %v not supported", mc.Role)
		}
	}
	return chatMsgs, nil
}

// toolFromTool converts an llms.Tool to a function tool.
func toolFromTool(t llms.Tool) (openaisdk.ChatCompletionToolUnionParam, error) {
	if t.Type != llms.ToolTypeFunction {
		return openaisdk.ChatCompletionToolUnionParam{}, errors.Errorf("tool type %v not supported", t.Type)
	}
	if t.Function == nil {
		return openaisdk.ChatCompletionToolUnionParam{}, errors.New("function definition is required")
	}
	def := openaisdk.FunctionDefinitionParam{
		Name: t.Function.Name,
	}
	if t.Function.Description != "" {
		def.Description = param.NewOpt(t.Function.Description)
	}
	if t.Function.Parameters != nil {
		b, err := json.Marshal(t.Function.Parameters)
		if err != nil {
			return openaisdk.ChatCompletionToolUnionParam{}, errors.Wrap(err, "marshal parameters")
		}
		if err = json.Unmarshal(b, &def.Parameters); err != nil {
			return openaisdk.ChatCompletionToolUnionParam{}, errors.Wrap(err, "unmarshal parameters")
		}
	}
	return openaisdk.ChatCompletionFunctionTool(def), nil
}

// toolCallsFromToolCalls converts the calls of an assistant message.
func toolCallsFromToolCalls(tcs []llms.ToolCall) []openaisdk.ChatCompletionMessageToolCallUnionParam {
	if len(tcs) == 0 {
		return nil
	}
	toolCalls := make([]openaisdk.ChatCompletionMessageToolCallUnionParam, len(tcs))
	for i, tc := range tcs {
		call := &openaisdk.ChatCompletionMessageFunctionToolCallParam{ID: tc.ID}
		if tc.FunctionCall != nil {
			call.Function = openaisdk.ChatCompletionMessageFunctionToolCallFunctionParam{
				Name:      tc.FunctionCall.Name,
				Arguments: tc.FunctionCall.Arguments,
			}
		}
		toolCalls[i] = openaisdk.ChatCompletionMessageToolCallUnionParam{OfFunction: call}
	}
	return toolCalls
}
