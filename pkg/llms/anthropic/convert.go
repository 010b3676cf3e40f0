package anthropic

import (
	"encoding/json"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/tidwall/gjson"
)

// ToTools declares the function tools, nil when there are none.
func ToTools(tools []llms.Tool) []anthropic.ToolUnionParam {
	var list []anthropic.ToolUnionParam
	for _, tool := range tools {
		fn := tool.Function
		if fn == nil {
			continue
		}

		props := map[string]any{}
		var required []string
		if p := fn.Parameters; p != nil {
			if p.Properties != nil {
				for el := p.Properties.Oldest(); el != nil; el = el.Next() {
					props[el.Key] = el.Value
				}
			}
			required = p.Required
		}

		schema := anthropic.ToolInputSchemaParam{
			Type:       "object",
			Properties: props,
		}
		if len(required) > 0 {
			schema.Required = required
		}

		list = append(list, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        fn.Name,
				Description: anthropic.String(fn.Description),
				InputSchema: schema,
			},
		})
	}
	return list
}

// ProcessMessages converts the conversation to message params and the
// system prompt. The API takes all results of one assistant turn in a
// single user message, so consecutive tool messages are merged.
func ProcessMessages(messages []llms.Message) ([]anthropic.MessageParam, string, error) {
	var (
		system   []string
		list     = make([]anthropic.MessageParam, 0, len(messages))
		prevTool bool
	)

	for _, msg := range messages {
		if len(msg.Parts) == 0 {
			continue
		}

		if msg.Role == llms.RoleSystem {
			text, err := HandleSystemMessage(msg)
			if err != nil {
				return nil, "", errors.Wrap(err, "anthropic: failed to handle system message")
			}
			system = append(system, text)
			continue
		}

		var (
			param anthropic.MessageParam
			err   error
		)
		switch msg.Role {
		case llms.RoleHuman:
			param, err = HandleHumanMessage(msg)
		case llms.RoleAI:
			param, err = HandleAIMessage(msg)
		case llms.RoleTool:
			param, err = HandleToolMessage(msg)
		default:
			return nil, "", errors.WithMessagef(ErrUnsupportedMessageType, "anthropic: %v", msg.Role)
		}
		if err != nil {
			return nil, "", errors.WithMessagef(err, "anthropic: failed to handle %s message", msg.Role)
		}

		isTool := msg.Role == llms.RoleTool
		if isTool && prevTool {
			last := &list[len(list)-1]
			last.Content = append(last.Content, param.Content...)
		} else {
			list = append(list, param)
		}
		prevTool = isTool
	}
	return list, strings.Join(system, "\n"), nil
}

// HandleSystemMessage returns the text of the system message.
func HandleSystemMessage(msg llms.Message) (string, error) {
	text, ok := msg.Parts[0].(llms.TextContent)
	if !ok {
		return "", errors.WithMessagef(ErrInvalidContentType, "anthropic: system message part %T", msg.Parts[0])
	}
	return text.Text, nil
}

// HandleHumanMessage converts text parts to a user message.
func HandleHumanMessage(msg llms.Message) (anthropic.MessageParam, error) {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Parts))
	for _, part := range msg.Parts {
		text, ok := part.(llms.TextContent)
		if !ok {
			return anthropic.MessageParam{}, errors.Errorf("anthropic: unsupported human message part type: %T", part)
		}
		blocks = append(blocks, anthropic.NewTextBlock(text.Text))
	}
	if len(blocks) == 0 {
		return anthropic.MessageParam{}, errors.New("anthropic: no valid content in human message")
	}
	return anthropic.NewUserMessage(blocks...), nil
}

// HandleAIMessage converts text and tool calls to an assistant message.
// Malformed tool arguments are sent as an empty object: the call stays in
// the history next to the failure text it was answered with.
func HandleAIMessage(msg llms.Message) (anthropic.MessageParam, error) {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Parts))
	for _, part := range msg.Parts {
		switch p := part.(type) {
		case llms.TextContent:
			if p.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(p.Text))
			}
		case llms.ToolCall:
			if p.FunctionCall == nil {
				return anthropic.MessageParam{}, errors.New("anthropic: tool call without function")
			}
			args := strings.TrimSpace(p.FunctionCall.Arguments)
			if args == "" || !gjson.Valid(args) {
				args = "{}"
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(p.ID, json.RawMessage(args), p.FunctionCall.Name))
		default:
			return anthropic.MessageParam{}, errors.Errorf("anthropic: unsupported AI message part type: %T", part)
		}
	}
	if len(blocks) == 0 {
		return anthropic.MessageParam{}, errors.New("anthropic: no valid content in AI message")
	}
	return anthropic.NewAssistantMessage(blocks...), nil
}

// HandleToolMessage converts tool responses to a user message of tool
// result blocks.
func HandleToolMessage(msg llms.Message) (anthropic.MessageParam, error) {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Parts))
	for _, part := range msg.Parts {
		res, ok := part.(llms.ToolCallResponse)
		if !ok {
			return anthropic.MessageParam{}, errors.WithMessagef(ErrInvalidContentType, "anthropic: tool message part %T", part)
		}
		blocks = append(blocks, anthropic.NewToolResultBlock(res.ToolCallID, res.Content, false))
	}
	if len(blocks) == 0 {
		return anthropic.MessageParam{}, errors.New("anthropic: no valid content in tool message")
	}
	return anthropic.NewUserMessage(blocks...), nil
}
