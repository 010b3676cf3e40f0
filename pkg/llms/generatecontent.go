package llms

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrUnexpectedRole is returned by providers for a role they cannot send.
var ErrUnexpectedRole = errors.New("unexpected role")

// Role of the message author.
type Role string

const (
	// RoleAI is the model, its messages may carry tool calls.
	RoleAI Role = "ai"
	// RoleHuman is the user.
	RoleHuman Role = "human"
	// RoleSystem carries instructions for the model.
	RoleSystem Role = "system"
	// RoleTool carries the result of one tool call.
	RoleTool Role = "tool"
)

// Message is one entry of the conversation.
type Message struct {
	Role  Role          `json:"role"`
	Parts []ContentPart `json:"parts"`
}

// ContentPart is TextContent, ToolCall or ToolCallResponse.
type ContentPart interface {
	isPart()
}

// TextContent is a text part.
type TextContent struct {
	Text string `json:"text"`
}

// TextPart returns a text part.
func TextPart(s string) TextContent {
	return TextContent{Text: s}
}

func (tc TextContent) String() string {
	return tc.Text
}

func (TextContent) isPart() {}

// FunctionCall is the function requested by the model.
type FunctionCall struct {
	Name string `json:"name"`
	// Arguments is JSON text as produced by the model, it may be malformed.
	Arguments string `json:"arguments"`
}

// ToolCall is a tool requested by the model.
type ToolCall struct {
	ID           string        `json:"id"`
	Type         string        `json:"type"`
	FunctionCall *FunctionCall `json:"function,omitempty"`
}

func (tc ToolCall) String() string {
	if tc.FunctionCall == nil {
		return fmt.Sprintf("ToolCall: %s", tc.ID)
	}
	return fmt.Sprintf("ToolCall: %s (%s), input: %s", tc.ID, tc.FunctionCall.Name, tc.FunctionCall.Arguments)
}

func (ToolCall) isPart() {}

// ToolCallResponse is the text result of the call with ToolCallID.
type ToolCallResponse struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Content    string `json:"content"`
}

func (tc ToolCallResponse) String() string {
	return fmt.Sprintf("ToolCallResponse: %s (%s), response size: %d", tc.ToolCallID, tc.Name, len(tc.Content))
}

func (ToolCallResponse) isPart() {}

// ContentResponse is the result of GenerateContent.
type ContentResponse struct {
	Choices []*ContentChoice
}

// ContentChoice is one choice of the response. Providers that return
// text and tool use blocks separately produce one choice per block.
type ContentChoice struct {
	Content    string `json:"content"`
	StopReason string `json:"stop_reason"`
	// GenerationInfo carries provider usage, token counts are int64.
	GenerationInfo map[string]any `json:"generation_info"`
	ToolCalls      []ToolCall     `json:"tool_calls"`
}

// MessageFromParts returns a message with the parts.
func MessageFromParts(role Role, parts ...ContentPart) Message {
	return Message{Role: role, Parts: parts}
}

// MessageFromTextParts returns a message with one text part per string.
func MessageFromTextParts(role Role, parts ...string) Message {
	msg := Message{
		Role:  role,
		Parts: make([]ContentPart, 0, len(parts)),
	}
	for _, part := range parts {
		msg.Parts = append(msg.Parts, TextPart(part))
	}
	return msg
}

// MessageFromToolCalls returns a message with copies of the tool calls.
func MessageFromToolCalls(role Role, toolCalls ...ToolCall) Message {
	msg := Message{
		Role:  role,
		Parts: make([]ContentPart, 0, len(toolCalls)),
	}
	for _, tc := range toolCalls {
		msg.Parts = append(msg.Parts, tc.clone())
	}
	return msg
}

// AssistantMessage returns a model message with the text, if any,
// followed by the tool calls.
func AssistantMessage(text string, toolCalls ...ToolCall) Message {
	msg := MessageFromToolCalls(RoleAI, toolCalls...)
	if text != "" {
		msg.Parts = append([]ContentPart{TextPart(text)}, msg.Parts...)
	}
	return msg
}

// MessageFromToolResponse returns a message with the tool response.
func MessageFromToolResponse(role Role, toolResponse ToolCallResponse) Message {
	return MessageFromParts(role, toolResponse)
}

func (tc ToolCall) clone() ToolCall {
	c := ToolCall{ID: tc.ID, Type: tc.Type}
	if tc.FunctionCall != nil {
		fc := *tc.FunctionCall
		c.FunctionCall = &fc
	}
	return c
}

// ToolCalls returns the tool calls of the message, in order.
func (m Message) ToolCalls() []ToolCall {
	var list []ToolCall
	for _, p := range m.Parts {
		if tc, ok := p.(ToolCall); ok {
			list = append(list, tc)
		}
	}
	return list
}

// ToolResponses returns the tool responses of the message, in order.
func (m Message) ToolResponses() []ToolCallResponse {
	var list []ToolCallResponse
	for _, p := range m.Parts {
		if tr, ok := p.(ToolCallResponse); ok {
			list = append(list, tr)
		}
	}
	return list
}

// Text returns the text parts joined by newlines.
func (m Message) Text() string {
	var texts []string
	for _, p := range m.Parts {
		if tc, ok := p.(TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// GetContent renders the message for transcripts, one line per part.
func (m Message) GetContent() string {
	var sb strings.Builder
	for _, p := range m.Parts {
		switch part := p.(type) {
		case TextContent:
			sb.WriteString(strings.TrimSuffix(part.Text, "\n"))
		case ToolCall:
			name, args := "", ""
			if part.FunctionCall != nil {
				name, args = part.FunctionCall.Name, part.FunctionCall.Arguments
			}
			fmt.Fprintf(&sb, "Tool Call [%s] %s: %s", part.ID, name, args)
		case ToolCallResponse:
			fmt.Fprintf(&sb, "Tool Result [%s] %s: %s", part.ToolCallID, part.Name, part.Content)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
