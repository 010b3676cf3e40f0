package prompts

import (
	"strings"

	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/mcpchat/pkg/llmutils"
)

// ChatPromptValue is a prompt value that is a list of chat messages.
type ChatPromptValue []llms.Message

// String returns the chat message slice as a buffer string.
func (v ChatPromptValue) String() string {
	var buf strings.Builder
	llmutils.PrintMessages(&buf, v)
	return buf.String()
}

// Messages returns the Message slice.
func (v ChatPromptValue) Messages() []llms.Message {
	return v
}

// MessageFormatter formats a single message from the input values.
type MessageFormatter interface {
	FormatMessage(values map[string]any) (llms.Message, error)
}

// MessagePromptTemplate renders a message of a fixed role.
type MessagePromptTemplate struct {
	Role   llms.Role
	Prompt PromptTemplate
}

// FormatMessage implements MessageFormatter.
func (p MessagePromptTemplate) FormatMessage(values map[string]any) (llms.Message, error) {
	text, err := p.Prompt.Format(values)
	if err != nil {
		return llms.Message{}, err
	}
	return llms.MessageFromTextParts(p.Role, text), nil
}

// NewSystemMessagePromptTemplate creates a system message template.
func NewSystemMessagePromptTemplate(template string, inputVariables []string) MessagePromptTemplate {
	return MessagePromptTemplate{Role: llms.RoleSystem, Prompt: NewPromptTemplate(template, inputVariables)}
}

// NewHumanMessagePromptTemplate creates a human message template.
func NewHumanMessagePromptTemplate(template string, inputVariables []string) MessagePromptTemplate {
	return MessagePromptTemplate{Role: llms.RoleHuman, Prompt: NewPromptTemplate(template, inputVariables)}
}

// ChatPromptTemplate is a sequence of message templates.
type ChatPromptTemplate struct {
	Messages []MessageFormatter
}

// NewChatPromptTemplate creates a new chat prompt template from the messages.
func NewChatPromptTemplate(messages []MessageFormatter) ChatPromptTemplate {
	return ChatPromptTemplate{Messages: messages}
}

// FormatPrompt renders every message with the values.
func (p ChatPromptTemplate) FormatPrompt(values map[string]any) (ChatPromptValue, error) {
	msgs := make([]llms.Message, 0, len(p.Messages))
	for _, m := range p.Messages {
		msg, err := m.FormatMessage(values)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}
