package llmutils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/x/values"
	"gopkg.in/yaml.v3"
)

// ToJSON returns compact JSON without HTML escaping.
func ToJSON(val any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(val)
	return strings.TrimSuffix(buf.String(), "\n")
}

// ToYAML returns YAML, or empty string for values it cannot encode.
func ToYAML(val any) string {
	y, _ := yaml.Marshal(val)
	return string(y)
}

var roleTitles = map[llms.Role]string{
	llms.RoleSystem: "System",
	llms.RoleHuman:  "Human",
	llms.RoleAI:     "AI",
	llms.RoleTool:   "Tool",
}

// PrintMessages writes one line per message prefixed with its role.
func PrintMessages(w io.Writer, msgs []llms.Message) {
	for _, mc := range msgs {
		title := values.StringsCoalesce(roleTitles[mc.Role], string(mc.Role))
		fmt.Fprintf(w, "%s: %s", title, mc.GetContent())
	}
}

// CountMessagesContentSize returns the bytes of the roles and parts of the
// messages, an estimate of the request size.
func CountMessagesContentSize(msgs []llms.Message) uint64 {
	var size int
	for _, mc := range msgs {
		size += len(mc.Role)
		for _, p := range mc.Parts {
			switch pp := p.(type) {
			case llms.TextContent:
				size += len(pp.Text)
			case llms.ToolCall:
				size += toolCallSize(pp)
			case llms.ToolCallResponse:
				size += len(pp.ToolCallID) + len(pp.Name) + len(pp.Content)
			}
		}
	}
	return uint64(size)
}

// CountResponseContentSize returns the bytes of the text and tool calls
// of the response.
func CountResponseContentSize(resp *llms.ContentResponse) uint64 {
	var size int
	for _, choice := range resp.Choices {
		size += len(choice.Content)
		for _, tc := range choice.ToolCalls {
			size += toolCallSize(tc)
		}
	}
	return uint64(size)
}

func toolCallSize(tc llms.ToolCall) int {
	size := len(tc.ID) + len(tc.Type)
	if tc.FunctionCall != nil {
		size += len(tc.FunctionCall.Name) + len(tc.FunctionCall.Arguments)
	}
	return size
}

// CountTokens sums the token usage reported by the providers.
// OpenAI reports PromptTokens/CompletionTokens, Anthropic InputTokens/OutputTokens.
// Anthropic repeats the usage on every choice, so only the first choice
// carrying a total is counted.
func CountTokens(resp *llms.ContentResponse) (in, out, total int64) {
	for _, choice := range resp.Choices {
		ma := values.MapAny(choice.GenerationInfo)
		t := ma.Int64("TotalTokens")
		if t == 0 {
			continue
		}
		in = values.NumbersCoalesce(ma.Int64("InputTokens"), ma.Int64("PromptTokens"))
		out = values.NumbersCoalesce(ma.Int64("OutputTokens"), ma.Int64("CompletionTokens"))
		total = t
		return
	}
	return
}

// EnsureEndsWithNewline ensures the message ends with a newline,
// it also removes any extra leading and trailing spaces.
func EnsureEndsWithNewline(s string) string {
	s = strings.TrimSpace(s)
	c := len(s)
	if c == 0 {
		return s
	}
	if s[c-1] != '\n' {
		return s + "\n"
	}
	return s
}
