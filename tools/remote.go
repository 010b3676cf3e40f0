package tools

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/chatmodel"
	"github.com/effective-security/mcpchat/mcp"
	"github.com/effective-security/mcpchat/pkg/llmutils"
	"github.com/effective-security/xlog"
	"github.com/invopop/jsonschema"
	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpchat", "tools")

// RemoteTool invokes a tool declared by the capability provider.
type RemoteTool struct {
	desc    chatmodel.ToolDescriptor
	session mcp.Session
}

var _ ITool = (*RemoteTool)(nil)

// NewRemoteTool returns a tool that calls the session.
func NewRemoteTool(session mcp.Session, desc chatmodel.ToolDescriptor) *RemoteTool {
	return &RemoteTool{desc: desc, session: session}
}

func (t *RemoteTool) Name() string {
	return t.desc.Name
}

func (t *RemoteTool) Description() string {
	return t.desc.Description
}

func (t *RemoteTool) Parameters() *jsonschema.Schema {
	return t.desc.InputSchema.JSONSchema()
}

func (t *RemoteTool) Declares(arg string) bool {
	return t.desc.InputSchema.Declares(arg)
}

// Descriptor returns the declaration of the tool.
func (t *RemoteTool) Descriptor() chatmodel.ToolDescriptor {
	return t.desc
}

// Call invokes the tool. Transport errors and results flagged as errors
// are returned as ErrToolInvocation, deadline expiry as ErrToolTimeout.
func (t *RemoteTool) Call(ctx context.Context, args map[string]any) (string, error) {
	res, err := t.session.CallTool(ctx, t.desc.Name, args)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", errors.Mark(errors.WithMessagef(err, "%s", chatmodel.ErrToolTimeout.Error()), chatmodel.ErrToolTimeout)
		}
		return "", errors.Mark(err, chatmodel.ErrToolInvocation)
	}
	if res == nil {
		return "", errors.WithMessagef(chatmodel.ErrToolInvocation, "%s returned no result", t.desc.Name)
	}

	text := ResultText(res)
	if res.IsError {
		logger.ContextKV(ctx, xlog.DEBUG,
			"status", "tool_result_error",
			"tool", t.desc.Name,
			"result", text,
		)
		msg := strings.TrimSpace(text)
		if msg == "" || msg == "[]" {
			msg = t.desc.Name + " reported an error"
		}
		return "", errors.Mark(errors.New(msg), chatmodel.ErrToolInvocation)
	}
	return text, nil
}

// ResultText normalizes a tool result to plain text.
// A single text part is returned verbatim. Otherwise structured content is
// rendered as compact JSON, or else the parts as a JSON array where text parts
// are strings and other parts keep their protocol form.
func ResultText(res *gomcp.CallToolResult) string {
	if res == nil {
		return ""
	}
	if len(res.Content) == 1 {
		if tc, ok := res.Content[0].(*gomcp.TextContent); ok {
			return tc.Text
		}
	}
	if res.StructuredContent != nil {
		return llmutils.ToJSON(res.StructuredContent)
	}

	parts := make([]any, 0, len(res.Content))
	for _, c := range res.Content {
		if tc, ok := c.(*gomcp.TextContent); ok {
			parts = append(parts, tc.Text)
		} else {
			parts = append(parts, c)
		}
	}
	return llmutils.ToJSON(parts)
}
