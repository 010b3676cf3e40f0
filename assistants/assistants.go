package assistants

import (
	"context"

	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/mcpchat/tools"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpchat", "assistants")

// Callback receives the engine events.
type Callback interface {
	tools.Callback
	OnQueryStart(ctx context.Context, input string)
	OnQueryEnd(ctx context.Context, input string, answer string)
	OnQueryError(ctx context.Context, input string, err error)
	OnLLMCallStart(ctx context.Context, llm llms.Model, payload []llms.Message)
	OnLLMCallEnd(ctx context.Context, llm llms.Model, resp *llms.ContentResponse)
	OnToolNotFound(ctx context.Context, tool string)
	OnChainStart(ctx context.Context, tool string, identifiers []string)
}
