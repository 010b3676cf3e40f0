package assistants

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/chatmodel"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/mcpchat/pkg/metricskey"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
)

// dispatch executes one tool call request and returns the tool message
// to append to the history, the result text and the recovered failure.
// The returned message is always usable, the error is informational.
func (e *Engine) dispatch(ctx context.Context, req chatmodel.ToolCallRequest) (llms.Message, string, error) {
	toolName := req.ToolName
	cb := e.cfg.CallbackHandler
	table := e.Tools()

	tool, ok := table.Get(toolName)
	if !ok {
		metricskey.StatsToolCallsNotFound.IncrCounter(1, toolName)
		if cb != nil {
			cb.OnToolNotFound(ctx, toolName)
		}

		availableTools := strings.Join(table.Names(), ", ")
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "tool_not_found",
			"tool_name", toolName,
			"available_tools", availableTools,
		)

		text := fmt.Sprintf("Tool `%s` not found. Please check the tool name and try again with exact match. Available tools: %s", toolName, availableTools)
		return toolMessage(req, text), "", errors.WithMessagef(chatmodel.ErrToolNotFound, "%s", toolName)
	}

	var args map[string]any
	switch parsed := chatmodel.ParseArguments(req.RawArguments).(type) {
	case chatmodel.Malformed:
		metricskey.StatsToolCallsMalformed.IncrCounter(1, toolName)
		if cb != nil {
			cb.OnToolError(ctx, tool, req.RawArguments, parsed)
		}
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "tool_call_malformed",
			"tool_name", toolName,
			"tool_call_id", req.ID,
			"arguments", slices.StringUpto(req.RawArguments, 256),
			"err", parsed.Error(),
		)
		return toolMessage(req, failureText(parsed)), "", parsed
	case chatmodel.Parsed:
		args = parsed.Value
	}

	if cb != nil {
		cb.OnToolStart(ctx, tool, req.RawArguments)
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "tool_call",
		"tool_name", toolName,
		"tool_call_id", req.ID,
		"arguments", slices.StringUpto(req.RawArguments, 256),
	)

	callCtx := ctx
	if e.cfg.ToolTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.cfg.ToolTimeout)
		defer cancel()
	}

	started := time.Now()
	res, err := tool.Call(callCtx, args)
	metricskey.PerfToolCall.MeasureSince(started, toolName)

	if err != nil && !errors.Is(err, chatmodel.ErrToolTimeout) && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		err = errors.Mark(errors.WithMessagef(err, "%s", chatmodel.ErrToolTimeout.Error()), chatmodel.ErrToolTimeout)
	}
	if err != nil {
		metricskey.StatsToolCallsFailed.IncrCounter(1, toolName)
		if cb != nil {
			cb.OnToolError(ctx, tool, req.RawArguments, err)
		}
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "tool_call_failed",
			"tool_name", toolName,
			"tool_call_id", req.ID,
			"err", err.Error(),
		)
		return toolMessage(req, failureText(err)), "", err
	}

	metricskey.StatsToolCallsSucceeded.IncrCounter(1, toolName)
	if cb != nil {
		cb.OnToolEnd(ctx, tool, req.RawArguments, res)
	}
	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "tool_call_succeeded",
		"tool_name", toolName,
		"tool_call_id", req.ID,
		"result_size", len(res),
	)
	return toolMessage(req, res), res, nil
}

func failureText(err error) string {
	return fmt.Sprintf("Tool call failed: %s", err.Error())
}

func toolMessage(req chatmodel.ToolCallRequest, content string) llms.Message {
	return llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{
		ToolCallID: req.ID,
		Name:       req.ToolName,
		Content:    content,
	})
}
