package callbacks

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/effective-security/mcpchat/assistants"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/mcpchat/tools"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
)

// ensure that the callbacks implement the correct interfaces
var (
	_ assistants.Callback = (*Noop)(nil)
	_ tools.Callback      = (*Noop)(nil)
	_ assistants.Callback = (*Printer)(nil)
	_ tools.Callback      = (*Printer)(nil)
	_ assistants.Callback = (*PackageLogger)(nil)
	_ tools.Callback      = (*PackageLogger)(nil)
	_ assistants.Callback = (*Fanout)(nil)
	_ tools.Callback      = (*Fanout)(nil)
)

// Mode defines the mode for callback printing
type Mode int

const (
	// ModeDefault is the default mode for callback printing
	ModeDefault Mode = iota
	// ModeVerbose is the verbose mode for callback printing
	ModeVerbose
)

// Fanout is a callback handler that forwards the events to multiple callbacks.
type Fanout struct {
	callbacks []assistants.Callback
}

func NewFanout(callbacks ...assistants.Callback) *Fanout {
	return &Fanout{callbacks: callbacks}
}

func (l *Fanout) Add(callback assistants.Callback) {
	l.callbacks = append(l.callbacks, callback)
}

func (l *Fanout) OnQueryStart(ctx context.Context, input string) {
	for _, callback := range l.callbacks {
		callback.OnQueryStart(ctx, input)
	}
}

func (l *Fanout) OnQueryEnd(ctx context.Context, input string, answer string) {
	for _, callback := range l.callbacks {
		callback.OnQueryEnd(ctx, input, answer)
	}
}

func (l *Fanout) OnQueryError(ctx context.Context, input string, err error) {
	for _, callback := range l.callbacks {
		callback.OnQueryError(ctx, input, err)
	}
}

func (l *Fanout) OnLLMCallStart(ctx context.Context, llm llms.Model, payload []llms.Message) {
	for _, callback := range l.callbacks {
		callback.OnLLMCallStart(ctx, llm, payload)
	}
}

func (l *Fanout) OnLLMCallEnd(ctx context.Context, llm llms.Model, resp *llms.ContentResponse) {
	for _, callback := range l.callbacks {
		callback.OnLLMCallEnd(ctx, llm, resp)
	}
}

func (l *Fanout) OnToolStart(ctx context.Context, tool tools.ITool, input string) {
	for _, callback := range l.callbacks {
		callback.OnToolStart(ctx, tool, input)
	}
}

func (l *Fanout) OnToolEnd(ctx context.Context, tool tools.ITool, input string, output string) {
	for _, callback := range l.callbacks {
		callback.OnToolEnd(ctx, tool, input, output)
	}
}

func (l *Fanout) OnToolError(ctx context.Context, tool tools.ITool, input string, err error) {
	for _, callback := range l.callbacks {
		callback.OnToolError(ctx, tool, input, err)
	}
}

func (l *Fanout) OnToolNotFound(ctx context.Context, tool string) {
	for _, callback := range l.callbacks {
		callback.OnToolNotFound(ctx, tool)
	}
}

func (l *Fanout) OnChainStart(ctx context.Context, tool string, identifiers []string) {
	for _, callback := range l.callbacks {
		callback.OnChainStart(ctx, tool, identifiers)
	}
}

// Noop does nothing.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (l *Noop) OnQueryStart(ctx context.Context, input string)                               {}
func (l *Noop) OnQueryEnd(ctx context.Context, input string, answer string)                  {}
func (l *Noop) OnQueryError(ctx context.Context, input string, err error)                    {}
func (l *Noop) OnToolStart(ctx context.Context, tool tools.ITool, input string)              {}
func (l *Noop) OnToolEnd(ctx context.Context, tool tools.ITool, input string, output string) {}
func (l *Noop) OnToolError(ctx context.Context, tool tools.ITool, input string, err error)   {}
func (l *Noop) OnLLMCallStart(ctx context.Context, llm llms.Model, payload []llms.Message)   {}
func (l *Noop) OnLLMCallEnd(ctx context.Context, llm llms.Model, resp *llms.ContentResponse) {}
func (l *Noop) OnToolNotFound(ctx context.Context, tool string)                              {}
func (l *Noop) OnChainStart(ctx context.Context, tool string, identifiers []string)          {}

// Printer is a callback handler that prints to the Writer.
type Printer struct {
	Out  io.Writer
	Mode Mode

	lock sync.Mutex
}

func NewPrinter(out io.Writer, mode Mode) *Printer {
	return &Printer{Out: out, Mode: mode}
}

// printf writes the line, verbose lines only in ModeVerbose.
func (l *Printer) printf(verbose bool, format string, args ...any) {
	if verbose && l.Mode != ModeVerbose {
		return
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, format, args...)
}

func (l *Printer) OnQueryStart(ctx context.Context, input string) {
	l.printf(true, "Query: %s\n", input)
}

func (l *Printer) OnQueryEnd(ctx context.Context, input string, answer string) {
	l.printf(true, "Query End: %d bytes\n", len(answer))
}

func (l *Printer) OnQueryError(ctx context.Context, input string, err error) {
	l.printf(false, "Query Error: %s\n", err.Error())
}

func (l *Printer) OnToolStart(ctx context.Context, tool tools.ITool, input string) {
	l.printf(false, "Calling tool %s with args %s\n", tool.Name(), input)
}

func (l *Printer) OnToolEnd(ctx context.Context, tool tools.ITool, input string, output string) {
	l.printf(true, "Tool End: %s\nOutput: %s\n", tool.Name(), slices.StringUpto(output, 1024))
}

func (l *Printer) OnToolError(ctx context.Context, tool tools.ITool, input string, err error) {
	l.printf(false, "Tool Error: %s: %s\n", tool.Name(), err.Error())
}

func (l *Printer) OnLLMCallStart(ctx context.Context, llm llms.Model, payload []llms.Message) {
	l.printf(true, "LLM Call: %s model, %d messages\n", llm.GetName(), len(payload))
}

func (l *Printer) OnLLMCallEnd(ctx context.Context, llm llms.Model, resp *llms.ContentResponse) {
	l.printf(true, "LLM Call End: %s model, %d choices\n", llm.GetName(), len(resp.Choices))
}

func (l *Printer) OnToolNotFound(ctx context.Context, tool string) {
	l.printf(false, "Tool Not Found: %s\n", tool)
}

func (l *Printer) OnChainStart(ctx context.Context, tool string, identifiers []string) {
	l.printf(false, "Chaining %s results: %s\n", tool, strings.Join(identifiers, ", "))
}

// PackageLogger is a callback handler that prints to the logger.
type PackageLogger struct {
	logger *xlog.PackageLogger
}

func NewPackageLogger(logger *xlog.PackageLogger) *PackageLogger {
	return &PackageLogger{logger: logger}
}

func (l *PackageLogger) OnQueryStart(ctx context.Context, input string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "query_start",
		"input", input,
	)
}

func (l *PackageLogger) OnQueryEnd(ctx context.Context, input string, answer string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "query_end",
		"answer", slices.StringUpto(answer, 256),
	)
}

func (l *PackageLogger) OnQueryError(ctx context.Context, input string, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "query_error",
		"err", err.Error(),
	)
}

func (l *PackageLogger) OnToolStart(ctx context.Context, tool tools.ITool, input string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_start",
		"tool", tool.Name(),
		"input", input,
	)
}

func (l *PackageLogger) OnToolEnd(ctx context.Context, tool tools.ITool, input string, output string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_end",
		"tool", tool.Name(),
		"output", slices.StringUpto(output, 256),
	)
}

func (l *PackageLogger) OnToolError(ctx context.Context, tool tools.ITool, input string, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "tool_error",
		"tool", tool.Name(),
		"err", err.Error(),
	)
}

func (l *PackageLogger) OnLLMCallStart(ctx context.Context, llm llms.Model, payload []llms.Message) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "llm_call_start",
		"model", llm.GetName(),
		"messages", len(payload),
	)
}

func (l *PackageLogger) OnLLMCallEnd(ctx context.Context, llm llms.Model, resp *llms.ContentResponse) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "llm_call_end",
		"model", llm.GetName(),
		"choices", len(resp.Choices),
	)
}

func (l *PackageLogger) OnToolNotFound(ctx context.Context, tool string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_not_found",
		"tool", tool,
	)
}

func (l *PackageLogger) OnChainStart(ctx context.Context, tool string, identifiers []string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "chain_start",
		"tool", tool,
		"identifiers", identifiers,
	)
}
