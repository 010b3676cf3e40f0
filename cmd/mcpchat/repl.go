package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/callbacks"
	"github.com/effective-security/mcpchat/pkg/llmutils"
	"github.com/effective-security/mcpchat/registry"
	"github.com/effective-security/xlog"
)

// ResourceScheme is the URI scheme of the topic resources, @<topic> reads papers://<topic>
const ResourceScheme = "papers://"

const helpText = `Commands:
  @folders                 list available topics
  @<topic>                 show the papers saved for a topic
  /resources               list resources
  /prompts                 list prompts and their arguments
  /prompt <name> [k=v ...] run a prompt
  /tools                   show the tool catalog
  /stats                   show the usage of the last query
  /help                    show this help
  quit                     exit`

// Chatbot is the engine surface used by the REPL
type Chatbot interface {
	SubmitQuery(ctx context.Context, query string) (string, error)
	GetResource(ctx context.Context, uri string) (string, error)
	ExecutePrompt(ctx context.Context, name string, args map[string]any) (string, error)
	RefreshResources(ctx context.Context) ([]string, error)
	RefreshPrompts(ctx context.Context) ([]string, error)
	Catalog() *registry.Catalog
	ChatID() string
}

// REPL reads queries and commands line by line
type REPL struct {
	bot   Chatbot
	in    io.Reader
	out   io.Writer
	stats *callbacks.Scratchpad
}

// NewREPL returns a REPL, stats is optional
func NewREPL(bot Chatbot, in io.Reader, out io.Writer, stats *callbacks.Scratchpad) *REPL {
	return &REPL{
		bot:   bot,
		in:    in,
		out:   out,
		stats: stats,
	}
}

// Run processes the input until quit, end of input or ctx is done.
// Errors of a single line are printed and the loop continues.
func (r *REPL) Run(ctx context.Context) error {
	fmt.Fprintln(r.out, "\nMCP Chatbot Started!")
	fmt.Fprintln(r.out, "Type your queries or 'quit' to exit.")

	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(r.out, "\nQuery: ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "quit") {
			return nil
		}

		answer, err := r.Handle(ctx, line)
		if err != nil {
			logger.ContextKV(ctx, xlog.DEBUG, "status", "line_failed", "err", err.Error())
			fmt.Fprintf(r.out, "\nError: %s\n", err.Error())
			continue
		}
		fmt.Fprintln(r.out, llmutils.EnsureEndsWithNewline(answer))
	}
	return errors.WithStack(scanner.Err())
}

// Handle processes one line: a command, a resource reference or a query
func (r *REPL) Handle(ctx context.Context, line string) (string, error) {
	switch {
	case strings.HasPrefix(line, "@"):
		return r.resource(ctx, strings.TrimPrefix(line, "@"))
	case strings.HasPrefix(line, "/"):
		return r.command(ctx, strings.Fields(line))
	default:
		return r.bot.SubmitQuery(ctx, line)
	}
}

func (r *REPL) resource(ctx context.Context, topic string) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", errors.New("usage: @folders or @<topic>")
	}
	return r.bot.GetResource(ctx, ResourceScheme+topic)
}

func (r *REPL) command(ctx context.Context, fields []string) (string, error) {
	switch strings.ToLower(fields[0]) {
	case "/help":
		return helpText, nil
	case "/resources":
		uris, err := r.bot.RefreshResources(ctx)
		if err != nil {
			return "", err
		}
		if len(uris) == 0 {
			return "No resources available.", nil
		}
		return "Available resources:\n" + bulleted(uris), nil
	case "/prompts":
		return r.listPrompts(ctx)
	case "/prompt":
		if len(fields) < 2 {
			return "", errors.New("usage: /prompt <name> [key=value ...]")
		}
		args, err := ParsePromptArgs(fields[2:])
		if err != nil {
			return "", err
		}
		return r.bot.ExecutePrompt(ctx, fields[1], args)
	case "/tools":
		catalog := r.bot.Catalog()
		if catalog == nil || len(catalog.Tools) == 0 {
			return "No tools available.", nil
		}
		return llmutils.ToYAML(catalog.Tools), nil
	case "/stats":
		return r.lastRun(), nil
	default:
		return "", errors.Newf("unknown command %s, type /help for the list of commands", fields[0])
	}
}

func (r *REPL) listPrompts(ctx context.Context) (string, error) {
	names, err := r.bot.RefreshPrompts(ctx)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "No prompts available.", nil
	}

	var sb strings.Builder
	sb.WriteString("Available prompts:")
	catalog := r.bot.Catalog()
	for _, name := range names {
		sb.WriteString("\n- " + name)
		if catalog == nil {
			continue
		}
		p, ok := catalog.FindPrompt(name)
		if !ok {
			continue
		}
		if p.Description != "" {
			sb.WriteString(": " + p.Description)
		}
		for _, arg := range p.Arguments {
			sb.WriteString("\n    " + arg.Name)
			if arg.Required {
				sb.WriteString(" (required)")
			}
			if arg.Description != "" {
				sb.WriteString(": " + arg.Description)
			}
		}
	}
	return sb.String(), nil
}

func (r *REPL) lastRun() string {
	if r.stats == nil {
		return "Stats are not enabled."
	}
	stats, _ := r.stats.LastRun(r.bot.ChatID())
	if stats == nil {
		return "No queries yet."
	}
	return fmt.Sprintf("Run %s: %s, failed: %t\nTool calls: %d, Failed: %d, Not Found: %d, Chained: %d\nLLM calls: %d, Input Tokens: %d, Output Tokens: %d, Total Tokens: %d",
		stats.RunID, stats.Duration, stats.Failed,
		stats.ToolsCalls, stats.ToolsCallsFailed, stats.ToolNotFound, stats.ChainedIdentifiers,
		stats.LLMCalls, stats.LLMInputTokens, stats.LLMOutputTokens, stats.LLMTotalTokens,
	)
}

// ParsePromptArgs parses key=value pairs. A later key overrides an earlier one.
func ParsePromptArgs(pairs []string) (map[string]any, error) {
	args := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, errors.Newf("invalid prompt argument %q, expected key=value", pair)
		}
		args[key] = value
	}
	return args, nil
}

func bulleted(list []string) string {
	var sb strings.Builder
	for i, s := range list {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("- " + s)
	}
	return sb.String()
}
