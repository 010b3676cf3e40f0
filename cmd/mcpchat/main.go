// Command mcpchat is an interactive chatbot that answers queries with
// the tools, resources and prompts of an MCP server.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/assistants"
	"github.com/effective-security/mcpchat/callbacks"
	"github.com/effective-security/mcpchat/mcp"
	"github.com/effective-security/mcpchat/pkg/llmfactory"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpchat", "mcpchat")

type cli struct {
	cfgPath       string
	envFile       string
	logLevel      string
	verbose       bool
	serverCommand string

	in  io.Reader
	out io.Writer
}

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	c := &cli{in: in, out: out}

	cmd := &cobra.Command{
		Use:          "mcpchat",
		Short:        "Chat with an LLM that uses the tools of an MCP server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd.Context())
		},
	}
	cmd.SetOut(out)

	flags := cmd.PersistentFlags()
	flags.StringVar(&c.cfgPath, "config", "", "path to the YAML config file")
	flags.StringVar(&c.envFile, "env-file", ".env", "path to the .env file, ignored if missing")
	flags.StringVar(&c.logLevel, "log-level", "error", "log level: error, warning, info, debug")
	flags.BoolVar(&c.verbose, "verbose", false, "print LLM and tool traces")
	flags.StringVar(&c.serverCommand, "server-command", "", "command line that starts a stdio MCP server, overrides the config")

	return cmd
}

func (c *cli) run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := setupLogging(c.logLevel); err != nil {
		return err
	}
	if err := loadEnv(c.envFile); err != nil {
		return err
	}

	cfg, err := LoadConfig(c.cfgPath)
	if err != nil {
		return err
	}
	if err = cfg.overrideServerCommand(c.serverCommand); err != nil {
		return err
	}

	llm, err := llmfactory.New(cfg.LLM).AssistantModel(values.StringsCoalesce(cfg.Engine.Name, assistants.DefaultName))
	if err != nil {
		return errors.WithMessage(err, "failed to create LLM")
	}

	opts, err := cfg.Options()
	if err != nil {
		return err
	}

	mode := callbacks.ModeDefault
	if c.verbose {
		mode = callbacks.ModeVerbose
	}
	stats := callbacks.NewScratchpad(mode)
	opts = append(opts, assistants.WithCallback(callbacks.NewFanout(
		callbacks.NewPrinter(c.out, mode),
		callbacks.NewPackageLogger(logger),
		stats,
	)))

	engine := assistants.NewEngine(llm, opts...)
	if err = engine.Connect(ctx, cfg.Server.Factory()); err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logger.KV(xlog.WARNING, "status", "close_failed", "err", err.Error())
		}
	}()

	fmt.Fprintf(c.out, "\nConnected to server with tools: [%s]\n", strings.Join(engine.Tools().Names(), ", "))

	return NewREPL(engine, c.in, c.out, stats).Run(ctx)
}

// overrideServerCommand replaces the server with a stdio command line
func (c *Config) overrideServerCommand(commandLine string) error {
	if commandLine == "" {
		return nil
	}
	parts := strings.Fields(commandLine)
	if len(parts) == 0 {
		return errors.New("server command is empty")
	}
	c.Server.Transport = mcp.TransportStdio
	c.Server.Command = parts[0]
	c.Server.Args = parts[1:]
	c.Server.URL = ""
	return nil
}

func setupLogging(level string) error {
	xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
	switch strings.ToLower(level) {
	case "error":
		xlog.SetGlobalLogLevel(xlog.ERROR)
	case "warning", "warn":
		xlog.SetGlobalLogLevel(xlog.WARNING)
	case "info":
		xlog.SetGlobalLogLevel(xlog.INFO)
	case "debug":
		xlog.SetGlobalLogLevel(xlog.DEBUG)
	default:
		return errors.Newf("unsupported log level %q", level)
	}
	return nil
}

// loadEnv loads the .env file without overriding variables that are already set
func loadEnv(file string) error {
	if file == "" {
		return nil
	}
	if _, err := os.Stat(file); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.WithStack(err)
	}
	if err := godotenv.Load(file); err != nil {
		return errors.WithMessagef(err, "failed to load %s", file)
	}
	return nil
}
