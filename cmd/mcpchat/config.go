package main

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/assistants"
	"github.com/effective-security/mcpchat/mcp"
	"github.com/effective-security/mcpchat/pkg/llmfactory"
	"github.com/effective-security/x/configloader"
	"github.com/go-playground/validator/v10"
)

// Config is the configuration of the chatbot
type Config struct {
	// LLM specifies the model providers, AZURE_OPENAI_* variables are used when empty
	LLM *llmfactory.Config `json:"llm,omitempty" yaml:"llm,omitempty"`
	// Server specifies how to launch or reach the MCP server
	Server mcp.ServerConfig `json:"server" yaml:"server"`
	// Chain specifies the tools that are chained after a discovery call
	Chain *assistants.ChainConfig `json:"chain,omitempty" yaml:"chain,omitempty"`
	// Engine specifies the conversation options
	Engine EngineConfig `json:"engine" yaml:"engine"`
}

// EngineConfig specifies the conversation options
type EngineConfig struct {
	Name        string   `json:"name,omitempty" yaml:"name,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" validate:"gte=0"`
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	// ToolTimeout is a duration, for example 30s. Empty means no limit.
	ToolTimeout string `json:"tool_timeout,omitempty" yaml:"tool_timeout,omitempty"`
	// UseSystemPrompt adds a system message when connected,
	// rendered from SystemPrompt or the default template.
	UseSystemPrompt bool   `json:"use_system_prompt,omitempty" yaml:"use_system_prompt,omitempty"`
	SystemPrompt    string `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
}

// LoadConfig loads the config file, or returns the defaults when file is empty
func LoadConfig(file string) (*Config, error) {
	cfg := new(Config)
	if file != "" {
		err := configloader.UnmarshalAndExpand(file, cfg)
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to load config %q", file)
		}
	}
	cfg.setDefaults()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.WithMessage(err, "invalid config")
	}
	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.LLM == nil || len(c.LLM.Providers) == 0 {
		c.LLM = llmfactory.AzureFromEnv()
	}
	if c.Server.Command == "" && c.Server.URL == "" {
		def := mcp.DefaultServerConfig()
		def.Env = c.Server.Env
		def.Dir = c.Server.Dir
		c.Server = def
	}
	if c.Chain == nil {
		chain := assistants.DefaultChainConfig()
		c.Chain = &chain
	}
}

// Options returns the engine options
func (c *Config) Options() ([]assistants.Option, error) {
	opts := []assistants.Option{
		assistants.WithChain(*c.Chain),
	}
	if c.Engine.Name != "" {
		opts = append(opts, assistants.WithName(c.Engine.Name))
	}
	if c.Engine.MaxTokens > 0 {
		opts = append(opts, assistants.WithMaxTokens(c.Engine.MaxTokens))
	}
	if c.Engine.Temperature != nil {
		opts = append(opts, assistants.WithTemperature(*c.Engine.Temperature))
	}
	if c.Engine.ToolTimeout != "" {
		timeout, err := time.ParseDuration(c.Engine.ToolTimeout)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid tool_timeout %q", c.Engine.ToolTimeout)
		}
		opts = append(opts, assistants.WithToolTimeout(timeout))
	}
	if c.Engine.UseSystemPrompt {
		opts = append(opts, assistants.WithSystemPrompt(c.Engine.SystemPrompt))
	}
	return opts, nil
}
