package assistants

import (
	"time"

	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/mcpchat/store"
)

const (
	// DefaultName tags metrics and logs.
	DefaultName = "mcpchat"
	// DefaultMaxTokens is the completion limit of every model call.
	DefaultMaxTokens = 1024
)

// Option is a function that can be used to modify the behavior of the Engine Config.
type Option func(*Config)

type Config struct {
	// Name is used in metrics and logs.
	Name string

	// MaxTokens is the maximum number of tokens to generate to use in an LLM call.
	MaxTokens int

	// Temperature is the temperature for sampling to use in an LLM call.
	Temperature    float64
	temperatureSet bool

	// ToolTimeout limits each tool call, zero means no limit.
	ToolTimeout time.Duration

	// SystemPrompt is the template of the first message, see prompts.DefaultSystemPrompt.
	SystemPrompt    string
	useSystemPrompt bool

	// Chain configures the automatic chaining of tools.
	Chain ChainConfig

	// CallbackHandler receives the engine events.
	CallbackHandler Callback

	// Store keeps the conversation, by default in memory.
	Store store.MessageStore
}

func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		Name:      DefaultName,
		MaxTokens: DefaultMaxTokens,
		Chain:     DefaultChainConfig(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Store == nil {
		cfg.Store = store.NewMemoryStore()
	}
	return cfg
}

// WithName sets the name used in metrics and logs.
func WithName(name string) Option {
	return func(o *Config) {
		o.Name = name
	}
}

// WithMaxTokens is an option for LLM.Call.
func WithMaxTokens(maxTokens int) Option {
	return func(o *Config) {
		o.MaxTokens = maxTokens
	}
}

// WithTemperature is an option for LLM.Call.
func WithTemperature(temperature float64) Option {
	return func(o *Config) {
		o.Temperature = temperature
		o.temperatureSet = true
	}
}

// WithToolTimeout limits each tool call.
func WithToolTimeout(timeout time.Duration) Option {
	return func(o *Config) {
		o.ToolTimeout = timeout
	}
}

// WithSystemPrompt adds a system message rendered from the template
// when the engine connects. An empty template uses the default one.
func WithSystemPrompt(template string) Option {
	return func(o *Config) {
		o.SystemPrompt = template
		o.useSystemPrompt = true
	}
}

// WithChain sets the chaining configuration.
func WithChain(chain ChainConfig) Option {
	return func(o *Config) {
		o.Chain = chain
	}
}

// WithCallback allows setting a custom Callback Handler.
func WithCallback(callbackHandler Callback) Option {
	return func(o *Config) {
		o.CallbackHandler = callbackHandler
	}
}

// WithStore sets the message store.
func WithStore(st store.MessageStore) Option {
	return func(o *Config) {
		o.Store = st
	}
}

// GetCallOptions returns the options of every model call.
func (c *Config) GetCallOptions(extra ...llms.CallOption) []llms.CallOption {
	var opts []llms.CallOption
	if c.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.MaxTokens))
	}
	if c.temperatureSet {
		opts = append(opts, llms.WithTemperature(c.Temperature))
	}
	return append(opts, extra...)
}
