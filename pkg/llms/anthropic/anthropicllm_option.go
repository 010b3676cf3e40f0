package anthropic

import (
	"github.com/anthropics/anthropic-sdk-go/option"
)

// TokenEnvVarName is read by New when no token is given.
const TokenEnvVarName = "ANTHROPIC_API_KEY" //nolint:gosec

// Options of the Anthropic client.
type Options struct {
	Token      string
	Model      string
	BaseURL    string
	HttpClient option.HTTPClient
	// MaxRetries of the SDK on transient failures, none by default.
	MaxRetries int
	// AnthropicBetaHeader is sent as anthropic-beta when set.
	AnthropicBetaHeader string
}

// Option configures the client.
type Option func(*Options)

// WithToken sets the API key.
func WithToken(token string) Option {
	return func(o *Options) { o.Token = token }
}

// WithModel sets the model name, it is required.
func WithModel(model string) Option {
	return func(o *Options) { o.Model = model }
}

// WithBaseURL overrides DefaultBaseURL.
func WithBaseURL(baseURL string) Option {
	return func(o *Options) { o.BaseURL = baseURL }
}

// WithHTTPClient overrides http.DefaultClient.
func WithHTTPClient(client option.HTTPClient) Option {
	return func(o *Options) { o.HttpClient = client }
}

// WithMaxRetries sets the SDK retry count.
func WithMaxRetries(n int) Option {
	return func(o *Options) { o.MaxRetries = n }
}

// WithAnthropicBetaHeader enables beta features of the API.
func WithAnthropicBetaHeader(value string) Option {
	return func(o *Options) { o.AnthropicBetaHeader = value }
}
