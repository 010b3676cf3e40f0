package mcp

import (
	"context"
	"net/http"
	"os"
	"os/exec"

	"github.com/cockroachdb/errors"
	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Transport kinds
const (
	TransportStdio      = "stdio"
	TransportStreamable = "streamable-http"
	TransportSSE        = "sse"
)

// ServerConfig describes how to reach the capability provider.
type ServerConfig struct {
	// Name is used for logging.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// Transport is one of stdio, streamable-http, sse. Defaults to stdio.
	Transport string `json:"transport,omitempty" yaml:"transport,omitempty" validate:"omitempty,oneof=stdio streamable-http sse"`

	// Command and Args launch a stdio server.
	Command string            `json:"command,omitempty" yaml:"command,omitempty" validate:"required_if=Transport stdio"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Dir     string            `json:"dir,omitempty" yaml:"dir,omitempty"`

	// URL is the endpoint of an HTTP server.
	URL string `json:"url,omitempty" yaml:"url,omitempty" validate:"required_if=Transport streamable-http,required_if=Transport sse,omitempty,url"`
	// Headers are added to every HTTP request, typically for authentication.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// DefaultServerConfig launches the research server with uv.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Name:      "research",
		Transport: TransportStdio,
		Command:   "uv",
		Args:      []string{"run", "research_server.py"},
	}
}

// TransportKind returns the configured transport, or stdio.
func (c ServerConfig) TransportKind() string {
	if c.Transport == "" {
		return TransportStdio
	}
	return c.Transport
}

// Factory returns the transport factory for the config.
func (c ServerConfig) Factory() TransportFactory {
	return func(_ context.Context) (gomcp.Transport, error) {
		return c.NewTransport()
	}
}

// NewTransport creates a transport for the config.
func (c ServerConfig) NewTransport() (gomcp.Transport, error) {
	switch c.TransportKind() {
	case TransportStdio:
		if c.Command == "" {
			return nil, errors.New("stdio transport requires a command")
		}
		// #nosec G204 -- the command comes from local configuration
		cmd := exec.Command(c.Command, c.Args...)
		cmd.Dir = c.Dir
		if len(c.Env) > 0 {
			cmd.Env = os.Environ()
			for k, v := range c.Env {
				cmd.Env = append(cmd.Env, k+"="+v)
			}
		}
		cmd.Stderr = os.Stderr
		return &gomcp.CommandTransport{Command: cmd}, nil
	case TransportStreamable:
		if c.URL == "" {
			return nil, errors.Newf("%s transport requires a URL", TransportStreamable)
		}
		t := &gomcp.StreamableClientTransport{Endpoint: c.URL}
		if hc := c.httpClient(); hc != nil {
			t.HTTPClient = hc
		}
		return t, nil
	case TransportSSE:
		if c.URL == "" {
			return nil, errors.Newf("%s transport requires a URL", TransportSSE)
		}
		t := &gomcp.SSEClientTransport{Endpoint: c.URL}
		if hc := c.httpClient(); hc != nil {
			t.HTTPClient = hc
		}
		return t, nil
	default:
		return nil, errors.Newf("unsupported transport: %q", c.Transport)
	}
}

// httpClient returns nil when no headers are configured.
func (c ServerConfig) httpClient() *http.Client {
	if len(c.Headers) == 0 {
		return nil
	}
	return &http.Client{
		Transport: &headerTransport{
			base:    http.DefaultTransport,
			headers: c.Headers,
		},
	}
}

// headerTransport adds static headers to every request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}
