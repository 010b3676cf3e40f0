// Package mcp provides the transport session to a Model Context Protocol
// capability provider.
package mcp

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpchat", "mcp")

// ClientName is reported to the server during initialization.
const ClientName = "mcpchat"

// Version is reported to the server during initialization.
var Version = "0.1.0"

//go:generate mockgen -source=session.go -destination=../mocks/mockmcp/session_mock.gen.go -package mockmcp

// Session is a connection to a capability provider.
// It is exclusively owned by one engine.
type Session interface {
	ListTools(ctx context.Context) ([]*gomcp.Tool, error)
	ListResources(ctx context.Context) ([]*gomcp.Resource, error)
	ListResourceTemplates(ctx context.Context) ([]*gomcp.ResourceTemplate, error)
	ListPrompts(ctx context.Context) ([]*gomcp.Prompt, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*gomcp.CallToolResult, error)
	ReadResource(ctx context.Context, uri string) (*gomcp.ReadResourceResult, error)
	GetPrompt(ctx context.Context, name string, args map[string]string) (*gomcp.GetPromptResult, error)
	Close() error
}

// TransportFactory creates the transport for a new session.
type TransportFactory func(ctx context.Context) (gomcp.Transport, error)

// StaticTransport returns a factory for an already created transport.
func StaticTransport(t gomcp.Transport) TransportFactory {
	return func(context.Context) (gomcp.Transport, error) {
		return t, nil
	}
}

// Connect creates the transport and performs the protocol handshake.
func Connect(ctx context.Context, factory TransportFactory) (Session, error) {
	if factory == nil {
		return nil, errors.New("transport factory is required")
	}
	transport, err := factory(ctx)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create transport")
	}

	client := gomcp.NewClient(
		&gomcp.Implementation{Name: ClientName, Version: Version},
		&gomcp.ClientOptions{Capabilities: &gomcp.ClientCapabilities{}},
	)
	cs, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to connect to MCP server")
	}

	if res := cs.InitializeResult(); res != nil && res.ServerInfo != nil {
		logger.ContextKV(ctx, xlog.INFO,
			"status", "connected",
			"server", res.ServerInfo.Name,
			"version", res.ServerInfo.Version,
			"protocol", res.ProtocolVersion,
		)
	}
	return NewSession(cs), nil
}

// NewSession wraps an established client session.
func NewSession(cs *gomcp.ClientSession) Session {
	return &clientSession{cs: cs}
}

type clientSession struct {
	cs *gomcp.ClientSession
}

func (s *clientSession) capabilities() *gomcp.ServerCapabilities {
	if res := s.cs.InitializeResult(); res != nil {
		return res.Capabilities
	}
	return nil
}

func (s *clientSession) ListTools(ctx context.Context) ([]*gomcp.Tool, error) {
	var list []*gomcp.Tool
	for t, err := range s.cs.Tools(ctx, nil) {
		if err != nil {
			return nil, errors.WithMessage(err, "failed to list tools")
		}
		list = append(list, t)
	}
	return list, nil
}

// ListResources returns nothing when the server does not serve resources.
func (s *clientSession) ListResources(ctx context.Context) ([]*gomcp.Resource, error) {
	if caps := s.capabilities(); caps != nil && caps.Resources == nil {
		return nil, nil
	}
	var list []*gomcp.Resource
	for r, err := range s.cs.Resources(ctx, nil) {
		if err != nil {
			return nil, errors.WithMessage(err, "failed to list resources")
		}
		list = append(list, r)
	}
	return list, nil
}

// ListResourceTemplates returns nothing when the server does not serve resources.
func (s *clientSession) ListResourceTemplates(ctx context.Context) ([]*gomcp.ResourceTemplate, error) {
	if caps := s.capabilities(); caps != nil && caps.Resources == nil {
		return nil, nil
	}
	var list []*gomcp.ResourceTemplate
	for r, err := range s.cs.ResourceTemplates(ctx, nil) {
		if err != nil {
			return nil, errors.WithMessage(err, "failed to list resource templates")
		}
		list = append(list, r)
	}
	return list, nil
}

// ListPrompts returns nothing when the server does not serve prompts.
func (s *clientSession) ListPrompts(ctx context.Context) ([]*gomcp.Prompt, error) {
	if caps := s.capabilities(); caps != nil && caps.Prompts == nil {
		return nil, nil
	}
	var list []*gomcp.Prompt
	for p, err := range s.cs.Prompts(ctx, nil) {
		if err != nil {
			return nil, errors.WithMessage(err, "failed to list prompts")
		}
		list = append(list, p)
	}
	return list, nil
}

func (s *clientSession) CallTool(ctx context.Context, name string, args map[string]any) (*gomcp.CallToolResult, error) {
	if args == nil {
		args = map[string]any{}
	}
	return s.cs.CallTool(ctx, &gomcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
}

func (s *clientSession) ReadResource(ctx context.Context, uri string) (*gomcp.ReadResourceResult, error) {
	return s.cs.ReadResource(ctx, &gomcp.ReadResourceParams{URI: uri})
}

func (s *clientSession) GetPrompt(ctx context.Context, name string, args map[string]string) (*gomcp.GetPromptResult, error) {
	return s.cs.GetPrompt(ctx, &gomcp.GetPromptParams{
		Name:      name,
		Arguments: args,
	})
}

func (s *clientSession) Close() error {
	return s.cs.Close()
}
