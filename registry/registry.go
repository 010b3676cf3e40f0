// Package registry discovers the capabilities of a provider and normalizes
// them into descriptors.
package registry

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/chatmodel"
	"github.com/effective-security/mcpchat/mcp"
	"github.com/effective-security/xlog"
	"github.com/invopop/jsonschema"
	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpchat", "registry")

// Catalog is the set of capabilities declared by a provider.
type Catalog struct {
	Tools     []chatmodel.ToolDescriptor     `json:"tools" yaml:"tools"`
	Resources []chatmodel.ResourceDescriptor `json:"resources,omitempty" yaml:"resources,omitempty"`
	Prompts   []chatmodel.PromptDescriptor   `json:"prompts,omitempty" yaml:"prompts,omitempty"`
}

// Discover lists tools, resources and prompts.
// Any failure fails the whole discovery, there is no partial catalog.
func Discover(ctx context.Context, session mcp.Session) (*Catalog, error) {
	tools, err := DiscoverTools(ctx, session)
	if err != nil {
		return nil, err
	}
	resources, err := DiscoverResources(ctx, session)
	if err != nil {
		return nil, err
	}
	prompts, err := DiscoverPrompts(ctx, session)
	if err != nil {
		return nil, err
	}

	c := &Catalog{
		Tools:     tools,
		Resources: resources,
		Prompts:   prompts,
	}
	logger.ContextKV(ctx, xlog.INFO,
		"status", "discovered",
		"tools", c.ToolNames(),
		"resources", len(resources),
		"prompts", len(prompts),
	)
	return c, nil
}

// DiscoverTools lists and converts the tools. Names must be unique.
func DiscoverTools(ctx context.Context, session mcp.Session) ([]chatmodel.ToolDescriptor, error) {
	list, err := session.ListTools(ctx)
	if err != nil {
		return nil, errors.Mark(errors.WithMessage(err, "failed to list tools"), chatmodel.ErrCatalogDiscovery)
	}

	seen := make(map[string]bool, len(list))
	tools := make([]chatmodel.ToolDescriptor, 0, len(list))
	for _, t := range list {
		desc, err := ToolFromMCP(t)
		if err != nil {
			return nil, errors.Mark(err, chatmodel.ErrCatalogDiscovery)
		}
		if seen[desc.Name] {
			return nil, errors.WithMessagef(chatmodel.ErrCatalogDiscovery, "duplicate tool: %s", desc.Name)
		}
		seen[desc.Name] = true
		tools = append(tools, desc)
	}
	return tools, nil
}

// DiscoverResources lists resources and resource templates.
func DiscoverResources(ctx context.Context, session mcp.Session) ([]chatmodel.ResourceDescriptor, error) {
	list, err := session.ListResources(ctx)
	if err != nil {
		return nil, errors.Mark(errors.WithMessage(err, "failed to list resources"), chatmodel.ErrCatalogDiscovery)
	}
	templates, err := session.ListResourceTemplates(ctx)
	if err != nil {
		return nil, errors.Mark(errors.WithMessage(err, "failed to list resource templates"), chatmodel.ErrCatalogDiscovery)
	}

	res := make([]chatmodel.ResourceDescriptor, 0, len(list)+len(templates))
	for _, r := range list {
		if r == nil || r.URI == "" {
			continue
		}
		res = append(res, ResourceFromMCP(r))
	}
	for _, r := range templates {
		if r == nil || r.URITemplate == "" {
			continue
		}
		res = append(res, ResourceTemplateFromMCP(r))
	}
	return res, nil
}

// DiscoverPrompts lists the prompts.
func DiscoverPrompts(ctx context.Context, session mcp.Session) ([]chatmodel.PromptDescriptor, error) {
	list, err := session.ListPrompts(ctx)
	if err != nil {
		return nil, errors.Mark(errors.WithMessage(err, "failed to list prompts"), chatmodel.ErrCatalogDiscovery)
	}
	res := make([]chatmodel.PromptDescriptor, 0, len(list))
	for _, p := range list {
		if p == nil || p.Name == "" {
			continue
		}
		res = append(res, PromptFromMCP(p))
	}
	return res, nil
}

type inputSchema struct {
	Properties *chatmodel.Properties `json:"properties"`
	Required   []string              `json:"required"`
}

// ToolFromMCP converts a tool declaration.
// Missing properties become an empty mapping, missing required an empty list.
func ToolFromMCP(t *gomcp.Tool) (chatmodel.ToolDescriptor, error) {
	if t == nil || t.Name == "" {
		return chatmodel.ToolDescriptor{}, errors.New("tool name is required")
	}

	var schema inputSchema
	if t.InputSchema != nil {
		js, err := json.Marshal(t.InputSchema)
		if err != nil {
			return chatmodel.ToolDescriptor{}, errors.Wrapf(err, "failed to marshal input schema of %s", t.Name)
		}
		if err = json.Unmarshal(js, &schema); err != nil {
			return chatmodel.ToolDescriptor{}, errors.Wrapf(err, "invalid input schema of %s", t.Name)
		}
	}
	if schema.Properties == nil {
		schema.Properties = orderedmap.New[string, *jsonschema.Schema]()
	}
	if schema.Required == nil {
		schema.Required = []string{}
	}

	return chatmodel.ToolDescriptor{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: chatmodel.InputSchema{
			Properties: schema.Properties,
			Required:   schema.Required,
		},
	}, nil
}

// ResourceFromMCP converts a resource declaration.
func ResourceFromMCP(r *gomcp.Resource) chatmodel.ResourceDescriptor {
	return chatmodel.ResourceDescriptor{
		URI:         r.URI,
		Name:        r.Name,
		Description: r.Description,
		MIMEType:    r.MIMEType,
	}
}

// ResourceTemplateFromMCP converts a resource template declaration.
func ResourceTemplateFromMCP(r *gomcp.ResourceTemplate) chatmodel.ResourceDescriptor {
	return chatmodel.ResourceDescriptor{
		URI:         r.URITemplate,
		Name:        r.Name,
		Description: r.Description,
		MIMEType:    r.MIMEType,
		Template:    true,
	}
}

// PromptFromMCP converts a prompt declaration.
func PromptFromMCP(p *gomcp.Prompt) chatmodel.PromptDescriptor {
	desc := chatmodel.PromptDescriptor{
		Name:        p.Name,
		Description: p.Description,
	}
	for _, a := range p.Arguments {
		if a == nil {
			continue
		}
		desc.Arguments = append(desc.Arguments, chatmodel.PromptArgument{
			Name:        a.Name,
			Description: a.Description,
			Required:    a.Required,
		})
	}
	return desc
}

// ToolNames returns the tool names in declaration order.
func (c *Catalog) ToolNames() []string {
	names := make([]string, 0, len(c.Tools))
	for _, t := range c.Tools {
		names = append(names, t.Name)
	}
	return names
}

// ResourceURIs returns the sorted resource URIs, templates included.
func (c *Catalog) ResourceURIs() []string {
	uris := make([]string, 0, len(c.Resources))
	for _, r := range c.Resources {
		uris = append(uris, r.URI)
	}
	sort.Strings(uris)
	return uris
}

// PromptNames returns the sorted prompt names.
func (c *Catalog) PromptNames() []string {
	names := make([]string, 0, len(c.Prompts))
	for _, p := range c.Prompts {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}

// FindResource returns the resource for the URI. Exact URIs match first.
func (c *Catalog) FindResource(uri string) (chatmodel.ResourceDescriptor, bool) {
	for _, r := range c.Resources {
		if !r.Template && r.URI == uri {
			return r, true
		}
	}
	for _, r := range c.Resources {
		if r.Template && r.Matches(uri) {
			return r, true
		}
	}
	return chatmodel.ResourceDescriptor{}, false
}

// FindPrompt returns the prompt by name.
func (c *Catalog) FindPrompt(name string) (chatmodel.PromptDescriptor, bool) {
	for _, p := range c.Prompts {
		if p.Name == name {
			return p, true
		}
	}
	return chatmodel.PromptDescriptor{}, false
}
