package chatmodel

import (
	"slices"
	"strings"

	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Properties maps argument names to their schema, in declaration order.
type Properties = orderedmap.OrderedMap[string, *jsonschema.Schema]

// InputSchema describes the arguments of a tool.
type InputSchema struct {
	// Properties is never nil after discovery.
	Properties *Properties `json:"properties" yaml:"-"`
	// Required is never nil after discovery.
	Required []string `json:"required" yaml:"required"`
}

// NewInputSchema returns an empty schema.
func NewInputSchema() InputSchema {
	return InputSchema{
		Properties: orderedmap.New[string, *jsonschema.Schema](),
		Required:   []string{},
	}
}

// Declares returns true if the argument is a declared property.
func (s InputSchema) Declares(arg string) bool {
	if s.Properties == nil {
		return false
	}
	_, ok := s.Properties.Get(arg)
	return ok
}

// PropertyNames returns the declared argument names in order.
func (s InputSchema) PropertyNames() []string {
	if s.Properties == nil {
		return nil
	}
	names := make([]string, 0, s.Properties.Len())
	for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// IsRequired returns true if the argument is required.
func (s InputSchema) IsRequired(arg string) bool {
	return slices.Contains(s.Required, arg)
}

// JSONSchema returns the object schema sent to the model.
func (s InputSchema) JSONSchema() *jsonschema.Schema {
	props := s.Properties
	if props == nil {
		props = orderedmap.New[string, *jsonschema.Schema]()
	}
	return &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   slices.Clone(s.Required),
	}
}

// ToolDescriptor is a remote tool declared by the server.
type ToolDescriptor struct {
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	InputSchema InputSchema `json:"input_schema" yaml:"input_schema"`
}

// ResourceDescriptor is a readable resource declared by the server.
type ResourceDescriptor struct {
	// URI is the resource URI, or the URI template such as papers://{topic}.
	URI         string `json:"uri" yaml:"uri"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	MIMEType    string `json:"mime_type,omitempty" yaml:"mime_type,omitempty"`
	Template    bool   `json:"template,omitempty" yaml:"template,omitempty"`
}

// Matches returns true if the URI is this resource, or is an expansion
// of this template. Only the literal prefix of a template is compared.
func (r ResourceDescriptor) Matches(uri string) bool {
	if !r.Template {
		return r.URI == uri
	}
	prefix, _, hasVar := strings.Cut(r.URI, "{")
	if !hasVar {
		return r.URI == uri
	}
	return len(uri) > len(prefix) && strings.HasPrefix(uri, prefix)
}

// PromptArgument is one declared argument of a prompt.
type PromptArgument struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool   `json:"required,omitempty" yaml:"required,omitempty"`
}

// PromptDescriptor is a prompt template declared by the server.
type PromptDescriptor struct {
	Name        string           `json:"name" yaml:"name"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty" yaml:"arguments,omitempty"`
}
