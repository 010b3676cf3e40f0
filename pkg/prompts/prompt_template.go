package prompts

import (
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/cockroachdb/errors"
)

// ErrMissingInputVariable is returned when a declared input variable has no value.
var ErrMissingInputVariable = errors.New("missing input variable")

// PromptTemplate is a Go text/template with sprig functions.
type PromptTemplate struct {
	// Template is the template text.
	Template string
	// InputVariables must be present in the values passed to Format.
	InputVariables []string
	// PartialVariables are defaults merged under the values.
	PartialVariables map[string]any
}

// NewPromptTemplate returns a new prompt template.
func NewPromptTemplate(template string, inputVars []string) PromptTemplate {
	return PromptTemplate{
		Template:       template,
		InputVariables: inputVars,
	}
}

// Format renders the template.
func (p PromptTemplate) Format(values map[string]any) (string, error) {
	resolved := make(map[string]any, len(p.PartialVariables)+len(values))
	for k, v := range p.PartialVariables {
		resolved[k] = v
	}
	for k, v := range values {
		resolved[k] = v
	}
	for _, name := range p.InputVariables {
		if _, ok := resolved[name]; !ok {
			return "", errors.WithMessagef(ErrMissingInputVariable, "%q", name)
		}
	}
	return RenderTemplate(p.Template, resolved)
}

// RenderTemplate renders a text template with sprig functions.
func RenderTemplate(tmpl string, values map[string]any) (string, error) {
	t, err := template.New("prompt").
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=error").
		Parse(tmpl)
	if err != nil {
		return "", errors.Wrap(err, "failed to parse template")
	}
	var sb strings.Builder
	if err = t.Execute(&sb, values); err != nil {
		return "", errors.Wrap(err, "failed to render template")
	}
	return sb.String(), nil
}
