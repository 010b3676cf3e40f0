package tools

import (
	"context"

	"github.com/invopop/jsonschema"
)

// ITool is a tool the model may ask to invoke.
type ITool interface {
	// Name returns the name of the Tool.
	Name() string
	// Description returns the description of the tool, to be used in the prompt.
	Description() string
	// Parameters returns the parameters definition of the function, to be used in the prompt.
	Parameters() *jsonschema.Schema
	// Declares returns true if the argument is a declared parameter.
	Declares(arg string) bool

	// Call executes the tool with parsed arguments and returns the result text.
	Call(ctx context.Context, args map[string]any) (string, error)
}

type Callback interface {
	OnToolStart(ctx context.Context, tool ITool, input string)
	OnToolEnd(ctx context.Context, tool ITool, input string, output string)
	OnToolError(ctx context.Context, tool ITool, input string, err error)
}
