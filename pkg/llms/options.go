package llms

import (
	"github.com/invopop/jsonschema"
)

// ToolTypeFunction is the only tool type sent to providers.
const ToolTypeFunction = "function"

// ToolChoice controls whether the model may request tools.
type ToolChoice string

const (
	// ToolChoiceAuto lets the model decide.
	ToolChoiceAuto ToolChoice = "auto"
	// ToolChoiceNone forbids tool requests, the tools are still declared.
	ToolChoiceNone ToolChoice = "none"
)

// CallOption is a function that configures a CallOptions.
type CallOption func(*CallOptions)

// CallOptions is a set of options for one model request.
type CallOptions struct {
	// Model overrides the model name of the provider.
	Model string
	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int
	// Temperature is the temperature for sampling.
	Temperature float64
	// StopWords is a list of words to stop on.
	StopWords []string

	// Tools are the functions the model may request.
	Tools []Tool
	// ToolChoice is empty when the provider default applies.
	ToolChoice ToolChoice
}

// HasTools returns true if tools are declared for the request.
func (o CallOptions) HasTools() bool {
	return len(o.Tools) > 0
}

// Tool is a function declared to the model.
type Tool struct {
	Type     string              `json:"type"`
	Function *FunctionDefinition `json:"function,omitempty"`
}

// FunctionDefinition describes a function and its JSON schema parameters.
type FunctionDefinition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters,omitempty"`
}

// FunctionTool returns a function tool.
func FunctionTool(name, description string, parameters *jsonschema.Schema) Tool {
	return Tool{
		Type: ToolTypeFunction,
		Function: &FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}
}

// WithModel specifies which model name to use.
func WithModel(model string) CallOption {
	return func(o *CallOptions) {
		o.Model = model
	}
}

// WithMaxTokens specifies the max number of tokens to generate.
func WithMaxTokens(maxTokens int) CallOption {
	return func(o *CallOptions) {
		o.MaxTokens = maxTokens
	}
}

// WithTemperature specifies the model temperature.
func WithTemperature(temperature float64) CallOption {
	return func(o *CallOptions) {
		o.Temperature = temperature
	}
}

// WithStopWords specifies a list of words to stop generation on.
func WithStopWords(stopWords []string) CallOption {
	return func(o *CallOptions) {
		o.StopWords = stopWords
	}
}

// WithTools declares the tools for the request.
func WithTools(tools []Tool) CallOption {
	return func(o *CallOptions) {
		o.Tools = tools
	}
}

// WithToolChoice sets whether the model may request the declared tools.
func WithToolChoice(choice ToolChoice) CallOption {
	return func(o *CallOptions) {
		o.ToolChoice = choice
	}
}

// NewCallOptions applies the options over the defaults.
func NewCallOptions(defaults CallOptions, options ...CallOption) CallOptions {
	opts := defaults
	for _, opt := range options {
		opt(&opts)
	}
	return opts
}
