package chatmodel

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/tidwall/gjson"
)

// ToolCallRequest is a tool invocation asked for by the model or by the chain.
type ToolCallRequest struct {
	ID       string `json:"id"`
	ToolName string `json:"tool_name"`
	// RawArguments is the JSON text as produced by the model.
	RawArguments string `json:"raw_arguments"`
}

// ToolCallRequestFromLLM converts a model tool call.
func ToolCallRequestFromLLM(tc llms.ToolCall) ToolCallRequest {
	req := ToolCallRequest{ID: tc.ID}
	if tc.FunctionCall != nil {
		req.ToolName = tc.FunctionCall.Name
		req.RawArguments = tc.FunctionCall.Arguments
	}
	return req
}

// ToLLM returns the model representation of the request.
func (r ToolCallRequest) ToLLM() llms.ToolCall {
	return llms.ToolCall{
		ID:   r.ID,
		Type: llms.ToolTypeFunction,
		FunctionCall: &llms.FunctionCall{
			Name:      r.ToolName,
			Arguments: r.RawArguments,
		},
	}
}

// ParsedArguments is the outcome of parsing RawArguments,
// either Parsed or Malformed.
type ParsedArguments interface {
	isParsedArguments()
}

// Parsed holds arguments that decoded to a JSON object.
type Parsed struct {
	Value map[string]any
}

// Malformed holds arguments that could not be decoded.
type Malformed struct {
	Raw string
	Err error
}

func (Parsed) isParsedArguments()    {}
func (Malformed) isParsedArguments() {}

// Error implements error, wrapping ErrMalformedToolCall.
func (m Malformed) Error() string {
	return m.Unwrap().Error()
}

// Unwrap returns the typed cause.
func (m Malformed) Unwrap() error {
	if m.Err == nil {
		return ErrMalformedToolCall
	}
	return errors.Mark(errors.Wrap(m.Err, ErrMalformedToolCall.Error()), ErrMalformedToolCall)
}

// ParseArguments decodes the raw JSON arguments.
// Empty input is an empty object. Anything that is not a single JSON object is Malformed.
func ParseArguments(raw string) ParsedArguments {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Parsed{Value: map[string]any{}}
	}

	if !gjson.Valid(trimmed) {
		return Malformed{Raw: raw, Err: errors.New("invalid JSON")}
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(trimmed)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return Malformed{Raw: raw, Err: err}
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return Malformed{Raw: raw, Err: errors.Newf("expected JSON object, got %s", jsonKind(v))}
	}
	return Parsed{Value: obj}
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number:
		return "number"
	default:
		return "value"
	}
}
