package chatmodel

import "github.com/cockroachdb/errors"

// Recoverable failures. The engine turns them into conversation text.
var (
	// ErrMalformedToolCall is returned when tool call arguments are not a JSON object.
	ErrMalformedToolCall = errors.New("malformed tool call arguments")
	// ErrToolInvocation is returned when the provider fails a tool call.
	ErrToolInvocation = errors.New("tool invocation failed")
	// ErrToolNotFound is returned when the model asks for a tool that is not in the catalog.
	ErrToolNotFound = errors.New("tool not found")
	// ErrToolTimeout is returned when a tool call exceeds its deadline.
	ErrToolTimeout = errors.New("tool call timed out")
	// ErrChainParse is returned when a discovery result is not a list of identifiers.
	ErrChainParse = errors.New("discovery result is not a list of identifiers")
	// ErrChainStep is returned when a chained detail or condensation call fails.
	ErrChainStep = errors.New("chain step failed")
	// ErrResourceNotFound is returned for an unknown resource URI.
	ErrResourceNotFound = errors.New("resource not found")
	// ErrPromptNotFound is returned for an unknown prompt name.
	ErrPromptNotFound = errors.New("prompt not found")
)

// Fatal failures, returned to the caller.
var (
	// ErrCatalogDiscovery is returned when listing the server capabilities fails.
	ErrCatalogDiscovery = errors.New("capability discovery failed")
	// ErrNotConnected is returned when no session is established.
	ErrNotConnected = errors.New("not connected")
	// ErrAlreadyConnected is returned when connecting twice.
	ErrAlreadyConnected = errors.New("already connected")
	// ErrInvalidChatContext is returned when the context has no chat.
	ErrInvalidChatContext = errors.New("invalid chat context")
)
