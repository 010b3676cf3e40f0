// Package llms provides the model contract shared by the chat providers used by the engine.
//
// Each subpackage includes a provider-specific implementation of Model. The internal
// directories within these subpackages contain provider-specific client and API code.
//
// The `llms.go` file contains the Model interface and provider capabilities.
//
// The `generatecontent.go` file contains the message and response types.
//
// The `options.go` file provides call options and tool definitions.
package llms
