// Package assistants provides the conversational engine: it keeps the
// conversation with the model, dispatches the tool calls the model asks for
// to the capability provider, chains dependent tools and gives access to
// the provider's resources and prompts.
package assistants
