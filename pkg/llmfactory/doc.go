// Package llmfactory provides configuration and a factory for chat models,
// supporting OpenAI, Azure OpenAI and Anthropic providers and model selection by name.
package llmfactory
