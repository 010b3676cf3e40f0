package llms

import (
	"context"
)

// ProviderType names the API behind a Model.
type ProviderType string

const (
	ProviderAnthropic ProviderType = "ANTHROPIC"
	ProviderAzure     ProviderType = "AZURE"
	ProviderAzureAD   ProviderType = "AZURE_AD"
	ProviderOpenAI    ProviderType = "OPENAI"
)

//go:generate mockgen -destination=../../mocks/mockllms/llm_mock.gen.go -package mockllms github.com/effective-security/mcpchat/pkg/llms Model

// Model is a chat model.
type Model interface {
	// GetName returns the model name.
	GetName() string
	// GetProviderType returns the type of provider.
	GetProviderType() ProviderType
	// GenerateContent returns the reply to the conversation,
	// text or tool calls or both.
	GenerateContent(ctx context.Context, messages []Message, options ...CallOption) (*ContentResponse, error)
}

// Capability is a set of provider features.
type Capability uint64

const (
	CapabilityText Capability = 1 << iota
	CapabilityFunctionCalling
	// CapabilityToollessFollowup allows tool calls in the history of a
	// request that declares no tools.
	CapabilityToollessFollowup
)

const openAICapabilities = CapabilityText | CapabilityFunctionCalling | CapabilityToollessFollowup

var capabilities = map[ProviderType]Capability{
	ProviderOpenAI:    openAICapabilities,
	ProviderAzure:     openAICapabilities,
	ProviderAzureAD:   openAICapabilities,
	ProviderAnthropic: CapabilityText | CapabilityFunctionCalling,
}

// Supports returns true if the provider has all of the capabilities.
func (p ProviderType) Supports(c Capability) bool {
	return capabilities[p]&c == c && c != 0
}
