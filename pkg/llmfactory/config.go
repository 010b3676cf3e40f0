package llmfactory

import (
	"os"
	"slices"

	"github.com/effective-security/x/configloader"
	"github.com/effective-security/x/values"
)

// Azure OpenAI environment variables used when no config file is provided.
const (
	EnvAzureEndpoint   = "AZURE_OPENAI_ENDPOINT"
	EnvAzureModel      = "AZURE_OPENAI_MODEL"
	EnvAzureAPIKey     = "AZURE_OPENAI_API_KEY" //nolint:gosec
	EnvAzureAPIVersion = "AZURE_OPENAI_API_VERSION"

	// DefaultAzureAPIVersion is used when AZURE_OPENAI_API_VERSION is not set.
	DefaultAzureAPIVersion = "2024-03-01-preview"
)

type Config struct {
	// Providers specifies the list of providers to use
	Providers []*ProviderConfig `json:"providers" yaml:"providers" validate:"dive"`
	// DefaultProvider specifies the default provider to use
	DefaultProvider string `json:"default_provider" yaml:"default_provider"`
	// AssistantModels specifies the mapping of assistants to models.
	// key is the assistant name, value is the model name.
	// Use `default: <model_name>` as the default model for assistants.
	AssistantModels map[string][]string `json:"assistant_models" yaml:"assistant_models"`
}

// ProviderConfig for a model provider
type ProviderConfig struct {
	Name            string       `json:"name" yaml:"name" validate:"required"`
	Token           string       `json:"token,omitempty" yaml:"token,omitempty"`
	DefaultModel    string       `json:"default_model,omitempty" yaml:"default_model,omitempty"`
	AvailableModels []string     `json:"available_models,omitempty" yaml:"available_models,omitempty"`
	OpenAI          OpenAIConfig `json:"open_ai" yaml:"open_ai"`
}

// OpenAIConfig specifies options config
type OpenAIConfig struct {
	BaseURL    string `json:"base_url,omitempty" yaml:"base_url,omitempty" validate:"omitempty,url"`
	APIVersion string `json:"api_version,omitempty" yaml:"api_version,omitempty"`
	// APIType specifies the type of API to use:
	// OPENAI|AZURE|AZURE_AD|ANTHROPIC
	APIType string `json:"api_type,omitempty" yaml:"api_type,omitempty" validate:"required,oneof=OPENAI OPEN_AI AZURE AZURE_AD ANTHROPIC openai open_ai azure azure_ad anthropic"`
	// OrgID specifies which organization's quota and billing should be used when making API requests.
	OrgID string `json:"org_id,omitempty" yaml:"org_id,omitempty"`
}

func (c *ProviderConfig) FindModel(models ...string) string {
	for _, model := range models {
		if slices.Contains(c.AvailableModels, model) {
			return model
		}
	}
	return c.DefaultModel
}

// LoadConfig from file
func LoadConfig(file string) (*Config, error) {
	cfg := new(Config)
	if file == "" {
		return cfg, nil
	}

	err := configloader.UnmarshalAndExpand(file, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// AzureFromEnv returns a single-provider config built from the
// AZURE_OPENAI_* environment variables.
func AzureFromEnv() *Config {
	model := os.Getenv(EnvAzureModel)
	p := &ProviderConfig{
		Name:         "azure",
		Token:        os.Getenv(EnvAzureAPIKey),
		DefaultModel: model,
		OpenAI: OpenAIConfig{
			BaseURL:    os.Getenv(EnvAzureEndpoint),
			APIVersion: values.StringsCoalesce(os.Getenv(EnvAzureAPIVersion), DefaultAzureAPIVersion),
			APIType:    "AZURE",
		},
	}
	if model != "" {
		p.AvailableModels = []string{model}
	}
	return &Config{
		Providers:       []*ProviderConfig{p},
		DefaultProvider: p.Name,
	}
}
