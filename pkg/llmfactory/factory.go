package llmfactory

import (
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/mcpchat/pkg/llms/anthropic"
	"github.com/effective-security/mcpchat/pkg/llms/openai"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpchat", "llmfactory")

// NewLLM creates the model for a provider, tests replace it with a fake.
var NewLLM = CreateLLM

// Factory selects and caches chat models of the configured providers.
type Factory interface {
	// DefaultModel returns the default model of the default provider.
	DefaultModel() (llms.Model, error)
	// ModelByType returns the default model of the first provider
	// with the API type: OPENAI, AZURE, AZURE_AD or ANTHROPIC.
	ModelByType(providerType string) (llms.Model, error)
	// ModelByName returns the first of the models that a provider lists
	// as available, or the default model.
	ModelByName(models ...string) (llms.Model, error)
	// AssistantModel returns the model mapped to the assistant name,
	// then the one mapped to "default", then ModelByName(preferred...).
	AssistantModel(assistant string, preferred ...string) (llms.Model, error)
}

// Load returns a factory for the config file
func Load(location string) (Factory, error) {
	cfg, err := LoadConfig(location)
	if err != nil {
		return nil, err
	}
	return New(cfg), nil
}

type constructor func(cfg *ProviderConfig, model string) (llms.Model, error)

var constructors = map[string]constructor{
	"OPENAI":    newOpenAI,
	"OPEN_AI":   newOpenAI,
	"AZURE":     newAzure,
	"AZURE_AD":  newAzure,
	"ANTHROPIC": newAnthropic,
}

// CreateLLM creates the model of the provider, the first of preferredModels
// available in the provider wins over its default model.
func CreateLLM(cfg *ProviderConfig, preferredModels ...string) (llms.Model, error) {
	apiType := strings.ToUpper(cfg.OpenAI.APIType)
	create, ok := constructors[apiType]
	if !ok {
		return nil, errors.Errorf("unsupported provider type: %s", apiType)
	}
	return create(cfg, cfg.FindModel(preferredModels...))
}

func newOpenAI(cfg *ProviderConfig, model string) (llms.Model, error) {
	opts := []openai.Option{
		openai.WithProvider(llms.ProviderOpenAI),
		openai.WithModel(model),
	}
	if cfg.OpenAI.OrgID != "" {
		opts = append(opts, openai.WithOrganization(cfg.OpenAI.OrgID))
	}
	return openai.New(append(opts, openaiEndpoint(cfg)...)...)
}

func newAzure(cfg *ProviderConfig, model string) (llms.Model, error) {
	provider := llms.ProviderAzure
	if strings.EqualFold(cfg.OpenAI.APIType, string(llms.ProviderAzureAD)) {
		provider = llms.ProviderAzureAD
	}
	opts := []openai.Option{
		openai.WithProvider(provider),
		openai.WithModel(model),
		openai.WithAPIVersion(cfg.OpenAI.APIVersion),
	}
	return openai.New(append(opts, openaiEndpoint(cfg)...)...)
}

func openaiEndpoint(cfg *ProviderConfig) []openai.Option {
	var opts []openai.Option
	if cfg.Token != "" {
		opts = append(opts, openai.WithToken(cfg.Token))
	}
	if cfg.OpenAI.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.OpenAI.BaseURL))
	}
	return opts
}

func newAnthropic(cfg *ProviderConfig, model string) (llms.Model, error) {
	opts := []anthropic.Option{anthropic.WithModel(model)}
	if cfg.Token != "" {
		opts = append(opts, anthropic.WithToken(cfg.Token))
	}
	if cfg.OpenAI.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.OpenAI.BaseURL))
	}
	return anthropic.New(opts...)
}

type factory struct {
	cfg      *Config
	fallback *ProviderConfig

	lock   sync.Mutex
	models map[string]llms.Model
}

// New creates a new LLM factory
func New(cfg *Config) Factory {
	f := &factory{
		cfg:    cfg,
		models: make(map[string]llms.Model),
	}
	for _, p := range cfg.Providers {
		if p.Name == cfg.DefaultProvider {
			f.fallback = p
			break
		}
	}
	if f.fallback == nil && len(cfg.Providers) > 0 {
		f.fallback = cfg.Providers[0]
	}
	return f
}

// model returns the cached model of the provider, or creates it.
func (f *factory) model(p *ProviderConfig, preferred ...string) (llms.Model, error) {
	key := p.Name + "/" + p.FindModel(preferred...)

	f.lock.Lock()
	defer f.lock.Unlock()

	if m, ok := f.models[key]; ok {
		return m, nil
	}
	m, err := NewLLM(p, preferred...)
	if err != nil {
		return nil, err
	}
	logger.KV(xlog.DEBUG,
		"status", "created_llm",
		"key", key,
		"type", p.OpenAI.APIType,
		"version", p.OpenAI.APIVersion)

	f.models[key] = m
	return m, nil
}

func (f *factory) DefaultModel() (llms.Model, error) {
	if f.fallback == nil {
		return nil, errors.New("no providers configured")
	}
	return f.model(f.fallback, f.fallback.DefaultModel)
}

func (f *factory) ModelByType(providerType string) (llms.Model, error) {
	for _, p := range f.cfg.Providers {
		if strings.EqualFold(p.OpenAI.APIType, providerType) {
			return f.model(p)
		}
	}
	return nil, errors.Errorf("provider not found for type: %s", providerType)
}

func (f *factory) ModelByName(models ...string) (llms.Model, error) {
	for _, name := range models {
		for _, p := range f.cfg.Providers {
			if name == "" || p.FindModel(name) != name {
				continue
			}
			m, err := f.model(p, name)
			if err != nil {
				logger.KV(xlog.ERROR,
					"reason", "create_llm",
					"provider", p.Name,
					"model", name,
					"err", err.Error())
				continue
			}
			return m, nil
		}
	}
	return f.DefaultModel()
}

func (f *factory) AssistantModel(assistant string, preferred ...string) (llms.Model, error) {
	for _, key := range []string{assistant, "default"} {
		if models, ok := f.cfg.AssistantModels[key]; ok {
			return f.ModelByName(models...)
		}
	}
	return f.ModelByName(preferred...)
}
