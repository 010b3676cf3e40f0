package openai

import (
	"net/http"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/mcpchat/pkg/llms/openai/internal/openaiclient"
	"github.com/effective-security/x/values"
)

// Environment read by New, options take precedence.
const (
	tokenEnvVarName        = "OPENAI_API_KEY"      //nolint:gosec
	modelEnvVarName        = "OPENAI_MODEL"        //nolint:gosec
	baseURLEnvVarName      = "OPENAI_BASE_URL"     //nolint:gosec
	baseAPIBaseEnvVarName  = "OPENAI_API_BASE"     //nolint:gosec
	organizationEnvVarName = "OPENAI_ORGANIZATION" //nolint:gosec
)

// DefaultAPIVersion of Azure deployments.
const DefaultAPIVersion = "2024-03-01-preview"

var (
	// ErrMissingToken is returned when the API token is not set.
	ErrMissingToken = errors.New("openai: missing the API key, set it in the OPENAI_API_KEY environment variable")
	// ErrMissingAzureModel is returned when the Azure deployment is not set.
	ErrMissingAzureModel = errors.New("openai: model is required for Azure deployments")
	// ErrMissingBaseURL is returned when the Azure endpoint is not set.
	ErrMissingBaseURL = errors.New("openai: base URL is required for Azure deployments")
)

// Option configures the client.
type Option func(*openaiclient.Config)

// WithToken sets the API key, or the AD token of AZURE_AD.
func WithToken(token string) Option {
	return func(c *openaiclient.Config) { c.Token = token }
}

// WithModel sets the model, for Azure it names the deployment.
func WithModel(model string) Option {
	return func(c *openaiclient.Config) { c.Model = model }
}

// WithBaseURL sets the API endpoint.
func WithBaseURL(baseURL string) Option {
	return func(c *openaiclient.Config) { c.BaseURL = baseURL }
}

// WithOrganization sets the OpenAI-Organization header.
func WithOrganization(organization string) Option {
	return func(c *openaiclient.Config) { c.Organization = organization }
}

// WithProvider selects OPENAI, AZURE or AZURE_AD, OPENAI by default.
func WithProvider(provider llms.ProviderType) Option {
	return func(c *openaiclient.Config) { c.Provider = openaiclient.ProviderType(provider) }
}

// WithAPIVersion sets the Azure API version, DefaultAPIVersion by default.
func WithAPIVersion(apiVersion string) Option {
	return func(c *openaiclient.Config) { c.APIVersion = apiVersion }
}

// WithHTTPClient overrides http.DefaultClient.
func WithHTTPClient(client openaiclient.Doer) Option {
	return func(c *openaiclient.Config) { c.HTTPClient = client }
}

func newClient(opts ...Option) (*openaiclient.Client, error) {
	cfg := openaiclient.Config{
		Provider:     openaiclient.ProviderOpenAI,
		Token:        os.Getenv(tokenEnvVarName),
		Model:        os.Getenv(modelEnvVarName),
		BaseURL:      values.StringsCoalesce(os.Getenv(baseURLEnvVarName), os.Getenv(baseAPIBaseEnvVarName)),
		Organization: os.Getenv(organizationEnvVarName),
		HTTPClient:   http.DefaultClient,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.Token == "" {
		return nil, ErrMissingToken
	}
	if cfg.Provider.IsAzure() {
		cfg.APIVersion = values.StringsCoalesce(cfg.APIVersion, DefaultAPIVersion)
		if cfg.Model == "" {
			return nil, ErrMissingAzureModel
		}
		if cfg.BaseURL == "" {
			return nil, ErrMissingBaseURL
		}
	}
	return openaiclient.New(cfg), nil
}
