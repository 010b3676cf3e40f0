package openaiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/values"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/tidwall/gjson"
)

const (
	DefaultBaseURL    = "https://api.openai.com/v1"
	DefaultToolChoice = "auto"
	DefaultChatModel  = "gpt-4o-mini"
	DefaultMaxTokens  = 1024
)

// ErrEmptyResponse is returned when the response has no choices.
var ErrEmptyResponse = errors.New("empty response")

type ProviderType string

const (
	ProviderOpenAI  ProviderType = "OPENAI"
	ProviderAzure   ProviderType = "AZURE"
	ProviderAzureAD ProviderType = "AZURE_AD"
)

// IsAzure returns true for Azure deployments, keyed or AD.
func (p ProviderType) IsAzure() bool {
	return p == ProviderAzure || p == ProviderAzureAD
}

// Doer performs a HTTP request.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config of the client.
type Config struct {
	Provider     ProviderType
	Model        string
	Token        string
	BaseURL      string
	Organization string
	// APIVersion is the api-version query of Azure deployments.
	APIVersion string
	HTTPClient Doer
}

// Client of the chat completions API.
type Client struct {
	Model    string
	Provider ProviderType

	cfg Config
}

// New returns the client, with DefaultBaseURL and http.DefaultClient
// unless the config sets them.
func New(cfg Config) *Client {
	cfg.BaseURL = strings.TrimRight(values.StringsCoalesce(cfg.BaseURL, DefaultBaseURL), "/")
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &Client{
		Model:    cfg.Model,
		Provider: cfg.Provider,
		cfg:      cfg,
	}
}

// CreateChat sends the chat request, the model and token limit default
// to the client model and DefaultMaxTokens.
func (c *Client) CreateChat(ctx context.Context, r *openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	r.Model = openai.ChatModel(values.StringsCoalesce(string(r.Model), c.Model, DefaultChatModel))
	if !r.MaxCompletionTokens.Valid() {
		r.MaxCompletionTokens = param.NewOpt(int64(DefaultMaxTokens))
	}

	body, err := json.Marshal(r)
	if err != nil {
		return nil, errors.Wrap(err, "marshal payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/chat/completions", string(r.Model)), bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	c.authorize(req)

	res, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "send request")
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.StatusCode != http.StatusOK {
		return nil, statusError(res)
	}

	b, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	var resp openai.ChatCompletion
	if err = json.Unmarshal(b, &resp); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}
	return &resp, nil
}

// statusError returns the status code, with error.message of the body if any.
func statusError(res *http.Response) error {
	err := errors.Newf("API returned unexpected status code: %d", res.StatusCode)
	b, _ := io.ReadAll(io.LimitReader(res.Body, 64*1024))
	if msg := gjson.GetBytes(b, "error.message").String(); msg != "" {
		return errors.Errorf("%s: %s", err.Error(), msg)
	}
	return err
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.Provider == ProviderAzure {
		req.Header.Set("api-key", c.cfg.Token)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	if c.cfg.Organization != "" {
		req.Header.Set("OpenAI-Organization", c.cfg.Organization)
	}
}

// endpoint returns the URL of the operation, Azure routes by deployment:
// {base}/openai/deployments/{model}{suffix}?api-version={version}
func (c *Client) endpoint(suffix, model string) string {
	if !c.Provider.IsAzure() {
		return c.cfg.BaseURL + suffix
	}
	q := url.Values{"api-version": []string{c.cfg.APIVersion}}
	return c.cfg.BaseURL + "/openai/deployments/" + model + suffix + "?" + q.Encode()
}
