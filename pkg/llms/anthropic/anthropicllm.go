package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/x/values"
)

var (
	ErrEmptyResponse          = errors.New("anthropic: no response")
	ErrMissingToken           = errors.New("anthropic: missing API key, set it in the ANTHROPIC_API_KEY environment variable")
	ErrInvalidContentType     = errors.New("anthropic: invalid content type")
	ErrUnsupportedMessageType = errors.New("anthropic: unsupported message type")
	ErrUnsupportedContentType = errors.New("anthropic: unsupported content type")
)

const (
	// DefaultBaseURL of the Messages API.
	DefaultBaseURL = "https://api.anthropic.com"
	// DefaultMaxTokens is sent when the call does not limit the output,
	// the API requires max_tokens.
	DefaultMaxTokens = 1024

	requestTimeout = 5 * time.Minute
)

// LLM is a chat model backed by the Anthropic Messages API.
type LLM struct {
	Client  *anthropic.Client
	Options *Options
}

var _ llms.Model = (*LLM)(nil)

// New returns the model, the token defaults to ANTHROPIC_API_KEY.
func New(opts ...Option) (*LLM, error) {
	o := &Options{
		Token:      os.Getenv(TokenEnvVarName),
		BaseURL:    DefaultBaseURL,
		HttpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(o)
	}

	switch {
	case o.Token == "":
		return nil, ErrMissingToken
	case o.Model == "":
		return nil, errors.New("anthropic: model is required")
	}

	client := anthropic.NewClient(o.requestOptions()...)
	return &LLM{
		Client:  &client,
		Options: o,
	}, nil
}

func (o *Options) requestOptions() []option.RequestOption {
	ro := []option.RequestOption{
		option.WithAPIKey(o.Token),
		option.WithMaxRetries(o.MaxRetries),
		option.WithRequestTimeout(requestTimeout),
	}
	if o.BaseURL != "" {
		ro = append(ro, option.WithBaseURL(o.BaseURL))
	}
	if o.HttpClient != nil {
		ro = append(ro, option.WithHTTPClient(o.HttpClient))
	}
	if o.AnthropicBetaHeader != "" {
		ro = append(ro, option.WithHeader("anthropic-beta", o.AnthropicBetaHeader))
	}
	return ro
}

// GetName implements the Model interface.
func (o *LLM) GetName() string {
	return o.Options.Model
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderAnthropic
}

// GenerateContent implements the Model interface.
// Each text or tool use block of the reply becomes one choice.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.NewCallOptions(llms.CallOptions{Model: o.Options.Model}, options...)

	params, err := newMessageParams(messages, &opts)
	if err != nil {
		return nil, err
	}

	reply, err := o.Client.Messages.New(ctx, params)
	if err != nil {
		return nil, errors.Wrap(err, "anthropic: failed to create message")
	}
	return toContentResponse(reply)
}

func newMessageParams(messages []llms.Message, opts *llms.CallOptions) (anthropic.MessageNewParams, error) {
	msgs, system, err := ProcessMessages(messages)
	if err != nil {
		return anthropic.MessageNewParams{}, errors.Wrap(err, "anthropic: failed to process messages")
	}

	params := anthropic.MessageNewParams{
		Model:         anthropic.Model(opts.Model),
		Messages:      msgs,
		MaxTokens:     values.NumbersCoalesce(int64(opts.MaxTokens), DefaultMaxTokens),
		StopSequences: opts.StopWords,
		Tools:         ToTools(opts.Tools),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: system}}
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}
	// the API has no "auto" without tools, and "none" keeps the tools declared
	if len(params.Tools) > 0 && opts.ToolChoice == llms.ToolChoiceNone {
		params.ToolChoice = anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
	}
	return params, nil
}

func toContentResponse(reply *anthropic.Message) (*llms.ContentResponse, error) {
	if len(reply.Content) == 0 {
		return nil, ErrEmptyResponse
	}

	resp := &llms.ContentResponse{
		Choices: make([]*llms.ContentChoice, 0, len(reply.Content)),
	}
	for i, block := range reply.Content {
		choice := &llms.ContentChoice{
			StopReason: string(reply.StopReason),
			GenerationInfo: map[string]any{
				"ID":           reply.ID,
				"Index":        i,
				"InputTokens":  reply.Usage.InputTokens,
				"OutputTokens": reply.Usage.OutputTokens,
				"TotalTokens":  reply.Usage.InputTokens + reply.Usage.OutputTokens,
			},
		}

		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			choice.Content = b.Text
		case anthropic.ToolUseBlock:
			args, err := json.Marshal(b.Input)
			if err != nil {
				return nil, errors.Wrap(err, "anthropic: failed to marshal tool use arguments")
			}
			choice.ToolCalls = []llms.ToolCall{{
				ID:   b.ID,
				Type: llms.ToolTypeFunction,
				FunctionCall: &llms.FunctionCall{
					Name:      b.Name,
					Arguments: string(args),
				},
			}}
		default:
			return nil, errors.WithMessagef(ErrUnsupportedContentType, "anthropic: %T", b)
		}
		resp.Choices = append(resp.Choices, choice)
	}
	return resp, nil
}
