package assistants

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/chatmodel"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/mcpchat/pkg/metricskey"
	"github.com/effective-security/mcpchat/tools"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// DefaultMaxIdentifiers caps the identifiers chained after one discovery call.
const DefaultMaxIdentifiers = 3

// ChainRole binds a chain step to a tool and the argument that receives
// the step input. An empty Argument selects the first required, or else
// the first declared, parameter of the tool.
type ChainRole struct {
	Tool     string `json:"tool,omitempty" yaml:"tool,omitempty"`
	Argument string `json:"argument,omitempty" yaml:"argument,omitempty"`
}

// DiscoveryRole is the tool whose result lists the identifiers to chain.
type DiscoveryRole struct {
	Tool string `json:"tool,omitempty" yaml:"tool,omitempty"`
	// IdentifiersPath locates the list when the result is a JSON object.
	IdentifiersPath string `json:"identifiers_path,omitempty" yaml:"identifiers_path,omitempty"`
	// MaxIdentifiers defaults to DefaultMaxIdentifiers.
	MaxIdentifiers int `json:"max_identifiers,omitempty" yaml:"max_identifiers,omitempty" validate:"gte=0"`
}

// ChainConfig describes the pipeline: discovery, then per identifier
// detail, optional rich detail, and condensation.
// Chaining is disabled when Discovery.Tool is empty.
type ChainConfig struct {
	Discovery  DiscoveryRole `json:"discovery" yaml:"discovery"`
	Detail     ChainRole     `json:"detail" yaml:"detail"`
	RichDetail ChainRole     `json:"rich_detail" yaml:"rich_detail"`
	Condense   ChainRole     `json:"condense" yaml:"condense"`
}

// DefaultChainConfig is the research pipeline: search_papers, extract_info, summarize_paper.
func DefaultChainConfig() ChainConfig {
	return ChainConfig{
		Discovery: DiscoveryRole{
			Tool:            "search_papers",
			IdentifiersPath: "paper_ids",
			MaxIdentifiers:  DefaultMaxIdentifiers,
		},
		Detail:   ChainRole{Tool: "extract_info", Argument: "paper_id"},
		Condense: ChainRole{Tool: "summarize_paper", Argument: "text"},
	}
}

// ChainStep is a role resolved against the catalog.
type ChainStep struct {
	Tool     tools.ITool
	Argument string
}

// ChainPlan is the chain configuration resolved against the catalog.
// Unavailable roles are nil.
type ChainPlan struct {
	Discovery       string
	IdentifiersPath string
	MaxIdentifiers  int

	Detail     *ChainStep
	RichDetail *ChainStep
	Condense   *ChainStep
}

// Resolve binds the roles to the tools of the table.
// It returns nil when chaining is disabled or the discovery tool is missing.
func (c ChainConfig) Resolve(ctx context.Context, table *tools.Table) *ChainPlan {
	if c.Discovery.Tool == "" {
		return nil
	}
	if !table.Has(c.Discovery.Tool) {
		logger.ContextKV(ctx, xlog.INFO,
			"status", "chain_disabled",
			"reason", "discovery_tool_not_found",
			"tool", c.Discovery.Tool,
		)
		return nil
	}

	plan := &ChainPlan{
		Discovery:       c.Discovery.Tool,
		IdentifiersPath: c.Discovery.IdentifiersPath,
		MaxIdentifiers:  values.NumbersCoalesce(c.Discovery.MaxIdentifiers, DefaultMaxIdentifiers),
		Detail:          resolveRole(ctx, "detail", c.Detail, table),
		RichDetail:      resolveRole(ctx, "rich_detail", c.RichDetail, table),
		Condense:        resolveRole(ctx, "condense", c.Condense, table),
	}

	logger.ContextKV(ctx, xlog.INFO,
		"status", "chain_resolved",
		"discovery", plan.Discovery,
		"detail", plan.Detail.name(),
		"rich_detail", plan.RichDetail.name(),
		"condense", plan.Condense.name(),
		"max_identifiers", plan.MaxIdentifiers,
	)
	return plan
}

func resolveRole(ctx context.Context, role string, r ChainRole, table *tools.Table) *ChainStep {
	if r.Tool == "" {
		return nil
	}
	if !table.Has(r.Tool) {
		logger.ContextKV(ctx, xlog.INFO,
			"status", "chain_role_unavailable",
			"role", role,
			"tool", r.Tool,
			"reason", "tool_not_found",
		)
		return nil
	}
	tool, _ := table.Get(r.Tool)

	arg := r.Argument
	if arg == "" {
		arg = defaultArgument(tool)
	}
	if arg == "" || !tool.Declares(arg) {
		logger.ContextKV(ctx, xlog.INFO,
			"status", "chain_role_unavailable",
			"role", role,
			"tool", r.Tool,
			"argument", arg,
			"reason", "argument_not_declared",
		)
		return nil
	}
	return &ChainStep{Tool: tool, Argument: arg}
}

func defaultArgument(tool tools.ITool) string {
	schema := tool.Parameters()
	if schema == nil {
		return ""
	}
	for _, name := range schema.Required {
		if tool.Declares(name) {
			return name
		}
	}
	if schema.Properties != nil {
		if pair := schema.Properties.Oldest(); pair != nil {
			return pair.Key
		}
	}
	return ""
}

func (s *ChainStep) name() string {
	if s == nil {
		return ""
	}
	return s.Tool.Name()
}

// ShouldChain returns true if the tool just executed is the discovery tool
// and the detail tool is available. Condensation is optional.
func (p *ChainPlan) ShouldChain(toolName string) bool {
	return p != nil && p.Detail != nil && toolName == p.Discovery
}

// ParseIdentifiers reads the identifiers from a discovery result:
// a JSON array of strings or numbers, or an object holding one at path.
func ParseIdentifiers(result, path string) ([]string, error) {
	if !gjson.Valid(result) {
		return nil, chainParseError("invalid JSON")
	}
	v := gjson.Parse(result)
	if v.IsObject() && path != "" {
		v = v.Get(path)
	}
	if !v.IsArray() {
		return nil, chainParseError("expected array, got %s", v.Type)
	}

	var ids []string
	for _, el := range v.Array() {
		switch el.Type {
		case gjson.String, gjson.Number:
			ids = append(ids, el.String())
		default:
			return nil, chainParseError("unexpected identifier %s", el.Raw)
		}
	}
	return ids, nil
}

func chainParseError(format string, args ...any) error {
	return errors.Mark(errors.Wrap(errors.Newf(format, args...), chatmodel.ErrChainParse.Error()), chatmodel.ErrChainParse)
}

// stepArguments builds the JSON arguments of a chain step.
func stepArguments(arg, value string) (string, error) {
	return sjson.Set("{}", escapePath(arg), value)
}

var pathEscaper = strings.NewReplacer(
	`\`, `\\`,
	`.`, `\.`,
	`*`, `\*`,
	`?`, `\?`,
	`|`, `\|`,
	`#`, `\#`,
	`@`, `\@`,
	`:`, `\:`,
)

func escapePath(key string) string {
	return pathEscaper.Replace(key)
}

// runChain executes the chain for a discovery result and returns the
// exchanges to append to the history. Failures never abort the turn.
func (e *Engine) runChain(ctx context.Context, plan *ChainPlan, discoveryResult string) []llms.Message {
	ids, err := ParseIdentifiers(discoveryResult, plan.IdentifiersPath)
	if err != nil {
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "chain_parse_failed",
			"tool", plan.Discovery,
			"result", slices.StringUpto(discoveryResult, 64),
			"err", err.Error(),
		)
		return nil
	}
	if len(ids) == 0 {
		return nil
	}

	if len(ids) > plan.MaxIdentifiers {
		logger.ContextKV(ctx, xlog.DEBUG,
			"status", "chain_truncated",
			"tool", plan.Discovery,
			"identifiers", len(ids),
			"max", plan.MaxIdentifiers,
		)
		metricskey.StatsChainIdentifiersTruncated.IncrCounter(float64(len(ids)-plan.MaxIdentifiers), plan.Discovery)
		ids = ids[:plan.MaxIdentifiers]
	}

	if cb := e.cfg.CallbackHandler; cb != nil {
		cb.OnChainStart(ctx, plan.Discovery, ids)
	}

	var history []llms.Message
	for _, id := range ids {
		detail, msgs, err := e.chainCall(ctx, plan.Detail, id)
		history = append(history, msgs...)
		if err != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"status", "chain_step_failed",
				"step", "detail",
				"identifier", id,
				"err", err.Error(),
			)
			continue
		}

		text := detail
		if plan.RichDetail != nil {
			rich, msgs, err := e.chainCall(ctx, plan.RichDetail, id)
			history = append(history, msgs...)
			if err != nil {
				logger.ContextKV(ctx, xlog.WARNING,
					"status", "chain_step_failed",
					"step", "rich_detail",
					"identifier", id,
					"err", err.Error(),
				)
			} else {
				text = rich
			}
		}

		if plan.Condense != nil {
			_, msgs, err := e.chainCall(ctx, plan.Condense, text)
			history = append(history, msgs...)
			if err != nil {
				logger.ContextKV(ctx, xlog.WARNING,
					"status", "chain_step_failed",
					"step", "condense",
					"identifier", id,
					"err", err.Error(),
				)
			}
		}
	}
	return history
}

// chainCall dispatches one synthetic tool call and returns its result
// with the assistant and tool messages that record it.
func (e *Engine) chainCall(ctx context.Context, step *ChainStep, input string) (string, []llms.Message, error) {
	toolName := step.Tool.Name()
	args, err := stepArguments(step.Argument, input)
	if err != nil {
		metricskey.StatsChainStepsFailed.IncrCounter(1, toolName)
		return "", nil, errors.Mark(errors.Wrapf(err, "failed to build arguments for %s", toolName), chatmodel.ErrChainStep)
	}

	req := chatmodel.ToolCallRequest{
		ID:           "chain_" + uuid.NewString(),
		ToolName:     toolName,
		RawArguments: args,
	}
	call := llms.MessageFromToolCalls(llms.RoleAI, req.ToLLM())
	resp, result, err := e.dispatch(ctx, req)
	msgs := []llms.Message{call, resp}
	if err != nil {
		metricskey.StatsChainStepsFailed.IncrCounter(1, toolName)
		return "", msgs, errors.Mark(err, chatmodel.ErrChainStep)
	}
	metricskey.StatsChainStepsSucceeded.IncrCounter(1, toolName)
	return result, msgs, nil
}
