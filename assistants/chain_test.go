package assistants_test

import (
	"context"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/assistants"
	"github.com/effective-security/mcpchat/chatmodel"
	"github.com/effective-security/mcpchat/pkg/llmutils"
	"github.com/effective-security/mcpchat/registry"
	"github.com/effective-security/mcpchat/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIdentifiers(t *testing.T) {
	t.Parallel()

	tcases := []struct {
		name   string
		result string
		path   string
		exp    []string
		err    string
	}{
		{name: "strings", result: `["x1","x2"]`, exp: []string{"x1", "x2"}},
		{name: "numbers", result: `[1, 2.5]`, exp: []string{"1", "2.5"}},
		{name: "empty", result: `[]`, exp: nil},
		{name: "object", result: `{"paper_ids":["a"]}`, path: "paper_ids", exp: []string{"a"}},
		{name: "nested", result: `{"data":{"ids":["a","b"]}}`, path: "data.ids", exp: []string{"a", "b"}},
		{name: "text", result: `No papers found`, err: "discovery result is not a list of identifiers: invalid JSON"},
		{name: "object_no_path", result: `{"ids":["a"]}`, err: "discovery result is not a list of identifiers: expected array, got JSON"},
		{name: "missing_path", result: `{"ids":["a"]}`, path: "paper_ids", err: "discovery result is not a list of identifiers: expected array, got Null"},
		{name: "nested_array", result: `[["a"]]`, err: `discovery result is not a list of identifiers: unexpected identifier ["a"]`},
		{name: "null_element", result: `["a", null]`, err: "discovery result is not a list of identifiers: unexpected identifier null"},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			ids, err := assistants.ParseIdentifiers(tc.result, tc.path)
			if tc.err != "" {
				require.Error(t, err)
				assert.EqualError(t, err, tc.err)
				assert.True(t, errors.Is(err, chatmodel.ErrChainParse))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.exp, ids)
		})
	}
}

func TestParseIdentifiers_Generated(t *testing.T) {
	t.Parallel()

	ids := make([]string, gofakeit.Number(1, 10))
	for i := range ids {
		ids[i] = gofakeit.Numerify("####.#####v#")
	}

	parsed, err := assistants.ParseIdentifiers(llmutils.ToJSON(ids), "")
	require.NoError(t, err)
	assert.Equal(t, ids, parsed)

	parsed, err = assistants.ParseIdentifiers(llmutils.ToJSON(map[string]any{"paper_ids": ids}), "paper_ids")
	require.NoError(t, err)
	assert.Equal(t, ids, parsed)
}

func testTable(t *testing.T, session *testSession) *tools.Table {
	t.Helper()
	descs, err := registry.DiscoverTools(context.Background(), session)
	require.NoError(t, err)
	table, err := tools.NewTable()
	require.NoError(t, err)
	for _, d := range descs {
		require.NoError(t, table.Add(tools.NewRemoteTool(session, d)))
	}
	return table
}

func TestChainConfig_Resolve(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	table := testTable(t, researchSession())

	def := assistants.DefaultChainConfig()
	assert.Equal(t, assistants.DefaultMaxIdentifiers, def.Discovery.MaxIdentifiers)

	plan := def.Resolve(ctx, table)
	require.NotNil(t, plan)
	assert.Equal(t, "search_papers", plan.Discovery)
	assert.Equal(t, "paper_ids", plan.IdentifiersPath)
	assert.Equal(t, 3, plan.MaxIdentifiers)
	require.NotNil(t, plan.Detail)
	assert.Equal(t, "extract_info", plan.Detail.Tool.Name())
	assert.Equal(t, "paper_id", plan.Detail.Argument)
	require.NotNil(t, plan.Condense)
	assert.Equal(t, "text", plan.Condense.Argument)
	assert.Nil(t, plan.RichDetail)

	assert.True(t, plan.ShouldChain("search_papers"))
	assert.False(t, plan.ShouldChain("extract_info"))

	t.Run("disabled", func(t *testing.T) {
		assert.Nil(t, assistants.ChainConfig{}.Resolve(ctx, table))
		var nilPlan *assistants.ChainPlan
		assert.False(t, nilPlan.ShouldChain("search_papers"))
	})

	t.Run("missing_discovery", func(t *testing.T) {
		cfg := assistants.ChainConfig{Discovery: assistants.DiscoveryRole{Tool: "find"}}
		assert.Nil(t, cfg.Resolve(ctx, table))
	})

	t.Run("undeclared_argument", func(t *testing.T) {
		cfg := assistants.DefaultChainConfig()
		cfg.Detail.Argument = "arxiv_id"
		plan := cfg.Resolve(ctx, table)
		require.NotNil(t, plan)
		assert.Nil(t, plan.Detail)
		assert.False(t, plan.ShouldChain("search_papers"))
	})

	t.Run("default_argument", func(t *testing.T) {
		cfg := assistants.ChainConfig{
			Discovery: assistants.DiscoveryRole{Tool: "search_papers", MaxIdentifiers: 5},
			Detail:    assistants.ChainRole{Tool: "extract_info"},
		}
		plan := cfg.Resolve(ctx, table)
		require.NotNil(t, plan)
		assert.Equal(t, 5, plan.MaxIdentifiers)
		require.NotNil(t, plan.Detail)
		assert.Equal(t, "paper_id", plan.Detail.Argument)
		assert.Nil(t, plan.Condense)
		assert.True(t, plan.ShouldChain("search_papers"))
	})

	t.Run("no_properties", func(t *testing.T) {
		table := testTable(t, newTestSession().
			addTool("search_papers", staticTool("[]"), "topic").
			addTool("ping", staticTool("pong")))
		cfg := assistants.ChainConfig{
			Discovery: assistants.DiscoveryRole{Tool: "search_papers"},
			Detail:    assistants.ChainRole{Tool: "ping"},
		}
		plan := cfg.Resolve(ctx, table)
		require.NotNil(t, plan)
		assert.Nil(t, plan.Detail)
	})
}

func TestSubmitQuery_ChainArgumentEscaping(t *testing.T) {
	t.Parallel()

	model := newTestModel(
		toolCallResponse(newToolCall("c1", "search_papers", `{"topic":"x"}`)),
		textResponse("done"),
	)
	session := newTestSession().
		addTool("search_papers", staticTool(`["a"]`), "topic").
		addTool("lookup", staticTool("ok"), "paper.id")

	engine := connectEngine(t, model, session, assistants.WithChain(assistants.ChainConfig{
		Discovery: assistants.DiscoveryRole{Tool: "search_papers"},
		Detail:    assistants.ChainRole{Tool: "lookup", Argument: "paper.id"},
	}))

	_, err := engine.SubmitQuery(context.Background(), "x")
	require.NoError(t, err)

	calls := session.toolCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, map[string]any{"paper.id": "a"}, calls[1].Args)
}
