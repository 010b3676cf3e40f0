package callbacks

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/effective-security/mcpchat/chatmodel"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/invopop/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testTool struct{ name string }

func (t *testTool) Name() string                   { return t.name }
func (t *testTool) Description() string            { return "desc" }
func (t *testTool) Parameters() *jsonschema.Schema { return nil }
func (t *testTool) Declares(string) bool           { return false }
func (t *testTool) Call(context.Context, map[string]any) (string, error) {
	return "", nil
}

type testModel struct{}

func (testModel) GetName() string                    { return "m1" }
func (testModel) GetProviderType() llms.ProviderType { return llms.ProviderOpenAI }
func (testModel) GenerateContent(context.Context, []llms.Message, ...llms.CallOption) (*llms.ContentResponse, error) {
	return nil, nil
}

func newTestChatContext() (context.Context, chatmodel.ChatContext) {
	chatCtx := chatmodel.NewChatContext("chatid")
	ctx := chatmodel.WithChatContext(context.Background(), chatCtx)
	return ctx, chatCtx
}

func TestScratchpad_StartRun_EndRun(t *testing.T) {
	t.Parallel()
	sp := NewScratchpad(ModeVerbose)
	ctx, cctx := newTestChatContext()
	sp.StartRun(ctx)

	r := sp.runs[cctx.GetChatID()]
	require.NotNil(t, r)
	assert.Equal(t, "1", r.stats.RunID)
	r.stats.ToolsCalls = 3
	r.stats.ToolsCallsFailed = 2
	r.stats.ToolNotFound = 1
	r.stats.LLMCalls = 1
	r.stats.TotalMessages = 4
	r.stats.LLMBytesOut = 10
	r.stats.LLMBytesIn = 11

	stats, buf := sp.EndRun(ctx)
	require.NotNil(t, stats)
	assert.Equal(t, uint32(3), stats.ToolsCalls)
	require.Contains(t, string(buf), "Run Started")
	require.Contains(t, string(buf), "Run Ended")
	require.Contains(t, string(buf), "Tool calls: 3, Failed: 2, Not Found: 1, Chained: 0")
	require.Contains(t, string(buf), "Bytes Total: 21")
	_, ok := sp.runs[cctx.GetChatID()]
	assert.False(t, ok)

	last, transcript := sp.LastRun(cctx.GetChatID())
	require.NotNil(t, last)
	assert.Equal(t, *stats, *last)
	assert.Equal(t, buf, transcript)

	// already ended
	s2, _ := sp.EndRun(ctx)
	assert.Nil(t, s2)

	// the next run gets the next ID
	sp.StartRun(ctx)
	assert.Equal(t, "2", sp.runs[cctx.GetChatID()].stats.RunID)
}

func TestScratchpad_getRun_nil(t *testing.T) {
	t.Parallel()
	sp := NewScratchpad(ModeDefault)
	assert.Nil(t, sp.getRun(context.Background()))
	ctx, _ := newTestChatContext()
	assert.Nil(t, sp.getRun(ctx))

	sp.StartRun(context.Background())
	assert.Empty(t, sp.runs)

	stats, transcript := sp.LastRun("chatid")
	assert.Nil(t, stats)
	assert.Nil(t, transcript)
}

func TestScratchpad_OnCallbacks(t *testing.T) {
	t.Parallel()
	sp := NewScratchpad(ModeVerbose)
	ctx, cctx := newTestChatContext()
	tool := &testTool{name: "T1"}
	resp := &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			Content:        "Answer 1",
			GenerationInfo: map[string]any{"InputTokens": int64(5), "OutputTokens": int64(2), "TotalTokens": int64(7)},
		}},
	}

	sp.OnQueryStart(ctx, "input")
	sp.OnLLMCallStart(ctx, testModel{}, []llms.Message{llms.MessageFromTextParts(llms.RoleHuman, "foo")})
	sp.OnLLMCallEnd(ctx, testModel{}, resp)
	sp.OnToolStart(ctx, tool, "tinput")
	sp.OnToolEnd(ctx, tool, "tinput", "toutput")
	sp.OnToolError(ctx, tool, "tinput", errors.New("terr"))
	sp.OnToolNotFound(ctx, "T2")
	sp.OnChainStart(ctx, "T1", []string{"x1", "x2"})
	sp.OnQueryEnd(ctx, "input", "final")

	stats, output := sp.LastRun(cctx.GetChatID())
	require.NotNil(t, stats)
	assert.False(t, stats.Failed)
	assert.Equal(t, uint32(1), stats.LLMCalls)
	assert.Equal(t, uint32(1), stats.ToolsCalls)
	assert.Equal(t, uint32(1), stats.ToolsCallsSucceeded)
	assert.Equal(t, uint32(1), stats.ToolsCallsFailed)
	assert.Equal(t, uint32(1), stats.ToolNotFound)
	assert.Equal(t, uint32(2), stats.ChainedIdentifiers)
	assert.Equal(t, uint64(7), stats.LLMTotalTokens)

	outStr := string(output)
	assert.Contains(t, outStr, "Query: input")
	assert.Contains(t, outStr, "T1 *** Tool Start ***")
	assert.Contains(t, outStr, "T1 Output: toutput")
	assert.Contains(t, outStr, "T1 *** Tool End ***")
	assert.Contains(t, outStr, "*** LLM Call *** m1 model, 1 messages")
	assert.Contains(t, outStr, "[0] human:")
	assert.Contains(t, outStr, "*** Tool Not Found *** T2")
	assert.Contains(t, outStr, "T1 *** Chain Start *** x1, x2")
	assert.Contains(t, outStr, "Answer: final")

	// no run in progress
	sp.OnLLMCallStart(ctx, testModel{}, nil)
	sp.OnLLMCallEnd(ctx, testModel{}, resp)
	sp.OnToolStart(ctx, tool, "tinput")
	sp.OnToolEnd(ctx, tool, "tinput", "toutput")
	sp.OnToolError(ctx, tool, "tinput", errors.New("terr2"))
	sp.OnToolNotFound(ctx, "T3")
	sp.OnChainStart(ctx, "T1", nil)
	sp.OnQueryEnd(ctx, "input", "final")
	sp.OnQueryError(ctx, "input", errors.New("fail"))

	sp.OnQueryStart(ctx, "input2")
	sp.OnQueryError(ctx, "input2", errors.New("fail"))
	stats, output = sp.LastRun(cctx.GetChatID())
	require.NotNil(t, stats)
	assert.True(t, stats.Failed)
	assert.Equal(t, "2", stats.RunID)
	assert.Contains(t, string(output), "*** Error *** fail")
}

func Test_run_print_format(t *testing.T) {
	oldTimeFn := TimeNowFn
	TimeNowFn = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }
	defer func() { TimeNowFn = oldTimeFn }()

	r := &run{stats: RunStats{ChatID: "chatid", RunID: "1"}}
	r.print("hello", "again")
	lines := strings.Split(r.w.String(), "\n")
	require.NotEmpty(t, lines[0])
	assert.Equal(t, "2024-01-01 12:00:00 chatid.1 hello again", lines[0])
}
