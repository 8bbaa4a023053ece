package tools_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Protocol-Lattice/recall/pkg/memory"
	"github.com/Protocol-Lattice/recall/pkg/memory/embed"
	"github.com/Protocol-Lattice/recall/pkg/memory/store"
	"github.com/Protocol-Lattice/recall/pkg/tools"
)

// recorder counts handler invocations.
type recorder struct {
	calls []string
}

func (r *recorder) tool(name string, fail bool) tools.Tool {
	return tools.Tool{
		Name:   name,
		Params: []tools.Param{{Name: "input", Type: tools.TypeString, Required: true}},
		Handler: func(_ context.Context, args tools.Args) (string, error) {
			r.calls = append(r.calls, name+":"+args.String("input"))
			if fail {
				return "", errors.New("boom")
			}
			return "done " + args.String("input"), nil
		},
	}
}

func newDispatcher(t *testing.T, ts ...tools.Tool) *tools.Dispatcher {
	t.Helper()
	r, err := tools.NewRegistry(ts...)
	require.NoError(t, err)
	return tools.NewDispatcher(r)
}

func TestDispatchExecutes(t *testing.T) {
	d := newDispatcher(t, tools.Weather())
	out := d.Dispatch(context.Background(), tools.FunctionCall{
		Name:      "get_weather",
		Arguments: map[string]any{"location": "Paris"},
	})
	assert.Equal(t, tools.Executed, out.State)
	assert.Equal(t, []tools.State{tools.Received, tools.Validated, tools.Executed}, out.History)
	assert.Equal(t, "Weather in Paris: Sunny, 72°F", out.Result)
	assert.NoError(t, out.Err)
}

func TestDispatchUnknownFunctionNeverRunsHandler(t *testing.T) {
	rec := &recorder{}
	d := newDispatcher(t, rec.tool("echo", false))
	out := d.Dispatch(context.Background(), tools.FunctionCall{Name: "launch_rockets"})

	assert.Equal(t, tools.Rejected, out.State)
	assert.Equal(t, []tools.State{tools.Received, tools.Rejected}, out.History)
	assert.Equal(t, "Unknown function: launch_rockets", out.Result)
	assert.ErrorIs(t, out.Err, tools.ErrUnknownTool)
	assert.True(t, tools.IsRejection(out.Err))
	assert.Empty(t, rec.calls)
}

func TestDispatchMissingParameterNeverRunsHandler(t *testing.T) {
	rec := &recorder{}
	d := newDispatcher(t, rec.tool("echo", false))
	out := d.Dispatch(context.Background(), tools.FunctionCall{Name: "echo", Arguments: map[string]any{}})

	assert.Equal(t, tools.Rejected, out.State)
	assert.Equal(t, `Invalid arguments for echo: missing required parameter "input"`, out.Result)
	assert.ErrorIs(t, out.Err, tools.ErrInvalidArguments)
	assert.Empty(t, rec.calls)
}

func TestDispatchHandlerError(t *testing.T) {
	rec := &recorder{}
	d := newDispatcher(t, rec.tool("explode", true))
	out := d.Dispatch(context.Background(), tools.FunctionCall{Name: "explode", Arguments: map[string]any{"input": "x"}})

	assert.Equal(t, tools.Failed, out.State)
	assert.Equal(t, []tools.State{tools.Received, tools.Validated, tools.Failed}, out.History)
	assert.Equal(t, "Error executing explode: boom", out.Result)
	assert.ErrorIs(t, out.Err, tools.ErrToolFailed)
	assert.False(t, tools.IsRejection(out.Err))
}

func TestDispatchAllRunsInOrderAndStopsAfterFailure(t *testing.T) {
	rec := &recorder{}
	d := newDispatcher(t, rec.tool("first", false), rec.tool("explode", true), rec.tool("last", false))

	outcomes := d.DispatchAll(context.Background(), []tools.FunctionCall{
		{Name: "first", Arguments: map[string]any{"input": "1"}},
		{Name: "nope"},
		{Name: "explode", Arguments: map[string]any{"input": "2"}},
		{Name: "last", Arguments: map[string]any{"input": "3"}},
	})
	require.Len(t, outcomes, 4)
	assert.Equal(t, tools.Executed, outcomes[0].State)
	assert.Equal(t, tools.Rejected, outcomes[1].State, "rejections do not halt the queue")
	assert.Equal(t, tools.Failed, outcomes[2].State)
	assert.Equal(t, tools.Skipped, outcomes[3].State)
	assert.Equal(t, "Skipped last: an earlier tool call failed", outcomes[3].Result)
	assert.Equal(t, []string{"first:1", "explode:2"}, rec.calls)
	for _, o := range outcomes {
		assert.True(t, o.State.Terminal())
	}
}

func TestStoreThenRecallInOneBatch(t *testing.T) {
	ctx := context.Background()
	vs, err := store.NewInMemoryDB().OpenStore(ctx, "memories", embed.DefaultHashDimensions)
	require.NoError(t, err)
	svc, err := memory.New(embed.NewHash(0), vs, memory.DefaultOptions())
	require.NoError(t, err)

	d := newDispatcher(t, tools.MemoryTools(svc, 0)...)
	outcomes := d.DispatchAll(ctx, []tools.FunctionCall{
		{Name: "store_memory", Arguments: map[string]any{"content": "The spare key is under the blue flowerpot", "tags": " home, keys ,"}},
		{Name: "recall_memory", Arguments: map[string]any{"query": "spare key"}},
	})
	require.Len(t, outcomes, 2)
	assert.Equal(t, "Stored 1 memory chunk(s).", outcomes[0].Result)
	assert.Equal(t, tools.Executed, outcomes[1].State)
	assert.True(t, strings.HasPrefix(outcomes[1].Result, "1. The spare key is under the blue flowerpot (distance "), outcomes[1].Result)
	assert.Contains(t, outcomes[1].Result, "tags: home, keys")
}

func TestRecallMemoryOnEmptyStore(t *testing.T) {
	ctx := context.Background()
	vs, err := store.NewInMemoryDB().OpenStore(ctx, "memories", embed.DefaultHashDimensions)
	require.NoError(t, err)
	svc, err := memory.New(embed.NewHash(0), vs, memory.DefaultOptions())
	require.NoError(t, err)

	d := newDispatcher(t, tools.MemoryTools(svc, 0)...)
	out := d.Dispatch(ctx, tools.FunctionCall{Name: "recall_memory", Arguments: map[string]any{"query": "anything", "limit": 2}})
	assert.Equal(t, "No memories found.", out.Result)

	out = d.Dispatch(ctx, tools.FunctionCall{Name: "recall_memory", Arguments: map[string]any{"query": "anything", "limit": 0}})
	assert.Equal(t, tools.Failed, out.State)
	assert.Equal(t, "Error executing recall_memory: limit must be positive", out.Result)
}

func TestBuiltinTools(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	d := newDispatcher(t, tools.Email(), tools.Calculator(), tools.Clock(func() time.Time { return fixed }))
	ctx := context.Background()

	out := d.Dispatch(ctx, tools.FunctionCall{Name: "send_email", Arguments: map[string]any{
		"email": "john@example.com", "subject": "Meeting", "message": "At 3pm",
	}})
	assert.Equal(t, `Email sent to john@example.com with subject "Meeting"`, out.Result)

	out = d.Dispatch(ctx, tools.FunctionCall{Name: "calculate", Arguments: map[string]any{"left": 21, "operator": "/", "right": 3}})
	assert.Equal(t, "7", out.Result)

	out = d.Dispatch(ctx, tools.FunctionCall{Name: "calculate", Arguments: map[string]any{"left": 1, "operator": "/", "right": 0}})
	assert.Equal(t, tools.Failed, out.State)
	assert.Equal(t, "Error executing calculate: division by zero", out.Result)

	out = d.Dispatch(ctx, tools.FunctionCall{Name: "current_time"})
	assert.Equal(t, "2024-03-01T12:00:00Z", out.Result)

	out = d.Dispatch(ctx, tools.FunctionCall{Name: "current_time", Arguments: map[string]any{"timezone": "Mars/Olympus"}})
	assert.Equal(t, tools.Failed, out.State)
	assert.True(t, strings.HasPrefix(out.Result, "Error executing current_time: unknown timezone: "))
}

func TestDispatchRecoversHandlerPanic(t *testing.T) {
	explode := tools.Tool{
		Name: "explode",
		Handler: func(context.Context, tools.Args) (string, error) {
			var counts map[string]int
			counts["boom"]++
			return "unreachable", nil
		},
	}
	rec := &recorder{}
	d := newDispatcher(t, explode, rec.tool("echo", false))

	outcomes := d.DispatchAll(context.Background(), []tools.FunctionCall{
		{Name: "explode"},
		{Name: "echo", Arguments: map[string]any{"input": "after"}},
	})
	require.Len(t, outcomes, 2)
	assert.Equal(t, tools.Failed, outcomes[0].State)
	assert.Equal(t, "Error executing explode: panic: assignment to entry in nil map", outcomes[0].Result)
	assert.ErrorIs(t, outcomes[0].Err, tools.ErrToolFailed)
	assert.Equal(t, tools.Skipped, outcomes[1].State)
	assert.Empty(t, rec.calls)
}
