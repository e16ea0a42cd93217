package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sidekick/pkg/metrics"
)

// fakeTool is a configurable tool for dispatcher tests.
type fakeTool struct {
	name    string
	execFn  func(ctx context.Context, args map[string]any) (string, error)
	execed  int
	lastArg map[string]any
}

func (f *fakeTool) Name() string { return f.name }

func (f *fakeTool) PromptDocumentation() string {
	return fmt.Sprintf("- **%s** - fake tool for tests", f.name)
}

func (f *fakeTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        f.name,
		Description: "fake tool for tests",
		InputSchema: InputSchema{Type: "object"},
	}
}

func (f *fakeTool) Exec(ctx context.Context, args map[string]any) (string, error) {
	f.execed++
	f.lastArg = args
	return f.execFn(ctx, args)
}

func newDispatcherWith(t *testing.T, tools ...Tool) *Dispatcher {
	t.Helper()
	reg := NewRegistry()
	for _, tool := range tools {
		require.NoError(t, reg.Register(tool))
	}
	return NewDispatcher(reg)
}

func TestDispatchSuccess(t *testing.T) {
	echo := &fakeTool{
		name: "echo",
		execFn: func(_ context.Context, args map[string]any) (string, error) {
			return fmt.Sprintf("echo: %v", args["text"]), nil
		},
	}
	d := newDispatcherWith(t, echo)

	results := d.Dispatch(context.Background(), []ToolCall{
		{ID: "call-1", Name: "echo", Arguments: map[string]any{"text": "hello"}},
	})

	require.Len(t, results, 1)
	assert.Equal(t, "call-1", results[0].ToolCallID)
	assert.Equal(t, "echo", results[0].ToolName)
	assert.False(t, results[0].IsError)
	assert.Equal(t, "echo: hello", results[0].Content)
	assert.Equal(t, 1, echo.execed)
}

func TestDispatchResultCountAndOrder(t *testing.T) {
	ok := &fakeTool{
		name: "ok",
		execFn: func(_ context.Context, _ map[string]any) (string, error) {
			return "fine", nil
		},
	}
	bad := &fakeTool{
		name: "bad",
		execFn: func(_ context.Context, _ map[string]any) (string, error) {
			return "", errors.New("boom")
		},
	}
	d := newDispatcherWith(t, ok, bad)

	calls := []ToolCall{
		{ID: "c1", Name: "ok"},
		{ID: "c2", Name: "bad"},
		{ID: "c3", Name: "missing"},
		{ID: "c4", Name: "ok"},
	}
	results := d.Dispatch(context.Background(), calls)

	// One result per call, in input order, no short-circuit on failure.
	require.Len(t, results, len(calls))
	for i, call := range calls {
		assert.Equal(t, call.ID, results[i].ToolCallID, "result %d out of order", i)
	}
	assert.False(t, results[0].IsError)
	assert.True(t, results[1].IsError)
	assert.True(t, results[2].IsError)
	assert.False(t, results[3].IsError)
	assert.Equal(t, 2, ok.execed, "later calls must still execute after a failure")
}

func TestDispatchUnknownTool(t *testing.T) {
	d := newDispatcherWith(t)

	results := d.Dispatch(context.Background(), []ToolCall{
		{ID: "c1", Name: "nope"},
	})

	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
	assert.Equal(t, ErrorKindNotFound, results[0].ErrorKind)
	assert.Contains(t, results[0].Content, ToolErrorMarker)
	assert.Contains(t, results[0].Content, "nope")
}

func TestDispatchRecoversPanic(t *testing.T) {
	angry := &fakeTool{
		name: "angry",
		execFn: func(_ context.Context, _ map[string]any) (string, error) {
			panic("tool blew up")
		},
	}
	calm := &fakeTool{
		name: "calm",
		execFn: func(_ context.Context, _ map[string]any) (string, error) {
			return "still here", nil
		},
	}
	d := newDispatcherWith(t, angry, calm)

	results := d.Dispatch(context.Background(), []ToolCall{
		{ID: "c1", Name: "angry"},
		{ID: "c2", Name: "calm"},
	})

	require.Len(t, results, 2)
	assert.True(t, results[0].IsError)
	assert.Equal(t, ErrorKindPanic, results[0].ErrorKind)
	assert.Contains(t, results[0].Content, "tool blew up")
	assert.False(t, results[1].IsError)
}

func TestDispatchErrorKindClassification(t *testing.T) {
	timeout := &fakeTool{
		name: "slow",
		execFn: func(_ context.Context, _ map[string]any) (string, error) {
			return "", context.DeadlineExceeded
		},
	}
	typed := &fakeTool{
		name: "typed",
		execFn: func(_ context.Context, _ map[string]any) (string, error) {
			return "", NewToolError("RateLimitError", "too many requests")
		},
	}
	d := newDispatcherWith(t, timeout, typed)

	results := d.Dispatch(context.Background(), []ToolCall{
		{ID: "c1", Name: "slow"},
		{ID: "c2", Name: "typed"},
	})

	require.Len(t, results, 2)
	assert.Equal(t, "TimeoutError", results[0].ErrorKind)
	assert.Equal(t, "RateLimitError", results[1].ErrorKind)
}

func TestFailureMessageFormat(t *testing.T) {
	msg := FormatFailure("searcher", "TimeoutError", "deadline exceeded")

	assert.True(t, strings.HasPrefix(msg, ToolErrorMarker))
	assert.Contains(t, msg, "Tool: searcher")
	assert.Contains(t, msg, "Error Type: TimeoutError")
	assert.Contains(t, msg, "Message: deadline exceeded")
	assert.Contains(t, msg, "cannot be used for this request")
}

func TestMessageContentIdempotent(t *testing.T) {
	bad := &fakeTool{
		name: "bad",
		execFn: func(_ context.Context, _ map[string]any) (string, error) {
			return "", errors.New("boom")
		},
	}
	d := newDispatcherWith(t, bad)

	results := d.Dispatch(context.Background(), []ToolCall{{ID: "c1", Name: "bad"}})
	require.Len(t, results, 1)

	first := results[0].MessageContent()
	second := results[0].MessageContent()
	assert.Equal(t, first, second)
	assert.Equal(t, 1, strings.Count(first, ToolErrorMarker), "marker must appear exactly once")
}

func TestErrorRegistryRecordsByToolAndKind(t *testing.T) {
	bad := &fakeTool{
		name: "bad",
		execFn: func(_ context.Context, _ map[string]any) (string, error) {
			return "", NewToolError("RateLimitError", "slow down")
		},
	}
	d := newDispatcherWith(t, bad)

	for i := 0; i < 3; i++ {
		d.Dispatch(context.Background(), []ToolCall{{ID: fmt.Sprintf("c%d", i), Name: "bad"}})
	}
	d.Dispatch(context.Background(), []ToolCall{{ID: "cx", Name: "missing"}})

	summary := d.Errors().Summary()
	assert.Equal(t, 3, summary["bad:RateLimitError"])
	assert.Equal(t, 1, summary["missing:"+ErrorKindNotFound])
	assert.NotContains(t, summary, "bad:TimeoutError")

	assert.Equal(t, 3, d.Errors().CountFor("bad"))
	assert.Equal(t, 1, d.Errors().CountFor("missing"))
	assert.Equal(t, 0, d.Errors().CountFor("good"))
}

func TestErrorRegistryTruncatesLongMessages(t *testing.T) {
	long := strings.Repeat("x", 1000)
	bad := &fakeTool{
		name: "bad",
		execFn: func(_ context.Context, _ map[string]any) (string, error) {
			return "", errors.New(long)
		},
	}
	d := newDispatcherWith(t, bad)

	d.Dispatch(context.Background(), []ToolCall{{ID: "c1", Name: "bad"}})

	msgs := d.Errors().RecentMessages("bad", "ToolExecutionError")
	require.Len(t, msgs, 1)
	assert.LessOrEqual(t, len(msgs[0]), 200)
}

func TestDispatchRecordsPerToolMetrics(t *testing.T) {
	name := fmt.Sprintf("metered-%d", time.Now().UnixNano())
	slow := &fakeTool{
		name: name,
		execFn: func(_ context.Context, _ map[string]any) (string, error) {
			return "done", nil
		},
	}
	d := newDispatcherWith(t, slow)

	execBefore := testutil.ToFloat64(metrics.ToolExecutions.WithLabelValues(name, metrics.StatusSuccess, ""))
	durationChildren := testutil.CollectAndCount(metrics.ToolExecutionDuration)

	d.Dispatch(context.Background(), []ToolCall{{ID: "c1", Name: name}})

	execAfter := testutil.ToFloat64(metrics.ToolExecutions.WithLabelValues(name, metrics.StatusSuccess, ""))
	assert.Equal(t, execBefore+1, execAfter, "executions are counted under the tool's own name")
	assert.Greater(t, testutil.CollectAndCount(metrics.ToolExecutionDuration), durationChildren,
		"duration gains a series labeled with the tool's name")
}

func TestDispatchEmptyCalls(t *testing.T) {
	d := newDispatcherWith(t)
	results := d.Dispatch(context.Background(), nil)
	assert.Empty(t, results)
}
