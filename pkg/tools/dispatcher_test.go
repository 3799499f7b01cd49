package tools

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/vango-go/nova-live/pkg/core/live"
)

type captureResponder struct {
	mu        sync.Mutex
	responses []*genai.FunctionResponse
}

func (c *captureResponder) SendToolResponse(responses ...*genai.FunctionResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, responses...)
	return nil
}

func (c *captureResponder) byID() map[string]*genai.FunctionResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]*genai.FunctionResponse, len(c.responses))
	for _, r := range c.responses {
		out[r.ID] = r
	}
	return out
}

func (c *captureResponder) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.responses)
}

func decl(name string) *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{Name: name, Parameters: &genai.Schema{Type: genai.TypeObject}}
}

func fn(name string, f func(ctx context.Context, call Call) (Result, error)) Handler {
	return Func{Decl: decl(name), Fn: f}
}

type staticGate map[string]Decision

func (g staticGate) Decide(_ context.Context, call Call) (Decision, error) {
	if d, ok := g[call.Name]; ok {
		return d, nil
	}
	return Decision{Verdict: VerdictAllow}, nil
}

type answerConfirmer bool

func (a answerConfirmer) Confirm(context.Context, Call, string) (bool, error) {
	return bool(a), nil
}

func TestDispatcher_EveryCallAnsweredOnce(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(
		fn("ok", func(ctx context.Context, call Call) (Result, error) { return Reply("done"), nil }),
		fn("fails", func(ctx context.Context, call Call) (Result, error) { return Result{}, errors.New("disk full") }),
		fn("panics", func(ctx context.Context, call Call) (Result, error) { panic("boom") }),
		fn("validates", func(ctx context.Context, call Call) (Result, error) {
			_, err := String(call.Args, "path", true)
			return Result{}, err
		}),
	)
	resp := &captureResponder{}
	log := live.NewSystemLog(0)
	d := NewDispatcher(DispatcherConfig{Registry: reg, Responder: resp, Log: log})

	d.Dispatch(context.Background(), []*genai.FunctionCall{
		{ID: "1", Name: "ok"},
		{ID: "2", Name: "fails"},
		{ID: "3", Name: "panics"},
		{ID: "4", Name: "validates", Args: map[string]any{}},
		{ID: "5", Name: "missing"},
	})
	d.Wait()

	got := resp.byID()
	require.Equal(t, 4, resp.count())
	assert.Equal(t, "done", got["1"].Response["result"])
	assert.Equal(t, "ok", got["1"].Name)
	assert.Equal(t, "disk full", got["2"].Response["error"])
	assert.Contains(t, got["3"].Response["error"], "panic: boom")
	assert.Equal(t, "path", got["4"].Response["param"])
	assert.NotContains(t, got, "5")

	var warned bool
	for _, e := range log.Entries() {
		if e.Severity == live.SeverityWarning && strings.Contains(e.Message, "missing") {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestDispatcher_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	defer close(release)
	reg := NewRegistry(fn("slow", func(ctx context.Context, call Call) (Result, error) {
		<-release
		return Reply("late"), nil
	}))
	resp := &captureResponder{}
	d := NewDispatcher(DispatcherConfig{Registry: reg, Responder: resp, Timeout: 20 * time.Millisecond})

	d.Dispatch(context.Background(), []*genai.FunctionCall{{ID: "s", Name: "slow"}})
	d.Wait()

	require.Equal(t, 1, resp.count())
	msg, _ := resp.byID()["s"].Response["error"].(string)
	assert.True(t, strings.HasPrefix(msg, TimeoutPrefix), msg)
}

func TestDispatcher_GateDenyAndConfirm(t *testing.T) {
	t.Parallel()

	var ran sync.Map
	handler := func(name string) Handler {
		return fn(name, func(ctx context.Context, call Call) (Result, error) {
			ran.Store(name, true)
			return Reply("ran"), nil
		})
	}
	reg := NewRegistry(handler("denied"), handler("confirmed"), handler("declined"))
	gate := staticGate{
		"denied":    {Verdict: VerdictDeny, Reason: "shell disabled"},
		"confirmed": {Verdict: VerdictConfirm},
		"declined":  {Verdict: VerdictConfirm},
	}

	resp := &captureResponder{}
	d := NewDispatcher(DispatcherConfig{Registry: reg, Responder: resp, Gate: gate, Confirmer: answerConfirmer(true)})
	d.Dispatch(context.Background(), []*genai.FunctionCall{{ID: "a", Name: "denied"}, {ID: "b", Name: "confirmed"}})
	d.Wait()

	got := resp.byID()
	assert.Equal(t, "denied by policy: shell disabled", got["a"].Response["error"])
	assert.Equal(t, "ran", got["b"].Response["result"])
	_, deniedRan := ran.Load("denied")
	assert.False(t, deniedRan)

	resp2 := &captureResponder{}
	d2 := NewDispatcher(DispatcherConfig{Registry: reg, Responder: resp2, Gate: gate, Confirmer: answerConfirmer(false)})
	d2.Dispatch(context.Background(), []*genai.FunctionCall{{ID: "c", Name: "declined"}})
	d2.Wait()
	assert.Equal(t, "user declined", resp2.byID()["c"].Response["error"])

	resp3 := &captureResponder{}
	d3 := NewDispatcher(DispatcherConfig{Registry: reg, Responder: resp3, Gate: gate})
	d3.Dispatch(context.Background(), []*genai.FunctionCall{{ID: "d", Name: "declined"}})
	d3.Wait()
	assert.Contains(t, resp3.byID()["d"].Response["error"], "confirmation")
}

func TestDispatcher_FollowUpRunsAfterResponse(t *testing.T) {
	t.Parallel()

	resp := &captureResponder{}
	followed := make(chan int, 1)
	reg := NewRegistry(fn("turn_off", func(ctx context.Context, call Call) (Result, error) {
		return Result{
			Response: map[string]any{"success": true},
			After:    30 * time.Millisecond,
			FollowUp: func() { followed <- resp.count() },
		}, nil
	}))
	d := NewDispatcher(DispatcherConfig{Registry: reg, Responder: resp})

	start := time.Now()
	d.Dispatch(context.Background(), []*genai.FunctionCall{{ID: "x", Name: "turn_off"}})
	d.Wait()
	require.Equal(t, 1, resp.count())

	select {
	case n := <-followed:
		assert.Equal(t, 1, n, "response must be sent before the follow-up runs")
		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("follow-up never ran")
	}
}

func TestDispatcher_EmitsCallAndResultEvents(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var events []live.Event
	reg := NewRegistry(fn("ok", func(ctx context.Context, call Call) (Result, error) { return Reply("fine"), nil }))
	d := NewDispatcher(DispatcherConfig{
		Registry:  reg,
		Responder: &captureResponder{},
		Emit: func(ev live.Event) {
			mu.Lock()
			events = append(events, ev)
			mu.Unlock()
		},
	})
	d.Dispatch(context.Background(), []*genai.FunctionCall{{ID: "e1", Name: "ok", Args: map[string]any{"k": "v"}}})
	d.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)
	call, ok := events[0].(*live.ToolCallEvent)
	require.True(t, ok)
	assert.Equal(t, "v", call.Args["k"])
	result, ok := events[1].(*live.ToolResultEvent)
	require.True(t, ok)
	assert.Empty(t, result.Error)
}

func TestRegistry_ToolsAndValidate(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(fn("b", nil), fn("a", nil))
	assert.Equal(t, []string{"a", "b"}, reg.Names())
	require.NoError(t, reg.Validate())

	tools := reg.Tools(true)
	require.Len(t, tools, 2)
	assert.NotNil(t, tools[0].GoogleSearch)
	require.Len(t, tools[1].FunctionDeclarations, 2)
	assert.Equal(t, "a", tools[1].FunctionDeclarations[0].Name)

	bad := NewRegistry(Func{Decl: &genai.FunctionDeclaration{Name: " a "}})
	assert.Error(t, bad.Validate())
}

func TestArgs(t *testing.T) {
	t.Parallel()

	args := map[string]any{"s": "x", "n": float64(3), "f": 2.5, "b": true, "list": []any{"a", "b"}, "obj": map[string]any{"k": 1}}

	s, err := String(args, "s", true)
	require.NoError(t, err)
	assert.Equal(t, "x", s)
	_, err = String(args, "missing", true)
	assert.Error(t, err)

	n, err := Int(args, "n", true, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	_, err = Int(args, "f", true, 0)
	assert.Error(t, err)
	def, err := Int(args, "missing", false, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, def)

	b, err := Bool(args, "b", false)
	require.NoError(t, err)
	assert.True(t, b)

	list, err := Strings(args, "list", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, list)

	_, err = Enum(map[string]any{"op": "zap"}, "op", true, "read", "write")
	assert.Error(t, err)

	obj, err := Object(args, "obj", true)
	require.NoError(t, err)
	assert.Equal(t, 1, obj["k"])
}
