package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/vango-go/nova-live/pkg/core"
	"github.com/vango-go/nova-live/pkg/core/live"
)

// DefaultTimeout bounds one tool execution.
const DefaultTimeout = 10 * time.Second

// TimeoutPrefix starts the error message sent when a tool exceeds its deadline.
const TimeoutPrefix = "tool_timeout"

// Responder delivers tool responses to the model.
type Responder interface {
	SendToolResponse(responses ...*genai.FunctionResponse) error
}

// Verdict is a Gate outcome.
type Verdict string

const (
	VerdictAllow   Verdict = "allow"
	VerdictDeny    Verdict = "deny"
	VerdictConfirm Verdict = "confirm"
)

// Decision is the Gate's answer for one call.
type Decision struct {
	Verdict Verdict
	Reason  string
}

// Gate decides whether a call may run.
type Gate interface {
	Decide(ctx context.Context, call Call) (Decision, error)
}

// Confirmer asks the user to approve a call the Gate flagged.
type Confirmer interface {
	Confirm(ctx context.Context, call Call, reason string) (bool, error)
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Registry  *Registry
	Responder Responder
	Gate      Gate
	Confirmer Confirmer

	// Timeout bounds each execution. Zero uses DefaultTimeout; negative disables it.
	Timeout time.Duration

	Log    *live.SystemLog
	Emit   func(live.Event)
	Logger *slog.Logger
}

// Dispatcher runs tool calls concurrently and answers each exactly once.
type Dispatcher struct {
	registry  *Registry
	responder Responder
	gate      Gate
	confirmer Confirmer
	timeout   time.Duration
	log       *live.SystemLog
	emit      func(live.Event)
	logger    *slog.Logger

	wg sync.WaitGroup
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	emit := cfg.Emit
	if emit == nil {
		emit = func(live.Event) {}
	}
	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	return &Dispatcher{
		registry:  registry,
		responder: cfg.Responder,
		gate:      cfg.Gate,
		confirmer: cfg.Confirmer,
		timeout:   timeout,
		log:       cfg.Log,
		emit:      emit,
		logger:    logger,
	}
}

// Dispatch starts every call and returns immediately.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []*genai.FunctionCall) {
	for _, fc := range calls {
		if fc == nil {
			continue
		}
		call := CallFromGenAI(fc)
		h, ok := d.registry.Get(call.Name)
		if !ok {
			d.logger.Warn("unknown tool call", "tool", call.Name, "call_id", call.ID)
			d.log.Add(live.SeverityWarning, "Unknown tool requested: "+call.Name, nil)
			continue
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.run(ctx, h, call)
		}()
	}
}

// Wait blocks until every dispatched call has been answered.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

type outcome struct {
	res Result
	err error
}

func (d *Dispatcher) run(ctx context.Context, h Handler, call Call) {
	start := time.Now()
	d.emit(&live.ToolCallEvent{ID: call.ID, Name: call.Name, Args: call.Args})
	d.log.Add(live.SeverityTool, "Invoking "+call.Name, summarizeArgs(call.Args))

	res, err := d.execute(ctx, h, call)

	resp := res.Response
	if err != nil {
		resp = errorPayload(err)
		d.log.Add(live.SeverityError, fmt.Sprintf("%s failed: %s", call.Name, errorMessage(err)), nil)
		d.logger.Warn("tool failed", "tool", call.Name, "call_id", call.ID, "error", err, "duration", time.Since(start))
	} else {
		d.logger.Debug("tool completed", "tool", call.Name, "call_id", call.ID, "duration", time.Since(start))
	}
	if resp == nil {
		resp = map[string]any{"result": "ok"}
	}

	if d.responder != nil {
		if sendErr := d.responder.SendToolResponse(&genai.FunctionResponse{ID: call.ID, Name: call.Name, Response: resp}); sendErr != nil {
			d.logger.Warn("tool response not delivered", "tool", call.Name, "call_id", call.ID, "error", sendErr)
		}
	}

	ev := &live.ToolResultEvent{ID: call.ID, Name: call.Name}
	if err != nil {
		ev.Error = errorMessage(err)
	}
	d.emit(ev)

	if err == nil && res.FollowUp != nil {
		if res.After <= 0 {
			go res.FollowUp()
		} else {
			time.AfterFunc(res.After, res.FollowUp)
		}
	}
}

func (d *Dispatcher) execute(ctx context.Context, h Handler, call Call) (Result, error) {
	if d.gate != nil {
		decision, err := d.gate.Decide(ctx, call)
		if err != nil {
			return Result{}, core.NewToolExecutionError(call.Name, fmt.Errorf("policy evaluation failed: %w", err))
		}
		switch decision.Verdict {
		case VerdictDeny:
			return Result{}, &core.Error{Type: core.ErrToolExecution, Message: "denied by policy: " + nonEmpty(decision.Reason, "not allowed"), Code: call.Name}
		case VerdictConfirm:
			if d.confirmer == nil {
				return Result{}, &core.Error{Type: core.ErrToolExecution, Message: "requires user confirmation, which is unavailable", Code: call.Name}
			}
			ok, err := d.confirmer.Confirm(ctx, call, decision.Reason)
			if err != nil {
				return Result{}, core.NewToolExecutionError(call.Name, err)
			}
			if !ok {
				return Result{}, &core.Error{Type: core.ErrToolExecution, Message: "user declined", Code: call.Name}
			}
		}
	}

	execCtx := ctx
	cancel := func() {}
	if d.timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, d.timeout)
	}
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("tool panicked", "tool", call.Name, "call_id", call.ID, "panic", r)
				done <- outcome{err: core.NewToolExecutionError(call.Name, fmt.Errorf("panic: %v", r))}
			}
		}()
		res, err := h.Execute(execCtx, call)
		done <- outcome{res: res, err: err}
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-execCtx.Done():
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return Result{}, &core.Error{
				Type:    core.ErrToolExecution,
				Message: fmt.Sprintf("%s: %s did not finish within %s", TimeoutPrefix, call.Name, d.timeout),
				Code:    call.Name,
				Cause:   execCtx.Err(),
			}
		}
		return Result{}, core.NewToolExecutionError(call.Name, execCtx.Err())
	}
}

func errorMessage(err error) string {
	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		return coreErr.Message
	}
	return err.Error()
}

func errorPayload(err error) map[string]any {
	out := map[string]any{"error": errorMessage(err)}
	var coreErr *core.Error
	if errors.As(err, &coreErr) && coreErr.Param != "" {
		out["param"] = coreErr.Param
	}
	return out
}

// summarizeArgs keeps log details small: long strings are replaced by their length.
func summarizeArgs(args map[string]any) map[string]any {
	if len(args) == 0 {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		if s, ok := v.(string); ok && len(s) > 120 {
			out[k+"Length"] = len(s)
			continue
		}
		out[k] = v
	}
	return out
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
