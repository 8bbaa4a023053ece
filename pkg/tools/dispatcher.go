package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/Protocol-Lattice/recall/internal/logging"
)

// ErrToolFailed wraps handler errors recorded in an Outcome.
var ErrToolFailed = goerr.New("tool execution failed", goerr.ID("TOOL_FAILED"))

// FunctionCall is one tool invocation requested by a model.
type FunctionCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// State is a step of the per-call dispatch state machine.
type State int

const (
	Received State = iota
	Validated
	Executed
	// Rejected calls named an unknown tool or carried invalid arguments.
	Rejected
	// Failed calls passed validation but the handler returned an error.
	Failed
	// Skipped calls were never attempted because an earlier call failed.
	Skipped
)

func (s State) String() string {
	switch s {
	case Received:
		return "received"
	case Validated:
		return "validated"
	case Executed:
		return "executed"
	case Rejected:
		return "rejected"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Executed || s == Rejected || s == Failed || s == Skipped
}

// Outcome is the result of dispatching one call. Result is always set.
type Outcome struct {
	Call    FunctionCall
	State   State
	History []State
	Result  string
	Err     error
}

func (o *Outcome) advance(s State) {
	o.State = s
	o.History = append(o.History, s)
}

// Dispatcher validates function calls against a Registry and runs them.
type Dispatcher struct {
	registry *Registry
}

func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Dispatch takes one call through Received, Validated and a terminal state.
// It never returns an error; failures are described in the Outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, call FunctionCall) Outcome {
	out := Outcome{Call: call}
	out.advance(Received)
	logger := logging.From(ctx).With("tool", call.Name)

	tool, err := d.registry.Resolve(call.Name)
	if err != nil {
		out.advance(Rejected)
		out.Result = "Unknown function: " + call.Name
		out.Err = err
		logger.Warn("rejected call to unknown tool")
		return out
	}

	args, err := Coerce(tool.Params, call.Arguments)
	if err != nil {
		out.advance(Rejected)
		out.Result = fmt.Sprintf("Invalid arguments for %s: %s", tool.Name, err.Error())
		out.Err = goerr.Wrap(err, "argument validation failed", goerr.V("tool", tool.Name))
		logger.Warn("rejected call with invalid arguments", "detail", err.Error())
		return out
	}
	out.advance(Validated)

	started := time.Now()
	result, err := invoke(ctx, tool, args)
	if err != nil {
		out.advance(Failed)
		out.Result = fmt.Sprintf("Error executing %s: %s", tool.Name, err.Error())
		out.Err = ErrToolFailed.Wrap(goerr.Wrap(err, "handler returned an error"),
			goerr.V("tool", tool.Name))
		logger.Error("tool failed", "error", err, "elapsed", time.Since(started))
		return out
	}
	out.advance(Executed)
	out.Result = result
	logger.Debug("tool executed", "elapsed", time.Since(started))
	return out
}

// invoke runs the handler, turning a panic into an error.
func invoke(ctx context.Context, tool Tool, args Args) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = ""
			err = goerr.New(fmt.Sprintf("panic: %v", r), goerr.V("tool", tool.Name))
		}
	}()
	return tool.Handler(ctx, args)
}

// DispatchAll drains calls in emission order, one at a time, so later calls
// observe earlier side effects. Once a call fails the rest are Skipped.
// Rejected calls do not stop the queue.
func (d *Dispatcher) DispatchAll(ctx context.Context, calls []FunctionCall) []Outcome {
	queue := append([]FunctionCall(nil), calls...)
	outcomes := make([]Outcome, 0, len(queue))
	halted := false
	for len(queue) > 0 {
		call := queue[0]
		queue = queue[1:]

		if halted {
			out := Outcome{Call: call}
			out.advance(Received)
			out.advance(Skipped)
			out.Result = fmt.Sprintf("Skipped %s: an earlier tool call failed", call.Name)
			outcomes = append(outcomes, out)
			continue
		}

		out := d.Dispatch(ctx, call)
		outcomes = append(outcomes, out)
		if out.State == Failed {
			halted = true
		}
	}
	return outcomes
}

// IsRejection reports whether err came from an unknown tool or bad arguments.
func IsRejection(err error) bool {
	return errors.Is(err, ErrUnknownTool) || errors.Is(err, ErrInvalidArguments)
}
