package models

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/m-mizutani/goerr/v2"

	"github.com/Protocol-Lattice/recall/pkg/tools"
)

// ToolCommandPrefix starts a line that the Offline completer turns into a
// function call: "tool:<name> {json arguments}".
const ToolCommandPrefix = "tool:"

// Offline needs no network. It echoes the last user line, or emits function
// calls when the user message contains tool: command lines.
type Offline struct {
	Prefix string
}

func NewOffline(prefix string) *Offline {
	if strings.TrimSpace(prefix) == "" {
		prefix = "Offline response:"
	}
	return &Offline{Prefix: prefix}
}

func (o *Offline) Complete(_ context.Context, messages []Message, _ []tools.Tool) (Completion, error) {
	var prompt string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			prompt = messages[i].Content
			break
		}
	}

	var (
		calls []tools.FunctionCall
		last  string
	)
	for _, line := range strings.Split(prompt, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ToolCommandPrefix) {
			call, err := parseToolCommand(strings.TrimPrefix(line, ToolCommandPrefix))
			if err != nil {
				return Completion{}, ErrCompletionFailure.Wrap(goerr.Wrap(err, "malformed tool command"),
					goerr.V("line", line))
			}
			calls = append(calls, call)
			continue
		}
		last = line
	}
	if len(calls) > 0 {
		return Completion{FunctionCalls: calls}, nil
	}
	if last == "" {
		last = "<empty prompt>"
	}
	return Completion{Response: fmt.Sprintf("%s %s", o.Prefix, last)}, nil
}

func parseToolCommand(cmd string) (tools.FunctionCall, error) {
	cmd = strings.TrimSpace(cmd)
	name, rest, _ := strings.Cut(cmd, " ")
	if name == "" {
		return tools.FunctionCall{}, goerr.New("tool name is empty", goerr.V("command", cmd))
	}
	args, err := decodeArguments([]byte(rest))
	if err != nil {
		return tools.FunctionCall{}, err
	}
	return tools.FunctionCall{Name: name, Arguments: args}, nil
}

// Scripted replays queued completions in order. It records every request so
// tests can inspect what the loop sent.
type Scripted struct {
	mu       sync.Mutex
	queue    []scriptStep
	requests [][]Message
}

type scriptStep struct {
	completion Completion
	err        error
}

func NewScripted(completions ...Completion) *Scripted {
	s := &Scripted{}
	for _, c := range completions {
		s.queue = append(s.queue, scriptStep{completion: c})
	}
	return s
}

// Reply queues a plain response.
func (s *Scripted) Reply(text string) *Scripted {
	return s.push(scriptStep{completion: Completion{Response: text}})
}

// Call queues a completion carrying the given function calls.
func (s *Scripted) Call(calls ...tools.FunctionCall) *Scripted {
	return s.push(scriptStep{completion: Completion{FunctionCalls: calls}})
}

// Fail queues a provider failure.
func (s *Scripted) Fail(err error) *Scripted {
	return s.push(scriptStep{err: err})
}

func (s *Scripted) push(step scriptStep) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, step)
	return s
}

func (s *Scripted) Complete(_ context.Context, messages []Message, _ []tools.Tool) (Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, append([]Message(nil), messages...))
	if len(s.queue) == 0 {
		return Completion{}, goerr.Wrap(ErrCompletionFailure, "script exhausted")
	}
	step := s.queue[0]
	s.queue = s.queue[1:]
	if step.err != nil {
		return Completion{}, failure("scripted", step.err)
	}
	return step.completion, nil
}

// Requests returns the message lists received so far.
func (s *Scripted) Requests() [][]Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]Message(nil), s.requests...)
}

var (
	_ Completer = (*Offline)(nil)
	_ Completer = (*Scripted)(nil)
	_ Completer = (*OpenAI)(nil)
	_ Completer = (*Anthropic)(nil)
	_ Completer = (*Gemini)(nil)
	_ Completer = (*Ollama)(nil)
)
