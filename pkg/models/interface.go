// Package models adapts chat-completion providers to the Completer interface
// used by the conversation loop.
package models

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/Protocol-Lattice/recall/pkg/tools"
)

var (
	// ErrCompletionFailure wraps every provider failure.
	ErrCompletionFailure = goerr.New("completion failed", goerr.ID("COMPLETION_FAILURE"))
	ErrUnknownProvider   = goerr.New("unknown completion provider")
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Completion is either a plain response or an ordered list of function calls.
type Completion struct {
	Response      string               `json:"response"`
	FunctionCalls []tools.FunctionCall `json:"function_calls,omitempty"`
}

// Completer asks a model for the next assistant turn.
type Completer interface {
	Complete(ctx context.Context, messages []Message, catalog []tools.Tool) (Completion, error)
}

func failure(provider string, err error) error {
	return ErrCompletionFailure.Wrap(goerr.Wrap(err, "provider request failed"),
		goerr.V("provider", provider))
}

// splitSystem separates system messages from the conversation.
func splitSystem(messages []Message) (string, []Message) {
	var system []string
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}

// decodeArguments parses a JSON object of tool arguments, keeping numbers as
// json.Number so integers survive.
func decodeArguments(raw []byte) (map[string]any, error) {
	args := map[string]any{}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return args, nil
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	if err := dec.Decode(&args); err != nil {
		return nil, goerr.Wrap(err, "tool arguments are not a JSON object")
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
