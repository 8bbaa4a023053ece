// Package agent runs the conversation loop: one user turn, one completion,
// then either a plain reply or sequential tool dispatch.
package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/Protocol-Lattice/recall/internal/logging"
	"github.com/Protocol-Lattice/recall/pkg/models"
	"github.com/Protocol-Lattice/recall/pkg/tools"
)

var (
	ErrTurnInProgress = goerr.New("a turn is already in progress")
	ErrEmptyInput     = goerr.New("user input is empty")
	ErrMisconfigured  = goerr.New("conversation is misconfigured")
)

// Options configure a new Conversation.
type Options struct {
	// Preamble opens the system prompt. A default is used when empty.
	Preamble string
	// ID labels log lines. A random UUID is used when empty.
	ID string
}

// TurnResult lists what a turn appended after the user message.
type TurnResult struct {
	Messages []models.Message
	Outcomes []tools.Outcome
}

// Conversation owns the history of one chat. Turns are serialized.
type Conversation struct {
	id         string
	completer  models.Completer
	registry   *tools.Registry
	dispatcher *tools.Dispatcher
	preamble   string

	turn    sync.Mutex
	mu      sync.RWMutex
	history []models.Message
}

func New(completer models.Completer, registry *tools.Registry, dispatcher *tools.Dispatcher, opts Options) (*Conversation, error) {
	if completer == nil {
		return nil, goerr.Wrap(ErrMisconfigured, "conversation requires a completer")
	}
	if registry == nil {
		return nil, goerr.Wrap(ErrMisconfigured, "conversation requires a tool registry")
	}
	if dispatcher == nil {
		dispatcher = tools.NewDispatcher(registry)
	}
	id := strings.TrimSpace(opts.ID)
	if id == "" {
		id = uuid.NewString()
	}
	return &Conversation{
		id:         id,
		completer:  completer,
		registry:   registry,
		dispatcher: dispatcher,
		preamble:   opts.Preamble,
	}, nil
}

func (c *Conversation) ID() string { return c.id }

// SystemPrompt renders the prompt for the current catalog.
func (c *Conversation) SystemPrompt() string {
	return SystemPrompt(c.preamble, c.registry.Describe())
}

// Turn appends text as a user message, asks the completer for the next step
// and appends one assistant message per tool outcome, or one for the plain
// response. A completion failure leaves only the user message behind.
func (c *Conversation) Turn(ctx context.Context, text string) (TurnResult, error) {
	if !c.turn.TryLock() {
		return TurnResult{}, goerr.Wrap(ErrTurnInProgress, "cannot start turn", goerr.V("conversation", c.id))
	}
	defer c.turn.Unlock()

	text = strings.TrimSpace(text)
	if text == "" {
		return TurnResult{}, ErrEmptyInput
	}

	logger := logging.From(ctx).With("conversation", c.id)
	ctx = logging.With(ctx, logger)

	c.append(models.Message{Role: models.RoleUser, Content: text})

	catalog := c.registry.Describe()
	messages := append([]models.Message{{Role: models.RoleSystem, Content: SystemPrompt(c.preamble, catalog)}}, c.History()...)

	started := time.Now()
	completion, err := c.completer.Complete(ctx, messages, catalog)
	if err != nil {
		if !errors.Is(err, models.ErrCompletionFailure) {
			err = models.ErrCompletionFailure.Wrap(goerr.Wrap(err, "completer failed"))
		}
		logger.Error("completion failed", "error", err, "elapsed", time.Since(started))
		return TurnResult{}, goerr.Wrap(err, "turn failed", goerr.V("conversation", c.id))
	}
	logger.Debug("completion received",
		"elapsed", time.Since(started),
		"function_calls", len(completion.FunctionCalls))

	var result TurnResult
	if len(completion.FunctionCalls) == 0 {
		reply := models.Message{Role: models.RoleAssistant, Content: completion.Response}
		c.append(reply)
		result.Messages = append(result.Messages, reply)
		return result, nil
	}

	result.Outcomes = c.dispatcher.DispatchAll(ctx, completion.FunctionCalls)
	for _, out := range result.Outcomes {
		reply := models.Message{Role: models.RoleAssistant, Content: out.Result}
		c.append(reply)
		result.Messages = append(result.Messages, reply)
		logger.Info("tool call finished", "tool", out.Call.Name, "state", out.State.String())
	}
	return result, nil
}

// History returns a copy of the conversation so far, without the system prompt.
func (c *Conversation) History() []models.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.Message(nil), c.history...)
}

// Reset clears the history.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
}

func (c *Conversation) append(m models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, m)
}
