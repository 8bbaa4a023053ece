package models

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"

	"github.com/Protocol-Lattice/recall/pkg/tools"
)

const DefaultAnthropicModel = "claude-3-5-haiku-latest"

// Anthropic implements Completer with the Messages API.
type Anthropic struct {
	Client    *anthropic.Client
	Model     string
	MaxTokens int
}

// NewAnthropic reads ANTHROPIC_API_KEY from the environment.
func NewAnthropic(model string, maxTokens int) *Anthropic {
	cl := anthropic.NewClient(anthropicopt.WithAPIKey(os.Getenv("ANTHROPIC_API_KEY")))
	if model == "" {
		model = DefaultAnthropicModel
	}
	return &Anthropic{Client: &cl, Model: model, MaxTokens: maxTokens}
}

func (a *Anthropic) Complete(ctx context.Context, messages []Message, catalog []tools.Tool) (Completion, error) {
	system, rest := splitSystem(messages)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.Model),
		MaxTokens: int64(a.MaxTokens),
		Messages:  anthropicMessages(rest),
		Tools:     anthropicTools(catalog),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := a.Client.Messages.New(ctx, params)
	if err != nil {
		return Completion{}, failure("anthropic", err)
	}

	var (
		text  strings.Builder
		calls []tools.FunctionCall
	)
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.AsText().Text)
		case "tool_use":
			use := block.AsToolUse()
			raw, err := json.Marshal(use.Input)
			if err != nil {
				return Completion{}, failure("anthropic", err)
			}
			args, err := decodeArguments(raw)
			if err != nil {
				return Completion{}, failure("anthropic", err)
			}
			calls = append(calls, tools.FunctionCall{Name: use.Name, Arguments: args})
		}
	}
	return Completion{Response: text.String(), FunctionCalls: calls}, nil
}

// anthropicMessages maps history onto alternating user and assistant turns.
// Consecutive messages with the same role are merged.
func anthropicMessages(messages []Message) []anthropic.MessageParam {
	var (
		out     []anthropic.MessageParam
		pending []string
		role    Role
	)
	flush := func() {
		if len(pending) == 0 {
			return
		}
		block := anthropic.NewTextBlock(strings.Join(pending, "\n\n"))
		if role == RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
		pending = nil
	}
	for _, m := range messages {
		r := m.Role
		if r != RoleAssistant {
			r = RoleUser
		}
		if r != role {
			flush()
			role = r
		}
		if strings.TrimSpace(m.Content) != "" {
			pending = append(pending, m.Content)
		}
	}
	flush()
	return out
}

func anthropicTools(catalog []tools.Tool) []anthropic.ToolUnionParam {
	if len(catalog) == 0 {
		return nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(catalog))
	for _, t := range catalog {
		out = append(out, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: t.Properties(),
				Required:   t.RequiredParams(),
			},
		}})
	}
	return out
}
