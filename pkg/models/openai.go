package models

import (
	"context"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/sashabaranov/go-openai"

	"github.com/Protocol-Lattice/recall/pkg/tools"
)

const DefaultOpenAIModel = openai.GPT4oMini

type OpenAI struct {
	Client    *openai.Client
	Model     string
	MaxTokens int
}

// NewOpenAI reads OPENAI_API_KEY, falling back to OPENAI_KEY.
func NewOpenAI(model string, maxTokens int) *OpenAI {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_KEY")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAI{Client: openai.NewClient(apiKey), Model: model, MaxTokens: maxTokens}
}

func (o *OpenAI) Complete(ctx context.Context, messages []Message, catalog []tools.Tool) (Completion, error) {
	resp, err := o.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     o.Model,
		MaxTokens: o.MaxTokens,
		Messages:  openAIMessages(messages),
		Tools:     openAITools(catalog),
	})
	if err != nil {
		return Completion{}, failure("openai", err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, failure("openai", goerr.New("no response from OpenAI"))
	}
	return openAICompletion(resp.Choices[0].Message)
}

func openAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case RoleSystem:
			role = openai.ChatMessageRoleSystem
		case RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

func openAITools(catalog []tools.Tool) []openai.Tool {
	if len(catalog) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(catalog))
	for _, t := range catalog {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.JSONSchema(),
			},
		})
	}
	return out
}

func openAICompletion(msg openai.ChatCompletionMessage) (Completion, error) {
	if len(msg.ToolCalls) == 0 {
		return Completion{Response: msg.Content}, nil
	}
	calls := make([]tools.FunctionCall, 0, len(msg.ToolCalls))
	for _, tc := range msg.ToolCalls {
		args, err := decodeArguments([]byte(tc.Function.Arguments))
		if err != nil {
			return Completion{}, failure("openai", err)
		}
		calls = append(calls, tools.FunctionCall{Name: tc.Function.Name, Arguments: args})
	}
	return Completion{Response: msg.Content, FunctionCalls: calls}, nil
}
