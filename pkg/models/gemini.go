package models

import (
	"context"
	"os"
	"strings"

	genai "github.com/google/generative-ai-go/genai"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/option"

	"github.com/Protocol-Lattice/recall/pkg/tools"
)

const DefaultGeminiModel = "gemini-2.5-flash"

type Gemini struct {
	Client    *genai.Client
	Model     string
	MaxTokens int
}

// NewGemini reads GOOGLE_API_KEY, falling back to GEMINI_API_KEY.
func NewGemini(ctx context.Context, model string, maxTokens int) (*Gemini, error) {
	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, goerr.Wrap(ErrCompletionFailure, "missing GOOGLE_API_KEY or GEMINI_API_KEY")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, failure("gemini", err)
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	return &Gemini{Client: client, Model: model, MaxTokens: maxTokens}, nil
}

func (g *Gemini) Close() error { return g.Client.Close() }

func (g *Gemini) Complete(ctx context.Context, messages []Message, catalog []tools.Tool) (Completion, error) {
	system, rest := splitSystem(messages)
	if len(rest) == 0 {
		return Completion{}, failure("gemini", goerr.New("no user message to answer"))
	}

	model := g.Client.GenerativeModel(g.Model)
	model.SetMaxOutputTokens(int32(g.MaxTokens))
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	if decls := geminiDeclarations(catalog); len(decls) > 0 {
		model.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	chat := model.StartChat()
	last := rest[len(rest)-1]
	for _, m := range rest[:len(rest)-1] {
		chat.History = append(chat.History, &genai.Content{
			Role:  geminiRole(m.Role),
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}

	resp, err := chat.SendMessage(ctx, genai.Text(last.Content))
	if err != nil {
		return Completion{}, failure("gemini", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Completion{}, failure("gemini", goerr.New("empty response"))
	}

	var (
		text  strings.Builder
		calls []tools.FunctionCall
	)
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			text.WriteString(string(p))
		case genai.FunctionCall:
			calls = append(calls, tools.FunctionCall{Name: p.Name, Arguments: nonNilArgs(p.Args)})
		case *genai.FunctionCall:
			calls = append(calls, tools.FunctionCall{Name: p.Name, Arguments: nonNilArgs(p.Args)})
		}
	}
	return Completion{Response: text.String(), FunctionCalls: calls}, nil
}

func geminiRole(r Role) string {
	if r == RoleAssistant {
		return "model"
	}
	return "user"
}

func geminiDeclarations(catalog []tools.Tool) []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, 0, len(catalog))
	for _, t := range catalog {
		props := make(map[string]*genai.Schema, len(t.Params))
		for _, p := range t.Params {
			props[p.Name] = &genai.Schema{
				Type:        geminiType(p.Type),
				Description: p.Description,
				Enum:        p.Enum,
			}
		}
		out = append(out, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: props,
				Required:   t.RequiredParams(),
			},
		})
	}
	return out
}

func geminiType(t tools.ParamType) genai.Type {
	switch t {
	case tools.TypeNumber:
		return genai.TypeNumber
	case tools.TypeInteger:
		return genai.TypeInteger
	case tools.TypeBoolean:
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}

func nonNilArgs(args map[string]any) map[string]any {
	if args == nil {
		return map[string]any{}
	}
	return args
}
