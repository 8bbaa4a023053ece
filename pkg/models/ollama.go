package models

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	ollama "github.com/ollama/ollama/api"

	"github.com/Protocol-Lattice/recall/pkg/tools"
)

const DefaultOllamaModel = "llama3.2"

type Ollama struct {
	Client *ollama.Client
	Model  string
}

// NewOllama connects to OLLAMA_HOST, defaulting to the local daemon.
func NewOllama(model string) (*Ollama, error) {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = "http://localhost:11434"
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid OLLAMA_HOST", goerr.V("host", host))
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	c := ollama.NewClient(u, &http.Client{Timeout: 120 * time.Second})
	return &Ollama{Client: c, Model: model}, nil
}

func (o *Ollama) Complete(ctx context.Context, messages []Message, catalog []tools.Tool) (Completion, error) {
	toolDefs, err := ollamaTools(catalog)
	if err != nil {
		return Completion{}, failure("ollama", err)
	}
	stream := false
	req := &ollama.ChatRequest{
		Model:    o.Model,
		Messages: make([]ollama.Message, 0, len(messages)),
		Tools:    toolDefs,
		Stream:   &stream,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, ollama.Message{Role: string(m.Role), Content: m.Content})
	}

	var (
		text  strings.Builder
		calls []tools.FunctionCall
	)
	err = o.Client.Chat(ctx, req, func(resp ollama.ChatResponse) error {
		text.WriteString(resp.Message.Content)
		for _, tc := range resp.Message.ToolCalls {
			raw, err := json.Marshal(tc.Function.Arguments)
			if err != nil {
				return err
			}
			args, err := decodeArguments(raw)
			if err != nil {
				return err
			}
			calls = append(calls, tools.FunctionCall{Name: tc.Function.Name, Arguments: args})
		}
		return nil
	})
	if err != nil {
		return Completion{}, failure("ollama", err)
	}
	return Completion{Response: text.String(), FunctionCalls: calls}, nil
}

// ollamaTools goes through JSON so the request matches the server's tool
// schema regardless of the client struct layout.
func ollamaTools(catalog []tools.Tool) (ollama.Tools, error) {
	if len(catalog) == 0 {
		return nil, nil
	}
	defs := make([]map[string]any, 0, len(catalog))
	for _, t := range catalog {
		defs = append(defs, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.JSONSchema(),
			},
		})
	}
	raw, err := json.Marshal(defs)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode tools")
	}
	var out ollama.Tools
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, goerr.Wrap(err, "failed to decode tools")
	}
	return out, nil
}
