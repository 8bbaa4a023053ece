package embed

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	ollama "github.com/ollama/ollama/api"
)

// Ollama embeds through a local Ollama server (OLLAMA_HOST).
type Ollama struct {
	client *ollama.Client
	model  string
}

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
		model = "nomic-embed-text"
	}
	return &Ollama{client: ollama.NewClient(u, &http.Client{Timeout: 60 * time.Second}), model: model}, nil
}

func (e *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := e.client.Embed(ctx, &ollama.EmbedRequest{Model: e.model, Input: text})
	if err != nil {
		return nil, failure(err, "ollama")
	}
	if res == nil || len(res.Embeddings) == 0 {
		return nil, goerr.Wrap(ErrEmptyEmbedding, "ollama returned no embeddings", goerr.V("model", e.model))
	}
	vec := res.Embeddings[0]
	if err := Validate(vec); err != nil {
		return nil, err
	}
	return vec, nil
}
