package embed

import (
	"context"
	"os"

	"github.com/google/generative-ai-go/genai"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/option"
)

// Gemini uses the Google AI embedding model (GOOGLE_API_KEY).
type Gemini struct {
	client *genai.Client
	model  *genai.EmbeddingModel
}

func NewGemini(ctx context.Context, model string) (*Gemini, error) {
	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if model == "" {
		model = "text-embedding-004"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, failure(err, "gemini")
	}
	return &Gemini{client: client, model: client.EmbeddingModel(model)}, nil
}

func (g *Gemini) Dimensions() int { return 768 }

func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := g.model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, failure(err, "gemini")
	}
	if resp == nil || resp.Embedding == nil {
		return nil, goerr.Wrap(ErrEmptyEmbedding, "gemini returned no embedding")
	}
	if err := Validate(resp.Embedding.Values); err != nil {
		return nil, err
	}
	return resp.Embedding.Values, nil
}

func (g *Gemini) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}
