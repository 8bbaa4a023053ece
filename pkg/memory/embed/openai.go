package embed

import (
	"context"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/sashabaranov/go-openai"
)

// OpenAI calls the embeddings endpoint. Model defaults to text-embedding-3-small.
type OpenAI struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

func NewOpenAI(model string, dimensions int) *OpenAI {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_KEY")
	}
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	return &OpenAI{client: openai.NewClient(apiKey), model: openai.EmbeddingModel(model), dimensions: dimensions}
}

func (o *OpenAI) Dimensions() int { return o.dimensions }

func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{Input: []string{text}, Model: o.model}
	if o.dimensions > 0 {
		req.Dimensions = o.dimensions
	}
	resp, err := o.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, failure(err, "openai")
	}
	if len(resp.Data) == 0 {
		return nil, goerr.Wrap(ErrEmptyEmbedding, "openai returned no data")
	}
	vec := resp.Data[0].Embedding
	if err := Validate(vec); err != nil {
		return nil, err
	}
	return vec, nil
}
