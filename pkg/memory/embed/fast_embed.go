package embed

import (
	"context"
	"runtime"

	fastembed "github.com/anush008/fastembed-go"
	"github.com/m-mizutani/goerr/v2"
)

// FastEmbedOptions configures the on-device ONNX embedder.
type FastEmbedOptions struct {
	Model     fastembed.EmbeddingModel // zero value picks bge-small-en-v1.5
	CacheDir  string
	MaxLength int
	BatchSize int
}

// FastEmbed runs a local ONNX model. Queries and passages use the model's
// respective prefixes.
type FastEmbed struct {
	m   *fastembed.FlagEmbedding
	dim int
	bs  int
}

func NewFastEmbed(opt *FastEmbedOptions) (*FastEmbed, error) {
	if opt == nil {
		opt = &FastEmbedOptions{}
	}
	model := opt.Model
	if model == "" {
		model = fastembed.BGESmallENV15
	}
	dim, err := fastEmbedDimensions(model)
	if err != nil {
		return nil, err
	}
	m, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:     model,
		CacheDir:  opt.CacheDir,
		MaxLength: opt.MaxLength,
	})
	if err != nil {
		return nil, failure(err, "fastembed")
	}
	bs := opt.BatchSize
	if bs <= 0 {
		bs = 64
	}
	if limit := 4 * runtime.GOMAXPROCS(0); bs > limit {
		bs = limit
	}
	return &FastEmbed{m: m, dim: dim, bs: bs}, nil
}

func fastEmbedDimensions(model fastembed.EmbeddingModel) (int, error) {
	for _, info := range fastembed.ListSupportedModels() {
		if info.Model == model {
			return info.Dim, nil
		}
	}
	return 0, goerr.Wrap(ErrUnknownProvider, "unsupported fastembed model", goerr.V("model", string(model)))
}

func (e *FastEmbed) Dimensions() int { return e.dim }

func (e *FastEmbed) Close() error {
	if e.m != nil {
		return e.m.Destroy()
	}
	return nil
}

// Embed embeds a single query string.
func (e *FastEmbed) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, failure(err, "fastembed")
	}
	vec, err := e.m.QueryEmbed(text)
	if err != nil {
		return nil, failure(err, "fastembed")
	}
	if err := Validate(vec); err != nil {
		return nil, err
	}
	return vec, nil
}

// EmbedPassage embeds text that will be stored and searched against.
func (e *FastEmbed) EmbedPassage(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedPassages(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, goerr.Wrap(ErrEmptyEmbedding, "fastembed returned no passage vector")
	}
	if err := Validate(out[0]); err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedPassages embeds documents in batches. The library adds the passage
// prefix.
func (e *FastEmbed) EmbedPassages(ctx context.Context, docs []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, failure(err, "fastembed")
	}
	out, err := e.m.PassageEmbed(docs, e.bs)
	if err != nil {
		return nil, failure(err, "fastembed")
	}
	return out, nil
}
