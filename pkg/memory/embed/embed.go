// Package embed defines the text-embedding capability and its providers.
package embed

import (
	"context"
	"math"
	"strings"

	fastembed "github.com/anush008/fastembed-go"
	"github.com/m-mizutani/goerr/v2"
)

var (
	// ErrEmbeddingFailure wraps every provider failure.
	ErrEmbeddingFailure = goerr.New("embedding failed", goerr.ID("EMBEDDING_FAILURE"))
	// ErrEmptyEmbedding marks an empty, zero or non-finite vector from a provider.
	ErrEmptyEmbedding  = goerr.Wrap(ErrEmbeddingFailure, "provider returned an unusable vector")
	ErrUnknownProvider = goerr.New("unknown embedding provider")
)

// Embedder maps text to a fixed-length vector. Failures are errors, never a
// zero or placeholder vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// PassageEmbedder is implemented by embedders whose models encode stored
// passages differently from queries.
type PassageEmbedder interface {
	EmbedPassage(ctx context.Context, text string) ([]float32, error)
}

// Dimensioner is implemented by embedders that know their output length.
type Dimensioner interface {
	Dimensions() int
}

// Validate rejects vectors a store could not rank meaningfully.
func Validate(vec []float32) error {
	if len(vec) == 0 {
		return goerr.Wrap(ErrEmptyEmbedding, "vector is empty")
	}
	nonZero := false
	for i, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return goerr.Wrap(ErrEmptyEmbedding, "vector has a non-finite value", goerr.V("index", i))
		}
		if v != 0 {
			nonZero = true
		}
	}
	if !nonZero {
		return goerr.Wrap(ErrEmptyEmbedding, "vector is all zeros")
	}
	return nil
}

// Config selects and parameterizes a provider.
type Config struct {
	// Provider is one of hash, openai, ollama, gemini or fastembed.
	Provider  string
	Model     string
	Dimension int
	CacheDir  string
}

// New builds the configured provider. API keys and hosts come from the
// provider's usual environment variables.
func New(ctx context.Context, cfg Config) (Embedder, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "hash":
		return NewHash(cfg.Dimension), nil
	case "openai":
		return NewOpenAI(cfg.Model, cfg.Dimension), nil
	case "ollama":
		return NewOllama(cfg.Model)
	case "gemini", "google":
		return NewGemini(ctx, cfg.Model)
	case "fastembed":
		return NewFastEmbed(&FastEmbedOptions{Model: fastembed.EmbeddingModel(cfg.Model), CacheDir: cfg.CacheDir})
	default:
		return nil, goerr.Wrap(ErrUnknownProvider, "cannot build embedder", goerr.V("provider", cfg.Provider))
	}
}

func failure(err error, provider string) error {
	return ErrEmbeddingFailure.Wrap(goerr.Wrap(err, "embedding request failed"),
		goerr.V("provider", provider))
}

func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}
