package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/Protocol-Lattice/recall/internal/logging"
)

// Cached wraps next with an expiring LRU keyed by the text digest. A
// non-positive size or ttl returns next unchanged.
func Cached(next Embedder, size int, ttl time.Duration) Embedder {
	if next == nil || size <= 0 || ttl <= 0 {
		return next
	}
	return &cachedEmbedder{
		next:  next,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type cachedEmbedder struct {
	next  Embedder
	cache *expirable.LRU[string, []float32]
}

func (c *cachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return c.lookup(ctx, "query:", text, c.next.Embed)
}

// EmbedPassage caches passages apart from queries. Embedders without a
// passage mode share the query entries.
func (c *cachedEmbedder) EmbedPassage(ctx context.Context, text string) ([]float32, error) {
	if p, ok := c.next.(PassageEmbedder); ok {
		return c.lookup(ctx, "passage:", text, p.EmbedPassage)
	}
	return c.Embed(ctx, text)
}

func (c *cachedEmbedder) lookup(ctx context.Context, kind, text string, fn func(context.Context, string) ([]float32, error)) ([]float32, error) {
	sum := sha256.Sum256([]byte(text))
	key := kind + hex.EncodeToString(sum[:])
	if hit, ok := c.cache.Get(key); ok {
		logging.From(ctx).Debug("embedding cache hit", "kind", kind)
		return clone(hit), nil
	}
	vec, err := fn(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, clone(vec))
	return vec, nil
}

// Dimensions forwards to the wrapped embedder when it knows its size.
func (c *cachedEmbedder) Dimensions() int {
	if d, ok := c.next.(Dimensioner); ok {
		return d.Dimensions()
	}
	return 0
}

func clone(v []float32) []float32 {
	if len(v) == 0 {
		return nil
	}
	return append([]float32(nil), v...)
}
