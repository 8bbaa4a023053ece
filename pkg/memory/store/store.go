// Package store persists embeddings with metadata and answers nearest-neighbour
// queries. Each backend (SQLite, Postgres, MongoDB, Neo4j, in-memory) exposes a
// DB whose OpenStore returns a VectorStore bound to one named store.
package store

import (
	"context"
	"math"
	"regexp"

	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrStoreUnavailable  = goerr.New("vector store unavailable", goerr.ID("STORE_UNAVAILABLE"))
	ErrStoreClosed       = goerr.Wrap(ErrStoreUnavailable, "vector store is closed")
	ErrDimensionMismatch = goerr.New("embedding dimension does not match store")
	ErrMetricMismatch    = goerr.New("distance metric does not match store")
	ErrInvalidVector     = goerr.New("invalid embedding vector")
	ErrInvalidName       = goerr.New("invalid store name")
	ErrInvalidQuery      = goerr.New("invalid query")
)

// QueryResult is one ranked match. Distance is never negative.
type QueryResult struct {
	ID       int64
	Metadata Metadata
	Distance float64
}

// VectorStore is a handle to one named store with a fixed dimension and metric.
// Implementations are safe for concurrent use; writes are serialized so every
// Add receives a unique, increasing id.
type VectorStore interface {
	Name() string
	Dimension() int
	Metric() Metric
	Add(ctx context.Context, embedding []float32, metadata Metadata) (int64, error)
	// Query returns at most k results ordered by ascending distance, ties broken
	// by ascending id.
	Query(ctx context.Context, embedding []float32, k int) ([]QueryResult, error)
	Delete(ctx context.Context, ids ...int64) error
	Count(ctx context.Context) (int, error)
	Close() error
}

// Opener opens named stores on an underlying connection.
type Opener interface {
	OpenStore(ctx context.Context, name string, dimension int, opts ...Option) (VectorStore, error)
	Close() error
}

// Options configures a store at open time.
type Options struct {
	Metric Metric
}

type Option func(*Options)

// WithMetric selects the distance metric for a new store. Existing stores keep
// the metric they were created with; asking for a different one fails.
func WithMetric(m Metric) Option {
	return func(o *Options) { o.Metric = m }
}

func resolveOptions(opts []Option) (Options, error) {
	o := Options{Metric: Cosine}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if _, err := ParseMetric(string(o.Metric)); err != nil {
		return Options{}, err
	}
	return o, nil
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,48}$`)

// ValidateName checks that name can be embedded in table, collection and label
// identifiers.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return goerr.Wrap(ErrInvalidName, "store name must match [A-Za-z0-9_]{1,48}", goerr.V("name", name))
	}
	return nil
}

func validateOpen(name string, dimension int, opts []Option) (Options, error) {
	if err := ValidateName(name); err != nil {
		return Options{}, err
	}
	if dimension <= 0 {
		return Options{}, goerr.Wrap(ErrDimensionMismatch, "dimension must be positive", goerr.V("dimension", dimension))
	}
	return resolveOptions(opts)
}

// checkManifest compares a persisted store definition against the requested one.
func checkManifest(name string, wantDim int, wantMetric Metric, gotDim int, gotMetric Metric) error {
	if gotDim != wantDim {
		return goerr.Wrap(ErrDimensionMismatch, "store was created with a different dimension",
			goerr.V("store", name), goerr.V("existing", gotDim), goerr.V("requested", wantDim))
	}
	if gotMetric != wantMetric {
		return goerr.Wrap(ErrMetricMismatch, "store was created with a different metric",
			goerr.V("store", name), goerr.V("existing", gotMetric), goerr.V("requested", wantMetric))
	}
	return nil
}

// CheckVector verifies length and finiteness of an embedding.
func CheckVector(embedding []float32, dimension int) error {
	if len(embedding) != dimension {
		return goerr.Wrap(ErrInvalidVector, "embedding length does not match store dimension",
			goerr.V("length", len(embedding)), goerr.V("dimension", dimension))
	}
	for i, v := range embedding {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return goerr.Wrap(ErrInvalidVector, "embedding contains a non-finite value", goerr.V("index", i))
		}
	}
	return nil
}

func checkQuery(embedding []float32, dimension, k int) error {
	if k <= 0 {
		return goerr.Wrap(ErrInvalidQuery, "k must be positive", goerr.V("k", k))
	}
	return CheckVector(embedding, dimension)
}

func tableName(name string) string {
	return "vec_" + name
}
