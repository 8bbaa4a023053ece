// Package memory composes chunking, embedding and a vector store into
// ingest and recall operations.
package memory

import (
	"context"
	"errors"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/Protocol-Lattice/recall/internal/logging"
	"github.com/Protocol-Lattice/recall/pkg/chunk"
	"github.com/Protocol-Lattice/recall/pkg/concurrent"
	"github.com/Protocol-Lattice/recall/pkg/document"
	"github.com/Protocol-Lattice/recall/pkg/memory/embed"
	"github.com/Protocol-Lattice/recall/pkg/memory/store"
)

// Reserved metadata keys.
const (
	ContentKey   = "content"
	SourceKey    = "source"
	PageCountKey = "page_count"
	ChunkKey     = "chunk_index"
)

var (
	ErrInvalidLimit  = goerr.New("recall limit must be positive")
	ErrMisconfigured = goerr.New("memory service is misconfigured")
)

// Options configures chunking and recall filtering.
type Options struct {
	ChunkSize int
	Overlap   int
	// MaxDistance drops recall results farther than this value. Zero disables it.
	MaxDistance float64
}

func DefaultOptions() Options {
	return Options{ChunkSize: chunk.DefaultSize, Overlap: chunk.DefaultOverlap}
}

func (o Options) withDefaults() Options {
	if o.ChunkSize == 0 {
		o.ChunkSize = chunk.DefaultSize
		if o.Overlap == 0 {
			o.Overlap = chunk.DefaultOverlap
		}
	}
	return o
}

// Memory is one recalled chunk.
type Memory struct {
	ID       int64
	Content  string
	Tags     store.Metadata
	Distance float64
}

// Service owns no resources; the caller opens and closes the store.
type Service struct {
	embedder embed.Embedder
	store    store.VectorStore
	splitter chunk.Splitter
	opts     Options
	metrics  Metrics
}

// New wires an embedder to a store. When the embedder reports its dimension it
// must match the store's.
func New(embedder embed.Embedder, vs store.VectorStore, opts Options) (*Service, error) {
	if embedder == nil {
		return nil, goerr.Wrap(ErrMisconfigured, "embedder is nil")
	}
	if vs == nil {
		return nil, goerr.Wrap(ErrMisconfigured, "vector store is nil")
	}
	opts = opts.withDefaults()
	if opts.ChunkSize <= 0 || opts.Overlap < 0 || opts.Overlap >= opts.ChunkSize {
		return nil, goerr.Wrap(ErrMisconfigured, "chunk overlap must be in [0, size)",
			goerr.V("size", opts.ChunkSize), goerr.V("overlap", opts.Overlap))
	}
	if opts.MaxDistance < 0 {
		return nil, goerr.Wrap(ErrMisconfigured, "max distance cannot be negative")
	}
	if d, ok := embedder.(embed.Dimensioner); ok && d.Dimensions() > 0 && d.Dimensions() != vs.Dimension() {
		return nil, goerr.Wrap(store.ErrDimensionMismatch, "embedder and store dimensions differ",
			goerr.V("embedder", d.Dimensions()), goerr.V("store", vs.Dimension()))
	}
	return &Service{
		embedder: embedder,
		store:    vs,
		splitter: chunk.Splitter{Size: opts.ChunkSize, Overlap: opts.Overlap},
		opts:     opts,
	}, nil
}

// Store exposes the underlying vector store.
func (s *Service) Store() store.VectorStore { return s.store }

func (s *Service) Metrics() MetricsSnapshot { return s.metrics.Snapshot() }

// Ingest chunks text, embeds each chunk and stores it with meta plus the chunk
// text under ContentKey. It stops at the first failure and returns how many
// chunks were stored before it; those records are kept.
func (s *Service) Ingest(ctx context.Context, text string, meta store.Metadata) (int, error) {
	chunks, err := s.splitter.Split(text)
	if err != nil {
		return 0, err
	}
	logger := logging.From(ctx)

	stored := 0
	for _, c := range chunks {
		if strings.TrimSpace(c.Text) == "" {
			continue
		}
		vec, err := s.embed(ctx, c.Text, true)
		if err != nil {
			s.metrics.incFailures()
			return stored, goerr.Wrap(err, "ingest aborted", goerr.V("chunk", c.Ordinal), goerr.V("stored", stored))
		}
		record := meta.Clone()
		record[ContentKey] = c.Text
		record[ChunkKey] = c.Ordinal
		id, err := s.store.Add(ctx, vec, record)
		if err != nil {
			s.metrics.incFailures()
			return stored, goerr.Wrap(err, "ingest aborted", goerr.V("chunk", c.Ordinal), goerr.V("stored", stored))
		}
		stored++
		s.metrics.incStored()
		logger.Debug("memory chunk stored", "id", id, "chunk", c.Ordinal, "runes", len([]rune(c.Text)))
	}
	return stored, nil
}

// IngestDocument ingests extracted document text tagged with its display name.
func (s *Service) IngestDocument(ctx context.Context, doc document.Document, meta store.Metadata) (int, error) {
	record := meta.Clone()
	record[SourceKey] = doc.Name
	if doc.Pages > 0 {
		record[PageCountKey] = doc.Pages
	}
	n, err := s.Ingest(ctx, doc.Text, record)
	if err != nil {
		return n, goerr.Wrap(err, "document ingest failed", goerr.V("document", doc.Name))
	}
	logging.From(ctx).Info("document ingested", "document", doc.Name, "chunks", n)
	return n, nil
}

// IngestReport is the outcome for one document of IngestAll.
type IngestReport struct {
	Name   string
	Chunks int
	Err    error

	started bool
}

// IngestAll ingests documents concurrently with at most workers in flight.
// Each document is attempted; the error joins every failure.
func (s *Service) IngestAll(ctx context.Context, docs []document.Document, meta store.Metadata, workers int) ([]IngestReport, error) {
	reports, err := concurrent.ParallelMap(ctx, docs, func(ctx context.Context, doc document.Document) (IngestReport, error) {
		n, err := s.IngestDocument(ctx, doc, meta)
		return IngestReport{Name: doc.Name, Chunks: n, Err: err, started: true}, err
	}, workers)
	for i := range reports {
		if !reports[i].started {
			// ctx ended before a worker picked the document up
			reports[i].Name = docs[i].Name
			reports[i].Err = ctx.Err()
		}
	}
	return reports, err
}

// Recall embeds query once and returns up to limit memories, closest first.
// An empty store yields an empty slice.
func (s *Service) Recall(ctx context.Context, query string, limit int) ([]Memory, error) {
	if limit <= 0 {
		return nil, goerr.Wrap(ErrInvalidLimit, "cannot recall", goerr.V("limit", limit))
	}
	s.metrics.incRecalls()
	vec, err := s.embed(ctx, query, false)
	if err != nil {
		s.metrics.incFailures()
		return nil, goerr.Wrap(err, "recall aborted")
	}
	results, err := s.store.Query(ctx, vec, limit)
	if err != nil {
		s.metrics.incFailures()
		return nil, goerr.Wrap(err, "recall aborted")
	}

	memories := make([]Memory, 0, len(results))
	for _, r := range results {
		if s.opts.MaxDistance > 0 && r.Distance > s.opts.MaxDistance {
			continue
		}
		tags := r.Metadata.Clone()
		content := tags.String(ContentKey)
		delete(tags, ContentKey)
		memories = append(memories, Memory{ID: r.ID, Content: content, Tags: tags, Distance: r.Distance})
	}
	s.metrics.incRecalled(len(memories))
	s.metrics.incFiltered(len(results) - len(memories))
	return memories, nil
}

// Forget deletes memories by id.
func (s *Service) Forget(ctx context.Context, ids ...int64) error {
	if err := s.store.Delete(ctx, ids...); err != nil {
		return goerr.Wrap(err, "forget failed", goerr.V("ids", ids))
	}
	s.metrics.incForgotten(len(ids))
	return nil
}

// embed encodes a query, or a stored passage when passage is set and the
// embedder has a passage mode.
func (s *Service) embed(ctx context.Context, text string, passage bool) ([]float32, error) {
	fn := s.embedder.Embed
	if p, ok := s.embedder.(embed.PassageEmbedder); ok && passage {
		fn = p.EmbedPassage
	}
	vec, err := fn(ctx, text)
	if err != nil {
		if errors.Is(err, embed.ErrEmbeddingFailure) {
			return nil, err
		}
		return nil, embed.ErrEmbeddingFailure.Wrap(goerr.Wrap(err, "embedder failed"))
	}
	if err := embed.Validate(vec); err != nil {
		return nil, err
	}
	return vec, nil
}
