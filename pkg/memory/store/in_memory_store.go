package store

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/m-mizutani/goerr/v2"
)

// InMemoryDB keeps named stores in process memory. Data lives as long as the
// InMemoryDB value; handles opened on the same name share records.
type InMemoryDB struct {
	mu     sync.Mutex
	tables map[string]*memTable
}

type memTable struct {
	mu      sync.RWMutex
	dim     int
	metric  Metric
	nextID  int64
	records []memRecord
}

type memRecord struct {
	id        int64
	embedding []float32
	metadata  []byte
}

var _ Opener = (*InMemoryDB)(nil)

func NewInMemoryDB() *InMemoryDB {
	return &InMemoryDB{tables: make(map[string]*memTable)}
}

// OpenStore returns a handle for name, creating the store on first use.
func (db *InMemoryDB) OpenStore(_ context.Context, name string, dimension int, opts ...Option) (VectorStore, error) {
	o, err := validateOpen(name, dimension, opts)
	if err != nil {
		return nil, err
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.tables == nil {
		db.tables = make(map[string]*memTable)
	}
	table, ok := db.tables[name]
	if !ok {
		table = &memTable{dim: dimension, metric: o.Metric}
		db.tables[name] = table
	}
	if err := checkManifest(name, dimension, o.Metric, table.dim, table.metric); err != nil {
		return nil, err
	}
	return &InMemoryStore{name: name, table: table}, nil
}

// Close is a no-op; records stay reachable through the InMemoryDB.
func (db *InMemoryDB) Close() error { return nil }

// InMemoryStore implements VectorStore for tests and ephemeral sessions.
type InMemoryStore struct {
	name   string
	table  *memTable
	closed atomic.Bool
}

func (s *InMemoryStore) Name() string   { return s.name }
func (s *InMemoryStore) Dimension() int { return s.table.dim }
func (s *InMemoryStore) Metric() Metric { return s.table.metric }

func (s *InMemoryStore) check() error {
	if s == nil || s.table == nil {
		return ErrStoreUnavailable
	}
	if s.closed.Load() {
		return goerr.Wrap(ErrStoreClosed, "in-memory store", goerr.V("store", s.name))
	}
	return nil
}

func (s *InMemoryStore) Add(_ context.Context, embedding []float32, metadata Metadata) (int64, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	if err := CheckVector(embedding, s.table.dim); err != nil {
		return 0, err
	}
	raw, err := EncodeMetadata(metadata)
	if err != nil {
		return 0, err
	}

	s.table.mu.Lock()
	defer s.table.mu.Unlock()
	s.table.nextID++
	s.table.records = append(s.table.records, memRecord{
		id:        s.table.nextID,
		embedding: append([]float32(nil), embedding...),
		metadata:  raw,
	})
	return s.table.nextID, nil
}

func (s *InMemoryStore) Query(_ context.Context, embedding []float32, k int) ([]QueryResult, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if err := checkQuery(embedding, s.table.dim, k); err != nil {
		return nil, err
	}

	s.table.mu.RLock()
	best := newTopK[[]byte](k)
	for _, rec := range s.table.records {
		best.offer(rec.id, s.table.metric.Distance(embedding, rec.embedding), rec.metadata)
	}
	s.table.mu.RUnlock()

	return decodeCandidates(best.sorted())
}

func (s *InMemoryStore) Delete(_ context.Context, ids ...int64) error {
	if err := s.check(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	drop := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	s.table.mu.Lock()
	defer s.table.mu.Unlock()
	kept := s.table.records[:0]
	for _, rec := range s.table.records {
		if _, ok := drop[rec.id]; !ok {
			kept = append(kept, rec)
		}
	}
	s.table.records = kept
	return nil
}

func (s *InMemoryStore) Count(context.Context) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	s.table.mu.RLock()
	defer s.table.mu.RUnlock()
	return len(s.table.records), nil
}

func (s *InMemoryStore) Close() error {
	s.closed.Store(true)
	return nil
}

func decodeCandidates(cands []candidate[[]byte]) ([]QueryResult, error) {
	results := make([]QueryResult, 0, len(cands))
	for _, c := range cands {
		meta, err := DecodeMetadata(c.payload)
		if err != nil {
			return nil, goerr.Wrap(err, "corrupt metadata", goerr.V("id", c.id))
		}
		results = append(results, QueryResult{ID: c.id, Metadata: meta, Distance: c.distance})
	}
	return results, nil
}
