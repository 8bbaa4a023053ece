package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/m-mizutani/goerr/v2"
)

// Neo4jAccessMode controls whether a session is opened for read or write operations.
type Neo4jAccessMode string

const (
	AccessModeWrite Neo4jAccessMode = "write"
	AccessModeRead  Neo4jAccessMode = "read"
)

// Neo4jSessionConfig mirrors the subset of session configuration the store needs.
type Neo4jSessionConfig struct {
	AccessMode   Neo4jAccessMode
	DatabaseName string
}

// neo4jDriver abstracts the driver so tests can supply fakes.
type neo4jDriver interface {
	NewSession(ctx context.Context, config Neo4jSessionConfig) (neo4jSession, error)
	Close(ctx context.Context) error
}

type neo4jSession interface {
	BeginTransaction(ctx context.Context) (neo4jTransaction, error)
	Run(ctx context.Context, query string, params map[string]any) (neo4jResult, error)
	Close(ctx context.Context) error
}

type neo4jTransaction interface {
	Run(ctx context.Context, query string, params map[string]any) (neo4jResult, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Close(ctx context.Context) error
}

type neo4jResult interface {
	Next(ctx context.Context) bool
	Record() neo4jRecord
	Err() error
	Close(ctx context.Context) error
}

type neo4jRecord interface {
	Get(key string) (any, bool)
}

// Neo4jDB stores each named store under its own node label with a native
// vector index. Candidates from the index are re-ranked exactly.
type Neo4jDB struct {
	driver   neo4jDriver
	database string
}

var _ Opener = (*Neo4jDB)(nil)

func newNeo4jDB(driver neo4jDriver, database string) (*Neo4jDB, error) {
	if driver == nil {
		return nil, goerr.Wrap(ErrStoreUnavailable, "neo4j driver is nil")
	}
	return &Neo4jDB{driver: driver, database: database}, nil
}

func (d *Neo4jDB) OpenStore(ctx context.Context, name string, dimension int, opts ...Option) (VectorStore, error) {
	o, err := validateOpen(name, dimension, opts)
	if err != nil {
		return nil, err
	}
	s := &Neo4jStore{
		driver:   d.driver,
		database: d.database,
		name:     name,
		label:    "Vec_" + name,
		index:    tableName(name),
		dim:      dimension,
		metric:   o.Metric,
	}

	var (
		gotDim    int64
		gotMetric string
	)
	err = s.write(ctx, func(tx neo4jTransaction) error {
		res, err := tx.Run(ctx, `
MERGE (m:VecManifest {name: $name})
ON CREATE SET m.dimension = $dimension, m.metric = $metric
RETURN m.dimension AS dimension, m.metric AS metric`,
			map[string]any{"name": name, "dimension": int64(dimension), "metric": string(o.Metric)})
		if err != nil {
			return err
		}
		defer res.Close(ctx)
		if !res.Next(ctx) {
			if err := res.Err(); err != nil {
				return err
			}
			return goerr.New("manifest query returned no rows")
		}
		rec := res.Record()
		gotDim = asInt64(get(rec, "dimension"))
		gotMetric, _ = get(rec, "metric").(string)
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to register store", goerr.V("store", name))
	}
	if err := checkManifest(name, dimension, o.Metric, int(gotDim), Metric(gotMetric)); err != nil {
		return nil, err
	}

	schema := []string{
		fmt.Sprintf("CREATE CONSTRAINT IF NOT EXISTS FOR (n:`%s`) REQUIRE n.id IS UNIQUE", s.label),
		fmt.Sprintf("CREATE VECTOR INDEX `%s` IF NOT EXISTS FOR (n:`%s`) ON (n.embedding) "+
			"OPTIONS {indexConfig: {`vector.dimensions`: %d, `vector.similarity_function`: '%s'}}",
			s.index, s.label, dimension, string(o.Metric)),
	}
	for _, q := range schema {
		if err := s.exec(ctx, AccessModeWrite, q, nil); err != nil {
			return nil, goerr.Wrap(err, "failed to create neo4j schema", goerr.V("store", name))
		}
	}
	return s, nil
}

func (d *Neo4jDB) Close() error {
	if d == nil || d.driver == nil {
		return nil
	}
	return d.driver.Close(context.Background())
}

// Neo4jStore is a VectorStore handle over one node label.
type Neo4jStore struct {
	driver   neo4jDriver
	database string
	name     string
	label    string
	index    string
	dim      int
	metric   Metric
	writeMu  sync.Mutex
	closed   atomic.Bool
}

func (s *Neo4jStore) Name() string   { return s.name }
func (s *Neo4jStore) Dimension() int { return s.dim }
func (s *Neo4jStore) Metric() Metric { return s.metric }

func (s *Neo4jStore) check() error {
	if s == nil || s.driver == nil {
		return ErrStoreUnavailable
	}
	if s.closed.Load() {
		return goerr.Wrap(ErrStoreClosed, "neo4j store", goerr.V("store", s.name))
	}
	return nil
}

func (s *Neo4jStore) Add(ctx context.Context, embedding []float32, metadata Metadata) (int64, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	if err := CheckVector(embedding, s.dim); err != nil {
		return 0, err
	}
	meta, err := EncodeMetadata(metadata)
	if err != nil {
		return 0, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	var id int64
	err = s.write(ctx, func(tx neo4jTransaction) error {
		res, err := tx.Run(ctx, fmt.Sprintf(`
MERGE (c:VecCounter {name: $name})
ON CREATE SET c.seq = 0
SET c.seq = c.seq + 1
WITH c.seq AS id
CREATE (n:`+"`%s`"+` {id: id, embedding: $embedding, metadata: $metadata})
RETURN id`, s.label),
			map[string]any{"name": s.name, "embedding": float64Embedding(embedding), "metadata": string(meta)})
		if err != nil {
			return err
		}
		defer res.Close(ctx)
		if !res.Next(ctx) {
			if err := res.Err(); err != nil {
				return err
			}
			return goerr.New("insert returned no id")
		}
		id = asInt64(get(res.Record(), "id"))
		return nil
	})
	if err != nil {
		return 0, goerr.Wrap(err, "failed to insert record", goerr.V("store", s.name))
	}
	return id, nil
}

// Query asks the vector index for a widened candidate set and ranks it exactly.
func (s *Neo4jStore) Query(ctx context.Context, embedding []float32, k int) ([]QueryResult, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if err := checkQuery(embedding, s.dim, k); err != nil {
		return nil, err
	}
	best := newTopK[[]byte](k)
	params := map[string]any{
		"index":      s.index,
		"candidates": int64(k * 4),
		"embedding":  float64Embedding(embedding),
	}
	err := s.read(ctx, `
CALL db.index.vector.queryNodes($index, $candidates, $embedding) YIELD node
RETURN node.id AS id, node.embedding AS embedding, node.metadata AS metadata`, params, func(rec neo4jRecord) error {
		id := asInt64(get(rec, "id"))
		vec := asFloat32s(get(rec, "embedding"))
		if len(vec) != s.dim {
			return goerr.Wrap(ErrInvalidVector, "stored embedding has wrong length", goerr.V("id", id))
		}
		meta, _ := get(rec, "metadata").(string)
		best.offer(id, s.metric.Distance(embedding, vec), []byte(meta))
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query store", goerr.V("store", s.name))
	}
	return decodeCandidates(best.sorted())
}

func (s *Neo4jStore) Delete(ctx context.Context, ids ...int64) error {
	if err := s.check(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	q := fmt.Sprintf("MATCH (n:`%s`) WHERE n.id IN $ids DETACH DELETE n", s.label)
	if err := s.exec(ctx, AccessModeWrite, q, map[string]any{"ids": ids}); err != nil {
		return goerr.Wrap(err, "failed to delete records", goerr.V("store", s.name))
	}
	return nil
}

func (s *Neo4jStore) Count(ctx context.Context) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	var n int64
	q := fmt.Sprintf("MATCH (n:`%s`) RETURN count(n) AS count", s.label)
	err := s.read(ctx, q, nil, func(rec neo4jRecord) error {
		n = asInt64(get(rec, "count"))
		return nil
	})
	if err != nil {
		return 0, goerr.Wrap(err, "failed to count records", goerr.V("store", s.name))
	}
	return int(n), nil
}

func (s *Neo4jStore) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *Neo4jStore) write(ctx context.Context, fn func(tx neo4jTransaction) error) (err error) {
	session, err := s.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: AccessModeWrite, DatabaseName: s.database})
	if err != nil {
		return ErrStoreUnavailable.Wrap(goerr.Wrap(err, "neo4j new session"))
	}
	defer session.Close(ctx)

	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		return err
	}
	defer tx.Close(ctx)
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (s *Neo4jStore) exec(ctx context.Context, mode Neo4jAccessMode, query string, params map[string]any) error {
	session, err := s.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: mode, DatabaseName: s.database})
	if err != nil {
		return ErrStoreUnavailable.Wrap(goerr.Wrap(err, "neo4j new session"))
	}
	defer session.Close(ctx)
	res, err := session.Run(ctx, query, params)
	if err != nil {
		return err
	}
	return res.Close(ctx)
}

func (s *Neo4jStore) read(ctx context.Context, query string, params map[string]any, fn func(neo4jRecord) error) error {
	session, err := s.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: AccessModeRead, DatabaseName: s.database})
	if err != nil {
		return ErrStoreUnavailable.Wrap(goerr.Wrap(err, "neo4j new session"))
	}
	defer session.Close(ctx)
	res, err := session.Run(ctx, query, params)
	if err != nil {
		return err
	}
	defer res.Close(ctx)
	for res.Next(ctx) {
		if err := fn(res.Record()); err != nil {
			return err
		}
	}
	return res.Err()
}

func get(rec neo4jRecord, key string) any {
	if rec == nil {
		return nil
	}
	v, _ := rec.Get(key)
	return v
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func asFloat32s(v any) []float32 {
	switch vals := v.(type) {
	case []float32:
		return append([]float32(nil), vals...)
	case []float64:
		return float32Embedding(vals)
	case []any:
		out := make([]float32, 0, len(vals))
		for _, item := range vals {
			switch f := item.(type) {
			case float64:
				out = append(out, float32(f))
			case float32:
				out = append(out, f)
			case int64:
				out = append(out, float32(f))
			default:
				return nil
			}
		}
		return out
	default:
		return nil
	}
}
