package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/Protocol-Lattice/recall/internal/logging"
)

const postgresManifestDDL = `CREATE TABLE IF NOT EXISTS vec_manifest (
	name       TEXT PRIMARY KEY,
	dimension  INTEGER NOT NULL,
	metric     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresDB stores vectors in Postgres with the pgvector extension.
type PostgresDB struct {
	pool *pgxpool.Pool
}

var _ Opener = (*PostgresDB)(nil)

// OpenPostgres connects to connStr, enables pgvector and prepares the manifest table.
func OpenPostgres(ctx context.Context, connStr string) (*PostgresDB, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, ErrStoreUnavailable.Wrap(goerr.Wrap(err, "invalid postgres connection string"))
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		if _, err := conn.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
			return err
		}
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, ErrStoreUnavailable.Wrap(goerr.Wrap(err, "failed to connect to postgres"))
	}
	if _, err := pool.Exec(ctx, postgresManifestDDL); err != nil {
		pool.Close()
		return nil, ErrStoreUnavailable.Wrap(goerr.Wrap(err, "failed to create manifest table"))
	}
	logging.From(ctx).Info("postgres vector database opened", "host", cfg.ConnConfig.Host)
	return &PostgresDB{pool: pool}, nil
}

func (d *PostgresDB) OpenStore(ctx context.Context, name string, dimension int, opts ...Option) (VectorStore, error) {
	o, err := validateOpen(name, dimension, opts)
	if err != nil {
		return nil, err
	}
	if _, err := d.pool.Exec(ctx,
		`INSERT INTO vec_manifest (name, dimension, metric) VALUES ($1, $2, $3) ON CONFLICT (name) DO NOTHING`,
		name, dimension, string(o.Metric)); err != nil {
		return nil, goerr.Wrap(err, "failed to register store", goerr.V("store", name))
	}
	var (
		gotDim    int
		gotMetric string
	)
	if err := d.pool.QueryRow(ctx, `SELECT dimension, metric FROM vec_manifest WHERE name = $1`, name).Scan(&gotDim, &gotMetric); err != nil {
		return nil, goerr.Wrap(err, "failed to read store manifest", goerr.V("store", name))
	}
	if err := checkManifest(name, dimension, o.Metric, gotDim, Metric(gotMetric)); err != nil {
		return nil, err
	}

	table := pgx.Identifier{tableName(name)}.Sanitize()
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id        BIGSERIAL PRIMARY KEY,
	embedding vector(%d) NOT NULL,
	metadata  JSONB NOT NULL DEFAULT '{}'::jsonb
)`, table, dimension)
	if _, err := d.pool.Exec(ctx, ddl); err != nil {
		return nil, goerr.Wrap(err, "failed to create store table", goerr.V("store", name))
	}
	return &PostgresStore{pool: d.pool, name: name, table: table, dim: dimension, metric: o.Metric}, nil
}

func (d *PostgresDB) Close() error {
	if d != nil && d.pool != nil {
		d.pool.Close()
	}
	return nil
}

// PostgresStore is a VectorStore handle over one pgvector table. Distances are
// computed server side with <=> (cosine) or <-> (euclidean).
type PostgresStore struct {
	pool    *pgxpool.Pool
	name    string
	table   string
	dim     int
	metric  Metric
	writeMu sync.Mutex
	closed  atomic.Bool
}

func (s *PostgresStore) Name() string   { return s.name }
func (s *PostgresStore) Dimension() int { return s.dim }
func (s *PostgresStore) Metric() Metric { return s.metric }

func (s *PostgresStore) check() error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	if s.closed.Load() {
		return goerr.Wrap(ErrStoreClosed, "postgres store", goerr.V("store", s.name))
	}
	return nil
}

func (s *PostgresStore) operator() string {
	if s.metric == Euclidean {
		return "<->"
	}
	return "<=>"
}

func (s *PostgresStore) Add(ctx context.Context, embedding []float32, metadata Metadata) (int64, error) {
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
	query := fmt.Sprintf(`INSERT INTO %s (embedding, metadata) VALUES ($1, $2::jsonb) RETURNING id`, s.table)
	if err := s.pool.QueryRow(ctx, query, pgvector.NewVector(embedding), string(meta)).Scan(&id); err != nil {
		return 0, goerr.Wrap(err, "failed to insert record", goerr.V("store", s.name))
	}
	return id, nil
}

func (s *PostgresStore) Query(ctx context.Context, embedding []float32, k int) ([]QueryResult, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if err := checkQuery(embedding, s.dim, k); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
        SELECT id, metadata::text, (embedding %s $1) AS distance
        FROM %s
        ORDER BY distance, id
        LIMIT $2`, s.operator(), s.table)
	rows, err := s.pool.Query(ctx, query, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query store", goerr.V("store", s.name))
	}
	defer rows.Close()

	var results []QueryResult
	for rows.Next() {
		var (
			id       int64
			metaText string
			distance float64
		)
		if err := rows.Scan(&id, &metaText, &distance); err != nil {
			return nil, goerr.Wrap(err, "failed to read record", goerr.V("store", s.name))
		}
		meta, err := DecodeMetadata([]byte(metaText))
		if err != nil {
			return nil, goerr.Wrap(err, "corrupt metadata", goerr.V("id", id))
		}
		results = append(results, QueryResult{ID: id, Metadata: meta, Distance: clampDistance(distance)})
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate results", goerr.V("store", s.name))
	}
	return results, nil
}

func (s *PostgresStore) Delete(ctx context.Context, ids ...int64) error {
	if err := s.check(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, s.table), ids); err != nil {
		return goerr.Wrap(err, "failed to delete records", goerr.V("store", s.name))
	}
	return nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	var n int
	if err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)).Scan(&n); err != nil {
		return 0, goerr.Wrap(err, "failed to count records", goerr.V("store", s.name))
	}
	return n, nil
}

func (s *PostgresStore) Close() error {
	s.closed.Store(true)
	return nil
}
