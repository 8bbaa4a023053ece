package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/m-mizutani/goerr/v2"
	_ "modernc.org/sqlite"

	"github.com/Protocol-Lattice/recall/internal/logging"
)

const sqliteManifestDDL = `CREATE TABLE IF NOT EXISTS vec_manifest (
	name       TEXT PRIMARY KEY,
	dimension  INTEGER NOT NULL,
	metric     TEXT NOT NULL,
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
)`

// SQLiteDB is the default on-device backend. Each named store is a table with
// an auto-increment rowid, a little-endian float32 blob and JSON metadata.
// Nearest-neighbour search is exact and runs over one read statement.
type SQLiteDB struct {
	db   *sql.DB
	path string

	mu      sync.Mutex
	writeMu map[string]*sync.Mutex
}

var _ Opener = (*SQLiteDB)(nil)

// OpenSQLite opens (or creates) the database file at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteDB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, goerr.Wrap(ErrStoreUnavailable, "sqlite path is required")
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, ErrStoreUnavailable.Wrap(goerr.Wrap(err, "failed to open sqlite"), goerr.V("path", path))
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, ErrStoreUnavailable.Wrap(goerr.Wrap(err, "failed to ping sqlite"), goerr.V("path", path))
	}
	if _, err := db.ExecContext(ctx, sqliteManifestDDL); err != nil {
		_ = db.Close()
		return nil, goerr.Wrap(err, "failed to create manifest table", goerr.V("path", path))
	}
	logging.From(ctx).Info("sqlite vector database opened", "path", path)
	return &SQLiteDB{db: db, path: path, writeMu: make(map[string]*sync.Mutex)}, nil
}

func (d *SQLiteDB) OpenStore(ctx context.Context, name string, dimension int, opts ...Option) (VectorStore, error) {
	o, err := validateOpen(name, dimension, opts)
	if err != nil {
		return nil, err
	}
	if _, err := d.db.ExecContext(ctx,
		`INSERT INTO vec_manifest (name, dimension, metric) VALUES (?, ?, ?) ON CONFLICT(name) DO NOTHING`,
		name, dimension, string(o.Metric)); err != nil {
		return nil, goerr.Wrap(err, "failed to register store", goerr.V("store", name))
	}

	var (
		gotDim    int
		gotMetric string
	)
	if err := d.db.QueryRowContext(ctx,
		`SELECT dimension, metric FROM vec_manifest WHERE name = ?`, name).Scan(&gotDim, &gotMetric); err != nil {
		return nil, goerr.Wrap(err, "failed to read store manifest", goerr.V("store", name))
	}
	if err := checkManifest(name, dimension, o.Metric, gotDim, Metric(gotMetric)); err != nil {
		return nil, err
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
	rowid     INTEGER PRIMARY KEY AUTOINCREMENT,
	embedding BLOB NOT NULL,
	metadata  TEXT NOT NULL
)`, tableName(name))
	if _, err := d.db.ExecContext(ctx, ddl); err != nil {
		return nil, goerr.Wrap(err, "failed to create store table", goerr.V("store", name))
	}

	d.mu.Lock()
	lock, ok := d.writeMu[name]
	if !ok {
		lock = &sync.Mutex{}
		d.writeMu[name] = lock
	}
	d.mu.Unlock()

	return &SQLiteStore{db: d.db, name: name, table: tableName(name), dim: dimension, metric: o.Metric, writeMu: lock}, nil
}

// Close closes the database file. Handles opened from it become unusable.
func (d *SQLiteDB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// SQLiteStore is a VectorStore handle backed by one SQLite table.
type SQLiteStore struct {
	db      *sql.DB
	name    string
	table   string
	dim     int
	metric  Metric
	writeMu *sync.Mutex
	closed  atomic.Bool
}

func (s *SQLiteStore) Name() string   { return s.name }
func (s *SQLiteStore) Dimension() int { return s.dim }
func (s *SQLiteStore) Metric() Metric { return s.metric }

func (s *SQLiteStore) check() error {
	if s == nil || s.db == nil {
		return ErrStoreUnavailable
	}
	if s.closed.Load() {
		return goerr.Wrap(ErrStoreClosed, "sqlite store", goerr.V("store", s.name))
	}
	return nil
}

// Add inserts one record. The row is committed before Add returns.
func (s *SQLiteStore) Add(ctx context.Context, embedding []float32, metadata Metadata) (int64, error) {
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
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %q (embedding, metadata) VALUES (?, ?)`, s.table),
		encodeFloat32s(embedding), string(meta))
	if err != nil {
		return 0, goerr.Wrap(err, "failed to insert record", goerr.V("store", s.name))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, goerr.Wrap(err, "failed to read inserted rowid", goerr.V("store", s.name))
	}
	return id, nil
}

func (s *SQLiteStore) Query(ctx context.Context, embedding []float32, k int) ([]QueryResult, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if err := checkQuery(embedding, s.dim, k); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT rowid, embedding, metadata FROM %q`, s.table))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to scan store", goerr.V("store", s.name))
	}
	defer rows.Close()

	best := newTopK[[]byte](k)
	for rows.Next() {
		var (
			id   int64
			blob []byte
			meta string
		)
		if err := rows.Scan(&id, &blob, &meta); err != nil {
			return nil, goerr.Wrap(err, "failed to read record", goerr.V("store", s.name))
		}
		vec, err := decodeFloat32s(blob, s.dim)
		if err != nil {
			return nil, goerr.Wrap(err, "corrupt embedding", goerr.V("store", s.name), goerr.V("id", id))
		}
		best.offer(id, s.metric.Distance(embedding, vec), []byte(meta))
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate store", goerr.V("store", s.name))
	}
	return decodeCandidates(best.sorted())
}

func (s *SQLiteStore) Delete(ctx context.Context, ids ...int64) error {
	if err := s.check(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	marks := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %q WHERE rowid IN (%s)`, s.table, marks), args...); err != nil {
		return goerr.Wrap(err, "failed to delete records", goerr.V("store", s.name))
	}
	return nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %q`, s.table)).Scan(&n); err != nil {
		return 0, goerr.Wrap(err, "failed to count records", goerr.V("store", s.name))
	}
	return n, nil
}

// Close releases the handle. The database stays open for other handles.
func (s *SQLiteStore) Close() error {
	s.closed.Store(true)
	return nil
}

func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeFloat32s(buf []byte, dim int) ([]float32, error) {
	if len(buf) != 4*dim {
		return nil, goerr.Wrap(ErrInvalidVector, "blob length does not match dimension",
			goerr.V("bytes", len(buf)), goerr.V("dimension", dim))
	}
	out := make([]float32, dim)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return out, nil
}
