package store

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Protocol-Lattice/recall/internal/logging"
)

const (
	mongoManifestCollection = "vec_manifest"
	mongoCounterCollection  = "vec_counters"
	mongoCloseTimeout       = 5 * time.Second
)

// MongoDB keeps each named store in its own collection. Ids come from a
// counters collection so they stay integer and increasing.
type MongoDB struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ Opener = (*MongoDB)(nil)

func OpenMongo(ctx context.Context, uri, database string) (*MongoDB, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, goerr.Wrap(ErrStoreUnavailable, "mongo uri is required")
	}
	if strings.TrimSpace(database) == "" {
		return nil, goerr.Wrap(ErrStoreUnavailable, "mongo database name is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, ErrStoreUnavailable.Wrap(goerr.Wrap(err, "failed to connect to mongo"))
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, ErrStoreUnavailable.Wrap(goerr.Wrap(err, "failed to ping mongo"))
	}
	logging.From(ctx).Info("mongo vector database opened", "database", database)
	return &MongoDB{client: client, db: client.Database(database)}, nil
}

type mongoManifest struct {
	Name      string `bson:"_id"`
	Dimension int    `bson:"dimension"`
	Metric    string `bson:"metric"`
}

func (d *MongoDB) OpenStore(ctx context.Context, name string, dimension int, opts ...Option) (VectorStore, error) {
	o, err := validateOpen(name, dimension, opts)
	if err != nil {
		return nil, err
	}
	manifests := d.db.Collection(mongoManifestCollection)
	_, err = manifests.UpdateOne(ctx,
		bson.M{"_id": name},
		bson.M{"$setOnInsert": bson.M{"dimension": dimension, "metric": string(o.Metric), "created_at": time.Now().UTC()}},
		options.Update().SetUpsert(true))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to register store", goerr.V("store", name))
	}
	var got mongoManifest
	if err := manifests.FindOne(ctx, bson.M{"_id": name}).Decode(&got); err != nil {
		return nil, goerr.Wrap(err, "failed to read store manifest", goerr.V("store", name))
	}
	if err := checkManifest(name, dimension, o.Metric, got.Dimension, Metric(got.Metric)); err != nil {
		return nil, err
	}
	return &MongoStore{
		collection: d.db.Collection(tableName(name)),
		counters:   d.db.Collection(mongoCounterCollection),
		name:       name,
		dim:        dimension,
		metric:     o.Metric,
	}, nil
}

func (d *MongoDB) Close() error {
	if d == nil || d.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), mongoCloseTimeout)
	defer cancel()
	return d.client.Disconnect(ctx)
}

type mongoRecord struct {
	ID        int64     `bson:"_id"`
	Embedding []float64 `bson:"embedding"`
	Metadata  string    `bson:"metadata"`
}

// MongoStore ranks records exactly in Go, so it works on any MongoDB
// deployment without an Atlas vector index.
type MongoStore struct {
	collection *mongo.Collection
	counters   *mongo.Collection
	name       string
	dim        int
	metric     Metric
	writeMu    sync.Mutex
	closed     atomic.Bool
}

func (s *MongoStore) Name() string   { return s.name }
func (s *MongoStore) Dimension() int { return s.dim }
func (s *MongoStore) Metric() Metric { return s.metric }

func (s *MongoStore) check() error {
	if s == nil || s.collection == nil {
		return ErrStoreUnavailable
	}
	if s.closed.Load() {
		return goerr.Wrap(ErrStoreClosed, "mongo store", goerr.V("store", s.name))
	}
	return nil
}

func (s *MongoStore) nextID(ctx context.Context) (int64, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	res := s.counters.FindOneAndUpdate(ctx, bson.M{"_id": s.name}, bson.M{"$inc": bson.M{"seq": int64(1)}}, opts)
	if res.Err() != nil {
		return 0, res.Err()
	}
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	if err := res.Decode(&doc); err != nil {
		return 0, err
	}
	return doc.Seq, nil
}

func (s *MongoStore) Add(ctx context.Context, embedding []float32, metadata Metadata) (int64, error) {
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
	id, err := s.nextID(ctx)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to allocate id", goerr.V("store", s.name))
	}
	doc := mongoRecord{ID: id, Embedding: float64Embedding(embedding), Metadata: string(meta)}
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return 0, goerr.Wrap(err, "failed to insert record", goerr.V("store", s.name))
	}
	return id, nil
}

func (s *MongoStore) Query(ctx context.Context, embedding []float32, k int) ([]QueryResult, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if err := checkQuery(embedding, s.dim, k); err != nil {
		return nil, err
	}
	cursor, err := s.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to scan store", goerr.V("store", s.name))
	}
	defer cursor.Close(ctx)

	best := newTopK[[]byte](k)
	for cursor.Next(ctx) {
		var doc mongoRecord
		if err := cursor.Decode(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode record", goerr.V("store", s.name))
		}
		if len(doc.Embedding) != s.dim {
			return nil, goerr.Wrap(ErrInvalidVector, "stored embedding has wrong length", goerr.V("id", doc.ID))
		}
		best.offer(doc.ID, s.metric.Distance(embedding, float32Embedding(doc.Embedding)), []byte(doc.Metadata))
	}
	if err := cursor.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate store", goerr.V("store", s.name))
	}
	return decodeCandidates(best.sorted())
}

func (s *MongoStore) Delete(ctx context.Context, ids ...int64) error {
	if err := s.check(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.collection.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}}); err != nil {
		return goerr.Wrap(err, "failed to delete records", goerr.V("store", s.name))
	}
	return nil
}

func (s *MongoStore) Count(ctx context.Context) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	n, err := s.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, goerr.Wrap(err, "failed to count records", goerr.V("store", s.name))
	}
	return int(n), nil
}

func (s *MongoStore) Close() error {
	s.closed.Store(true)
	return nil
}

func float64Embedding(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

func float32Embedding(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
