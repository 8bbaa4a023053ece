package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreSuite exercises the VectorStore contract against one backend.
func runStoreSuite(t *testing.T, db Opener) {
	t.Helper()
	ctx := context.Background()

	t.Run("add then query returns exact match first", func(t *testing.T) {
		s, err := db.OpenStore(ctx, "exact", 3)
		require.NoError(t, err)
		defer s.Close()

		idA, err := s.Add(ctx, []float32{1, 0, 0}, Metadata{"content": "a"})
		require.NoError(t, err)
		idB, err := s.Add(ctx, []float32{0, 1, 0}, Metadata{"content": "b"})
		require.NoError(t, err)
		assert.Greater(t, idB, idA)

		res, err := s.Query(ctx, []float32{0, 1, 0}, 5)
		require.NoError(t, err)
		require.Len(t, res, 2)
		assert.Equal(t, idB, res[0].ID)
		assert.InDelta(t, 0, res[0].Distance, 1e-9)
		assert.Equal(t, "b", res[0].Metadata["content"])
		assert.LessOrEqual(t, res[0].Distance, res[1].Distance)
	})

	t.Run("query is bounded by k and by count", func(t *testing.T) {
		s, err := db.OpenStore(ctx, "bounded", 2)
		require.NoError(t, err)
		defer s.Close()

		res, err := s.Query(ctx, []float32{1, 1}, 3)
		require.NoError(t, err)
		assert.Empty(t, res)

		for i := 0; i < 5; i++ {
			_, err := s.Add(ctx, []float32{float32(i + 1), 1}, Metadata{"i": i})
			require.NoError(t, err)
		}
		res, err = s.Query(ctx, []float32{1, 1}, 3)
		require.NoError(t, err)
		assert.Len(t, res, 3)

		res, err = s.Query(ctx, []float32{1, 1}, 50)
		require.NoError(t, err)
		assert.Len(t, res, 5)

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 5, n)
	})

	t.Run("ties are broken by id", func(t *testing.T) {
		s, err := db.OpenStore(ctx, "ties", 2)
		require.NoError(t, err)
		defer s.Close()

		var ids []int64
		for i := 0; i < 4; i++ {
			id, err := s.Add(ctx, []float32{1, 1}, Metadata{"n": i})
			require.NoError(t, err)
			ids = append(ids, id)
		}
		res, err := s.Query(ctx, []float32{2, 2}, 4)
		require.NoError(t, err)
		require.Len(t, res, 4)
		for i, r := range res {
			assert.Equal(t, ids[i], r.ID)
		}
	})

	t.Run("metadata round trips", func(t *testing.T) {
		s, err := db.OpenStore(ctx, "meta", 2)
		require.NoError(t, err)
		defer s.Close()

		meta := Metadata{"content": "Paris has museums", "source": "notes.pdf", "page": 3, "score": 0.5, "weight": 2.0, "pinned": true}
		_, err = s.Add(ctx, []float32{0.3, 0.4}, meta)
		require.NoError(t, err)
		res, err := s.Query(ctx, []float32{0.3, 0.4}, 1)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, "Paris has museums", res[0].Metadata["content"])
		assert.Equal(t, "notes.pdf", res[0].Metadata["source"])
		assert.Equal(t, int64(3), res[0].Metadata["page"])
		assert.Equal(t, 0.5, res[0].Metadata["score"])
		assert.Equal(t, 2.0, res[0].Metadata["weight"])
		assert.Equal(t, true, res[0].Metadata["pinned"])
	})

	t.Run("invalid vectors are rejected", func(t *testing.T) {
		s, err := db.OpenStore(ctx, "invalid", 3)
		require.NoError(t, err)
		defer s.Close()

		_, err = s.Add(ctx, []float32{1, 2}, nil)
		assert.True(t, errors.Is(err, ErrInvalidVector))
		_, err = s.Query(ctx, []float32{1, 2, 3, 4}, 1)
		assert.True(t, errors.Is(err, ErrInvalidVector))
		_, err = s.Query(ctx, []float32{1, 2, 3}, 0)
		assert.True(t, errors.Is(err, ErrInvalidQuery))
	})

	t.Run("reopen with another dimension fails", func(t *testing.T) {
		s, err := db.OpenStore(ctx, "dims", 384)
		require.NoError(t, err)
		require.NoError(t, s.Close())

		again, err := db.OpenStore(ctx, "dims", 384)
		require.NoError(t, err)
		assert.Equal(t, 384, again.Dimension())
		require.NoError(t, again.Close())

		_, err = db.OpenStore(ctx, "dims", 256)
		assert.True(t, errors.Is(err, ErrDimensionMismatch))
	})

	t.Run("reopen with another metric fails", func(t *testing.T) {
		s, err := db.OpenStore(ctx, "metric", 2, WithMetric(Euclidean))
		require.NoError(t, err)
		assert.Equal(t, Euclidean, s.Metric())
		require.NoError(t, s.Close())

		_, err = db.OpenStore(ctx, "metric", 2)
		assert.True(t, errors.Is(err, ErrMetricMismatch))
	})

	t.Run("closed handle fails", func(t *testing.T) {
		s, err := db.OpenStore(ctx, "closed", 2)
		require.NoError(t, err)
		require.NoError(t, s.Close())
		require.NoError(t, s.Close())

		_, err = s.Add(ctx, []float32{1, 1}, nil)
		assert.True(t, errors.Is(err, ErrStoreClosed))
		assert.True(t, errors.Is(err, ErrStoreUnavailable))
		_, err = s.Query(ctx, []float32{1, 1}, 1)
		assert.True(t, errors.Is(err, ErrStoreClosed))
		_, err = s.Count(ctx)
		assert.True(t, errors.Is(err, ErrStoreClosed))
	})

	t.Run("delete removes records", func(t *testing.T) {
		s, err := db.OpenStore(ctx, "deletes", 2)
		require.NoError(t, err)
		defer s.Close()

		id1, err := s.Add(ctx, []float32{1, 0}, nil)
		require.NoError(t, err)
		id2, err := s.Add(ctx, []float32{0, 1}, nil)
		require.NoError(t, err)
		require.NoError(t, s.Delete(ctx, id1))

		res, err := s.Query(ctx, []float32{1, 0}, 5)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, id2, res[0].ID)

		id3, err := s.Add(ctx, []float32{1, 0}, nil)
		require.NoError(t, err)
		assert.Greater(t, id3, id2)
	})

	t.Run("concurrent adds get unique ids", func(t *testing.T) {
		s, err := db.OpenStore(ctx, "concurrent", 4)
		require.NoError(t, err)
		defer s.Close()

		const writers, perWriter = 8, 10
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			seen = map[int64]struct{}{}
			errs []error
		)
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < perWriter; i++ {
					id, err := s.Add(ctx, []float32{float32(w), float32(i), 1, 1}, Metadata{"content": fmt.Sprintf("%d-%d", w, i)})
					mu.Lock()
					if err != nil {
						errs = append(errs, err)
					} else {
						seen[id] = struct{}{}
					}
					mu.Unlock()
				}
			}(w)
		}
		wg.Wait()
		require.Empty(t, errs)
		assert.Len(t, seen, writers*perWriter)

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, writers*perWriter, n)
	})

	t.Run("queries run alongside adds", func(t *testing.T) {
		s, err := db.OpenStore(ctx, "readwrite", 4)
		require.NoError(t, err)
		defer s.Close()

		const writers, readers, perWriter = 4, 4, 15
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			errs []error
		)
		record := func(err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
		done := make(chan struct{})
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < perWriter; i++ {
					meta := Metadata{"content": fmt.Sprintf("%d-%d", w, i), "writer": w, "seq": i}
					if _, err := s.Add(ctx, []float32{float32(w + 1), float32(i + 1), 1, 0.5}, meta); err != nil {
						record(err)
					}
				}
			}(w)
		}
		var rg sync.WaitGroup
		for r := 0; r < readers; r++ {
			rg.Add(1)
			go func(r int) {
				defer rg.Done()
				for {
					select {
					case <-done:
						return
					default:
					}
					res, err := s.Query(ctx, []float32{float32(r + 1), 1, 1, 0.5}, 5)
					if err != nil {
						record(err)
						return
					}
					for _, hit := range res {
						w, wok := hit.Metadata["writer"].(int64)
						i, iok := hit.Metadata["seq"].(int64)
						if !wok || !iok || hit.Metadata.String("content") != fmt.Sprintf("%d-%d", w, i) {
							record(fmt.Errorf("partial record %d: %v", hit.ID, hit.Metadata))
						}
					}
				}
			}(r)
		}
		wg.Wait()
		close(done)
		rg.Wait()

		require.Empty(t, errs)
		assert.Equal(t, 4, s.Dimension())
		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, writers*perWriter, n)

		res, err := s.Query(ctx, []float32{1, 1, 1, 0.5}, writers*perWriter)
		require.NoError(t, err)
		assert.Len(t, res, writers*perWriter)
		for _, hit := range res {
			assert.NotEmpty(t, hit.Metadata.String("content"))
		}
	})

	t.Run("invalid names are rejected", func(t *testing.T) {
		_, err := db.OpenStore(ctx, "drop table", 2)
		assert.True(t, errors.Is(err, ErrInvalidName))
		_, err = db.OpenStore(ctx, "", 2)
		assert.True(t, errors.Is(err, ErrInvalidName))
		_, err = db.OpenStore(ctx, "zero", 0)
		assert.True(t, errors.Is(err, ErrDimensionMismatch))
	})
}
