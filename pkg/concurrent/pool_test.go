package concurrent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParallelMapKeepsOrder(t *testing.T) {
	items := []int{5, 1, 4, 2, 3}
	out, err := ParallelMap(context.Background(), items, func(_ context.Context, n int) (int, error) {
		time.Sleep(time.Duration(n) * time.Millisecond)
		return n * 10, nil
	}, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{50, 10, 40, 20, 30}, out)
}

func TestParallelMapRespectsLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	items := make([]int, 20)
	_, err := ParallelMap(context.Background(), items, func(context.Context, int) (struct{}, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return struct{}{}, nil
	}, 2)
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestParallelMapAttemptsAllAndJoinsErrors(t *testing.T) {
	errOdd := errors.New("odd")
	var calls atomic.Int32
	out, err := ParallelMap(context.Background(), []int{1, 2, 3, 4}, func(_ context.Context, n int) (int, error) {
		calls.Add(1)
		if n%2 == 1 {
			return 0, errOdd
		}
		return n, nil
	}, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, errOdd)
	assert.Equal(t, int32(4), calls.Load())
	assert.Equal(t, []int{0, 2, 0, 4}, out)
}

func TestWorkerPoolDoStopsOnCancelledContext(t *testing.T) {
	pool := NewWorkerPool(1)
	assert.Equal(t, 1, pool.Size())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	acquired, blocker := make(chan struct{}), make(chan struct{})
	go func() {
		_ = pool.Do(context.Background(), func() error {
			close(acquired)
			<-blocker
			return nil
		})
	}()
	<-acquired
	err := pool.Do(ctx, func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
	close(blocker)
}

func TestParallelMapEmpty(t *testing.T) {
	out, err := ParallelMap(context.Background(), []string(nil), func(context.Context, string) (int, error) { return 0, nil }, 0)
	require.NoError(t, err)
	assert.Nil(t, out)
}
