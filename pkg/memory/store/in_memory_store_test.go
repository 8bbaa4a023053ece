package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStoreContract(t *testing.T) {
	runStoreSuite(t, NewInMemoryDB())
}

func TestInMemoryHandlesShareRecords(t *testing.T) {
	ctx := context.Background()
	db := NewInMemoryDB()

	a, err := db.OpenStore(ctx, "shared", 2)
	require.NoError(t, err)
	_, err = a.Add(ctx, []float32{1, 2}, Metadata{"content": "x"})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	b, err := db.OpenStore(ctx, "shared", 2)
	require.NoError(t, err)
	n, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
