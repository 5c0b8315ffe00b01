package boltdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "agentdb_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.Initialize(context.Background()))
	return store
}

func TestBoltStore_PutGetDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, []byte("state/1"), []byte("payload")))

	value, err := store.Get(ctx, []byte("state/1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), value)

	value, err = store.Get(ctx, []byte("state/2"))
	require.NoError(t, err)
	assert.Nil(t, value)

	require.NoError(t, store.Delete(ctx, []byte("state/1")))
	value, err = store.Get(ctx, []byte("state/1"))
	require.NoError(t, err)
	assert.Nil(t, value)

	assert.NoError(t, store.Delete(ctx, []byte("state/1")))
}

func TestBoltStore_GetBeforeInitialize(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "fresh.db"))
	require.NoError(t, err)
	defer store.Close()

	// No bucket yet; reads still succeed and find nothing.
	value, err := store.Get(context.Background(), []byte("anything"))
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestBoltStore_ScanPrefix(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, []byte("mem/1/a"), []byte("1")))
	require.NoError(t, store.Put(ctx, []byte("mem/1/b"), []byte("2")))
	require.NoError(t, store.Put(ctx, []byte("mem/2/a"), []byte("3")))
	require.NoError(t, store.Put(ctx, []byte("vec/1"), []byte("4")))

	var keys []string
	err := store.ScanPrefix(ctx, []byte("mem/1/"), func(key, value []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"mem/1/a", "mem/1/b"}, keys)
}

func TestBoltStore_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "durable.db")
	ctx := context.Background()

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, []byte("k"), []byte("survives")))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	value, err := reopened.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("survives"), value)
}
