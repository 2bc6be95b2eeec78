package pebble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KBriverun/sysethereum-contracts/pkg/db"
)

func TestKVStore(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T, store db.KVStore)
	}{
		{
			name: "basic_put_get",
			fn:   testBasicPutGet,
		},
		{
			name: "has",
			fn:   testHas,
		},
		{
			name: "delete_operations",
			fn:   testDelete,
		},
		{
			name: "store_closure",
			fn:   testStoreClosure,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store, err := NewMemory()
			require.NoError(t, err)
			defer store.Close()

			tc.fn(t, store)
		})
	}
}

func testBasicPutGet(t *testing.T, store db.KVStore) {
	key := []byte("test-key")
	value := []byte("test-value")

	err := store.Put(key, value)
	require.NoError(t, err)

	retrieved, err := store.Get(key)
	require.NoError(t, err)
	assert.Equal(t, value, retrieved)

	// Test non-existent key
	_, err = store.Get([]byte("non-existent"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func testHas(t *testing.T, store db.KVStore) {
	key := []byte("present")

	ok, err := store.Has(key)
	require.NoError(t, err)
	assert.False(t, ok)

	err = store.Put(key, []byte("value"))
	require.NoError(t, err)

	ok, err = store.Has(key)
	require.NoError(t, err)
	assert.True(t, ok)
}

func testDelete(t *testing.T, store db.KVStore) {
	key := []byte("delete-test")
	value := []byte("to-be-deleted")

	err := store.Put(key, value)
	require.NoError(t, err)

	err = store.Delete(key)
	require.NoError(t, err)

	_, err = store.Get(key)
	assert.ErrorIs(t, err, ErrNotFound)

	// Delete non-existent key should not error
	err = store.Delete([]byte("non-existent"))
	assert.NoError(t, err)
}

func testStoreClosure(t *testing.T, store db.KVStore) {
	err := store.Close()
	require.NoError(t, err)

	// Test operations after close
	_, err = store.Get([]byte("key"))
	assert.ErrorIs(t, err, ErrClosed)

	err = store.Put([]byte("key"), []byte("value"))
	assert.ErrorIs(t, err, ErrClosed)

	err = store.Delete([]byte("key"))
	assert.ErrorIs(t, err, ErrClosed)

	// Double close should not error
	err = store.Close()
	assert.NoError(t, err)
}

func TestKVStoreReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := New(dir)
	require.NoError(t, err)

	err = store.Put([]byte("claim-0001"), []byte("pending"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// The keeper reopens the same directory after a restart.
	reopened, err := New(dir)
	require.NoError(t, err)
	defer reopened.Close()

	value, err := reopened.Get([]byte("claim-0001"))
	require.NoError(t, err)
	assert.Equal(t, []byte("pending"), value)
}
