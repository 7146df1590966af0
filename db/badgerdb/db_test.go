package badgerdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSetGet(t *testing.T) {
	db, err := NewDB(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	ns := []byte("cd")

	require.NoError(t, db.Set(ns, []byte("pubkey"), []byte("txhash")))

	val, exists, err := db.Get(ns, []byte("pubkey"))
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, []byte("txhash"), val)

	_, exists, err = db.Get(ns, []byte("missing"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()

	db, err := NewDB(dir)
	require.NoError(t, err)
	require.NoError(t, db.Set([]byte("cd"), []byte("k"), []byte("v")))
	require.NoError(t, db.Close())

	db, err = NewDB(dir)
	require.NoError(t, err)
	defer db.Close()

	val, exists, err := db.Get([]byte("cd"), []byte("k"))
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, []byte("v"), val)
}

func TestIteratorWalksNamespace(t *testing.T) {
	db, err := NewDB(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Set([]byte("cd"), []byte("k1"), []byte("v1")))
	require.NoError(t, db.Set([]byte("cd"), []byte("k2"), []byte("v2")))
	require.NoError(t, db.Set([]byte("pb"), []byte("k3"), []byte("v3")))

	start := []byte("cd|")
	end := []byte("cd|\xff")

	var keys []string
	for iter := db.Iterator(start, end); iter.Valid(); iter.Next() {
		key, err := iter.Key()
		require.NoError(t, err)
		keys = append(keys, string(key))
	}
	assert.Equal(t, []string{"cd|k1", "cd|k2"}, keys)
}
