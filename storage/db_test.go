package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemDBGetPut(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	_, err := db.Get([]byte("head"))
	require.ErrorIs(t, err, ErrNotFound)

	value := []byte{1, 2, 3}
	require.NoError(t, db.Put([]byte("head"), value))
	value[0] = 9

	got, err := db.Get([]byte("head"))
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, got)

	ok, err := db.Has([]byte("head"))
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, db.TrieDB())
}

func TestLevelDBPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	db, err := NewLevelDB(dir)
	require.NoError(t, err)

	_, err = db.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, db.Put([]byte("round"), []byte{0x2a}))
	db.Close()

	reopened, err := NewLevelDBWithOptions(dir, LevelDBOptions{CacheMB: 8, Handles: 16})
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get([]byte("round"))
	require.NoError(t, err)
	require.Equal(t, []byte{0x2a}, got)
}
