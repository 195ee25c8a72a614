package trie

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"lottochain/storage"
)

func TestTrieCommitFlushPersistsData(t *testing.T) {
	dir := t.TempDir()

	db1, err := storage.NewLevelDB(dir)
	require.NoError(t, err)

	tr, err := NewTrie(db1, nil)
	require.NoError(t, err)

	key := crypto.Keccak256Hash([]byte("lottery:cycle"))
	value := []byte("value")

	require.NoError(t, tr.Update(key.Bytes(), value))
	root, err := tr.Commit(1)
	require.NoError(t, err)
	require.Equal(t, root, tr.Root())

	db1.Close()

	db2, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	defer db2.Close()

	restored, err := NewTrie(db2, root.Bytes())
	require.NoError(t, err)

	got, err := restored.Get(key.Bytes())
	require.NoError(t, err)
	require.Equal(t, value, got)
}

func TestTrieResetDiscardsUncommitted(t *testing.T) {
	tr, err := NewTrie(storage.NewMemDB(), nil)
	require.NoError(t, err)

	kept := crypto.Keccak256([]byte("kept"))
	dropped := crypto.Keccak256([]byte("dropped"))

	require.NoError(t, tr.Update(kept, []byte{1}))
	root, err := tr.Commit(1)
	require.NoError(t, err)

	require.NoError(t, tr.Update(dropped, []byte{2}))
	require.NoError(t, tr.Update(kept, []byte{3}))
	require.NotEqual(t, root, tr.Hash())

	require.NoError(t, tr.Reset(tr.Root()))
	require.Equal(t, root, tr.Hash())

	got, err := tr.Get(kept)
	require.NoError(t, err)
	require.Equal(t, []byte{1}, got)
	got, err = tr.Get(dropped)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestTrieCommitWithoutChangesKeepsRoot(t *testing.T) {
	tr, err := NewTrie(storage.NewMemDB(), nil)
	require.NoError(t, err)
	require.NoError(t, tr.Update(crypto.Keccak256([]byte("a")), []byte("b")))
	first, err := tr.Commit(1)
	require.NoError(t, err)
	second, err := tr.Commit(2)
	require.NoError(t, err)
	require.Equal(t, first, second)
}
