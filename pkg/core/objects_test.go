package core

import (
	"testing"

	"objloader/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunk_RoundTrip(t *testing.T) {
	c, err := NewChunk([]byte("payload"))
	require.NoError(t, err)

	raw, err := c.Bytes()
	require.NoError(t, err)
	decoded, err := DecodeNode(c.ID(), raw)
	require.NoError(t, err)

	data, err := ChunkData(decoded)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	_, err = FileSize(decoded)
	assert.Error(t, err, "chunk 不是 file")
}

func TestFile_SizeAndChunks(t *testing.T) {
	chunks := []types.Hash{mockHash("c1"), mockHash("c2")}
	f, err := NewFile(8192, chunks)
	require.NoError(t, err)

	size, err := FileSize(f)
	require.NoError(t, err)
	assert.Equal(t, int64(8192), size)
	assert.Equal(t, chunks, f.Children())
}

func TestTree_EntriesCarryLinkIDs(t *testing.T) {
	entries := []TreeEntry{
		{Name: "a.txt", Kind: EntryFile, Size: 3, ID: mockHash("a")},
		{Name: "sub", Kind: EntryDir, ID: mockHash("sub")},
	}
	tree, err := NewTree(entries)
	require.NoError(t, err)

	raw, err := tree.Bytes()
	require.NoError(t, err)
	decoded, err := DecodeNode(tree.ID(), raw)
	require.NoError(t, err)
	require.NoError(t, decoded.Verify())

	got, err := TreeEntries(decoded)
	require.NoError(t, err)
	assert.Equal(t, entries, got)
	assert.Equal(t, []types.Hash{mockHash("a"), mockHash("sub")}, decoded.Children())
}

func TestTree_RejectsEntryWithoutID(t *testing.T) {
	_, err := NewTree([]TreeEntry{{Name: "x", Kind: EntryFile}})
	assert.Error(t, err)
}
