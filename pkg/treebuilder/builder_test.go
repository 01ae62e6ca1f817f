package treebuilder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"testing"

	"objloader/pkg/core"
	"objloader/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memWriter 记录写入的节点
type memWriter struct {
	mu    sync.Mutex
	nodes map[types.Hash]*core.Node
}

func newMemWriter() *memWriter {
	return &memWriter{nodes: make(map[types.Hash]*core.Node)}
}

func (w *memWriter) Put(_ context.Context, n *core.Node) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nodes[n.ID()] = n
	return nil
}

func mockHash(s string) types.Hash {
	sum := sha256.Sum256([]byte(s))
	return types.Hash(hex.EncodeToString(sum[:]))
}

func TestTreeBuilder(t *testing.T) {
	// root
	//  ├── a.txt
	//  └── sub
	//       └── b.txt
	w := newMemWriter()
	b := NewBuilder(w)
	require.NoError(t, b.Add("a.txt", mockHash("content-a"), 100))
	require.NoError(t, b.Add("sub/b.txt", mockHash("content-b"), 200))

	root, err := b.Build(context.Background())
	require.NoError(t, err)

	entries, err := core.TreeEntries(root)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "a.txt", entries[0].Name)
	assert.Equal(t, core.EntryFile, entries[0].Kind)
	assert.Equal(t, mockHash("content-a"), entries[0].ID)

	assert.Equal(t, "sub", entries[1].Name)
	assert.Equal(t, core.EntryDir, entries[1].Kind)
	assert.Equal(t, int64(200), entries[1].Size)

	// 子目录的 tree 也被写出了
	sub, ok := w.nodes[entries[1].ID]
	require.True(t, ok)
	subEntries, err := core.TreeEntries(sub)
	require.NoError(t, err)
	require.Len(t, subEntries, 1)
	assert.Equal(t, "b.txt", subEntries[0].Name)
}

func TestTreeBuilder_Deterministic(t *testing.T) {
	build := func(paths ...string) types.Hash {
		b := NewBuilder(newMemWriter())
		for _, p := range paths {
			require.NoError(t, b.Add(p, mockHash(p), 1))
		}
		root, err := b.Build(context.Background())
		require.NoError(t, err)
		return root.ID()
	}

	// 插入顺序不影响根 ID
	assert.Equal(t, build("x/1", "y", "x/2"), build("x/2", "x/1", "y"))
	assert.NotEqual(t, build("x/1"), build("x/2"))
}

func TestTreeBuilder_EmptyDir(t *testing.T) {
	w := newMemWriter()
	b := NewBuilder(w)
	require.NoError(t, b.AddDir("empty"))

	root, err := b.Build(context.Background())
	require.NoError(t, err)

	entries, err := core.TreeEntries(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, core.EntryDir, entries[0].Kind)
	assert.Len(t, w.nodes, 2)
}

func TestTreeBuilder_Conflicts(t *testing.T) {
	b := NewBuilder(newMemWriter())
	require.NoError(t, b.Add("a", mockHash("a"), 1))

	assert.Error(t, b.Add("a/b", mockHash("b"), 1), "a 已经是文件")
	assert.Error(t, b.AddDir("a"))
	assert.Error(t, b.Add("", mockHash("x"), 1))
	assert.Error(t, b.Add("c", "", 1))
}
