package disk

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"objloader/pkg/core"
	"objloader/pkg/storage"
	"objloader/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustNode(t *testing.T, payload string) *core.Node {
	t.Helper()
	n, err := core.NewNode(core.TypeChunk, nil, []byte(payload))
	require.NoError(t, err)
	return n
}

func TestDiskAdapter(t *testing.T) {
	// 1. 创建临时测试目录
	tmpDir := t.TempDir()
	store, err := NewAdapter(tmpDir)
	require.NoError(t, err)

	ctx := context.Background()
	n := mustNode(t, "hello world")
	id := string(n.ID())

	// 2. 测试 Put (两次，幂等)
	require.NoError(t, store.Put(ctx, n))
	require.NoError(t, store.Put(ctx, n))

	// 验证文件是否真的存在于 Sharding 目录中
	_, err = os.Stat(filepath.Join(tmpDir, id[:2], id[2:]))
	assert.NoError(t, err, "文件应该存在于 Sharding 目录中")

	// 3. 测试 Has
	exists, err := store.Has(ctx, n.ID())
	assert.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.Has(ctx, "ffffffff") // 不存在的
	assert.NoError(t, err)
	assert.False(t, exists)

	// 4. 测试 Get + 还原
	reader, err := store.Get(ctx, n.ID())
	require.NoError(t, err)
	defer reader.Close()

	content, err := io.ReadAll(reader)
	require.NoError(t, err)
	want, err := n.Bytes()
	require.NoError(t, err)
	assert.Equal(t, want, content)

	got, err := storage.ReadNode(ctx, store, n.ID())
	require.NoError(t, err)
	assert.NoError(t, got.Verify())
}

func TestDiskAdapter_GetMissing(t *testing.T) {
	store, err := NewAdapter(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// 非法 ID 不允许拼路径
	_, err = store.Get(context.Background(), "../../etc/passwd")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDiskAdapter_RejectsInvalidID(t *testing.T) {
	store, err := NewAdapter(t.TempDir())
	require.NoError(t, err)

	bogus := core.NewNodeWithID("../escape", core.TypeChunk)
	assert.ErrorIs(t, store.Put(context.Background(), bogus), storage.ErrInvalidID)
}

func TestDiskAdapter_ExpandHash(t *testing.T) {
	store, err := NewAdapter(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	var nodes []*core.Node
	for _, p := range []string{"A", "B", "C", "D", "E", "F", "G", "H"} {
		n := mustNode(t, p)
		require.NoError(t, store.Put(ctx, n))
		nodes = append(nodes, n)
	}
	target := nodes[0].ID()

	got, err := store.ExpandHash(ctx, string(target[:12]))
	require.NoError(t, err)
	assert.Equal(t, target, got)

	got, err = store.ExpandHash(ctx, string(target))
	require.NoError(t, err)
	assert.Equal(t, target, got)

	_, err = store.ExpandHash(ctx, "123")
	assert.ErrorContains(t, err, "too short")

	_, err = store.ExpandHash(ctx, string(types.Hash("zzzz")))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDiskAdapter_ExpandHash_Ambiguous(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewAdapter(tmpDir)
	require.NoError(t, err)

	// 直接伪造两个同前缀的文件
	dir := filepath.Join(tmpDir, "11")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "11aaaa"), []byte("a"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "11bbbb"), []byte("b"), 0644))

	_, err = store.ExpandHash(context.Background(), "1111")
	assert.ErrorIs(t, err, storage.ErrAmbiguousHash)
}
