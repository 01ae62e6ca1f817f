package badger

import (
	"context"
	"testing"

	"objloader/pkg/cache"
	"objloader/pkg/core"
	"objloader/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustNode(t *testing.T, typ core.ObjectType, children []types.Hash, payload any) *core.Node {
	t.Helper()
	n, err := core.NewNode(typ, children, payload)
	require.NoError(t, err)
	return n
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{Dir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	leaf := mustNode(t, core.TypeChunk, nil, []byte("hello badger"))
	file := mustNode(t, core.TypeFile, []types.Hash{leaf.ID()}, map[string]any{"size": 12})

	require.NoError(t, s.PutAll(ctx, []core.Item{core.NewItem(leaf), core.NewItem(file)}))

	got, err := s.GetAll(ctx, []types.Hash{file.ID(), leaf.ID()})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.NotNil(t, got[0])
	require.NotNil(t, got[1])

	assert.Equal(t, file.ID(), got[0].Base.ID())
	assert.Equal(t, []types.Hash{leaf.ID()}, got[0].Base.Children())
	assert.NoError(t, got[0].Base.Verify())
	assert.NoError(t, got[1].Base.Verify())
}

func TestStore_MissIsNil(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetAll(context.Background(), []types.Hash{"nope"})
	require.NoError(t, err)
	assert.Nil(t, got[0])

	_, ok := s.Peek("nope")
	assert.False(t, ok)
}

func TestStore_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	n := mustNode(t, core.TypeChunk, nil, []byte("dup"))
	items := []core.Item{core.NewItem(n)}
	require.NoError(t, s.PutAll(ctx, items))
	require.NoError(t, s.PutAll(ctx, items))

	got, ok := s.Peek(n.ID())
	require.True(t, ok)
	assert.Equal(t, n.ID(), got.ID())
}

func TestStore_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	n := mustNode(t, core.TypeChunk, nil, []byte("persist me"))
	require.NoError(t, s.PutAll(ctx, []core.Item{core.NewItem(n)}))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.GetAll(ctx, []types.Hash{n.ID()})
	assert.ErrorIs(t, err, cache.ErrClosed)
	assert.ErrorIs(t, s.PutAll(ctx, []core.Item{core.NewItem(n)}), cache.ErrClosed)

	require.NoError(t, s.Open())
	got, ok := s.Peek(n.ID())
	require.True(t, ok)
	assert.Equal(t, n.ID(), got.ID())
}

func TestStore_RejectsMismatch(t *testing.T) {
	s := newTestStore(t)
	bad := core.Item{BaseID: "x", Base: mustNode(t, core.TypeChunk, nil, []byte("y"))}
	assert.ErrorIs(t, s.PutAll(context.Background(), []core.Item{bad}), core.ErrIDMismatch)
}

func TestNew_RequiresDir(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
