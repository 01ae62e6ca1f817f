package sqlstore

import (
	"context"
	"fmt"
	"testing"

	"objloader/pkg/cache"
	"objloader/pkg/core"
	"objloader/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestStore 构建隔离的测试环境
func setupTestStore(t *testing.T) *Store {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	s := New(db)
	require.NoError(t, s.AutoMigrate())
	return s
}

func mustNode(t *testing.T, typ core.ObjectType, children []types.Hash, payload any) *core.Node {
	t.Helper()
	n, err := core.NewNode(typ, children, payload)
	require.NoError(t, err)
	return n
}

func TestStore_RoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	leaf := mustNode(t, core.TypeChunk, nil, []byte("leaf"))
	parent := mustNode(t, core.TypeTree, []types.Hash{leaf.ID()}, nil)

	require.NoError(t, s.PutAll(ctx, []core.Item{core.NewItem(parent), core.NewItem(leaf)}))

	got, err := s.GetAll(ctx, []types.Hash{leaf.ID(), "missing", parent.ID()})
	require.NoError(t, err)
	require.Len(t, got, 3)

	require.NotNil(t, got[0])
	assert.Equal(t, leaf.ID(), got[0].BaseID)
	assert.Nil(t, got[1])
	require.NotNil(t, got[2])
	assert.Equal(t, []types.Hash{leaf.ID()}, got[2].Base.Children())
	assert.NoError(t, got[2].Base.Verify())

	// 验证 Links 的 JSON 投影
	var row ObjectModel
	require.NoError(t, s.conn.First(&row, "id = ?", parent.ID()).Error)
	assert.JSONEq(t, fmt.Sprintf(`["%s"]`, leaf.ID()), string(row.Links))
	assert.Equal(t, string(core.TypeTree), row.Type)
}

func TestStore_PutAll_Idempotency(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	items := []core.Item{core.NewItem(mustNode(t, core.TypeChunk, nil, []byte("same")))}

	// 1. 写入两次
	require.NoError(t, s.PutAll(ctx, items), "1st write failed")
	require.NoError(t, s.PutAll(ctx, items), "2nd write (idempotency check) failed")

	// 2. 验证数据库中只有一条记录 (副作用检查)
	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "Should have exactly 1 record after duplicate inserts")
}

func TestStore_PutAll_RejectsMismatchAtomically(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	good := core.NewItem(mustNode(t, core.TypeChunk, nil, []byte("good")))
	bad := core.Item{BaseID: "forged", Base: mustNode(t, core.TypeChunk, nil, []byte("bad"))}

	err := s.PutAll(ctx, []core.Item{good, bad})
	assert.ErrorIs(t, err, core.ErrIDMismatch)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStore_LargeBatch(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	var (
		items []core.Item
		ids   []types.Hash
	)
	for i := range 750 {
		n := mustNode(t, core.TypeChunk, nil, fmt.Appendf(nil, "chunk-%d", i))
		items = append(items, core.NewItem(n))
		ids = append(ids, n.ID())
	}
	require.NoError(t, s.PutAll(ctx, items))

	got, err := s.GetAll(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, len(ids), cache.Hits(got))
}

func TestStore_Close(t *testing.T) {
	s := setupTestStore(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.GetAll(context.Background(), []types.Hash{"x"})
	assert.ErrorIs(t, err, cache.ErrClosed)
	assert.ErrorIs(t, s.PutAll(context.Background(), nil), cache.ErrClosed)
}

func TestOpen_SqliteFile(t *testing.T) {
	ctx := context.Background()
	s, err := OpenStore(ctx, Config{Driver: "sqlite", Path: t.TempDir() + "/objects.db"})
	require.NoError(t, err)
	defer s.Close()

	n := mustNode(t, core.TypeChunk, nil, []byte("on disk"))
	require.NoError(t, s.PutAll(ctx, []core.Item{core.NewItem(n)}))
	got, err := s.GetAll(ctx, []types.Hash{n.ID()})
	require.NoError(t, err)
	assert.NotNil(t, got[0])
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle"})
	assert.Error(t, err)
}
