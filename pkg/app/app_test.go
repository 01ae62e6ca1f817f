package app

import (
	"context"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"objloader/pkg/cache/badger"
	"objloader/pkg/cache/memory"
	"objloader/pkg/cache/sqlstore"
	"objloader/pkg/core"
	"objloader/pkg/loader"
	"objloader/pkg/storage/disk"
	"objloader/pkg/types"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInitStore_Disk(t *testing.T) {
	// 1. Mock 配置
	viper.Reset()
	viper.Set("storage.type", "disk")
	viper.Set("storage.path", filepath.Join(t.TempDir(), "objects"))

	// 2. 调用私有函数 (因为我们在同一个包)
	store, err := initStore(context.Background(), t.TempDir())

	// 3. 验证
	require.NoError(t, err)
	assert.IsType(t, &disk.Adapter{}, store)
}

func TestInitStore_DiskDefaultsUnderBase(t *testing.T) {
	viper.Reset()
	base := t.TempDir()

	store, err := initStore(context.Background(), base)
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(base, "objects"))
	assert.NotNil(t, store)
}

func TestInitStore_S3_MissingBucket(t *testing.T) {
	viper.Reset()
	viper.Set("storage.type", "s3")
	// 故意不设置 bucket

	store, err := initStore(context.Background(), ".")
	assert.Error(t, err)
	assert.Nil(t, store)
	assert.Contains(t, err.Error(), "bucket is required")
}

func TestInitStore_UnknownType(t *testing.T) {
	viper.Reset()
	viper.Set("storage.type", "ftp") // 不支持的类型

	store, err := initStore(context.Background(), ".")
	assert.Error(t, err)
	assert.Nil(t, store)
	assert.Contains(t, err.Error(), "unsupported storage type")
}

func TestInitBackend(t *testing.T) {
	ctx := context.Background()
	logger := discardLogger()

	t.Run("memory", func(t *testing.T) {
		viper.Reset()
		viper.Set("cache.type", "memory")
		b, err := initBackend(ctx, logger)
		require.NoError(t, err)
		assert.IsType(t, &memory.Store{}, b)
		require.NoError(t, b.Close())
	})

	t.Run("badger", func(t *testing.T) {
		viper.Reset()
		viper.Set("cache.type", "badger")
		viper.Set("cache.path", t.TempDir())
		b, err := initBackend(ctx, logger)
		require.NoError(t, err)
		assert.IsType(t, &badger.Store{}, b)
		require.NoError(t, b.Close())
	})

	t.Run("sql", func(t *testing.T) {
		viper.Reset()
		viper.Set("cache.type", "sql")
		viper.Set("database.driver", "sqlite")
		viper.Set("database.path", filepath.Join(t.TempDir(), "objects.db"))
		b, err := initBackend(ctx, logger)
		require.NoError(t, err)
		assert.IsType(t, &sqlstore.Store{}, b)
		require.NoError(t, b.Close())
	})

	t.Run("unknown", func(t *testing.T) {
		viper.Reset()
		viper.Set("cache.type", "floppy")
		_, err := initBackend(ctx, logger)
		assert.ErrorContains(t, err, "unsupported cache type")
	})
}

func TestLoaderOptions_FromViper(t *testing.T) {
	viper.Reset()
	assert.Equal(t, loader.DefaultOptions(), LoaderOptions())

	viper.Set("loader.batch_size", 7)
	viper.Set("loader.ttl", "30s")
	viper.Set("loader.concurrency", 2)
	o := LoaderOptions()
	assert.Equal(t, 7, o.BatchSize)
	assert.Equal(t, 30*time.Second, o.TTL)
	assert.Equal(t, 2, o.DownloaderConcurrency)
	assert.Equal(t, loader.DefaultRingCapacity, o.RingCapacity)
}

// startServer 用 bufconn 起一个服务端，返回客户端需要的 DialOption
func startServer(t *testing.T) (*Server, grpc.DialOption) {
	t.Helper()
	viper.Reset()
	viper.Set("storage.path", filepath.Join(t.TempDir(), "objects"))

	srv, err := NewServer(context.Background())
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.GRPC.Serve(lis) }()
	t.Cleanup(func() { _ = srv.Close() })

	return srv, grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
}

func TestNewApp_PullsFromServer(t *testing.T) {
	srv, dial := startServer(t)
	ctx := context.Background()

	child, err := core.NewChunk([]byte("leaf"))
	require.NoError(t, err)
	root, err := core.NewFile(4, []types.Hash{child.ID()})
	require.NoError(t, err)
	require.NoError(t, srv.Store.Put(ctx, child))
	require.NoError(t, srv.Store.Put(ctx, root))

	viper.Set("remote.addr", "passthrough:///bufnet")
	viper.Set("cache.type", "memory")
	a, err := NewApp(ctx, dial)
	require.NoError(t, err)
	defer a.Close()

	// 短哈希走 Resolve RPC
	id, err := a.Resolve(ctx, string(root.ID())[:10])
	require.NoError(t, err)
	assert.Equal(t, root.ID(), id)

	stream, err := a.Loader.Start(ctx, id)
	require.NoError(t, err)
	var got []types.Hash
	for n := range stream.Seq(ctx) {
		got = append(got, n.ID())
	}
	require.NoError(t, stream.Err())
	assert.Equal(t, []types.Hash{root.ID(), child.ID()}, got)
}

func TestResolve_FullHashSkipsRemote(t *testing.T) {
	viper.Reset()
	viper.Set("remote.addr", "passthrough:///nowhere")
	viper.Set("cache.type", "memory")
	a, err := NewApp(context.Background())
	require.NoError(t, err)
	defer a.Close()

	full := core.CalculateBlobHash([]byte("x"))
	id, err := a.Resolve(context.Background(), "  "+string(full)+" ")
	require.NoError(t, err)
	assert.Equal(t, full, id)
}
