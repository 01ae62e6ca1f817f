package commands

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"objloader/pkg/server"
	"objloader/pkg/storage/disk"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

// setupIntegrationEnv 搭建一个 bufconn 服务端 + sqlite 本地缓存 的集成环境
func setupIntegrationEnv(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)
	t.Setenv("HOME", tmpDir)

	// 1. 服务端：磁盘对象存储
	store, err := disk.NewAdapter(filepath.Join(tmpDir, "remote"))
	require.NoError(t, err)
	lis := bufconn.Listen(1 << 20)
	srv := server.New(store, server.Config{})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	// 2. 客户端配置：sqlite 缓存在多次命令之间保留
	viper.Reset()
	viper.Set("remote.addr", "passthrough:///bufnet")
	viper.Set("cache.type", "sql")
	viper.Set("database.driver", "sqlite")
	viper.Set("database.path", filepath.Join(tmpDir, "cache.db"))
	viper.Set("log.level", "error")

	// 3. 【关键】注入 bufconn dialer
	dialOpts = []grpc.DialOption{grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})}
	t.Cleanup(func() { dialOpts = nil })

	return tmpDir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	// flag 变量在多次执行之间不会自动复位
	pullQuiet, catRaw, importIgnore = false, false, nil
	err := execute(context.Background())
	return out.String(), err
}

func TestIntegration_ImportPullCat(t *testing.T) {
	tmpDir := setupIntegrationEnv(t)

	// 1. 准备一个小目录
	data := filepath.Join(tmpDir, "data")
	require.NoError(t, os.MkdirAll(filepath.Join(data, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(data, "hello.txt"), []byte("hello world"), 0o644))
	big := bytes.Repeat([]byte("object graph "), 20000)
	require.NoError(t, os.WriteFile(filepath.Join(data, "nested", "big.bin"), big, 0o644))

	// 2. import 输出根哈希
	out, err := run(t, "import", data)
	require.NoError(t, err)
	root := strings.TrimSpace(out)
	require.Len(t, root, 64)

	// 3. 短哈希 pull，全部来自网络
	out, err = run(t, "pull", "--quiet", root[:12])
	require.NoError(t, err)
	assert.Contains(t, out, "0 cached")
	assert.NotContains(t, out, "links=")

	// 4. 再 pull 一次，根已经在缓存里
	out, err = run(t, "pull", root)
	require.NoError(t, err)
	assert.Contains(t, out, "0 fetched")
	assert.Contains(t, out, "links=")

	// 5. cat 打印目录
	out, err = run(t, "cat", root)
	require.NoError(t, err)
	assert.Contains(t, out, "hello.txt")
	assert.Contains(t, out, "nested")
}

func TestIntegration_CatRawFile(t *testing.T) {
	tmpDir := setupIntegrationEnv(t)

	path := filepath.Join(tmpDir, "single.txt")
	content := bytes.Repeat([]byte("raw bytes back out "), 5000)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	out, err := run(t, "import", path)
	require.NoError(t, err)
	id := strings.TrimSpace(out)

	// 缓存是空的，cat --raw 会先拉再导出
	out, err = run(t, "cat", "--raw", id)
	require.NoError(t, err)
	assert.Equal(t, string(content), out)
}

func TestIntegration_PullUnknownPrefix(t *testing.T) {
	setupIntegrationEnv(t)
	_, err := run(t, "pull", "deadbeef")
	assert.Error(t, err)
}
