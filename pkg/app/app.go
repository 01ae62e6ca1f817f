package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"objloader/pkg/cache"
	"objloader/pkg/cache/badger"
	"objloader/pkg/cache/memory"
	"objloader/pkg/cache/sqlstore"
	"objloader/pkg/client"
	"objloader/pkg/config"
	"objloader/pkg/downloader/network"
	"objloader/pkg/loader"
	"objloader/pkg/metrics"
	"objloader/pkg/rpc"
	"objloader/pkg/types"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
)

// App 是客户端的依赖容器 (Dependency Container)
// 它持有所有“单例”服务：远端连接、本地缓存、下载器和 loader
type App struct {
	Client     *client.Client
	Backend    cache.Backend
	Downloader *network.Downloader
	Loader     *loader.Loader

	Registry *prometheus.Registry
	Metrics  metrics.Loader
	Logger   *slog.Logger
}

// NewApp 是工厂函数，负责组装这一台机器
// 它遵循 Viper 的配置，但不知道具体的 CLI 命令；dial 可以覆盖连接参数 (测试里的 bufconn)
func NewApp(ctx context.Context, dial ...grpc.DialOption) (*App, error) {
	logger, err := config.NewLogger(os.Stderr)
	if err != nil {
		return nil, err
	}

	// 1. 远端对象服务
	addr := viper.GetString("remote.addr")
	if addr == "" {
		return nil, errors.New("remote.addr not set")
	}
	cli, err := client.NewClient(addr, dial...)
	if err != nil {
		return nil, err
	}

	// 2. 本地缓存后端
	backend, err := initBackend(ctx, logger)
	if err != nil {
		_ = cli.Close()
		return nil, err
	}

	// 3. 指标：每个 App 一个独立的 Registry，避免重复注册
	reg := prometheus.NewRegistry()
	m := metrics.NewPrometheus(reg)

	// 4. 下载器 + loader
	opts := LoaderOptions()
	dl := network.New(cli.Objects, network.Config{
		BatchSize:         viper.GetInt("remote.batch_size"),
		Concurrency:       opts.DownloaderConcurrency,
		RequestsPerSecond: viper.GetFloat64("remote.requests_per_second"),
		Burst:             viper.GetInt("remote.burst"),
		Verify:            viper.GetBool("remote.verify"),
		Logger:            logger,
		OnBatch:           m.ObserveFetchBatch,
	})

	l, err := loader.New(backend, dl,
		loader.WithOptions(opts),
		loader.WithLogger(logger),
		loader.WithMetrics(m),
	)
	if err != nil {
		_ = dl.Close()
		_ = backend.Close()
		_ = cli.Close()
		return nil, err
	}

	return &App{
		Client:     cli,
		Backend:    backend,
		Downloader: dl,
		Loader:     l,
		Registry:   reg,
		Metrics:    m,
		Logger:     logger,
	}, nil
}

// LoaderOptions 从 loader.* 读取调优参数，未设置的项保留默认值
func LoaderOptions() loader.Options {
	o := loader.DefaultOptions()
	if viper.IsSet("loader.max_cache_bytes") {
		o.MaxCacheSizeBytes = viper.GetInt64("loader.max_cache_bytes")
	}
	if viper.IsSet("loader.ttl") {
		o.TTL = viper.GetDuration("loader.ttl")
	}
	if viper.IsSet("loader.batch_size") {
		o.BatchSize = viper.GetInt("loader.batch_size")
	}
	if viper.IsSet("loader.batch_time") {
		o.BatchTime = viper.GetDuration("loader.batch_time")
	}
	if viper.IsSet("loader.max_write_queue") {
		o.MaxWriteQueueSize = viper.GetInt("loader.max_write_queue")
	}
	if viper.IsSet("loader.concurrency") {
		o.DownloaderConcurrency = viper.GetInt("loader.concurrency")
	}
	if viper.IsSet("loader.ring_capacity") {
		o.RingCapacity = viper.GetInt("loader.ring_capacity")
	}
	if viper.IsSet("loader.max_batch_wait") {
		o.MaxBatchWait = viper.GetDuration("loader.max_batch_wait")
	}
	return o
}

// initBackend 按 cache.type 创建本地缓存
func initBackend(ctx context.Context, logger *slog.Logger) (cache.Backend, error) {
	switch t := strings.ToLower(viper.GetString("cache.type")); t {
	case "memory":
		return memory.NewStore(), nil

	case "", "badger":
		dir := viper.GetString("cache.path")
		if dir == "" {
			return nil, errors.New("badger cache path is required")
		}
		return badger.New(badger.Config{Dir: dir, Logger: logger})

	case "sql":
		return sqlstore.OpenStore(ctx, sqlstore.Config{
			Driver:   viper.GetString("database.driver"),
			Path:     viper.GetString("database.path"),
			Host:     viper.GetString("database.host"),
			Port:     viper.GetInt("database.port"),
			User:     viper.GetString("database.user"),
			Password: viper.GetString("database.password"),
			DBName:   viper.GetString("database.dbname"),
			SSLMode:  viper.GetString("database.sslmode"),
			Verbose:  viper.GetBool("database.verbose"),
		})

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", t)
	}
}

// Resolve 把用户输入的哈希 (可以是短哈希) 变成完整 ID
// 完整的 64 位 hex 直接返回，其余交给远端 Resolve
func (a *App) Resolve(ctx context.Context, ref string) (types.Hash, error) {
	ref = strings.ToLower(strings.TrimSpace(ref))
	if h := types.Hash(ref); h.IsValid() {
		return h, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	resp, err := a.Client.Objects.Resolve(ctx, &rpc.ResolveRequest{Prefix: ref})
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", ref, err)
	}
	return types.Hash(resp.ID), nil
}

// Close 按依赖的反方向释放资源
func (a *App) Close() error {
	return errors.Join(
		a.Loader.Close(),
		a.Backend.Close(),
		a.Client.Close(),
	)
}
