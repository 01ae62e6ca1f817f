package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"objloader/pkg/config"
	"objloader/pkg/server"
	"objloader/pkg/storage"
	"objloader/pkg/storage/cache"
	"objloader/pkg/storage/disk"
	"objloader/pkg/storage/s3"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
)

// Server 是服务端的依赖容器：对象存储 + gRPC Server + 进程指标
type Server struct {
	Store    storage.Store
	GRPC     *grpc.Server
	Registry *prometheus.Registry
	Logger   *slog.Logger
}

// NewServer 按 storage.* / redis.* / server.* 组装对象服务
func NewServer(ctx context.Context) (*Server, error) {
	logger, err := config.NewLogger(os.Stderr)
	if err != nil {
		return nil, err
	}

	wd, _ := os.Getwd()
	store, err := initStore(ctx, filepath.Join(wd, ".objl"))
	if err != nil {
		return nil, err
	}

	// Redis 只加速 Has，url 为空就不启用
	if url := viper.GetString("redis.url"); url != "" {
		cached, err := cache.NewCachedStore(store, cache.Config{
			RedisURL: url,
			TTL:      viper.GetDuration("redis.ttl"),
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		store = cached
		logger.Info("redis existence cache enabled")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv := server.New(store, server.Config{
		ReadConcurrency: viper.GetInt("server.read_concurrency"),
		Logger:          logger,
	})

	return &Server{Store: store, GRPC: srv, Registry: reg, Logger: logger}, nil
}

// Close 停止 gRPC 服务并释放存储持有的连接
func (s *Server) Close() error {
	s.GRPC.Stop()
	if c, ok := s.Store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// initStore 按 storage.type 创建对象存储
// base 是 storage.path 未设置时 disk 存储的父目录
func initStore(ctx context.Context, base string) (storage.Store, error) {
	switch t := strings.ToLower(viper.GetString("storage.type")); t {
	case "", "disk":
		path := viper.GetString("storage.path")
		if path == "" {
			path = filepath.Join(base, "objects")
		}
		store, err := disk.NewAdapter(path)
		if err != nil {
			return nil, fmt.Errorf("failed to init disk storage: %w", err)
		}
		return store, nil

	case "s3":
		bucket := viper.GetString("storage.s3.bucket")
		if bucket == "" {
			return nil, errors.New("s3 bucket is required")
		}
		store, err := s3.NewAdapter(ctx, s3.Config{
			Endpoint:        viper.GetString("storage.s3.endpoint"),
			Region:          viper.GetString("storage.s3.region"),
			Bucket:          bucket,
			AccessKeyID:     viper.GetString("storage.s3.access_key"),
			SecretAccessKey: viper.GetString("storage.s3.secret_key"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init s3 storage: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported storage type: %s", t)
	}
}
