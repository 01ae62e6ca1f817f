package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Load 初始化 Viper 配置
// cfgFile: 可选，用户显式指定的配置文件路径
func Load(cfgFile string) error {
	// 1. 设置默认值 (Defaults)
	setDefaults()

	// 2. 配置搜索路径
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}

		// 搜索顺序：当前目录 -> ./.objl -> ~/.objl
		viper.AddConfigPath(".")
		viper.AddConfigPath(".objl")
		viper.AddConfigPath(filepath.Join(home, ".objl"))

		viper.SetConfigType("yaml")
		viper.SetConfigName("config") // 找 config.yaml
	}

	// 3. 读取环境变量 (OBJL_REMOTE_ADDR 等)
	viper.SetEnvPrefix("OBJL")
	viper.SetEnvKeyReplacer(envReplacer)
	viper.AutomaticEnv()

	// 4. 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		// 没找到配置文件不算错，可能全靠环境变量；格式错误才是错
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			fmt.Fprintln(os.Stderr, "⚠️  No config file found, using defaults/env vars")
		} else {
			return fmt.Errorf("fatal error config file: %w", err)
		}
	} else {
		fmt.Fprintln(os.Stderr, "🔧 Using config file:", viper.ConfigFileUsed())
	}

	return nil
}

func setDefaults() {
	wd, _ := os.Getwd()
	base := filepath.Join(wd, ".objl")

	// 日志
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	// 远端对象服务 (客户端视角)
	viper.SetDefault("remote.addr", "localhost:8080")
	viper.SetDefault("remote.batch_size", 100)
	viper.SetDefault("remote.requests_per_second", 0)
	viper.SetDefault("remote.burst", 0)
	viper.SetDefault("remote.verify", true)

	// 本地缓存后端：memory | badger | sql
	viper.SetDefault("cache.type", "badger")
	viper.SetDefault("cache.path", filepath.Join(base, "cache"))

	// sql 缓存后端；postgres 时使用 database.*
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.path", filepath.Join(base, "objects.db"))
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.sslmode", "disable")

	// loader 调优参数
	viper.SetDefault("loader.max_cache_bytes", 64<<20)
	viper.SetDefault("loader.ttl", 5*time.Minute)
	viper.SetDefault("loader.batch_size", 100)
	viper.SetDefault("loader.batch_time", 200*time.Millisecond)
	viper.SetDefault("loader.max_write_queue", 1000)
	viper.SetDefault("loader.concurrency", 4)
	viper.SetDefault("loader.ring_capacity", 256)
	viper.SetDefault("loader.max_batch_wait", 50*time.Millisecond)

	// 服务端
	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.metrics_addr", ":9090")
	viper.SetDefault("server.read_concurrency", 8)

	// 服务端存储：disk | s3
	viper.SetDefault("storage.type", "disk")
	viper.SetDefault("storage.path", filepath.Join(base, "objects"))
	viper.SetDefault("storage.s3.region", "us-east-1")

	// Redis 存在性缓存，url 为空时不启用
	viper.SetDefault("redis.url", "")
	viper.SetDefault("redis.ttl", 24*time.Hour)
}
