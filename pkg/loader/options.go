package loader

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"objloader/pkg/metrics"

	"github.com/go-playground/validator/v10"
)

// 默认参数
const (
	DefaultMaxCacheSizeBytes     = 64 << 20
	DefaultTTL                   = 5 * time.Minute
	DefaultBatchSize             = 100
	DefaultBatchTime             = 200 * time.Millisecond
	DefaultMaxWriteQueueSize     = 1000
	DefaultDownloaderConcurrency = 4
	DefaultRingCapacity          = 256
)

// Options 是一次会话使用的调优参数
// Configure 之后的下一次 Start 生效，正在运行的会话不受影响
type Options struct {
	MaxCacheSizeBytes     int64         `validate:"gte=0"`                        // deferment 内存预算，0 表示不限
	TTL                   time.Duration `validate:"gte=0"`                        // 已解析条目的存活时间，0 表示不过期
	BatchSize             int           `validate:"gte=1,lte=10000"`              // 持久化批大小
	BatchTime             time.Duration `validate:"gt=0"`                         // 持久化最长等待
	MaxWriteQueueSize     int           `validate:"omitempty,gtefield=BatchSize"` // 写缓冲上限，0 表示不限
	DownloaderConcurrency int           `validate:"gte=1,lte=64"`                 // 下载并发
	RingCapacity          int           `validate:"gte=1,lte=65536"`              // 下载结果缓冲
	MaxBatchWait          time.Duration `validate:"gte=0"`                        // 下载攒批等待，0 交给 downloader 决定
}

// DefaultOptions 返回默认参数
func DefaultOptions() Options {
	return Options{
		MaxCacheSizeBytes:     DefaultMaxCacheSizeBytes,
		TTL:                   DefaultTTL,
		BatchSize:             DefaultBatchSize,
		BatchTime:             DefaultBatchTime,
		MaxWriteQueueSize:     DefaultMaxWriteQueueSize,
		DownloaderConcurrency: DefaultDownloaderConcurrency,
		RingCapacity:          DefaultRingCapacity,
	}
}

// ConfigurationError 表示参数不合法，构造或 Configure 时返回
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "invalid loader configuration: " + e.Reason
	}
	return fmt.Sprintf("invalid loader option %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate 校验参数，失败时返回 *ConfigurationError
// 多个字段不合法时只报告第一个
func (o Options) Validate() error {
	err := validate.Struct(o)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		reason := "must satisfy " + fe.Tag()
		if fe.Param() != "" {
			reason += " " + fe.Param()
		}
		return &ConfigurationError{
			Field:  fe.Field(),
			Reason: fmt.Sprintf("%s (got %v)", reason, fe.Value()),
			Err:    err,
		}
	}
	return &ConfigurationError{Reason: err.Error(), Err: err}
}

// Option 配置 Loader
type Option func(*Loader)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func WithMetrics(m metrics.Loader) Option {
	return func(l *Loader) {
		if m != nil {
			l.metrics = m
		}
	}
}

// WithOptions 替换默认参数 (New 时同样会校验)
func WithOptions(o Options) Option {
	return func(l *Loader) { l.opts = o }
}

// WithOnError 订阅不影响交付的错误：
// *downloader.FetchError (某个 ID 被跳过) 和 *PersistenceError (写缓存失败)
// 回调可能在后台 goroutine 上执行，不要在里面阻塞
func WithOnError(fn func(error)) Option {
	return func(l *Loader) { l.onError = fn }
}

// describe 把参数摊平成日志属性
func (o Options) describe() []any {
	return []any{
		slog.String("max_cache", formatBytes(o.MaxCacheSizeBytes)),
		slog.Duration("ttl", o.TTL),
		slog.Int("batch_size", o.BatchSize),
		slog.Duration("batch_time", o.BatchTime),
		slog.Int("write_queue", o.MaxWriteQueueSize),
		slog.Int("concurrency", o.DownloaderConcurrency),
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
