// Package downloader 定义 loader 与远端对象源之间的契约
package downloader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"objloader/pkg/core"
	"objloader/pkg/queue"
	"objloader/pkg/types"
)

var (
	ErrNotInitialized = errors.New("downloader not initialized")
	ErrClosed         = errors.New("downloader closed")
	ErrNotFound       = errors.New("object not found on remote")
)

// Result 是写进输出 Ring 的一条结果；Err 非空时 Item 无效
type Result struct {
	ID   types.Hash
	Item core.Item
	Err  error
}

// FetchError 表示某个 ID 下载失败，只影响这一个 ID
type FetchError struct {
	ID  types.Hash
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.ID.Short(), e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewFetchError 包装单个 ID 的失败原因
func NewFetchError(id types.Hash, err error) *FetchError {
	return &FetchError{ID: id, Err: err}
}

// Options 是一次会话的初始化参数
type Options struct {
	Output       *queue.Ring[Result] // 结果输出，写满时下载方阻塞
	Total        int                 // 预期的对象总数 (提示，可为 0)
	MaxBatchWait time.Duration       // 攒批的最长等待时间
}

// Downloader 从远端获取节点
//
// Initialize 为新会话重置内部状态，之前会话的后台任务会被停掉；
// Add 只登记请求，永不阻塞，结果异步写到 Options.Output；
// DownloadSingle 同步获取一个节点 (用于根节点)；
// Release 结束输出为 output 的会话并等后台任务退出，
// 当前会话已换成别的 output 时什么都不做，幂等；
// Close 停止所有后台任务，幂等。
type Downloader interface {
	Initialize(opts Options) error
	Add(id types.Hash) error
	DownloadSingle(ctx context.Context, id types.Hash) (core.Item, error)
	Release(output *queue.Ring[Result])
	Close() error
}

// ConcurrencySetter 由支持并发下载的实现提供
// loader 在 Configure 时用它下发 DownloaderConcurrency
type ConcurrencySetter interface {
	SetConcurrency(n int)
}

// ValidateOptions 检查 Initialize 的参数
func ValidateOptions(opts Options) error {
	if opts.Output == nil {
		return errors.New("downloader: output ring is required")
	}
	if opts.MaxBatchWait < 0 {
		return errors.New("downloader: max batch wait must be >= 0")
	}
	return nil
}
