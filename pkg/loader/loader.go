// Package loader 把远端的对象 DAG 以流的形式拉到本地
//
// 一次 Start 就是一个会话：先取根节点，再沿着 Links 向下展开，
// 缓存里有的直接交付，没有的交给 Downloader 批量下载，
// 下载到的节点一边交付一边攒批写回本地缓存。
//
//	l, err := loader.New(backend, dl, loader.WithLogger(logger))
//	stream, err := l.Start(ctx, rootID)
//	for n := range stream.Seq(ctx) {
//		...
//	}
//	if err := stream.Err(); err != nil { ... }
package loader

import (
	"context"
	"log/slog"
	"sync"

	"objloader/pkg/cache"
	"objloader/pkg/downloader"
	"objloader/pkg/metrics"
	"objloader/pkg/types"
)

// Loader 协调 deferment、Downloader、缓存后端和持久化批处理
// 同一时刻只有一个活跃会话，新的 Start 会取消旧会话
type Loader struct {
	backend cache.Backend
	dl      downloader.Downloader
	logger  *slog.Logger
	metrics metrics.Loader
	onError func(error)

	mu      sync.Mutex
	opts    Options
	current *Stream
	closed  bool
}

// New 创建 Loader；参数不合法时返回 *ConfigurationError
// backend 的生命周期归调用方，Close 只会关闭 downloader
func New(backend cache.Backend, dl downloader.Downloader, opts ...Option) (*Loader, error) {
	l := &Loader{
		backend: backend,
		dl:      dl,
		logger:  slog.Default(),
		metrics: metrics.Noop(),
		opts:    DefaultOptions(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if backend == nil {
		return nil, &ConfigurationError{Field: "backend", Reason: "is required"}
	}
	if dl == nil {
		return nil, &ConfigurationError{Field: "downloader", Reason: "is required"}
	}
	if err := l.opts.Validate(); err != nil {
		return nil, err
	}
	l.applyConcurrency(l.opts.DownloaderConcurrency)
	return l, nil
}

// Configure 替换参数，下一次 Start 生效
func (l *Loader) Configure(opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.opts = opts
	l.applyConcurrency(opts.DownloaderConcurrency)
	l.logger.Debug("loader reconfigured", opts.describe()...)
	return nil
}

// Options 返回当前参数
func (l *Loader) Options() Options {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opts
}

// Start 开始加载以 root 为根的图
// 如果上一个会话还在跑，先取消它并等它收尾
func (l *Loader) Start(ctx context.Context, root types.Hash) (*Stream, error) {
	if root.IsZero() {
		return nil, ErrEmptyRootID
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	prev := l.current
	l.current = nil
	opts := l.opts
	l.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}

	sctx, cancel := context.WithCancel(ctx)
	stream := newStream(root, cancel)
	sess, err := l.newSession(sctx, stream, opts)
	if err != nil {
		cancel()
		return nil, err
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		sess.abort()
		return nil, ErrClosed
	}
	raced := l.current
	l.current = stream
	l.mu.Unlock()

	// 并发的 Start 之间只保留最后一个
	if raced != nil {
		raced.Cancel()
	}
	go sess.run()
	return stream, nil
}

// Cancel 取消当前会话 (如果有)
// 已缓冲但还没写出的节点会被丢弃
func (l *Loader) Cancel() {
	l.mu.Lock()
	s := l.current
	l.mu.Unlock()
	if s != nil {
		s.Cancel()
	}
}

// Close 取消当前会话并关闭 downloader，幂等
func (l *Loader) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	s := l.current
	l.current = nil
	l.mu.Unlock()

	if s != nil {
		s.Cancel()
	}
	return l.dl.Close()
}

func (l *Loader) applyConcurrency(n int) {
	if cs, ok := l.dl.(downloader.ConcurrencySetter); ok {
		cs.SetConcurrency(n)
	}
}

func (l *Loader) report(err error) {
	if l.onError != nil {
		l.onError(err)
	}
}
