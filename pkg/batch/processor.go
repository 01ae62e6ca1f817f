package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var ErrClosed = errors.New("batch processor closed")

// ErrDiscarded 是 Discard 取消后台 flush 时 ctx 的 cause
var ErrDiscarded = errors.New("batch processor discarded")

// ProcessFunc 处理一个批次；同一个 Processor 的调用永远是串行的
type ProcessFunc[T any] func(ctx context.Context, batch []T) error

// ErrorFunc 接收后台 flush 失败的批次 (手动 Flush 的错误直接返回给调用方)
type ErrorFunc[T any] func(batch []T, err error)

// Config 批处理参数
type Config struct {
	BatchSize    int           // 攒够多少个立即 flush
	BatchTime    time.Duration // 单个元素最多等待多久
	MaxQueueSize int           // 缓冲区上限，超过后 Add 阻塞；0 表示不限
	Logger       *slog.Logger
}

// Processor 是按“数量 或 时间”触发的批处理器
// 把“多少条触发一次写”和“一条最多等多久”解耦，
// 同时限制了吞吐和最坏延迟
type Processor[T any] struct {
	cfg     Config
	process ProcessFunc[T]
	onError ErrorFunc[T]
	logger  *slog.Logger

	mu     sync.Mutex
	buf    []T
	timer  *time.Timer
	gen    uint64 // 每取走一批 +1，用于识别过期的定时器
	closed bool

	flushMu sync.Mutex      // 串行化 flush
	ctx     context.Context // 后台 flush 使用，Discard 时取消
	cancel  context.CancelCauseFunc
	kick    chan struct{}
	space   chan struct{}
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func New[T any](cfg Config, process ProcessFunc[T], onError ErrorFunc[T]) *Processor[T] {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.BatchTime <= 0 {
		cfg.BatchTime = 100 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	p := &Processor[T]{
		ctx:     ctx,
		cancel:  cancel,
		cfg:     cfg,
		process: process,
		onError: onError,
		logger:  logger,
		kick:    make(chan struct{}, 1),
		space:   make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

// Add 追加一个元素
// 缓冲区达到 BatchSize 时立即触发 flush；否则在没有定时器时启动一个 BatchTime 定时器
func (p *Processor[T]) Add(ctx context.Context, item T) error {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return ErrClosed
		}
		if p.cfg.MaxQueueSize > 0 && len(p.buf) >= p.cfg.MaxQueueSize {
			p.mu.Unlock()
			// 背压：等后台 flush 腾出空间
			notify(p.kick)
			select {
			case <-p.space:
				continue
			case <-p.done:
				return ErrClosed
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		p.buf = append(p.buf, item)
		if p.cfg.MaxQueueSize > 0 && len(p.buf) < p.cfg.MaxQueueSize {
			notify(p.space) // 还有空位，接力唤醒下一个等待者
		}
		switch {
		case len(p.buf) >= p.cfg.BatchSize:
			p.stopTimerLocked()
			p.mu.Unlock()
			notify(p.kick)
		case p.timer == nil:
			gen := p.gen
			p.timer = time.AfterFunc(p.cfg.BatchTime, func() { p.onTimer(gen) })
			p.mu.Unlock()
		default:
			p.mu.Unlock()
		}
		return nil
	}
}

// Len 返回尚未 flush 的元素个数
func (p *Processor[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buf)
}

// Flush 立即把缓冲区写出并等待完成
// 空缓冲区是 no-op
func (p *Processor[T]) Flush(ctx context.Context) error {
	return p.flush(ctx, false)
}

// Close 写出剩余数据后停止，幂等
func (p *Processor[T]) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.stopTimerLocked()
	p.mu.Unlock()

	p.shutdown()
	err := p.flush(ctx, false)
	p.cancel(ErrClosed)
	return err
}

// Discard 丢弃缓冲区中尚未写出的数据并停止，幂等
// 正在进行中的后台 flush 的 ctx 会以 ErrDiscarded 取消，是否写一半由 ProcessFunc 自己保证
func (p *Processor[T]) Discard() int {
	p.mu.Lock()
	dropped := len(p.buf)
	p.closed = true
	p.buf = nil
	p.stopTimerLocked()
	p.mu.Unlock()

	p.cancel(ErrDiscarded)
	p.shutdown()
	return dropped
}

func (p *Processor[T]) shutdown() {
	p.once.Do(func() { close(p.stop) })
	<-p.done
}

func (p *Processor[T]) run() {
	defer close(p.done)
	for {
		select {
		case <-p.kick:
			// 后台 flush 的错误走 onError
			_ = p.flush(p.ctx, true)
		case <-p.stop:
			return
		}
	}
}

func (p *Processor[T]) onTimer(gen uint64) {
	p.mu.Lock()
	stale := gen != p.gen
	if !stale {
		p.timer = nil
	}
	p.mu.Unlock()
	if !stale {
		notify(p.kick)
	}
}

// flush 取走整个缓冲区，按 BatchSize 切片后依次交给 process
func (p *Processor[T]) flush(ctx context.Context, background bool) error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	items := p.buf
	p.buf = nil
	if len(items) > 0 {
		p.gen++
		p.stopTimerLocked()
	}
	p.mu.Unlock()

	if len(items) == 0 {
		return nil
	}
	notify(p.space)

	var errs []error
	for start := 0; start < len(items); start += p.cfg.BatchSize {
		if background && p.ctx.Err() != nil {
			break // 已被 Discard，剩下的批次一并丢弃
		}
		batch := items[start:min(start+p.cfg.BatchSize, len(items))]
		if err := p.process(ctx, batch); err != nil {
			err = fmt.Errorf("batch of %d failed: %w", len(batch), err)
			if background {
				p.logger.Warn("batch flush failed", slog.Int("size", len(batch)), slog.String("err", err.Error()))
				if p.onError != nil {
					p.onError(batch, err)
				}
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Processor[T]) stopTimerLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
