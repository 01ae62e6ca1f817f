package queue

import (
	"context"
	"sync"
)

// Ring 是固定容量的环形缓冲区
// 写满时 Write 阻塞 (背压)，读空时 Read 阻塞；容量永远不会增长
type Ring[T any] struct {
	mu    sync.Mutex
	buf   []T
	head  int
	count int

	readable chan struct{}
	writable chan struct{}
	done     chan struct{}
	once     sync.Once
	closed   bool
}

func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{
		buf:      make([]T, capacity),
		readable: make(chan struct{}, 1),
		writable: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

func (r *Ring[T]) Cap() int { return len(r.buf) }

func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Write 写入一个值；缓冲区满时阻塞直到有空位、ctx 取消或 Ring 关闭
func (r *Ring[T]) Write(ctx context.Context, v T) error {
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return ErrClosed
		}
		if r.count < len(r.buf) {
			r.buf[(r.head+r.count)%len(r.buf)] = v
			r.count++
			more := r.count < len(r.buf)
			r.mu.Unlock()

			notify(r.readable)
			if more {
				notify(r.writable) // 唤醒下一个等待的写者
			}
			return nil
		}
		r.mu.Unlock()

		select {
		case <-r.writable:
		case <-r.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Read 取出最早写入的值；为空时阻塞
// 关闭后仍会先把剩余数据读完，之后返回 ErrClosed
func (r *Ring[T]) Read(ctx context.Context) (T, error) {
	var zero T
	for {
		r.mu.Lock()
		if r.count > 0 {
			v := r.buf[r.head]
			r.buf[r.head] = zero
			r.head = (r.head + 1) % len(r.buf)
			r.count--
			more := r.count > 0
			r.mu.Unlock()

			notify(r.writable)
			if more {
				notify(r.readable)
			}
			return v, nil
		}
		if r.closed {
			r.mu.Unlock()
			return zero, ErrClosed
		}
		r.mu.Unlock()

		select {
		case <-r.readable:
		case <-r.done:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Close 唤醒所有阻塞的读写者，幂等
func (r *Ring[T]) Close() {
	r.once.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		close(r.done)
	})
}

// notify 非阻塞地发一个信号 (信号通道容量为 1，多余的信号合并)
func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
