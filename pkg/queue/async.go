package queue

import (
	"context"
	"iter"
	"sync"
)

// Async 是拉取式队列：
// Add 要么直接交给正在等待的消费者，要么放进缓冲区
// 只有在 Finish 之后且缓冲区、等待者都为空时，消费才会结束
type Async[T any] struct {
	mu       sync.Mutex
	buf      []T
	waiters  []chan T
	finished bool
	done     chan struct{}
}

func NewAsync[T any]() *Async[T] {
	return &Async[T]{done: make(chan struct{})}
}

// Add 放入一个值，永不阻塞
func (q *Async[T]) Add(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.finished {
		return ErrFinished
	}
	if len(q.waiters) > 0 {
		w := q.waiters[0]
		q.waiters = q.waiters[1:]
		w <- v // 容量为 1，不会阻塞
		return nil
	}
	q.buf = append(q.buf, v)
	return nil
}

// Finish 标记生产结束，幂等
func (q *Async[T]) Finish() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.finished {
		return
	}
	q.finished = true
	close(q.done)
}

func (q *Async[T]) Finished() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.finished
}

// Len 返回已缓冲但还没被消费的值的数量
func (q *Async[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// Next 拉取下一个值
// 返回 ok=false 表示队列已经结束；ctx 取消时返回 ctx.Err()
func (q *Async[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T

	q.mu.Lock()
	if len(q.buf) > 0 {
		v := q.buf[0]
		q.buf[0] = zero
		q.buf = q.buf[1:]
		q.mu.Unlock()
		return v, true, nil
	}
	if q.finished {
		q.mu.Unlock()
		return zero, false, nil
	}
	w := make(chan T, 1)
	q.waiters = append(q.waiters, w)
	q.mu.Unlock()

	select {
	case v := <-w:
		return v, true, nil
	case <-q.done:
		// Finish 之前可能刚好有值交到了 w 上
		if q.dropWaiter(w) {
			return zero, false, nil
		}
		return <-w, true, nil
	case <-ctx.Done():
		if q.dropWaiter(w) {
			return zero, false, ctx.Err()
		}
		// 值已经交给我们了，不能丢
		return <-w, true, nil
	}
}

// dropWaiter 把 w 从等待列表里摘掉；返回 false 表示它已经被 Add 取走
func (q *Async[T]) dropWaiter(w chan T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, x := range q.waiters {
		if x == w {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// Seq 返回一个惰性序列；每次调用都从当前位置继续消费
// 序列在队列结束、ctx 取消或调用方 break 时停止
func (q *Async[T]) Seq(ctx context.Context) iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			v, ok, err := q.Next(ctx)
			if err != nil || !ok {
				return
			}
			if !yield(v) {
				return
			}
		}
	}
}

// Discard 丢弃缓冲区并结束队列，返回被丢弃的数量
// 正在等待的消费者会收到结束信号
func (q *Async[T]) Discard() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	dropped := len(q.buf)
	q.buf = nil
	if !q.finished {
		q.finished = true
		close(q.done)
	}
	return dropped
}
