package deferment

import (
	"context"
	"sync"

	"objloader/pkg/core"
)

// Future 是一个只会被 resolve 一次的节点占位
// 第一个 resolve (fetch 成功 / 缓存命中 / 失败 / dispose) 生效，后续的都被丢弃
type Future struct {
	done chan struct{}
	once sync.Once
	node *core.Node
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func resolvedFuture(n *core.Node) *Future {
	f := newFuture()
	f.resolve(n, nil)
	return f
}

// resolve 返回 false 表示已经被 resolve 过
func (f *Future) resolve(n *core.Node, err error) bool {
	ok := false
	f.once.Do(func() {
		f.node = n
		f.err = err
		close(f.done)
		ok = true
	})
	return ok
}

// Done 在 Future 被 resolve 后关闭
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait 阻塞直到 resolve 或 ctx 取消
func (f *Future) Wait(ctx context.Context) (*core.Node, error) {
	select {
	case <-f.done:
		return f.node, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Value 非阻塞地查看结果；ok=false 表示还在等待
func (f *Future) Value() (node *core.Node, err error, ok bool) {
	select {
	case <-f.done:
		return f.node, f.err, true
	default:
		return nil, nil, false
	}
}
