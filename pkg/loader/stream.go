package loader

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"

	"objloader/pkg/core"
	"objloader/pkg/queue"
	"objloader/pkg/types"
)

// State 是一次加载会话所处的阶段
type State int32

const (
	StateIdle State = iota
	StateRootRequested
	StateStreaming
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRootRequested:
		return "root-requested"
	case StateStreaming:
		return "streaming"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Stats 是会话的计数快照
type Stats struct {
	Delivered int64 // 交给消费者的节点
	FromCache int64 // 其中来自本地缓存的
	Fetched   int64 // 其中来自网络的
	Skipped   int64 // 下载失败被跳过的 ID
	Persisted int64 // 成功写进缓存的节点
}

// Stream 是 Start 返回的节点流
//
// 节点按解析完成的顺序交付，同一会话内每个 ID 至多出现一次。
// Seq 每次调用都从当前位置继续，已经消费过的节点不会重放。
type Stream struct {
	root types.Hash
	out  *queue.Async[*core.Node]

	state  atomic.Int32
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error

	delivered atomic.Int64
	fromCache atomic.Int64
	fetched   atomic.Int64
	skipped   atomic.Int64
	persisted atomic.Int64
}

func newStream(root types.Hash, cancel context.CancelFunc) *Stream {
	return &Stream{
		root:   root,
		out:    queue.NewAsync[*core.Node](),
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

func (s *Stream) Root() types.Hash { return s.root }

func (s *Stream) State() State { return State(s.state.Load()) }

// Seq 返回惰性节点序列
// 会话结束 (完成、失败或取消) 且缓冲区读空后序列结束，之后用 Err 判断结果
func (s *Stream) Seq(ctx context.Context) iter.Seq[*core.Node] {
	return s.out.Seq(ctx)
}

// Next 拉取下一个节点；ok=false 表示流已结束
func (s *Stream) Next(ctx context.Context) (*core.Node, bool, error) {
	return s.out.Next(ctx)
}

// Err 返回会话失败的原因：正常结束为 nil，取消为 ErrCanceled
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done 在会话彻底结束 (包括缓存写完) 后关闭
func (s *Stream) Done() <-chan struct{} { return s.done }

// Wait 等会话结束并返回 Err
func (s *Stream) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel 取消这一个会话并等它收尾
func (s *Stream) Cancel() {
	s.cancel()
	<-s.done
}

func (s *Stream) Stats() Stats {
	return Stats{
		Delivered: s.delivered.Load(),
		FromCache: s.fromCache.Load(),
		Fetched:   s.fetched.Load(),
		Skipped:   s.skipped.Load(),
		Persisted: s.persisted.Load(),
	}
}

func (s *Stream) setState(st State) { s.state.Store(int32(st)) }

// setErr 只记录第一个错误
func (s *Stream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}
