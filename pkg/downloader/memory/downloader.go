package memory

import (
	"context"
	"sync"
	"time"

	"objloader/pkg/core"
	"objloader/pkg/downloader"
	"objloader/pkg/queue"
	"objloader/pkg/types"
)

// Downloader 从内存里的节点表 "下载"，给测试和离线场景用
// 它会记录每个 ID 被请求的次数，便于断言 at-most-one-fetch
type Downloader struct {
	nodes map[types.Hash]*core.Node

	mu          sync.Mutex
	failures    map[types.Hash]error
	delay       time.Duration
	addCalls    map[types.Hash]int
	singleCalls map[types.Hash]int
	sess        *session
	closed      bool
}

var _ downloader.Downloader = (*Downloader)(nil)

type session struct {
	pending *queue.Async[types.Hash]
	out     *queue.Ring[downloader.Result]
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(nodes ...*core.Node) *Downloader {
	d := &Downloader{
		nodes:       make(map[types.Hash]*core.Node, len(nodes)),
		failures:    make(map[types.Hash]error),
		addCalls:    make(map[types.Hash]int),
		singleCalls: make(map[types.Hash]int),
	}
	for _, n := range nodes {
		d.nodes[n.ID()] = n
	}
	return d
}

// FailWith 让某个 ID 的下载返回 err
func (d *Downloader) FailWith(id types.Hash, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[id] = err
}

// SetDelay 给每次下载加一个固定延迟
func (d *Downloader) SetDelay(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delay = delay
}

func (d *Downloader) Initialize(opts downloader.Options) error {
	if err := downloader.ValidateOptions(opts); err != nil {
		return err
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return downloader.ErrClosed
	}
	prev := d.sess
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		pending: queue.NewAsync[types.Hash](),
		out:     opts.Output,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	d.sess = s
	d.mu.Unlock()

	stopSession(prev)
	go d.run(ctx, s)
	return nil
}

// Add 只登记，不阻塞
func (d *Downloader) Add(id types.Hash) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return downloader.ErrClosed
	}
	s := d.sess
	if s == nil {
		d.mu.Unlock()
		return downloader.ErrNotInitialized
	}
	d.addCalls[id]++
	d.mu.Unlock()

	return s.pending.Add(id)
}

func (d *Downloader) DownloadSingle(ctx context.Context, id types.Hash) (core.Item, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return core.Item{}, downloader.ErrClosed
	}
	d.singleCalls[id]++
	d.mu.Unlock()

	res := d.resolve(ctx, id)
	return res.Item, res.Err
}

// Release 停掉输出为 output 的会话；之后的 Add 返回 ErrNotInitialized
func (d *Downloader) Release(output *queue.Ring[downloader.Result]) {
	d.mu.Lock()
	s := d.sess
	if s == nil || s.out != output {
		d.mu.Unlock()
		return
	}
	d.sess = nil
	d.mu.Unlock()

	stopSession(s)
}

func (d *Downloader) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	s := d.sess
	d.sess = nil
	d.mu.Unlock()

	stopSession(s)
	return nil
}

// AddCalls 返回某个 ID 被 Add 的次数
func (d *Downloader) AddCalls(id types.Hash) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addCalls[id]
}

// SingleCalls 返回某个 ID 被 DownloadSingle 的次数
func (d *Downloader) SingleCalls(id types.Hash) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.singleCalls[id]
}

// TotalCalls 返回所有请求 (Add + DownloadSingle) 的总次数
func (d *Downloader) TotalCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	total := 0
	for _, c := range d.addCalls {
		total += c
	}
	for _, c := range d.singleCalls {
		total += c
	}
	return total
}

func (d *Downloader) run(ctx context.Context, s *session) {
	defer close(s.done)
	for id := range s.pending.Seq(ctx) {
		// Ring 满时在这里阻塞，这就是背压
		if err := s.out.Write(ctx, d.resolve(ctx, id)); err != nil {
			return
		}
	}
}

func (d *Downloader) resolve(ctx context.Context, id types.Hash) downloader.Result {
	d.mu.Lock()
	delay := d.delay
	failure := d.failures[id]
	d.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return downloader.Result{ID: id, Err: downloader.NewFetchError(id, ctx.Err())}
		}
	}

	if failure != nil {
		return downloader.Result{ID: id, Err: downloader.NewFetchError(id, failure)}
	}
	n, ok := d.nodes[id]
	if !ok {
		return downloader.Result{ID: id, Err: downloader.NewFetchError(id, downloader.ErrNotFound)}
	}
	return downloader.Result{ID: id, Item: core.NewItem(n)}
}

func stopSession(s *session) {
	if s == nil {
		return
	}
	s.pending.Finish()
	s.cancel()
	<-s.done
}
