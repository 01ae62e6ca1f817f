package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"objloader/pkg/core"
	"objloader/pkg/downloader"
	"objloader/pkg/queue"
	"objloader/pkg/rpc"
	"objloader/pkg/types"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	DefaultBatchSize    = 100
	DefaultConcurrency  = 4
	DefaultMaxBatchWait = 50 * time.Millisecond
)

var errMissingFromResponse = errors.New("id missing from fetch response")

// Config 配置网络下载器
type Config struct {
	BatchSize         int     // 每次 Fetch 请求的最大 ID 数
	Concurrency       int     // 同时在途的 Fetch 请求数
	RequestsPerSecond float64 // Fetch 请求速率上限；0 表示不限
	Burst             int
	Verify            bool // 校验返回内容的哈希 (只对 64 位 hex ID 生效)
	Logger            *slog.Logger
	OnBatch           func(ids int, dur time.Duration, err error) // 可选的观测回调
}

// Downloader 通过 gRPC 对象服务批量下载节点
//
// Add 进来的 ID 先进入按 key 去重的 pending 队列，
// dispatcher 凑满 BatchSize 或等到 MaxBatchWait 就切出一批，
// 每批是一次 server-streaming Fetch，跑在并发受限的 errgroup 上，
// 收到的节点写进输出 Ring (写满即阻塞)
type Downloader struct {
	client  rpc.ObjectServiceClient
	cfg     Config
	limiter *rate.Limiter
	logger  *slog.Logger

	mu     sync.Mutex
	sess   *session
	closed bool
}

var (
	_ downloader.Downloader        = (*Downloader)(nil)
	_ downloader.ConcurrencySetter = (*Downloader)(nil)
)

type session struct {
	out     *queue.Ring[downloader.Result]
	pending *queue.Keyed[types.Hash, types.Hash]
	maxWait time.Duration
	total   int
	workers int

	// inflight 记录已登记但结果还没写出的 ID
	// pending 只在切批前去重，切出去之后靠它挡住重复请求
	mu       sync.Mutex
	inflight map[types.Hash]struct{}

	kick chan struct{} // 有新 ID
	full chan struct{} // pending 已满一批

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func New(client rpc.ObjectServiceClient, cfg Config) *Downloader {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	cfg.BatchSize = min(cfg.BatchSize, rpc.MaxFetchIDs)
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := &Downloader{client: client, cfg: cfg, logger: logger}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = cfg.Concurrency
		}
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return d
}

func (d *Downloader) Initialize(opts downloader.Options) error {
	if err := downloader.ValidateOptions(opts); err != nil {
		return err
	}
	maxWait := opts.MaxBatchWait
	if maxWait == 0 {
		maxWait = DefaultMaxBatchWait
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return downloader.ErrClosed
	}
	prev := d.sess
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		out:      opts.Output,
		pending:  queue.NewKeyed[types.Hash, types.Hash](),
		maxWait:  maxWait,
		total:    opts.Total,
		workers:  d.cfg.Concurrency,
		inflight: make(map[types.Hash]struct{}),
		kick:     make(chan struct{}, 1),
		full:     make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	d.sess = s
	d.mu.Unlock()

	stopSession(prev)
	d.logger.Debug("download session started",
		slog.Int("expected", s.total),
		slog.Int("batch_size", d.cfg.BatchSize),
		slog.Int("workers", s.workers),
		slog.Duration("max_wait", s.maxWait),
	)
	go d.dispatch(s)
	return nil
}

// SetConcurrency 调整同时在途的 Fetch 请求数，从下一次 Initialize 起生效
func (d *Downloader) SetConcurrency(n int) {
	if n <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg.Concurrency = n
}

// Add 只把 ID 放进 pending 队列，不阻塞
func (d *Downloader) Add(id types.Hash) error {
	d.mu.Lock()
	s, closed := d.sess, d.closed
	d.mu.Unlock()

	if closed {
		return downloader.ErrClosed
	}
	if s == nil {
		return downloader.ErrNotInitialized
	}

	if !s.track(id) {
		return nil
	}
	s.pending.Enqueue(id, id)
	notify(s.kick)
	if s.pending.Len() >= d.cfg.BatchSize {
		notify(s.full)
	}
	return nil
}

// DownloadSingle 同步获取一个节点
func (d *Downloader) DownloadSingle(ctx context.Context, id types.Hash) (core.Item, error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return core.Item{}, downloader.ErrClosed
	}

	if err := d.wait(ctx); err != nil {
		return core.Item{}, err
	}

	stream, err := d.client.Fetch(ctx, &rpc.FetchRequest{IDs: []string{string(id)}})
	if err != nil {
		return core.Item{}, downloader.NewFetchError(id, err)
	}
	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			return core.Item{}, downloader.NewFetchError(id, errMissingFromResponse)
		}
		if err != nil {
			return core.Item{}, downloader.NewFetchError(id, err)
		}
		if types.Hash(resp.ID) != id {
			continue
		}
		res := d.toResult(resp)
		return res.Item, res.Err
	}
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

// =============================================================================
// Dispatcher
// =============================================================================

func (d *Downloader) dispatch(s *session) {
	defer close(s.done)

	g, gctx := errgroup.WithContext(s.ctx)
	g.SetLimit(s.workers)
	defer func() {
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, queue.ErrClosed) {
			d.logger.Warn("download session stopped", slog.Any("error", err))
		}
	}()

	timer := time.NewTimer(s.maxWait)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-gctx.Done():
			return
		case <-s.kick:
		}
		if s.pending.Len() == 0 {
			continue
		}

		// 1. 不满一批时最多再等 maxWait
		if s.pending.Len() < d.cfg.BatchSize {
			timer.Reset(s.maxWait)
			select {
			case <-timer.C:
			case <-s.full:
				timer.Stop()
			case <-gctx.Done():
				return
			}
		}

		// 2. 把 pending 切成若干批；g.Go 在并发达到上限时阻塞
		for s.pending.Len() > 0 {
			ids := s.pending.SpliceValues(0, d.cfg.BatchSize)
			if len(ids) == 0 {
				break
			}
			g.Go(func() error {
				return d.fetchBatch(gctx, s, ids)
			})
		}
		// 已经切走的批次留下的 full 信号作废，下一批重新计时
		select {
		case <-s.full:
		default:
		}
	}
}

// fetchBatch 只在输出 Ring 不可写 (会话结束) 时返回错误，单个 ID 的失败都变成 Result
func (d *Downloader) fetchBatch(ctx context.Context, s *session, ids []types.Hash) (err error) {
	start := time.Now()
	defer func() {
		if d.cfg.OnBatch != nil {
			d.cfg.OnBatch(len(ids), time.Since(start), err)
		}
	}()

	if err := d.wait(ctx); err != nil {
		return err
	}

	req := &rpc.FetchRequest{IDs: make([]string, len(ids))}
	for i, id := range ids {
		req.IDs[i] = string(id)
	}

	stream, err := d.client.Fetch(ctx, req)
	if err != nil {
		return d.failAll(ctx, s, ids, nil, err)
	}

	seen := make(map[types.Hash]bool, len(ids))
	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return d.failAll(ctx, s, ids, seen, err)
		}

		id := types.Hash(resp.ID)
		if seen[id] {
			continue
		}
		seen[id] = true
		if err := s.emit(ctx, d.toResult(resp)); err != nil {
			return err
		}
	}

	// 服务端漏掉的 ID
	return d.failAll(ctx, s, ids, seen, errMissingFromResponse)
}

// failAll 给 ids 中没有出现在 seen 里的每个 ID 写一条失败结果
func (d *Downloader) failAll(ctx context.Context, s *session, ids []types.Hash, seen map[types.Hash]bool, cause error) error {
	failed := 0
	for _, id := range ids {
		if seen[id] {
			continue
		}
		failed++
		if err := s.emit(ctx, downloader.Result{ID: id, Err: downloader.NewFetchError(id, cause)}); err != nil {
			return err
		}
	}
	if failed > 0 {
		d.logger.Warn("fetch batch failed", slog.Int("failed", failed), slog.Int("batch", len(ids)), slog.Any("error", cause))
	}
	return nil
}

func (d *Downloader) toResult(resp *rpc.FetchResponse) downloader.Result {
	id := types.Hash(resp.ID)
	if resp.Error != "" {
		cause := errors.New(resp.Error)
		if resp.Error == "not found" {
			cause = downloader.ErrNotFound
		}
		return downloader.Result{ID: id, Err: downloader.NewFetchError(id, cause)}
	}

	n, err := core.DecodeNode(id, resp.Data)
	if err != nil {
		return downloader.Result{ID: id, Err: downloader.NewFetchError(id, err)}
	}
	if d.cfg.Verify && id.IsValid() {
		if err := n.Verify(); err != nil {
			return downloader.Result{ID: id, Err: downloader.NewFetchError(id, err)}
		}
	}
	return downloader.Result{ID: id, Item: core.NewItem(n)}
}

func (d *Downloader) wait(ctx context.Context) error {
	if d.limiter == nil {
		return nil
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// track 登记一个 ID；已在途时返回 false
func (s *session) track(id types.Hash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inflight[id]; ok {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

// emit 写出结果 (Ring 满时阻塞)，并解除在途标记
func (s *session) emit(ctx context.Context, res downloader.Result) error {
	s.mu.Lock()
	delete(s.inflight, res.ID)
	s.mu.Unlock()
	return s.out.Write(ctx, res)
}

func stopSession(s *session) {
	if s == nil {
		return
	}
	s.cancel()
	<-s.done
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
