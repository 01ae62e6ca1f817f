package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"objloader/pkg/batch"
	"objloader/pkg/cache"
	"objloader/pkg/core"
	"objloader/pkg/deferment"
	"objloader/pkg/downloader"
	"objloader/pkg/metrics"
	"objloader/pkg/queue"
	"objloader/pkg/types"
)

// persistTimeout 限制会话结束时写回剩余批次的时间
const persistTimeout = 30 * time.Second

// session 是一次 Start 的全部状态
// 除了持久化回调，其余字段只由 run 所在的 goroutine 访问
type session struct {
	l      *Loader
	ctx    context.Context
	stream *Stream
	opts   Options
	logger *slog.Logger

	dm      *deferment.Manager
	ring    *queue.Ring[downloader.Result]
	persist *batch.Processor[core.Item]
	hinted  bool // backend 实现了 cache.Hinter，缓存查询已经在 Defer 里做掉了

	delivered map[types.Hash]struct{}
	failed    map[types.Hash]struct{} // 本会话已放弃的 ID，不再重新请求
	start     time.Time
}

type resolvedNode struct {
	node   *core.Node
	source string
}

func (l *Loader) newSession(ctx context.Context, stream *Stream, opts Options) (*session, error) {
	logger := l.logger.With(slog.String("root", stream.root.Short()))
	s := &session{
		l:         l,
		ctx:       ctx,
		stream:    stream,
		opts:      opts,
		logger:    logger,
		ring:      queue.NewRing[downloader.Result](opts.RingCapacity),
		delivered: make(map[types.Hash]struct{}),
		failed:    make(map[types.Hash]struct{}),
	}

	dmCfg := deferment.Config{
		MaxSizeBytes: opts.MaxCacheSizeBytes,
		TTL:          opts.TTL,
		Logger:       logger,
		OnEvict:      func(types.Hash) { l.metrics.Evicted(1) },
	}
	if h, ok := l.backend.(cache.Hinter); ok {
		dmCfg.Hint = h
		s.hinted = true
	}
	s.dm = deferment.NewManager(dmCfg)

	s.persist = batch.New(batch.Config{
		BatchSize:    opts.BatchSize,
		BatchTime:    opts.BatchTime,
		MaxQueueSize: opts.MaxWriteQueueSize,
		Logger:       logger,
	}, s.persistBatch, nil)

	err := l.dl.Initialize(downloader.Options{
		Output:       s.ring,
		MaxBatchWait: opts.MaxBatchWait,
	})
	if err != nil {
		s.abort()
		return nil, fmt.Errorf("initialize downloader: %w", err)
	}
	return s, nil
}

func (s *session) run() {
	s.start = time.Now()
	s.l.metrics.SessionStarted()
	s.logger.Info("load session started", s.opts.describe()...)

	s.finish(s.load())
}

// load 先取根，再消费下载结果直到没有 pending 条目
func (s *session) load() error {
	s.stream.setState(StateRootRequested)
	if err := s.loadRoot(); err != nil {
		return err
	}

	s.stream.setState(StateStreaming)
	for s.dm.Pending() > 0 {
		res, err := s.ring.Read(s.ctx)
		if err != nil {
			return err
		}
		if err := s.handle(res); err != nil {
			return err
		}
	}
	return nil
}

// loadRoot 的顺序：deferment 提示 -> 缓存后端 -> DownloadSingle
// 缓存命中时绝不访问网络
func (s *session) loadRoot() error {
	root := s.stream.root
	f, st, err := s.dm.Defer(root)
	if err != nil {
		return err
	}
	if st == deferment.DeferCached {
		n, _, _ := f.Value()
		return s.deliver(n, metrics.SourceCache)
	}

	if !s.hinted {
		hits, _, err := s.lookup([]types.Hash{root})
		if err != nil {
			return err
		}
		if len(hits) == 1 {
			return s.deliver(hits[0], metrics.SourceCache)
		}
	}

	item, err := s.l.dl.DownloadSingle(s.ctx, root)
	if err != nil {
		_, _ = s.dm.Fail(root, err)
		return err
	}
	if _, err := s.dm.Undefer(item); err != nil {
		_, _ = s.dm.Fail(root, err)
		return downloader.NewFetchError(root, err)
	}
	if err := s.persist.Add(s.ctx, item); err != nil {
		return err
	}
	return s.deliver(item.Base, metrics.SourceNetwork)
}

// handle 处理一条下载结果
func (s *session) handle(res downloader.Result) error {
	if res.Err == nil {
		if err := res.Item.Validate(); err != nil {
			res.Err = downloader.NewFetchError(res.ID, err)
		} else if res.Item.BaseID != res.ID {
			res.Err = downloader.NewFetchError(res.ID, core.ErrIDMismatch)
		}
	}
	if res.Err != nil {
		s.skip(res.ID, res.Err)
		return nil
	}

	ok, err := s.dm.Undefer(res.Item)
	if err != nil {
		return err
	}
	if !ok {
		// 重复或迟到的结果
		return nil
	}
	if err := s.persist.Add(s.ctx, res.Item); err != nil {
		return err
	}
	return s.deliver(res.Item.Base, metrics.SourceNetwork)
}

// deliver 交付一个节点，并按 BFS 展开所有能立刻从缓存拿到的后代
func (s *session) deliver(n *core.Node, source string) error {
	work := []resolvedNode{{node: n, source: source}}
	for len(work) > 0 {
		cur := work[0]
		work = work[1:]

		id := cur.node.ID()
		if _, dup := s.delivered[id]; dup {
			continue
		}
		s.delivered[id] = struct{}{}
		if err := s.stream.out.Add(cur.node); err != nil {
			return err
		}
		s.count(cur.source)

		ready, err := s.expand(cur.node)
		if err != nil {
			return err
		}
		for _, r := range ready {
			work = append(work, resolvedNode{node: r, source: metrics.SourceCache})
		}
	}
	return nil
}

// expand 为每个子节点登记 deferment 条目
// 返回已经可以交付的缓存节点；其余的交给 downloader
func (s *session) expand(n *core.Node) ([]*core.Node, error) {
	var (
		ready   []*core.Node
		missing []types.Hash
	)
	for _, child := range n.Children() {
		if _, ok := s.delivered[child]; ok {
			continue
		}
		if _, ok := s.failed[child]; ok {
			continue
		}
		f, st, err := s.dm.Defer(child)
		if err != nil {
			return nil, err
		}
		switch st {
		case deferment.DeferCached:
			if node, _, ok := f.Value(); ok && node != nil {
				ready = append(ready, node)
			}
		case deferment.DeferCreated:
			missing = append(missing, child)
		}
	}
	if len(missing) == 0 {
		return ready, nil
	}

	if !s.hinted {
		hits, rest, err := s.lookup(missing)
		if err != nil {
			return nil, err
		}
		ready = append(ready, hits...)
		missing = rest
	}

	for _, id := range missing {
		if err := s.l.dl.Add(id); err != nil {
			s.skip(id, downloader.NewFetchError(id, err))
		}
	}
	return ready, nil
}

// lookup 批量查询缓存后端，命中的条目直接 Undefer
// 后端出错时当作全部未命中，回退到网络
func (s *session) lookup(ids []types.Hash) (hits []*core.Node, misses []types.Hash, err error) {
	items, err := s.l.backend.GetAll(s.ctx, ids)
	if err != nil {
		if s.ctx.Err() != nil {
			return nil, nil, s.ctx.Err()
		}
		s.logger.Warn("cache lookup failed, falling back to network",
			slog.Int("ids", len(ids)),
			slog.Any("error", err),
		)
		return nil, ids, nil
	}

	for i, id := range ids {
		var it *core.Item
		if i < len(items) {
			it = items[i]
		}
		if it == nil {
			misses = append(misses, id)
			continue
		}
		ok, err := s.dm.Undefer(*it)
		if errors.Is(err, deferment.ErrDisposed) {
			return nil, nil, err
		}
		if err != nil || !ok {
			// 缓存里的条目和 ID 对不上，重新下载
			s.logger.Warn("ignoring inconsistent cache entry", slog.String("id", id.Short()), slog.Any("error", err))
			misses = append(misses, id)
			continue
		}
		hits = append(hits, it.Base)
	}
	return hits, misses, nil
}

// skip 放弃一个 ID：拒绝它的 Future 并通过 OnError 上报
// 同一个 ID 在一次会话里最多放弃一次
func (s *session) skip(id types.Hash, err error) {
	ok, ferr := s.dm.Fail(id, err)
	if ferr != nil || !ok {
		return
	}
	s.failed[id] = struct{}{}
	var fe *downloader.FetchError
	if !errors.As(err, &fe) {
		err = downloader.NewFetchError(id, err)
	}
	s.stream.skipped.Add(1)
	s.l.metrics.FetchFailed()
	s.logger.Warn("node skipped", slog.String("id", id.Short()), slog.Any("error", err))
	s.l.report(err)
}

func (s *session) count(source string) {
	s.stream.delivered.Add(1)
	if source == metrics.SourceCache {
		s.stream.fromCache.Add(1)
	} else {
		s.stream.fetched.Add(1)
	}
	s.l.metrics.NodeDelivered(source)
}

// persistBatch 是持久化批处理器的 ProcessFunc
// 失败只上报，不影响交付
func (s *session) persistBatch(ctx context.Context, items []core.Item) error {
	start := time.Now()
	err := s.l.backend.PutAll(ctx, items)
	s.l.metrics.ObservePersist(len(items), time.Since(start), err)
	if err != nil {
		if errors.Is(context.Cause(ctx), batch.ErrDiscarded) {
			return err // 会话取消丢弃了这批，不算持久化失败
		}
		ids := make([]types.Hash, len(items))
		for i, it := range items {
			ids[i] = it.BaseID
		}
		perr := &PersistenceError{IDs: ids, Err: err}
		s.logger.Warn("persist batch failed", slog.Int("items", len(items)), slog.Any("error", err))
		s.l.report(perr)
		return perr
	}
	s.stream.persisted.Add(int64(len(items)))
	return nil
}

// finish 收尾：
//  1. 正常结束：结束输出 -> Draining -> 写完剩余批次
//  2. 取消：丢弃输出缓冲和未写出的批次
//  3. 根节点失败：记录错误，结束输出
//
// 最后统一释放 deferment 和 Ring
func (s *session) finish(err error) {
	var outcome string
	switch {
	case err == nil:
		outcome = metrics.OutcomeCompleted
		s.stream.out.Finish()
		s.stream.setState(StateDraining)
		s.ring.Close()

		pctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), persistTimeout)
		if perr := s.persist.Close(pctx); perr != nil {
			s.logger.Debug("final persist flush failed", slog.Any("error", perr))
		}
		cancel()

	case s.ctx.Err() != nil:
		outcome = metrics.OutcomeCanceled
		// 先记录错误再结束输出，消费者看到流结束时 Err 已经可读
		s.stream.setErr(fmt.Errorf("%w: %w", ErrCanceled, context.Cause(s.ctx)))
		s.ring.Close()
		dropped := s.persist.Discard()
		undelivered := s.stream.out.Discard()
		s.logger.Info("load session canceled",
			slog.Int("dropped_writes", dropped),
			slog.Int("undelivered", undelivered),
		)

	default:
		outcome = metrics.OutcomeFailed
		s.stream.setErr(err)
		s.stream.out.Finish()
		s.ring.Close()
		if perr := s.persist.Close(context.WithoutCancel(s.ctx)); perr != nil {
			s.logger.Debug("final persist flush failed", slog.Any("error", perr))
		}
		s.logger.Error("load session failed", slog.Any("error", err))
	}

	s.l.dl.Release(s.ring)
	_ = s.dm.Close()
	s.stream.cancel()
	s.stream.setState(StateClosed)

	stats := s.stream.Stats()
	s.l.metrics.SessionFinished(outcome, time.Since(s.start))
	s.logger.Info("load session finished",
		slog.String("outcome", outcome),
		slog.Int64("delivered", stats.Delivered),
		slog.Int64("from_cache", stats.FromCache),
		slog.Int64("fetched", stats.Fetched),
		slog.Int64("skipped", stats.Skipped),
		slog.Int64("persisted", stats.Persisted),
		slog.Duration("elapsed", time.Since(s.start)),
	)
	close(s.stream.done)
}

// abort 释放一个还没开始运行的会话
func (s *session) abort() {
	s.ring.Close()
	s.l.dl.Release(s.ring)
	s.persist.Discard()
	if s.dm != nil {
		_ = s.dm.Close()
	}
	s.stream.out.Discard()
	s.stream.setErr(ErrCanceled)
	s.stream.cancel()
	s.stream.setState(StateClosed)
	close(s.stream.done)
}
