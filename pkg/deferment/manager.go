package deferment

import (
	"container/list"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"objloader/pkg/core"
	"objloader/pkg/types"
)

var ErrDisposed = errors.New("deferment manager disposed")

// DeferState 描述 Defer 的结果
type DeferState int

const (
	// DeferCreated 新建了一个 pending 条目，调用方负责去下载并最终调用 Undefer / Fail
	DeferCreated DeferState = iota
	// DeferExisting 条目已存在 (在途或已 resolve)，调用方不得重复请求
	DeferExisting
	// DeferCached 缓存提示命中，Future 已经 resolve
	DeferCached
)

func (s DeferState) String() string {
	switch s {
	case DeferCreated:
		return "created"
	case DeferExisting:
		return "existing"
	case DeferCached:
		return "cached"
	default:
		return fmt.Sprintf("DeferState(%d)", int(s))
	}
}

// Hinter 是缓存后端可选提供的同步查询能力
type Hinter interface {
	Peek(id types.Hash) (*core.Node, bool)
}

// Config 配置 Manager
type Config struct {
	MaxSizeBytes int64         // 已 resolve 条目的总字节预算；0 表示不限
	TTL          time.Duration // 已 resolve 条目的存活时间；0 表示不过期
	Hint         Hinter        // 可选
	Logger       *slog.Logger
	OnEvict      func(id types.Hash)
	Now          func() time.Time // 测试用
}

type entry struct {
	id         types.Hash
	future     *Future
	insertedAt time.Time
	size       int64
	elem       *list.Element // nil 表示仍在 pending
}

// Manager 是协调核心：
// 对同一个 id 的并发请求去重 (每个 id 至多一个条目)，
// 用 TTL + 容量预算约束内存，并桥接“已缓存”与“需要下载”两条路径
type Manager struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	entries  map[types.Hash]*entry
	resolved *list.List // 已 resolve 的条目，按 resolve 顺序 (Front 最旧)
	size     int64
	pending  int
	disposed bool

	stop chan struct{}
	done chan struct{}
}

func NewManager(cfg Config) *Manager {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		cfg:      cfg,
		logger:   logger,
		entries:  make(map[types.Hash]*entry),
		resolved: list.New(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	if cfg.TTL > 0 {
		go m.janitor(max(cfg.TTL/2, 10*time.Millisecond))
	} else {
		close(m.done)
	}
	return m
}

// Defer 登记对 id 的兴趣
func (m *Manager) Defer(id types.Hash) (*Future, DeferState, error) {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return nil, 0, ErrDisposed
	}
	if e, ok := m.entries[id]; ok {
		m.mu.Unlock()
		return e.future, DeferExisting, nil
	}
	m.mu.Unlock()

	// 提示查询放在锁外，后端可能要读盘
	var hit *core.Node
	if m.cfg.Hint != nil {
		if n, ok := m.cfg.Hint.Peek(id); ok && n != nil {
			hit = n
		}
	}

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return nil, 0, ErrDisposed
	}
	// 重新检查：锁外期间可能有人抢先插入
	if e, ok := m.entries[id]; ok {
		m.mu.Unlock()
		return e.future, DeferExisting, nil
	}

	if hit != nil {
		e := &entry{id: id, future: resolvedFuture(hit)}
		m.entries[id] = e
		evicted := m.markResolvedLocked(e, hit)
		m.mu.Unlock()
		m.notifyEvicted(evicted)
		return e.future, DeferCached, nil
	}

	e := &entry{id: id, future: newFuture(), insertedAt: m.cfg.Now()}
	m.entries[id] = e
	m.pending++
	m.mu.Unlock()
	return e.future, DeferCreated, nil
}

// Undefer 用下载到的节点 resolve 对应的 pending 条目
// 没有 pending 条目 (已 resolve / 已淘汰 / 重复投递) 时返回 false，不报错
func (m *Manager) Undefer(item core.Item) (bool, error) {
	if err := item.Validate(); err != nil {
		return false, err
	}

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return false, ErrDisposed
	}
	e, ok := m.entries[item.BaseID]
	if !ok || e.elem != nil {
		m.mu.Unlock()
		return false, nil
	}
	e.future.resolve(item.Base, nil)
	m.pending--
	evicted := m.markResolvedLocked(e, item.Base)
	m.mu.Unlock()

	m.notifyEvicted(evicted)
	return true, nil
}

// Fail 以 err 拒绝一个 pending 条目并移除它，之后同一个 id 可以重新 Defer
func (m *Manager) Fail(id types.Hash, err error) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.disposed {
		return false, ErrDisposed
	}
	e, ok := m.entries[id]
	if !ok || e.elem != nil {
		return false, nil
	}
	e.future.resolve(nil, err)
	delete(m.entries, id)
	m.pending--
	return true, nil
}

// Get 同步查看一个已 resolve 的条目 (pending 的返回 false)
func (m *Manager) Get(id types.Hash) (*core.Node, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.disposed {
		return nil, false, ErrDisposed
	}
	e, ok := m.entries[id]
	if !ok || e.elem == nil {
		return nil, false, nil
	}
	n, _, _ := e.future.Value()
	return n, n != nil, nil
}

// Pending 返回仍在途的条目数
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

// Len 返回条目总数 (pending + resolved)
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Size 返回已 resolve 条目的估算字节数
func (m *Manager) Size() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size
}

// Close 以 ErrDisposed 拒绝所有 pending 的 Future 并清空条目，幂等
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return nil
	}
	m.disposed = true
	rejected := 0
	for _, e := range m.entries {
		if e.elem == nil {
			e.future.resolve(nil, ErrDisposed)
			rejected++
		}
	}
	clear(m.entries)
	m.resolved.Init()
	m.size = 0
	m.pending = 0
	m.mu.Unlock()

	if m.cfg.TTL > 0 {
		close(m.stop)
	}
	<-m.done

	if rejected > 0 {
		m.logger.Debug("deferment manager disposed", slog.Int("rejected", rejected))
	}
	return nil
}

// markResolvedLocked 把条目挂到 resolved 链表尾部，并按容量预算淘汰最旧的条目
func (m *Manager) markResolvedLocked(e *entry, n *core.Node) []types.Hash {
	e.insertedAt = m.cfg.Now()
	e.size = n.ApproxSize()
	e.elem = m.resolved.PushBack(e)
	m.size += e.size

	if m.cfg.MaxSizeBytes <= 0 {
		return nil
	}
	var evicted []types.Hash
	for m.size > m.cfg.MaxSizeBytes {
		front := m.resolved.Front()
		if front == nil {
			break
		}
		evicted = append(evicted, m.removeLocked(front.Value.(*entry)))
	}
	return evicted
}

func (m *Manager) removeLocked(e *entry) types.Hash {
	m.resolved.Remove(e.elem)
	delete(m.entries, e.id)
	m.size -= e.size
	return e.id
}

// janitor 后台按 TTL 淘汰，只碰已 resolve 的条目
func (m *Manager) janitor(interval time.Duration) {
	defer close(m.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.notifyEvicted(m.sweepExpired())
		case <-m.stop:
			return
		}
	}
}

func (m *Manager) sweepExpired() []types.Hash {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.cfg.Now()
	var expired []types.Hash
	for el := m.resolved.Front(); el != nil; {
		e := el.Value.(*entry)
		if now.Sub(e.insertedAt) <= m.cfg.TTL {
			break // 链表按时间有序，后面的都更新
		}
		el = el.Next()
		expired = append(expired, m.removeLocked(e))
	}
	return expired
}

func (m *Manager) notifyEvicted(ids []types.Hash) {
	if len(ids) == 0 {
		return
	}
	m.logger.Debug("deferment entries evicted", slog.Int("count", len(ids)))
	if m.cfg.OnEvict != nil {
		for _, id := range ids {
			m.cfg.OnEvict(id)
		}
	}
}
