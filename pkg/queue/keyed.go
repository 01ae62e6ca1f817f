package queue

import "sync"

// Keyed 是按插入顺序排列的 key -> value 队列
// 同一个 key 最多入队一次 (at-most-once)
type Keyed[K comparable, V any] struct {
	mu     sync.Mutex
	keys   []K
	values map[K]V
}

func NewKeyed[K comparable, V any]() *Keyed[K, V] {
	return &Keyed[K, V]{values: make(map[K]V)}
}

// Enqueue 追加一条记录；key 已存在时什么都不做并返回 false
func (q *Keyed[K, V]) Enqueue(key K, value V) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.values[key]; exists {
		return false
	}
	q.keys = append(q.keys, key)
	q.values[key] = value
	return true
}

func (q *Keyed[K, V]) Get(key K) (V, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	v, ok := q.values[key]
	return v, ok
}

func (q *Keyed[K, V]) Has(key K) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.values[key]
	return ok
}

func (q *Keyed[K, V]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.keys)
}

// SpliceValues 移除并返回 [start, start+count) 区间内的值 (保持顺序)
// 被移除的 key 同步从索引中删除，之后可以重新 Enqueue
func (q *Keyed[K, V]) SpliceValues(start, count int) []V {
	q.mu.Lock()
	defer q.mu.Unlock()

	if start < 0 {
		start = 0
	}
	if start >= len(q.keys) || count <= 0 {
		return nil
	}
	end := min(start+count, len(q.keys))

	out := make([]V, 0, end-start)
	for _, k := range q.keys[start:end] {
		out = append(out, q.values[k])
		delete(q.values, k)
	}

	// 原地压缩，避免底层数组无限增长
	n := copy(q.keys[start:], q.keys[end:])
	clear(q.keys[start+n:])
	q.keys = q.keys[:start+n]
	return out
}
