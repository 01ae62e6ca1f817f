package memory

import (
	"context"
	"sync"

	"objloader/pkg/cache"
	"objloader/pkg/core"
	"objloader/pkg/types"
)

// Store 是进程内的缓存后端，主要用于测试和一次性拉取
type Store struct {
	mu     sync.RWMutex
	nodes  map[types.Hash]*core.Node
	closed bool
}

var (
	_ cache.Backend = (*Store)(nil)
	_ cache.Hinter  = (*Store)(nil)
)

func NewStore() *Store {
	return &Store{nodes: make(map[types.Hash]*core.Node)}
}

func (s *Store) GetAll(ctx context.Context, ids []types.Hash) ([]*core.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, cache.ErrClosed
	}

	out := make([]*core.Item, len(ids))
	for i, id := range ids {
		if n, ok := s.nodes[id]; ok {
			it := core.NewItem(n)
			out[i] = &it
		}
	}
	return out, nil
}

func (s *Store) PutAll(ctx context.Context, items []core.Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// 先整体校验，保证要么全部写入要么全部不写
	if err := cache.ValidateItems(items); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return cache.ErrClosed
	}
	for _, it := range items {
		s.nodes[it.BaseID] = it.Base
	}
	return nil
}

func (s *Store) Peek(id types.Hash) (*core.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false
	}
	n, ok := s.nodes[id]
	return n, ok
}

// Len 返回缓存的节点数
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
