package cache

import (
	"context"
	"errors"
	"fmt"

	"objloader/pkg/core"
	"objloader/pkg/types"
)

var (
	ErrClosed    = errors.New("cache backend is closed")
	ErrNotCached = errors.New("object not in local cache")
)

// Backend 是本地持久化缓存的抽象
// 所有实现都必须满足：
//  1. GetAll 保持输入顺序，未命中的位置为 nil
//  2. PutAll 是幂等 upsert，一次调用对应一个原子事务，写入前逐条校验 baseId
//  3. Close 幂等，关闭后的操作返回 ErrClosed
type Backend interface {
	GetAll(ctx context.Context, ids []types.Hash) ([]*core.Item, error)
	PutAll(ctx context.Context, items []core.Item) error
	Close() error
}

// Hinter 是可选能力：不经过 context 的同步查询
// deferment 用它判断一个 id 是否可以直接从缓存 resolve
type Hinter interface {
	Peek(id types.Hash) (*core.Node, bool)
}

// ValidateItems 在写入前检查每个 Item 的 baseId
func ValidateItems(items []core.Item) error {
	for i, it := range items {
		if err := it.Validate(); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	return nil
}

// Hits 统计 GetAll 结果里命中的数量
func Hits(items []*core.Item) int {
	n := 0
	for _, it := range items {
		if it != nil {
			n++
		}
	}
	return n
}
