package storage

import (
	"context"
	"errors"
	"io"

	"objloader/pkg/core"
	"objloader/pkg/types"
)

var (
	ErrNotFound      = errors.New("object not found")
	ErrAmbiguousHash = errors.New("hash prefix is ambiguous")
	ErrInvalidID     = errors.New("invalid object id")
)

// MinPrefixLen 是 ExpandHash 接受的最短前缀
const MinPrefixLen = 4

// Writer 只负责写入节点，ingester 和 treebuilder 只依赖它
// 除了 Store 之外，远端上传器 (Put RPC) 也实现了它
type Writer interface {
	// Put 持久化一个节点 (以 canonical body 存储)
	// 不需要返回 Hash，因为 Hash 已经在 Node 里了
	Put(ctx context.Context, n *core.Node) error
}

// Store 是远端对象服务背后的存储后端
// 实现可以是本地磁盘、S3 兼容对象存储，或者带 Redis 存在性缓存的装饰器
type Store interface {
	Writer

	// Get 根据 ID 读取原始 body
	// 返回 io.ReadCloser 而不是 []byte，大 chunk 可以流式读取
	Get(ctx context.Context, id types.Hash) (io.ReadCloser, error)

	// Has 检查对象是否存在 (用于去重逻辑)
	Has(ctx context.Context, id types.Hash) (bool, error)

	// ExpandHash 把短哈希扩展为完整 ID
	// 找不到返回 ErrNotFound，匹配多个返回 ErrAmbiguousHash
	ExpandHash(ctx context.Context, prefix string) (types.Hash, error)
}

// ReadNode 从 Store 读出 body 并还原节点
func ReadNode(ctx context.Context, s Store, id types.Hash) (*core.Node, error) {
	rc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	return core.DecodeNode(id, data)
}
