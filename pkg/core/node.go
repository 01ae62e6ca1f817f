package core

import (
	"errors"
	"fmt"

	"objloader/pkg/types"

	"github.com/fxamacker/cbor/v2"
)

// ObjectType 是节点的类型标签 (判别字段)
// loader 不关心具体取值，只有 ingester 和打印逻辑会用到下面这些常量
type ObjectType string

const (
	TypeChunk ObjectType = "chunk" // 原始数据块 (叶子)
	TypeFile  ObjectType = "file"  // 文件索引，链接到 chunk
	TypeTree  ObjectType = "tree"  // 目录树，链接到 file / tree
)

var (
	ErrHashMismatch = errors.New("node content does not match its id")
	ErrEmptyID      = errors.New("node id is empty")
)

// nodeOverhead 估算一个节点在内存中的固定开销 (指针、slice header、map entry)
const nodeOverhead = 96

// Node 是对象 DAG 中的一个顶点 (Base)
// 它是一个带标签的信封：ID + Type + 子节点引用 + 不透明的 Payload
// Payload 的具体 schema 交给重建层，loader 只需要知道自己的 ID 和 Links
type Node struct {
	id       types.Hash `cbor:"-"`
	rawBytes []byte     `cbor:"-"`

	TypeVal ObjectType      `cbor:"t"`
	Links   []Link          `cbor:"l,omitempty"`
	Payload cbor.RawMessage `cbor:"p,omitempty"`
}

// NewNode 创建一个内容寻址的节点：ID = SHA256(canonical CBOR body)
func NewNode(typ ObjectType, children []types.Hash, payload any) (*Node, error) {
	n := &Node{
		TypeVal: typ,
		Links:   NewLinks(children),
	}

	if payload != nil {
		raw, err := em.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		n.Payload = raw
	}

	h, b, err := CalculateHash(n)
	if err != nil {
		return nil, err
	}
	n.id = h
	n.rawBytes = b
	return n, nil
}

// NewNodeWithID 用外部给定的 ID 构造节点 (不做内容校验)
// 用于内存 stub 和测试，ID 可以是任意字符串
func NewNodeWithID(id types.Hash, typ ObjectType, children ...types.Hash) *Node {
	return &Node{
		id:      id,
		TypeVal: typ,
		Links:   NewLinks(children),
	}
}

// DecodeNode 从存储/网络上拿到的 body 字节还原节点
func DecodeNode(id types.Hash, data []byte) (*Node, error) {
	if id.IsZero() {
		return nil, ErrEmptyID
	}
	var n Node
	if err := dm.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("failed to decode node %s: %w", id.Short(), err)
	}
	n.id = id
	n.rawBytes = append([]byte(nil), data...)
	return &n, nil
}

func (n *Node) ID() types.Hash   { return n.id }
func (n *Node) Type() ObjectType { return n.TypeVal }

// Bytes 返回节点 body 的序列化数据 (用于存储和传输)
func (n *Node) Bytes() ([]byte, error) {
	if n.rawBytes != nil {
		return n.rawBytes, nil
	}
	// 不回写 rawBytes：节点会在多个 goroutine 之间传递，保持只读
	b, err := em.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal node %s: %w", n.id.Short(), err)
	}
	return b, nil
}

// Children 返回所有子节点的 ID (按 Links 顺序)
func (n *Node) Children() []types.Hash {
	out := make([]types.Hash, len(n.Links))
	for i, l := range n.Links {
		out[i] = l.Hash
	}
	return out
}

// Verify 校验内容寻址：重新计算 body 的哈希并与 ID 比对
func (n *Node) Verify() error {
	b, err := n.Bytes()
	if err != nil {
		return err
	}
	if got := CalculateBlobHash(b); got != n.id {
		return fmt.Errorf("%w: want %s, got %s", ErrHashMismatch, n.id.Short(), got.Short())
	}
	return nil
}

// DecodePayload 把不透明的 Payload 解码到 v
func (n *Node) DecodePayload(v any) error {
	if len(n.Payload) == 0 {
		return fmt.Errorf("node %s has no payload", n.id.Short())
	}
	return dm.Unmarshal(n.Payload, v)
}

// ApproxSize 估算节点常驻内存的字节数，用于 deferment 的容量预算
func (n *Node) ApproxSize() int64 {
	if n.rawBytes != nil {
		return int64(len(n.rawBytes)+len(n.id)) + nodeOverhead
	}
	size := len(n.id) + len(n.TypeVal) + len(n.Payload)
	for _, l := range n.Links {
		size += len(l.Hash) + 16
	}
	return int64(size) + nodeOverhead
}
