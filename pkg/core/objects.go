package core

import (
	"fmt"

	"objloader/pkg/types"
)

// 下面是 ingester 产出的三种节点的 Payload schema
// loader 不解析它们，只有 ingester 和打印逻辑依赖

// EntryKind 区分目录项是文件还是子目录
type EntryKind string

const (
	EntryFile EntryKind = "file"
	EntryDir  EntryKind = "dir"
)

// FileInfo 是 file 节点的 Payload；Links 按顺序指向 chunk
type FileInfo struct {
	Size int64 `cbor:"s"`
}

// TreeEntry 是目录中的一项，ID 不进 Payload，而是放在同下标的 Link 里
type TreeEntry struct {
	Name string     `cbor:"n"`
	Kind EntryKind  `cbor:"k"`
	Size int64      `cbor:"s"`
	ID   types.Hash `cbor:"-"`
}

type treeInfo struct {
	Entries []TreeEntry `cbor:"e"`
}

// NewChunk 创建叶子节点，Payload 是原始字节
func NewChunk(data []byte) (*Node, error) {
	return NewNode(TypeChunk, nil, data)
}

// NewFile 创建文件索引节点
func NewFile(size int64, chunks []types.Hash) (*Node, error) {
	return NewNode(TypeFile, chunks, FileInfo{Size: size})
}

// NewTree 创建目录节点，调用方负责保证 entries 已按 Name 排序
func NewTree(entries []TreeEntry) (*Node, error) {
	ids := make([]types.Hash, len(entries))
	for i, e := range entries {
		if e.ID.IsZero() {
			return nil, fmt.Errorf("tree entry %q has no id", e.Name)
		}
		ids[i] = e.ID
	}
	return NewNode(TypeTree, ids, treeInfo{Entries: entries})
}

// ChunkData 取出 chunk 节点的原始字节
func ChunkData(n *Node) ([]byte, error) {
	if n.TypeVal != TypeChunk {
		return nil, fmt.Errorf("node %s is a %s, not a chunk", n.id.Short(), n.TypeVal)
	}
	var data []byte
	if err := n.DecodePayload(&data); err != nil {
		return nil, err
	}
	return data, nil
}

// FileSize 读取 file 节点记录的原始文件大小
func FileSize(n *Node) (int64, error) {
	if n.TypeVal != TypeFile {
		return 0, fmt.Errorf("node %s is a %s, not a file", n.id.Short(), n.TypeVal)
	}
	var info FileInfo
	if err := n.DecodePayload(&info); err != nil {
		return 0, err
	}
	return info.Size, nil
}

// TreeEntries 还原目录项，并把 Links 里的 ID 填回去
func TreeEntries(n *Node) ([]TreeEntry, error) {
	if n.TypeVal != TypeTree {
		return nil, fmt.Errorf("node %s is a %s, not a tree", n.id.Short(), n.TypeVal)
	}
	var info treeInfo
	if err := n.DecodePayload(&info); err != nil {
		return nil, err
	}
	if len(info.Entries) != len(n.Links) {
		return nil, fmt.Errorf("tree %s has %d entries but %d links", n.id.Short(), len(info.Entries), len(n.Links))
	}
	for i := range info.Entries {
		info.Entries[i].ID = n.Links[i].Hash
	}
	return info.Entries, nil
}
