package treebuilder

import (
	"context"
	"fmt"
	"path"
	"slices"
	"strings"

	"objloader/pkg/core"
	"objloader/pkg/storage"
	"objloader/pkg/types"
)

// Builder 把一组 "路径 -> file 节点" 转换为 Merkle Tree
// 同样的文件集合总是得到同样的根 ID
type Builder struct {
	w    storage.Writer
	root *node
}

func NewBuilder(w storage.Writer) *Builder {
	return &Builder{w: w, root: newDirNode("")}
}

// -----------------------------------------------------------------------------
// 内部辅助结构：内存树节点
// -----------------------------------------------------------------------------

type node struct {
	name     string
	isDir    bool
	children map[string]*node // 仅目录有效
	id       types.Hash       // 仅文件有效
	size     int64
}

func newDirNode(name string) *node {
	return &node{
		name:     name,
		isDir:    true,
		children: make(map[string]*node),
	}
}

// Add 登记一个文件，p 是 slash 分隔的相对路径，例如 "a/b/c.txt"
// 中间目录会被自动创建；同一路径再次 Add 会覆盖
func (b *Builder) Add(p string, id types.Hash, size int64) error {
	p = path.Clean(strings.TrimPrefix(p, "/"))
	if p == "." || p == "" {
		return fmt.Errorf("invalid file path %q", p)
	}
	if id.IsZero() {
		return fmt.Errorf("file %q has no id", p)
	}

	parts := strings.Split(p, "/")
	current := b.root
	for _, part := range parts[:len(parts)-1] {
		child, exists := current.children[part]
		if !exists {
			child = newDirNode(part)
			current.children[part] = child
		}
		if !child.isDir {
			return fmt.Errorf("path %q: %q is a file", p, part)
		}
		current = child
	}

	name := parts[len(parts)-1]
	if existing, ok := current.children[name]; ok && existing.isDir {
		return fmt.Errorf("path %q is a directory", p)
	}
	current.children[name] = &node{name: name, id: id, size: size}
	return nil
}

// AddDir 登记一个 (可能为空的) 目录
func (b *Builder) AddDir(p string) error {
	p = path.Clean(strings.TrimPrefix(p, "/"))
	if p == "." || p == "" {
		return nil
	}
	current := b.root
	for _, part := range strings.Split(p, "/") {
		child, exists := current.children[part]
		if !exists {
			child = newDirNode(part)
			current.children[part] = child
		}
		if !child.isDir {
			return fmt.Errorf("path %q: %q is a file", p, part)
		}
		current = child
	}
	return nil
}

// Build 自底向上写出所有 tree 节点，返回根 tree
func (b *Builder) Build(ctx context.Context) (*core.Node, error) {
	return b.writeNode(ctx, b.root)
}

// writeNode 递归写出目录；子项按名字排序，保证哈希确定
func (b *Builder) writeNode(ctx context.Context, n *node) (*core.Node, error) {
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	slices.Sort(names)

	entries := make([]core.TreeEntry, 0, len(names))
	for _, name := range names {
		child := n.children[name]
		if !child.isDir {
			entries = append(entries, core.TreeEntry{
				Name: name,
				Kind: core.EntryFile,
				Size: child.size,
				ID:   child.id,
			})
			continue
		}

		sub, err := b.writeNode(ctx, child)
		if err != nil {
			return nil, err
		}
		// 目录的 Size 是其下所有文件大小之和
		entries = append(entries, core.TreeEntry{
			Name: name,
			Kind: core.EntryDir,
			Size: child.totalSize(),
			ID:   sub.ID(),
		})
	}

	tree, err := core.NewTree(entries)
	if err != nil {
		return nil, fmt.Errorf("failed to create tree object: %w", err)
	}
	if err := b.w.Put(ctx, tree); err != nil {
		return nil, fmt.Errorf("failed to store tree: %w", err)
	}
	return tree, nil
}

func (n *node) totalSize() int64 {
	if !n.isDir {
		return n.size
	}
	var sum int64
	for _, c := range n.children {
		sum += c.totalSize()
	}
	return sum
}
