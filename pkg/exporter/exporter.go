package exporter

import (
	"context"
	"fmt"
	"io"

	"objloader/pkg/cache"
	"objloader/pkg/core"
	"objloader/pkg/types"
)

// lookupBatch 是每次 GetAll 查询的 chunk 数
const lookupBatch = 256

// Exporter 从本地缓存读取已拉取的节点
type Exporter struct {
	backend cache.Backend
}

func NewExporter(backend cache.Backend) *Exporter {
	return &Exporter{backend: backend}
}

// Node 读取一个缓存节点；不存在时返回 cache.ErrNotCached
func (e *Exporter) Node(ctx context.Context, id types.Hash) (*core.Node, error) {
	items, err := e.backend.GetAll(ctx, []types.Hash{id})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 || items[0] == nil {
		return nil, fmt.Errorf("%w: %s", cache.ErrNotCached, id.Short())
	}
	return items[0].Base, nil
}

// WriteRaw 把 chunk 的原始字节或 file 的完整内容写到 w
func (e *Exporter) WriteRaw(ctx context.Context, n *core.Node, w io.Writer) error {
	switch n.Type() {
	case core.TypeChunk:
		data, err := core.ChunkData(n)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case core.TypeFile:
		return e.ExportFile(ctx, n, w)
	default:
		return fmt.Errorf("node %s is a %s, raw output needs a chunk or file", n.ID().Short(), n.Type())
	}
}

// ExportFile 按 Links 顺序把 file 节点的所有 chunk 写到 w
// 任何一个 chunk 不在缓存里都会失败 (先 pull 再导出)
func (e *Exporter) ExportFile(ctx context.Context, file *core.Node, w io.Writer) error {
	want, err := core.FileSize(file)
	if err != nil {
		return err
	}

	ids := file.Children()
	var written int64
	for start := 0; start < len(ids); start += lookupBatch {
		batch := ids[start:min(start+lookupBatch, len(ids))]
		items, err := e.backend.GetAll(ctx, batch)
		if err != nil {
			return fmt.Errorf("failed to read chunks: %w", err)
		}
		for i, it := range items {
			if it == nil {
				return fmt.Errorf("%w: chunk %d (%s)", cache.ErrNotCached, start+i, batch[i].Short())
			}
			data, err := core.ChunkData(it.Base)
			if err != nil {
				return err
			}
			n, err := w.Write(data)
			if err != nil {
				return fmt.Errorf("failed to write chunk %d data: %w", start+i, err)
			}
			written += int64(n)
		}
	}

	if written != want {
		return fmt.Errorf("file %s: wrote %d bytes, expected %d", file.ID().Short(), written, want)
	}
	return nil
}
