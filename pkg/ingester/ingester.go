package ingester

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"objloader/pkg/chunker"
	"objloader/pkg/core"
	"objloader/pkg/ignore"
	"objloader/pkg/storage"
	"objloader/pkg/treebuilder"
	"objloader/pkg/types"

	"golang.org/x/sync/errgroup"
)

// ProgressFunc 在每个文件导入完成后被调用，path 是相对路径
type ProgressFunc func(path string, file *core.Node, size int64)

// Ingester 把本地文件或目录转换为内容寻址的 DAG：
// tree -> file -> chunk，所有节点写进 storage.Writer
type Ingester struct {
	w           storage.Writer
	chunker     *chunker.Chunker
	concurrency int
	ignoreRules []string
	progress    ProgressFunc
	logger      *slog.Logger
}

type Option func(*Ingester)

// WithConcurrency 设置同时写入的 chunk 数
func WithConcurrency(n int) Option {
	return func(ing *Ingester) {
		if n > 0 {
			ing.concurrency = n
		}
	}
}

// WithIgnoreRules 追加 gitignore 语法的忽略规则
func WithIgnoreRules(rules ...string) Option {
	return func(ing *Ingester) { ing.ignoreRules = append(ing.ignoreRules, rules...) }
}

func WithProgress(fn ProgressFunc) Option {
	return func(ing *Ingester) { ing.progress = fn }
}

func WithLogger(logger *slog.Logger) Option {
	return func(ing *Ingester) {
		if logger != nil {
			ing.logger = logger
		}
	}
}

func NewIngester(w storage.Writer, opts ...Option) *Ingester {
	ing := &Ingester{
		w:           w,
		chunker:     chunker.NewChunker(),
		concurrency: runtime.NumCPU(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(ing)
	}
	return ing
}

// IngestFile 读取整个流，切块并写入，返回 file 节点
// 数据会整体读进内存，单个文件的大小受内存限制
func (ing *Ingester) IngestFile(ctx context.Context, r io.Reader) (*core.Node, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	// 1. 切分；chunk 并发写入，ID 按下标回填以保持顺序
	cuts := ing.chunker.Cut(data)
	ids := make([]types.Hash, len(cuts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ing.concurrency)
	start := 0
	for i, end := range cuts {
		piece := data[start:end]
		start = end
		g.Go(func() error {
			c, err := core.NewChunk(piece)
			if err != nil {
				return err
			}
			if err := ing.w.Put(gctx, c); err != nil {
				return fmt.Errorf("failed to store chunk %d: %w", i, err)
			}
			ids[i] = c.ID()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// 2. file 节点最后写，它引用的 chunk 此时都已落地
	file, err := core.NewFile(int64(len(data)), ids)
	if err != nil {
		return nil, fmt.Errorf("failed to create file node: %w", err)
	}
	if err := ing.w.Put(ctx, file); err != nil {
		return nil, fmt.Errorf("failed to store file node: %w", err)
	}
	return file, nil
}

// IngestPath 导入一个文件或目录，返回 DAG 的根节点
// 目录会应用默认忽略规则、root 下的 .olignore 和 WithIgnoreRules
func (ing *Ingester) IngestPath(ctx context.Context, root string) (*core.Node, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		file, err := ing.ingestOne(ctx, root)
		if err != nil {
			return nil, err
		}
		ing.report(filepath.Base(root), file, info.Size())
		return file, nil
	}
	return ing.IngestDir(ctx, root)
}

// IngestDir 递归导入目录，返回根 tree 节点
func (ing *Ingester) IngestDir(ctx context.Context, root string) (*core.Node, error) {
	matcher, err := ignore.NewMatcher(root, ing.ignoreRules...)
	if err != nil {
		return nil, fmt.Errorf("failed to load ignore rules: %w", err)
	}
	builder := treebuilder.NewBuilder(ing.w)

	var files, skipped int
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if matcher.Matches(rel) {
			skipped++
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		switch {
		case d.IsDir():
			return builder.AddDir(rel)
		case d.Type().IsRegular():
			info, err := d.Info()
			if err != nil {
				return err
			}
			file, err := ing.ingestOne(ctx, p)
			if err != nil {
				return fmt.Errorf("%s: %w", rel, err)
			}
			files++
			ing.report(rel, file, info.Size())
			return builder.Add(rel, file.ID(), info.Size())
		default:
			// 符号链接、设备文件等不导入
			skipped++
			ing.logger.Debug("skipping non-regular file", slog.String("path", rel))
			return nil
		}
	})
	if err != nil {
		return nil, err
	}

	tree, err := builder.Build(ctx)
	if err != nil {
		return nil, err
	}
	ing.logger.Info("directory ingested",
		slog.String("root", tree.ID().Short()),
		slog.Int("files", files),
		slog.Int("skipped", skipped),
	)
	return tree, nil
}

func (ing *Ingester) ingestOne(ctx context.Context, p string) (*core.Node, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ing.IngestFile(ctx, f)
}

func (ing *Ingester) report(path string, file *core.Node, size int64) {
	if ing.progress != nil {
		ing.progress(path, file, size)
	}
}
