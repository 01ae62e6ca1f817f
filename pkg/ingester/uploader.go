package ingester

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"objloader/pkg/batch"
	"objloader/pkg/core"
	"objloader/pkg/rpc"
	"objloader/pkg/storage"
)

const (
	DefaultUploadBatchSize = 256
	DefaultUploadBatchTime = 100 * time.Millisecond
)

// UploaderConfig 配置远端上传
type UploaderConfig struct {
	BatchSize int // 每个 Put 请求的节点数，上限 rpc.MaxFetchIDs
	BatchTime time.Duration
	Logger    *slog.Logger
}

// Uploader 把节点攒批后通过 Put RPC 写进远端对象服务
// 它实现 storage.Writer，可以直接交给 Ingester
//
// 后台批次失败后，后续的 Put 都会返回第一个错误
type Uploader struct {
	client rpc.ObjectServiceClient
	proc   *batch.Processor[*core.Node]
	logger *slog.Logger

	mu  sync.Mutex
	err error

	stored atomic.Int64
}

var _ storage.Writer = (*Uploader)(nil)

func NewUploader(client rpc.ObjectServiceClient, cfg UploaderConfig) *Uploader {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultUploadBatchSize
	}
	cfg.BatchSize = min(cfg.BatchSize, rpc.MaxFetchIDs)
	if cfg.BatchTime <= 0 {
		cfg.BatchTime = DefaultUploadBatchTime
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	u := &Uploader{client: client, logger: logger}
	u.proc = batch.New(batch.Config{
		BatchSize:    cfg.BatchSize,
		BatchTime:    cfg.BatchTime,
		MaxQueueSize: cfg.BatchSize * 4,
		Logger:       logger,
	}, u.send, func(_ []*core.Node, err error) {
		u.setErr(err)
	})
	return u
}

// Put 把节点交给批处理器；缓冲区满时阻塞
func (u *Uploader) Put(ctx context.Context, n *core.Node) error {
	if err := u.Err(); err != nil {
		return err
	}
	return u.proc.Add(ctx, n)
}

// Flush 立即发送已缓冲的节点
func (u *Uploader) Flush(ctx context.Context) error {
	if err := u.proc.Flush(ctx); err != nil {
		return err
	}
	return u.Err()
}

// Close 发送剩余节点并停止，返回过程中遇到的第一个错误
func (u *Uploader) Close(ctx context.Context) error {
	return errors.Join(u.proc.Close(ctx), u.Err())
}

// Stored 返回服务端确认写入的节点数
func (u *Uploader) Stored() int64 { return u.stored.Load() }

func (u *Uploader) Err() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.err
}

func (u *Uploader) setErr(err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err == nil {
		u.err = err
	}
}

func (u *Uploader) send(ctx context.Context, nodes []*core.Node) error {
	req := &rpc.PutRequest{Objects: make([]rpc.Object, 0, len(nodes))}
	for _, n := range nodes {
		data, err := n.Bytes()
		if err != nil {
			return err
		}
		req.Objects = append(req.Objects, rpc.Object{ID: string(n.ID()), Data: data})
	}

	start := time.Now()
	resp, err := u.client.Put(ctx, req)
	if err != nil {
		return fmt.Errorf("put %d objects: %w", len(nodes), err)
	}
	u.stored.Add(int64(resp.Stored))
	u.logger.Debug("uploaded batch",
		slog.Int("objects", len(nodes)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}
