package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"objloader/pkg/core"
	"objloader/pkg/rpc"
	"objloader/pkg/storage"
	"objloader/pkg/types"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultReadConcurrency 是 Fetch 时并发读取存储的上限
const DefaultReadConcurrency = 8

// ObjectService 把 storage.Store 暴露为 gRPC 对象服务
type ObjectService struct {
	store       storage.Store
	validate    *validator.Validate
	concurrency int
	logger      *slog.Logger
}

var _ rpc.ObjectServiceServer = (*ObjectService)(nil)

type Option func(*ObjectService)

func WithConcurrency(n int) Option {
	return func(s *ObjectService) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *ObjectService) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewObjectService(store storage.Store, opts ...Option) *ObjectService {
	s := &ObjectService{
		store:       store,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		concurrency: DefaultReadConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// 1. Fetch (Server-Side Streaming)
// =============================================================================

// Fetch 并发读取请求的节点并逐个推送
// 单个 ID 的失败写进该帧的 Error，不中断整个流；结果按读完的顺序发送
func (s *ObjectService) Fetch(req *rpc.FetchRequest, stream grpc.ServerStreamingServer[rpc.FetchResponse]) error {
	// --- Step 1: 参数校验 ---
	if err := s.validate.Struct(req); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	ctx := stream.Context()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	// stream.Send 不能并发调用
	var sendMu sync.Mutex

	// --- Step 2: 并发读取 + 串行发送 ---
	for _, raw := range req.IDs {
		id := types.Hash(raw)
		g.Go(func() error {
			resp := s.load(gctx, id)

			sendMu.Lock()
			defer sendMu.Unlock()
			if err := stream.Send(resp); err != nil {
				return fmt.Errorf("grpc send failed: %w", err)
			}
			return nil
		})
	}

	// --- Step 3: 错误处理 ---
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return status.FromContextError(ctx.Err()).Err()
		}
		return status.Errorf(codes.Unavailable, "fetch aborted: %v", err)
	}

	s.logger.Debug("fetch served", slog.Int("ids", len(req.IDs)))
	return nil
}

func (s *ObjectService) load(ctx context.Context, id types.Hash) *rpc.FetchResponse {
	resp := &rpc.FetchResponse{ID: string(id)}

	rc, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			resp.Error = "not found"
		} else {
			s.logger.Warn("store read failed", slog.String("id", id.Short()), slog.Any("error", err))
			resp.Error = err.Error()
		}
		return resp
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	resp.Data = data
	return resp
}

// =============================================================================
// 2. Put (Unary) with Integrity Check
// =============================================================================

// Put 接收一批节点，逐个校验内容寻址后落盘
func (s *ObjectService) Put(ctx context.Context, req *rpc.PutRequest) (*rpc.PutResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	// 1. 先全部解码 + 校验，任何一个不合法都整批拒绝
	nodes := make([]*core.Node, 0, len(req.Objects))
	for _, obj := range req.Objects {
		n, err := core.DecodeNode(types.Hash(obj.ID), obj.Data)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "decode %s: %v", types.Hash(obj.ID).Short(), err)
		}
		if err := n.Verify(); err != nil {
			// 数据在传输过程中损坏，或者客户端撒谎了
			return nil, status.Errorf(codes.DataLoss, "integrity check failed: %v", err)
		}
		nodes = append(nodes, n)
	}

	// 2. 写入存储 (Store 自身幂等)
	for _, n := range nodes {
		if err := s.store.Put(ctx, n); err != nil {
			return nil, status.Errorf(codes.Internal, "store put %s: %v", n.ID().Short(), err)
		}
	}

	return &rpc.PutResponse{Stored: len(nodes)}, nil
}

// =============================================================================
// 3. Resolve (Unary)
// =============================================================================

// Resolve 把短哈希扩展为完整 ID
func (s *ObjectService) Resolve(ctx context.Context, req *rpc.ResolveRequest) (*rpc.ResolveResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	id, err := s.store.ExpandHash(ctx, req.Prefix)
	if err != nil {
		// 映射存储层错误到 gRPC 状态码
		if errors.Is(err, storage.ErrNotFound) {
			return nil, status.Errorf(codes.NotFound, "hash prefix %s not found", req.Prefix)
		}
		if errors.Is(err, storage.ErrAmbiguousHash) {
			return nil, status.Errorf(codes.InvalidArgument, "hash prefix %s is ambiguous", req.Prefix)
		}
		return nil, status.Errorf(codes.Internal, "hash expansion failed: %v", err)
	}
	return &rpc.ResolveResponse{ID: string(id)}, nil
}
