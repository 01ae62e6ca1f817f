package server

import (
	"log/slog"
	"time"

	"objloader/pkg/rpc"
	"objloader/pkg/service"
	"objloader/pkg/storage"

	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
)

// Config 服务端参数
type Config struct {
	MaxRecvMsgSize  int
	MaxSendMsgSize  int
	ReadConcurrency int
	Logger          *slog.Logger
}

// New 组装一个挂好拦截器和对象服务的 gRPC Server
// Recovery 放在最外层，Logging 在内层，保证 panic 也能被记录
func New(store storage.Store, cfg Config) *grpc.Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRecvMsgSize <= 0 {
		cfg.MaxRecvMsgSize = 256 * 1024 * 1024
	}
	if cfg.MaxSendMsgSize <= 0 {
		cfg.MaxSendMsgSize = 256 * 1024 * 1024
	}

	s := grpc.NewServer(
		grpc.MaxRecvMsgSize(cfg.MaxRecvMsgSize),
		grpc.MaxSendMsgSize(cfg.MaxSendMsgSize),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.ChainUnaryInterceptor(
			UnaryRecoveryInterceptor(logger),
			UnaryLoggingInterceptor(logger),
		),
		grpc.ChainStreamInterceptor(
			StreamRecoveryInterceptor(logger),
			StreamLoggingInterceptor(logger),
		),
	)

	svc := service.NewObjectService(store,
		service.WithConcurrency(cfg.ReadConcurrency),
		service.WithLogger(logger),
	)
	rpc.RegisterObjectServiceServer(s, svc)
	return s
}
