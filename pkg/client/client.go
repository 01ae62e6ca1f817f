package client

import (
	"fmt"
	"time"

	"objloader/pkg/rpc"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

// Client 封装了与对象服务端的连接
type Client struct {
	conn *grpc.ClientConn

	// 公开具体的 Service Client
	Objects rpc.ObjectServiceClient
}

// NewClient 创建并初始化客户端
// 只负责创建对象，不等待连接就绪；extra 可以覆盖默认的 DialOption (比如测试里的 bufconn dialer)
func NewClient(addr string, extra ...grpc.DialOption) (*Client, error) {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(256*1024*1024), // 256MB
			grpc.MaxCallSendMsgSize(256*1024*1024),
			grpc.CallContentSubtype(rpc.CodecName),
		),
		// 保持连接活跃
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             20 * time.Second,
			PermitWithoutStream: true,
		}),
	}
	opts = append(opts, extra...)

	// NewClient 会立即返回，连接在后台进行
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		// 这里的 err 通常只是配置错误（如地址格式不对），网络不通不会在这里报错
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", addr, err)
	}

	return &Client{
		conn:    conn,
		Objects: rpc.NewObjectServiceClient(conn),
	}, nil
}

// Conn 返回底层连接
func (c *Client) Conn() *grpc.ClientConn {
	return c.conn
}

// Close 关闭底层连接
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
