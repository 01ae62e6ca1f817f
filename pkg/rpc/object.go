package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const (
	ServiceName = "objloader.v1.ObjectService"

	FetchMethod   = "/" + ServiceName + "/Fetch"
	PutMethod     = "/" + ServiceName + "/Put"
	ResolveMethod = "/" + ServiceName + "/Resolve"
)

// MaxFetchIDs 是单次 Fetch 允许请求的 ID 上限
const MaxFetchIDs = 1000

// FetchRequest 请求一批节点
type FetchRequest struct {
	IDs []string `cbor:"1,keyasint" validate:"required,min=1,max=1000,dive,required"`
}

// FetchResponse 是 Fetch 流中的一帧，每个 ID 对应一帧，顺序不保证
// Error 非空表示这个 ID 取不到 (其余 ID 不受影响)
type FetchResponse struct {
	ID    string `cbor:"1,keyasint"`
	Data  []byte `cbor:"2,keyasint,omitempty"`
	Error string `cbor:"3,keyasint,omitempty"`
}

// Object 是 Put 时上传的一个节点
type Object struct {
	ID   string `cbor:"1,keyasint" validate:"required,len=64,hexadecimal"`
	Data []byte `cbor:"2,keyasint" validate:"required"`
}

type PutRequest struct {
	Objects []Object `cbor:"1,keyasint" validate:"required,min=1,max=1000,dive"`
}

type PutResponse struct {
	Stored int `cbor:"1,keyasint"`
}

// ResolveRequest 把短哈希扩展为完整 ID
type ResolveRequest struct {
	Prefix string `cbor:"1,keyasint" validate:"required,min=4,max=64,hexadecimal"`
}

type ResolveResponse struct {
	ID string `cbor:"1,keyasint"`
}

// =============================================================================
// Server
// =============================================================================

// ObjectServiceServer 是服务端需要实现的接口
type ObjectServiceServer interface {
	Fetch(*FetchRequest, grpc.ServerStreamingServer[FetchResponse]) error
	Put(context.Context, *PutRequest) (*PutResponse, error)
	Resolve(context.Context, *ResolveRequest) (*ResolveResponse, error)
}

func RegisterObjectServiceServer(s grpc.ServiceRegistrar, srv ObjectServiceServer) {
	s.RegisterService(&ObjectServiceDesc, srv)
}

func fetchHandler(srv any, stream grpc.ServerStream) error {
	m := new(FetchRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(ObjectServiceServer).Fetch(m, &grpc.GenericServerStream[FetchRequest, FetchResponse]{ServerStream: stream})
}

func putHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PutRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ObjectServiceServer).Put(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PutMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ObjectServiceServer).Put(ctx, req.(*PutRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func resolveHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ResolveRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ObjectServiceServer).Resolve(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ResolveMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ObjectServiceServer).Resolve(ctx, req.(*ResolveRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ObjectServiceDesc 手写的服务描述，消息用 CBOR 编码
var ObjectServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ObjectServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Put", Handler: putHandler},
		{MethodName: "Resolve", Handler: resolveHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Fetch", Handler: fetchHandler, ServerStreams: true},
	},
	Metadata: "objloader/v1/object",
}

// =============================================================================
// Client
// =============================================================================

type ObjectServiceClient interface {
	Fetch(ctx context.Context, in *FetchRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[FetchResponse], error)
	Put(ctx context.Context, in *PutRequest, opts ...grpc.CallOption) (*PutResponse, error)
	Resolve(ctx context.Context, in *ResolveRequest, opts ...grpc.CallOption) (*ResolveResponse, error)
}

type objectServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewObjectServiceClient(cc grpc.ClientConnInterface) ObjectServiceClient {
	return &objectServiceClient{cc: cc}
}

// callOpts 强制使用 CBOR 编码
func callOpts(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

func (c *objectServiceClient) Fetch(ctx context.Context, in *FetchRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[FetchResponse], error) {
	stream, err := c.cc.NewStream(ctx, &ObjectServiceDesc.Streams[0], FetchMethod, callOpts(opts)...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[FetchRequest, FetchResponse]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

func (c *objectServiceClient) Put(ctx context.Context, in *PutRequest, opts ...grpc.CallOption) (*PutResponse, error) {
	out := new(PutResponse)
	if err := c.cc.Invoke(ctx, PutMethod, in, out, callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *objectServiceClient) Resolve(ctx context.Context, in *ResolveRequest, opts ...grpc.CallOption) (*ResolveResponse, error) {
	out := new(ResolveResponse)
	if err := c.cc.Invoke(ctx, ResolveMethod, in, out, callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}
