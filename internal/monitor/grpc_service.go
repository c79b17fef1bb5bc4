package monitor

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// MonitorServiceName is the fully qualified gRPC service name
const MonitorServiceName = "simtune.v1.Monitor"

const (
	getProgressMethod = "/" + MonitorServiceName + "/GetProgress"
	stopRunMethod     = "/" + MonitorServiceName + "/StopRun"
)

// MonitorServer is the server API for the simtune.v1.Monitor service.
// Messages are protobuf well-known types so no generated code is needed.
type MonitorServer interface {
	GetProgress(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	StopRun(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
}

// RegisterMonitorServer registers srv on s
func RegisterMonitorServer(s grpc.ServiceRegistrar, srv MonitorServer) {
	s.RegisterService(&MonitorServiceDesc, srv)
}

func getProgressHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MonitorServer).GetProgress(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getProgressMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MonitorServer).GetProgress(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func stopRunHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MonitorServer).StopRun(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: stopRunMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MonitorServer).StopRun(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// MonitorServiceDesc is the grpc.ServiceDesc for the simtune.v1.Monitor service
var MonitorServiceDesc = grpc.ServiceDesc{
	ServiceName: MonitorServiceName,
	HandlerType: (*MonitorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetProgress", Handler: getProgressHandler},
		{MethodName: "StopRun", Handler: stopRunHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "simtune/v1/monitor.proto",
}

// MonitorClient is the client API for the simtune.v1.Monitor service
type MonitorClient struct {
	cc grpc.ClientConnInterface
}

func NewMonitorClient(cc grpc.ClientConnInterface) *MonitorClient {
	return &MonitorClient{cc: cc}
}

func (c *MonitorClient) GetProgress(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getProgressMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *MonitorClient) StopRun(ctx context.Context, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, stopRunMethod, &emptypb.Empty{}, new(emptypb.Empty), opts...)
}
