package v1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// StatusServiceClient is the client API for the status service.
type StatusServiceClient interface {
	// GetStatus returns the watcher status snapshot.
	GetStatus(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	// RequestUpdate asks the watcher to install the pending update.
	RequestUpdate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error)
}

type statusServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewStatusServiceClient creates a client bound to cc.
//
//nolint:ireturn // Mirrors generated constructors.
func NewStatusServiceClient(cc grpc.ClientConnInterface) StatusServiceClient {
	return &statusServiceClient{cc: cc}
}

func (c *statusServiceClient) GetStatus(
	ctx context.Context,
	in *emptypb.Empty,
	opts ...grpc.CallOption,
) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, StatusService_GetStatus_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *statusServiceClient) RequestUpdate(
	ctx context.Context,
	in *structpb.Struct,
	opts ...grpc.CallOption,
) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, StatusService_RequestUpdate_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

// StatusServiceServer is the server API for the status service.
type StatusServiceServer interface {
	GetStatus(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
	RequestUpdate(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error)
	mustEmbedUnimplementedStatusServiceServer()
}

// UnimplementedStatusServiceServer must be embedded by implementations.
type UnimplementedStatusServiceServer struct{}

// GetStatus implements StatusServiceServer.
func (UnimplementedStatusServiceServer) GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetStatus not implemented")
}

// RequestUpdate implements StatusServiceServer.
func (UnimplementedStatusServiceServer) RequestUpdate(context.Context, *structpb.Struct) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "method RequestUpdate not implemented")
}

func (UnimplementedStatusServiceServer) mustEmbedUnimplementedStatusServiceServer() {}

// RegisterStatusServiceServer registers srv on s.
func RegisterStatusServiceServer(s grpc.ServiceRegistrar, srv StatusServiceServer) {
	s.RegisterService(&StatusService_ServiceDesc, srv)
}

//nolint:revive // Generated-style handler name.
func _StatusService_GetStatus_Handler(
	srv any,
	ctx context.Context,
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}

	server, _ := srv.(StatusServiceServer)
	if interceptor == nil {
		return server.GetStatus(ctx, in)
	}

	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: StatusService_GetStatus_FullMethodName,
	}

	handler := func(ctx context.Context, req any) (any, error) {
		request, _ := req.(*emptypb.Empty)
		return server.GetStatus(ctx, request)
	}

	return interceptor(ctx, in, info, handler)
}

//nolint:revive // Generated-style handler name.
func _StatusService_RequestUpdate_Handler(
	srv any,
	ctx context.Context,
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}

	server, _ := srv.(StatusServiceServer)
	if interceptor == nil {
		return server.RequestUpdate(ctx, in)
	}

	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: StatusService_RequestUpdate_FullMethodName,
	}

	handler := func(ctx context.Context, req any) (any, error) {
		request, _ := req.(*structpb.Struct)
		return server.RequestUpdate(ctx, request)
	}

	return interceptor(ctx, in, info, handler)
}

// StatusService_ServiceDesc describes the status service for grpc.RegisterService.
//
//nolint:revive,stylecheck,gochecknoglobals // Generated-style descriptor.
var StatusService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: StatusServiceName,
	HandlerType: (*StatusServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetStatus",
			Handler:    _StatusService_GetStatus_Handler,
		},
		{
			MethodName: "RequestUpdate",
			Handler:    _StatusService_RequestUpdate_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "flatpakupdater/v1/status.proto",
}
