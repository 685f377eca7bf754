package pb

import (
	context "context"

	grpc "google.golang.org/grpc"
	codes "google.golang.org/grpc/codes"
	status "google.golang.org/grpc/status"
	structpb "google.golang.org/protobuf/types/known/structpb"
)

const _ = grpc.SupportPackageIsVersion9

const (
	ExecutionContext_Exchange_FullMethodName = "/codeshift.isolate.v1.ExecutionContext/Exchange"
)

type ExecutionContextClient interface {
	Exchange(ctx context.Context, opts ...grpc.CallOption) (grpc.BidiStreamingClient[structpb.Struct, structpb.Struct], error)
}

type executionContextClient struct {
	cc grpc.ClientConnInterface
}

func NewExecutionContextClient(cc grpc.ClientConnInterface) ExecutionContextClient {
	return &executionContextClient{cc}
}

func (c *executionContextClient) Exchange(ctx context.Context, opts ...grpc.CallOption) (grpc.BidiStreamingClient[structpb.Struct, structpb.Struct], error) {
	cOpts := append([]grpc.CallOption{grpc.StaticMethod()}, opts...)
	stream, err := c.cc.NewStream(ctx, &ExecutionContext_ServiceDesc.Streams[0], ExecutionContext_Exchange_FullMethodName, cOpts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}
	return x, nil
}

type ExecutionContext_ExchangeClient = grpc.BidiStreamingClient[structpb.Struct, structpb.Struct]

type ExecutionContextServer interface {
	Exchange(grpc.BidiStreamingServer[structpb.Struct, structpb.Struct]) error
}

type UnimplementedExecutionContextServer struct{}

func (UnimplementedExecutionContextServer) Exchange(grpc.BidiStreamingServer[structpb.Struct, structpb.Struct]) error {
	return status.Errorf(codes.Unimplemented, "method Exchange not implemented")
}

func RegisterExecutionContextServer(s grpc.ServiceRegistrar, srv ExecutionContextServer) {
	s.RegisterService(&ExecutionContext_ServiceDesc, srv)
}

func _ExecutionContext_Exchange_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(ExecutionContextServer).Exchange(&grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

type ExecutionContext_ExchangeServer = grpc.BidiStreamingServer[structpb.Struct, structpb.Struct]

var ExecutionContext_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "codeshift.isolate.v1.ExecutionContext",
	HandlerType: (*ExecutionContextServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Exchange",
			Handler:       _ExecutionContext_Exchange_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "context.proto",
}
