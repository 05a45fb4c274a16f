package grpcserver

import (
	"context"

	"google.golang.org/grpc"

	"wsalloc/api/statspb"
)

const serviceName = "wsalloc.v1.Stats"

// New returns a grpc.Server with the Stats codec forced and the
// service registered.
func New(srv StatsServer, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ForceServerCodec(statspb.Codec{}))
	s := grpc.NewServer(opts...)
	Register(s, srv)
	return s
}

// Register attaches the Stats service to an existing server. The
// server must use the statspb codec.
func Register(s grpc.ServiceRegistrar, srv StatsServer) {
	s.RegisterService(&statsServiceDesc, srv)
}

var statsServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*StatsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetUsage", Handler: getUsageHandler},
		{MethodName: "ListLive", Handler: listLiveHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "wsalloc/v1/stats.proto",
}

func getUsageHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(statspb.UsageRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StatsServer).GetUsage(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + serviceName + "/GetUsage",
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StatsServer).GetUsage(ctx, req.(*statspb.UsageRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func listLiveHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(statspb.ListLiveRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StatsServer).ListLive(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + serviceName + "/ListLive",
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StatsServer).ListLive(ctx, req.(*statspb.ListLiveRequest))
	}
	return interceptor(ctx, in, info, handler)
}
