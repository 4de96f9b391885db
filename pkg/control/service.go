package control

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "launchpad.Launchpad"

const (
	methodStart             = "Start"
	methodStop              = "Stop"
	methodForceStop         = "ForceStop"
	methodDeploy            = "Deploy"
	methodStartAll          = "StartAll"
	methodStatus            = "Status"
	methodHistory           = "History"
	methodListApplications  = "ListApplications"
	methodAddApplication    = "AddApplication"
	methodUpdateApplication = "UpdateApplication"
	methodDeleteApplication = "DeleteApplication"
	methodAddSystem         = "AddSystem"
	methodUpdateSystem      = "UpdateSystem"
	methodDeleteSystem      = "DeleteSystem"
	streamEvents            = "Events"
)

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// launchpadServer is the handler type the service descriptor dispatches to
type launchpadServer interface {
	serve() *grpcServerHandler
}

// unary builds a method descriptor decoding Req and dispatching to call
func unary[Req any](method string, call func(h *grpcServerHandler, ctx context.Context, req *Req) (interface{}, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			h := srv.(launchpadServer).serve()
			if interceptor == nil {
				return call(h, ctx, req)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod(method),
			}
			return interceptor(ctx, req, info, func(ctx context.Context, r interface{}) (interface{}, error) {
				return call(h, ctx, r.(*Req))
			})
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*launchpadServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(methodStart, (*grpcServerHandler).start),
		unary(methodStop, (*grpcServerHandler).stop),
		unary(methodForceStop, (*grpcServerHandler).forceStop),
		unary(methodDeploy, (*grpcServerHandler).deploy),
		unary(methodStartAll, (*grpcServerHandler).startAll),
		unary(methodStatus, (*grpcServerHandler).status),
		unary(methodHistory, (*grpcServerHandler).history),
		unary(methodListApplications, (*grpcServerHandler).listApplications),
		unary(methodAddApplication, (*grpcServerHandler).addApplication),
		unary(methodUpdateApplication, (*grpcServerHandler).updateApplication),
		unary(methodDeleteApplication, (*grpcServerHandler).deleteApplication),
		unary(methodAddSystem, (*grpcServerHandler).addSystem),
		unary(methodUpdateSystem, (*grpcServerHandler).updateSystem),
		unary(methodDeleteSystem, (*grpcServerHandler).deleteSystem),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName: streamEvents,
			Handler: func(srv interface{}, stream grpc.ServerStream) error {
				return srv.(launchpadServer).serve().events(stream)
			},
			ServerStreams: true,
		},
	},
}
