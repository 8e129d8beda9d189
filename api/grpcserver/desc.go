package grpcserver

import (
	"context"

	"google.golang.org/grpc"

	"github.com/gnuser/red-envelope-server/api/view"
	"github.com/gnuser/red-envelope-server/service"
)

const ServiceName = "matchengine.Engine"

// EngineServer is the command surface. Every method maps onto one
// OrderService command.
type EngineServer interface {
	PutLimit(context.Context, *service.LimitOrderRequest) (*view.Order, error)
	PutMarket(context.Context, *service.MarketOrderRequest) (*view.Order, error)
	Cancel(context.Context, *service.CancelRequest) (*view.Order, error)
	CancelBatch(context.Context, *service.CancelBatchRequest) (*CancelBatchReply, error)
	PutEnvelope(context.Context, *service.EnvelopePutRequest) (*view.Envelope, error)
	OpenEnvelope(context.Context, *service.EnvelopeOpenRequest) (*OpenEnvelopeReply, error)
	CancelEnvelope(context.Context, *EnvelopeCancelRequest) (*view.Envelope, error)
}

// FullMethod is the path a client invokes for method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unary[Req, Reply any](name string, call func(EngineServer, context.Context, *Req) (*Reply, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(EngineServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(EngineServer), ctx, req.(*Req))
			})
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EngineServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("PutLimit", EngineServer.PutLimit),
		unary("PutMarket", EngineServer.PutMarket),
		unary("Cancel", EngineServer.Cancel),
		unary("CancelBatch", EngineServer.CancelBatch),
		unary("PutEnvelope", EngineServer.PutEnvelope),
		unary("OpenEnvelope", EngineServer.OpenEnvelope),
		unary("CancelEnvelope", EngineServer.CancelEnvelope),
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterEngineServer(s grpc.ServiceRegistrar, srv EngineServer) {
	s.RegisterService(&serviceDesc, srv)
}
