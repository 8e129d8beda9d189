package grpcserver

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/gnuser/red-envelope-server/api/view"
	"github.com/gnuser/red-envelope-server/domain/num"
	"github.com/gnuser/red-envelope-server/infra/logging"
	"github.com/gnuser/red-envelope-server/infra/metrics"
	"github.com/gnuser/red-envelope-server/service"
)

// ErrorCodeKey is the trailer that carries the numeric service.Code of
// a failed call.
const ErrorCodeKey = "x-error-code"

type EnvelopeCancelRequest struct {
	ID uint64 `json:"id"`
}

type OpenEnvelopeReply struct {
	Amount   num.Decimal   `json:"amount"`
	Envelope view.Envelope `json:"envelope"`
}

type CancelResult struct {
	OrderID uint64       `json:"order_id"`
	Code    service.Code `json:"code"`
	Message string       `json:"message,omitempty"`
	Order   *view.Order  `json:"order,omitempty"`
}

type CancelBatchReply struct {
	Results []CancelResult `json:"results"`
}

// Server adapts OrderService to gRPC.
type Server struct {
	log *logging.Logger
	svc *service.OrderService
}

func NewServer(log *logging.Logger, svc *service.OrderService) *Server {
	return &Server{log: log.Named("grpc"), svc: svc}
}

// NewGRPCServer builds a grpc.Server with s registered and the
// logging and metrics interceptor installed.
func NewGRPCServer(s *Server, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(s.intercept))
	g := grpc.NewServer(opts...)
	RegisterEngineServer(g, s)
	return g
}

func (s *Server) intercept(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	method := info.FullMethod[strings.LastIndex(info.FullMethod, "/")+1:]
	defer metrics.StartAPIRequestAndTime("grpc", method)()

	resp, err := handler(ctx, req)
	if err != nil {
		s.log.Debug("call failed", zap.String("method", method), zap.Error(err))
	}
	return resp, err
}

// -------------------- Commands --------------------

func (s *Server) PutLimit(ctx context.Context, req *service.LimitOrderRequest) (*view.Order, error) {
	o, err := s.svc.PutLimit(*req)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	out := view.FromOrder(o)
	return &out, nil
}

func (s *Server) PutMarket(ctx context.Context, req *service.MarketOrderRequest) (*view.Order, error) {
	o, err := s.svc.PutMarket(*req)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	out := view.FromOrder(o)
	return &out, nil
}

func (s *Server) Cancel(ctx context.Context, req *service.CancelRequest) (*view.Order, error) {
	o, err := s.svc.Cancel(*req)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	out := view.FromOrder(o)
	return &out, nil
}

func (s *Server) CancelBatch(ctx context.Context, req *service.CancelBatchRequest) (*CancelBatchReply, error) {
	res, err := s.svc.CancelBatch(*req)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	out := &CancelBatchReply{Results: make([]CancelResult, len(res))}
	for i, r := range res {
		out.Results[i] = CancelResult{OrderID: r.OrderID, Code: r.Code}
		if r.Order != nil {
			o := view.FromOrder(*r.Order)
			out.Results[i].Order = &o
		} else {
			out.Results[i].Message = r.Code.String()
		}
	}
	return out, nil
}

func (s *Server) PutEnvelope(ctx context.Context, req *service.EnvelopePutRequest) (*view.Envelope, error) {
	e, err := s.svc.PutEnvelope(*req)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	out := view.FromEnvelope(e)
	return &out, nil
}

func (s *Server) OpenEnvelope(ctx context.Context, req *service.EnvelopeOpenRequest) (*OpenEnvelopeReply, error) {
	amount, e, err := s.svc.OpenEnvelope(*req)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return &OpenEnvelopeReply{Amount: amount, Envelope: view.FromEnvelope(e)}, nil
}

func (s *Server) CancelEnvelope(ctx context.Context, req *EnvelopeCancelRequest) (*view.Envelope, error) {
	e, err := s.svc.CancelEnvelope(req.ID)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	out := view.FromEnvelope(e)
	return &out, nil
}

// -------------------- Errors --------------------

// toStatus maps a service error onto a gRPC status and sets the
// service code trailer.
func toStatus(ctx context.Context, err error) error {
	code := service.CodeOf(err)
	_ = grpc.SetTrailer(ctx, metadata.Pairs(ErrorCodeKey, strconv.Itoa(int(code))))
	return status.Error(grpcCode(code), err.Error())
}

func grpcCode(c service.Code) codes.Code {
	switch c {
	case service.CodeOK:
		return codes.OK
	case service.CodeInvalidArgument, service.CodeTokenNotExist, service.CodeAmountTooSmall:
		return codes.InvalidArgument
	case service.CodeMarketNotFound, service.CodeOrderNotFound, service.CodeEnvelopeNotFound:
		return codes.NotFound
	case service.CodeBalanceNotEnough, service.CodeNoCounterparty, service.CodeRateZero:
		return codes.FailedPrecondition
	case service.CodeUserNotMatch:
		return codes.PermissionDenied
	default:
		return codes.Internal
	}
}

// CodeFromTrailer reads the service code a failed call left in its
// trailer.
func CodeFromTrailer(md metadata.MD) (service.Code, bool) {
	v := md.Get(ErrorCodeKey)
	if len(v) == 0 {
		return service.CodeOK, false
	}
	n, err := strconv.Atoi(v[0])
	if err != nil {
		return service.CodeOK, false
	}
	return service.Code(n), true
}
