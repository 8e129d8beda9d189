package grpcserver

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/gnuser/red-envelope-server/api/view"
	"github.com/gnuser/red-envelope-server/domain/envelope"
	"github.com/gnuser/red-envelope-server/domain/ledger"
	"github.com/gnuser/red-envelope-server/domain/matching"
	"github.com/gnuser/red-envelope-server/domain/num"
	"github.com/gnuser/red-envelope-server/domain/orderbook"
	"github.com/gnuser/red-envelope-server/infra/balance"
	"github.com/gnuser/red-envelope-server/infra/logging"
	"github.com/gnuser/red-envelope-server/service"
)

type nopEnvelopes struct{}

func (nopEnvelopes) EnvelopeHistory(envelope.Row) error                        { return nil }
func (nopEnvelopes) EnvelopeEvent(envelope.EventKind, envelope.Envelope) error { return nil }

func dial(t *testing.T) *grpc.ClientConn {
	t.Helper()
	log := logging.NewTestLogger()
	l := balance.NewMemory(map[string]int{"BTC": 8, "CNY": 8})
	m, err := orderbook.NewMarket(orderbook.MarketConfig{
		Name: "BTCCNY", Stock: "BTC", Money: "CNY",
		StockPrec: 4, MoneyPrec: 2, FeePrec: 4, MinAmount: num.MustDecimal("0.001"),
	}, l)
	require.NoError(t, err)
	e := matching.New(log, l)
	e.AddMarket(m)
	for user, asset := range map[uint32]string{1: "BTC", 2: "CNY"} {
		_, err := l.Add(user, ledger.Available, asset, num.DecimalFromInt(1000))
		require.NoError(t, err)
	}
	svc := service.NewOrderService(log, e, envelope.NewStore(log, l, nopEnvelopes{}), l, nil)

	lis := bufconn.Listen(1 << 20)
	g := NewGRPCServer(NewServer(log, svc))
	go func() { _ = g.Serve(lis) }()
	t.Cleanup(g.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestPutLimitAndCancel(t *testing.T) {
	conn := dial(t)
	ctx := context.Background()

	var o view.Order
	err := conn.Invoke(ctx, FullMethod("PutLimit"), &service.LimitOrderRequest{
		UserID: 1, Market: "BTCCNY", Side: orderbook.Ask, Amount: "1.5", Price: "100",
	}, &o)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), o.ID)
	assert.True(t, o.Left.Equal(num.MustDecimal("1.5")))

	var batch CancelBatchReply
	err = conn.Invoke(ctx, FullMethod("CancelBatch"), &service.CancelBatchRequest{
		UserID: 1, Market: "BTCCNY", OrderIDs: []uint64{o.ID, 42},
	}, &batch)
	require.NoError(t, err)
	require.Len(t, batch.Results, 2)
	require.NotNil(t, batch.Results[0].Order)
	assert.Equal(t, service.CodeOK, batch.Results[0].Code)
	assert.Equal(t, service.CodeOrderNotFound, batch.Results[1].Code)
	assert.Equal(t, "order not found", batch.Results[1].Message)
}

func TestErrorsCarryCode(t *testing.T) {
	conn := dial(t)

	var md metadata.MD
	var o view.Order
	err := conn.Invoke(context.Background(), FullMethod("PutLimit"), &service.LimitOrderRequest{
		UserID: 1, Market: "ETHCNY", Side: orderbook.Ask, Amount: "1", Price: "1",
	}, &o, grpc.Trailer(&md))
	require.Error(t, err)
	assert.Equal(t, codes.NotFound, status.Code(err))

	code, ok := CodeFromTrailer(md)
	require.True(t, ok)
	assert.Equal(t, service.CodeMarketNotFound, code)
}

func TestEnvelopeCommands(t *testing.T) {
	conn := dial(t)
	ctx := context.Background()

	var e view.Envelope
	require.NoError(t, conn.Invoke(ctx, FullMethod("PutEnvelope"), &service.EnvelopePutRequest{
		UserID: 2, Asset: "CNY", Supply: "10", Share: 2, Type: envelope.Average,
	}, &e))
	assert.Equal(t, 2, e.Share)

	var opened OpenEnvelopeReply
	require.NoError(t, conn.Invoke(ctx, FullMethod("OpenEnvelope"), &service.EnvelopeOpenRequest{
		UserID: 3, Asset: "CNY", EnvelopeID: e.ID,
	}, &opened))
	assert.True(t, opened.Amount.Equal(num.DecimalFromInt(5)))
	assert.Equal(t, 1, opened.Envelope.Count)

	var cancelled view.Envelope
	require.NoError(t, conn.Invoke(ctx, FullMethod("CancelEnvelope"), &EnvelopeCancelRequest{ID: e.ID}, &cancelled))
	assert.True(t, cancelled.Leave.Equal(num.DecimalFromInt(5)))

	err := conn.Invoke(ctx, FullMethod("CancelEnvelope"), &EnvelopeCancelRequest{ID: e.ID}, &cancelled)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestGRPCCodeMapping(t *testing.T) {
	assert.Equal(t, codes.InvalidArgument, grpcCode(service.CodeAmountTooSmall))
	assert.Equal(t, codes.FailedPrecondition, grpcCode(service.CodeBalanceNotEnough))
	assert.Equal(t, codes.PermissionDenied, grpcCode(service.CodeUserNotMatch))
	assert.Equal(t, codes.Internal, grpcCode(service.CodeInternal))
}
