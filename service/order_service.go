package service

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/gnuser/red-envelope-server/domain/envelope"
	"github.com/gnuser/red-envelope-server/domain/matching"
	"github.com/gnuser/red-envelope-server/domain/num"
	"github.com/gnuser/red-envelope-server/domain/orderbook"
	"github.com/gnuser/red-envelope-server/infra/logging"
	"github.com/gnuser/red-envelope-server/infra/metrics"
	"github.com/gnuser/red-envelope-server/infra/sequence"
	entrywal "github.com/gnuser/red-envelope-server/infra/wal/entry"
)

/*
OrderService is the ONLY write entry point into the system.

All coordination between:
- domain (matching engine, envelope store)
- infra (operation log, price store, metrics)
- snapshot
happens here. One mutex serializes every command and query, which is
what makes the engine single-writer.
*/

// Journal is the durable operation log.
type Journal interface {
	Append(*entrywal.Record) error
}

// PriceStore persists last trade prices outside the process.
type PriceStore interface {
	SetLast(ctx context.Context, market string, price num.Decimal) error
}

type OrderService struct {
	mu sync.Mutex

	log       *logging.Logger
	engine    *matching.Engine
	envelopes *envelope.Store
	assets    orderbook.AssetBook

	journal Journal
	seq     *sequence.Sequencer
	prices  PriceStore
	tokens  map[string]struct{}
	clock   func() float64
}

type Option func(*OrderService)

func WithPriceStore(p PriceStore) Option {
	return func(s *OrderService) { s.prices = p }
}

// WithDiscountTokens restricts fee tokens to the given assets. Without
// it any known asset is accepted.
func WithDiscountTokens(tokens ...string) Option {
	return func(s *OrderService) {
		for _, t := range tokens {
			s.tokens[t] = struct{}{}
		}
	}
}

// WithClock overrides the command clock, in seconds.
func WithClock(clock func() float64) Option {
	return func(s *OrderService) { s.clock = clock }
}

// NewOrderService wires all dependencies.
// No globals. No magic.
func NewOrderService(
	log *logging.Logger,
	engine *matching.Engine,
	envelopes *envelope.Store,
	assets orderbook.AssetBook,
	journal Journal,
	opts ...Option,
) *OrderService {
	s := &OrderService{
		log:       log.Named("service"),
		engine:    engine,
		envelopes: envelopes,
		assets:    assets,
		journal:   journal,
		seq:       sequence.New(0),
		tokens:    make(map[string]struct{}),
		clock: func() float64 {
			return float64(time.Now().UnixMicro()) / 1e6
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LastSeq is the sequence of the last logged command.
func (s *OrderService) LastSeq() uint64 {
	return s.seq.Current()
}

//
// ──────────────────────────────────────────────────────────
// Commands
// ──────────────────────────────────────────────────────────
//

// PutLimit validates and places a limit order.
func (s *OrderService) PutLimit(req LimitOrderRequest) (orderbook.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, in, err := s.limitRequest(req)
	if err != nil {
		return orderbook.Order{}, s.reject("put_limit", err)
	}

	mark := s.mark(m)
	o, err := s.engine.PlaceLimit(matching.Live, m, in)
	if err != nil && !errors.Is(err, matching.ErrInternal) {
		return o, s.reject("put_limit", err)
	}

	s.appendLog(entrywal.RecordLimitOrder, entrywal.OrderOp{
		Market:    m.Name,
		UserID:    in.UserID,
		Side:      uint32(in.Side),
		Amount:    in.Amount.String(),
		Price:     in.Price.String(),
		TakerFee:  in.TakerFee.String(),
		MakerFee:  in.MakerFee.String(),
		Source:    in.Source,
		Token:     in.Token,
		Discount:  decString(in.Discount.Discount),
		TokenRate: decString(in.TokenRate),
		AssetRate: decString(in.AssetRate),
		Time:      in.Time,
		Dropped:   err != nil,
	}.Marshal())
	s.traded(m, mark)
	metrics.OrderCounterInc(m.Name, orderbook.LimitOrder.String())

	if err != nil {
		return o, s.reject("put_limit", err)
	}
	return o, nil
}

// PutMarket validates and executes a market order.
func (s *OrderService) PutMarket(req MarketOrderRequest) (orderbook.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, in, err := s.marketRequest(req)
	if err != nil {
		return orderbook.Order{}, s.reject("put_market", err)
	}

	mark := s.mark(m)
	o, err := s.engine.PlaceMarket(matching.Live, m, in)
	if err != nil && !errors.Is(err, matching.ErrInternal) {
		return o, s.reject("put_market", err)
	}

	s.appendLog(entrywal.RecordMarketOrder, entrywal.OrderOp{
		Market:    m.Name,
		UserID:    in.UserID,
		Side:      uint32(in.Side),
		Amount:    in.Amount.String(),
		TakerFee:  in.TakerFee.String(),
		Source:    in.Source,
		Token:     in.Token,
		Discount:  decString(in.Discount.Discount),
		TokenRate: decString(in.TokenRate),
		AssetRate: decString(in.AssetRate),
		Time:      in.Time,
	}.Marshal())
	s.traded(m, mark)
	metrics.OrderCounterInc(m.Name, orderbook.MarketOrder.String())

	if err != nil {
		return o, s.reject("put_market", err)
	}
	return o, nil
}

func (s *OrderService) Cancel(req CancelRequest) (orderbook.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.cancel(req.Market, req.UserID, req.OrderID)
	if err != nil {
		return o, s.reject("cancel", err)
	}
	return o, nil
}

// CancelBatch cancels each id independently. One failing id does not
// stop the others.
func (s *OrderService) CancelBatch(req CancelBatchRequest) ([]CancelResult, error) {
	if len(req.OrderIDs) > CancelBatchMax {
		return nil, s.reject("cancel_batch", errors.Wrapf(ErrTooManyOrders, "%d ids", len(req.OrderIDs)))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.market(req.Market); err != nil {
		return nil, s.reject("cancel_batch", err)
	}

	out := make([]CancelResult, 0, len(req.OrderIDs))
	for _, id := range req.OrderIDs {
		o, err := s.cancel(req.Market, req.UserID, id)
		res := CancelResult{OrderID: id, Code: CodeOf(err)}
		if err == nil {
			res.Order = &o
		}
		out = append(out, res)
	}
	return out, nil
}

func (s *OrderService) cancel(market string, user uint32, id uint64) (orderbook.Order, error) {
	m, err := s.market(market)
	if err != nil {
		return orderbook.Order{}, err
	}
	o, err := s.engine.CancelByID(matching.Live, m, user, id)
	if err != nil {
		return o, err
	}

	s.appendLog(entrywal.RecordCancelOrder, entrywal.CancelOp{
		Market:  m.Name,
		UserID:  user,
		OrderID: id,
		Time:    s.clock(),
	}.Marshal())
	s.bookGauges(m)
	metrics.CancelCounterInc(m.Name)
	return o, nil
}

//
// ──────────────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────────────
//

func (s *OrderService) appendLog(t entrywal.RecordType, data []byte) {
	if s.journal == nil {
		return
	}
	rec := entrywal.NewRecord(t, s.seq.Next(), data)
	if err := s.journal.Append(rec); err != nil {
		s.log.Error("append operation log",
			zap.Stringer("type", t),
			zap.Uint64("seq", rec.Seq),
			zap.Error(err),
		)
	}
}

// reject counts err and hands it back unchanged.
func (s *OrderService) reject(command string, err error) error {
	code := CodeOf(err)
	metrics.CommandErrorInc(command, int(code))
	if code == CodeInternal {
		s.log.Error("command failed", zap.String("command", command), zap.Error(err))
	} else {
		s.log.Debug("command rejected", zap.String("command", command), zap.Error(err))
	}
	return err
}

type tradeMark struct {
	deal uint64
	last num.Decimal
}

func (s *OrderService) mark(m *orderbook.Market) tradeMark {
	_, deal := s.engine.Counters()
	return tradeMark{deal: deal, last: s.engine.LastPrice(m.Name)}
}

// traded publishes what a command changed: deal count, book size and a
// new last price.
func (s *OrderService) traded(m *orderbook.Market, before tradeMark) {
	_, deal := s.engine.Counters()
	metrics.DealCounterAdd(m.Name, int(deal-before.deal))
	s.bookGauges(m)

	last := s.engine.LastPrice(m.Name)
	if s.prices == nil || last.Equal(before.last) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.prices.SetLast(ctx, m.Name, last); err != nil {
		s.log.Warn("store last price",
			zap.String("market", m.Name),
			zap.Stringer("price", last),
			zap.Error(err),
		)
	}
}

func (s *OrderService) bookGauges(m *orderbook.Market) {
	st := m.Status()
	metrics.BookGaugeSet(m.Name, orderbook.Ask.String(), st.AskCount)
	metrics.BookGaugeSet(m.Name, orderbook.Bid.String(), st.BidCount)
}

// decString keeps unset decimals empty on the wire.
func decString(d num.Decimal) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

func parseOpDecimal(s string) (num.Decimal, error) {
	if s == "" {
		return num.Zero, nil
	}
	return num.DecimalFromString(s)
}
