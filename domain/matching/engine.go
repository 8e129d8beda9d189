// Package matching executes limit and market orders against a market's
// book, moves balances for every fill and reports what happened.
//
// An Engine is single-writer. Callers serialize every mutating call;
// nothing in here locks.
package matching

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/gnuser/red-envelope-server/domain/ledger"
	"github.com/gnuser/red-envelope-server/domain/num"
	"github.com/gnuser/red-envelope-server/domain/orderbook"
	"github.com/gnuser/red-envelope-server/infra/logging"
	"github.com/gnuser/red-envelope-server/infra/memory"
	"github.com/gnuser/red-envelope-server/infra/sequence"
)

// QuoteCNY is the quote asset whose markets price stock fees with the
// trade price instead of the order's asset rate.
const QuoteCNY = "CNY"

// tokenPrec is the fixed scale of every fee token amount.
const tokenPrec = 8

// divPrec is the working precision of a quotient that is rounded to its
// final scale only once.
const divPrec = 28

type Engine struct {
	log    *logging.Logger
	ledger ledger.Ledger
	sink   Sink
	clock  func() float64

	markets map[string]*orderbook.Market
	last    map[string]num.Decimal

	orderIDs *sequence.Sequencer
	dealIDs  *sequence.Sequencer
	pool     *memory.Pool[orderbook.Order]
}

type Option func(*Engine)

// WithSink routes events and history. The default drops them.
func WithSink(s Sink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithClock overrides the wall clock, in seconds.
func WithClock(clock func() float64) Option {
	return func(e *Engine) { e.clock = clock }
}

func New(log *logging.Logger, l ledger.Ledger, opts ...Option) *Engine {
	e := &Engine{
		log:      log.Named("matching"),
		ledger:   l,
		sink:     nopSink{},
		clock:    nowSeconds,
		markets:  make(map[string]*orderbook.Market),
		last:     make(map[string]num.Decimal),
		orderIDs: sequence.New(0),
		dealIDs:  sequence.New(0),
		pool: memory.NewPool(
			func() *orderbook.Order { return &orderbook.Order{} },
			(*orderbook.Order).Reset,
		),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func nowSeconds() float64 {
	return float64(time.Now().UnixMicro()) / 1e6
}

// AddMarket registers m. Names are unique.
func (e *Engine) AddMarket(m *orderbook.Market) {
	e.markets[m.Name] = m
}

func (e *Engine) Market(name string) (*orderbook.Market, bool) {
	m, ok := e.markets[name]
	return m, ok
}

// Markets returns every market sorted by name.
func (e *Engine) Markets() []*orderbook.Market {
	out := make([]*orderbook.Market, 0, len(e.markets))
	for _, m := range e.markets {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LastPrice is the price of the most recent live deal in market.
func (e *Engine) LastPrice(market string) num.Decimal {
	return e.last[market]
}

// SetLastPrice seeds the last price, typically from the price store.
func (e *Engine) SetLastPrice(market string, price num.Decimal) {
	e.last[market] = price
}

// Counters returns the last minted order id and deal id.
func (e *Engine) Counters() (orderID, dealID uint64) {
	return e.orderIDs.Current(), e.dealIDs.Current()
}

// RestoreCounters advances the id counters after a snapshot load.
func (e *Engine) RestoreCounters(orderID, dealID uint64) {
	e.orderIDs.Restore(orderID)
	e.dealIDs.Restore(dealID)
}

func (e *Engine) now(at float64) float64 {
	if at > 0 {
		return at
	}
	return e.clock()
}

func (e *Engine) newOrder() *orderbook.Order {
	o := e.pool.Get()
	o.ID = e.orderIDs.Next()
	return o
}

func (e *Engine) release(o *orderbook.Order) {
	e.pool.Put(o)
}

// NewRestingOrder allocates a pooled order for the snapshot loader. The
// id must come from the snapshot, never from the counters.
func (e *Engine) NewRestingOrder(src orderbook.Order) *orderbook.Order {
	o := e.pool.Get()
	*o = src
	return o
}

func (e *Engine) checkRates(d orderbook.Discount) error {
	if !d.Enabled() {
		return nil
	}
	if !d.TokenRate.IsPositive() || !d.AssetRate.IsPositive() {
		return ErrRateZero
	}
	return nil
}

// hasAvailable checks balance sufficiency. Replay trusts the operation
// log, which only holds accepted commands, because the ledger already
// reflects their effects.
func (e *Engine) hasAvailable(mode Mode, user uint32, asset string, need num.Decimal) bool {
	if !mode.live() {
		return true
	}
	bal, ok := e.ledger.Get(user, ledger.Available, asset)
	return ok && !bal.LessThan(need)
}

func (e *Engine) fatal(msg string, o *orderbook.Order, err error) {
	e.log.Error(msg,
		zap.String("market", o.Market),
		zap.Uint64("order", o.ID),
		zap.Uint32("user", o.UserID),
		zap.Error(err),
	)
}
