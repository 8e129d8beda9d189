package matching_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnuser/red-envelope-server/domain/ledger"
	"github.com/gnuser/red-envelope-server/domain/matching"
	"github.com/gnuser/red-envelope-server/domain/num"
	"github.com/gnuser/red-envelope-server/domain/orderbook"
	"github.com/gnuser/red-envelope-server/infra/balance"
	"github.com/gnuser/red-envelope-server/infra/logging"
)

var d = num.MustDecimal

type recorder struct {
	events   []matching.OrderEvent
	deals    []matching.Deal
	orders   []orderbook.Order
	balances []matching.BalanceRow
}

func (r *recorder) OrderEvent(e matching.OrderEvent) error {
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) DealEvent(deal matching.Deal) error {
	r.deals = append(r.deals, deal)
	return nil
}

func (r *recorder) OrderHistory(o orderbook.Order) error {
	r.orders = append(r.orders, o)
	return nil
}

func (r *recorder) DealHistory(matching.Deal) error { return nil }

func (r *recorder) BalanceHistory(row matching.BalanceRow) error {
	r.balances = append(r.balances, row)
	return nil
}

func (r *recorder) empty() bool {
	return len(r.events)+len(r.deals)+len(r.orders)+len(r.balances) == 0
}

type fixture struct {
	engine *matching.Engine
	ledger *balance.Memory
	sink   *recorder
	market *orderbook.Market
}

func newFixture(t *testing.T, money string) *fixture {
	t.Helper()
	l := balance.NewMemory(map[string]int{"BTC": 8, money: 8, "TOK": 8})
	m, err := orderbook.NewMarket(orderbook.MarketConfig{
		Name:      "BTC" + money,
		Stock:     "BTC",
		Money:     money,
		StockPrec: 4,
		MoneyPrec: 2,
		FeePrec:   4,
		MinAmount: d("0.001"),
	}, l)
	require.NoError(t, err)

	sink := &recorder{}
	e := matching.New(logging.NewTestLogger(), l, matching.WithSink(sink))
	e.AddMarket(m)
	return &fixture{engine: e, ledger: l, sink: sink, market: m}
}

func (f *fixture) fund(t *testing.T, user uint32, asset, amount string) {
	t.Helper()
	_, err := f.ledger.Add(user, ledger.Available, asset, d(amount))
	require.NoError(t, err)
}

func (f *fixture) balance(user uint32, kind ledger.Kind, asset string) num.Decimal {
	v, _ := f.ledger.Get(user, kind, asset)
	return v
}

func (f *fixture) limit(t *testing.T, mode matching.Mode, user uint32, side orderbook.Side, amount, price string) orderbook.Order {
	t.Helper()
	o, err := f.engine.PlaceLimit(mode, f.market, matching.LimitRequest{
		UserID:   user,
		Side:     side,
		Amount:   d(amount),
		Price:    d(price),
		TakerFee: d("0.002"),
		MakerFee: d("0.001"),
	})
	require.NoError(t, err)
	return o
}

func assertDec(t *testing.T, want string, got num.Decimal, msg ...any) {
	t.Helper()
	assert.True(t, d(want).Equal(got), append([]any{"want %s got %s", want, got.String()}, msg...)...)
}

func TestLimitCrossFullFill(t *testing.T) {
	f := newFixture(t, "USD")
	f.fund(t, 1, "BTC", "1")
	f.fund(t, 2, "USD", "100")

	ask := f.limit(t, matching.Live, 1, orderbook.Ask, "1", "100")
	assertDec(t, "1", ask.Freeze)
	assertDec(t, "1", f.balance(1, ledger.Frozen, "BTC"))

	bid := f.limit(t, matching.Live, 2, orderbook.Bid, "1", "100")
	assert.False(t, bid.Resting())
	assertDec(t, "1", bid.DealStock)
	assertDec(t, "100", bid.DealMoney)

	require.Len(t, f.sink.deals, 1)
	deal := f.sink.deals[0]
	assertDec(t, "100", deal.Price)
	assertDec(t, "1", deal.Amount)
	assertDec(t, "0.1", deal.AskFee)
	assertDec(t, "0.002", deal.BidFee)
	assert.Equal(t, matching.RoleMaker, deal.AskRole)
	assert.Equal(t, matching.RoleTaker, deal.BidRole)
	assert.Equal(t, orderbook.Bid, deal.TakerSide)

	// seller: frozen stock gone, money minus maker fee
	assertDec(t, "0", f.balance(1, ledger.Frozen, "BTC"))
	assertDec(t, "0", f.balance(1, ledger.Available, "BTC"))
	assertDec(t, "99.9", f.balance(1, ledger.Available, "USD"))
	// buyer: money spent, stock minus taker fee
	assertDec(t, "0", f.balance(2, ledger.Available, "USD"))
	assertDec(t, "0.998", f.balance(2, ledger.Available, "BTC"))

	assert.Zero(t, f.market.Status().AskCount)
	assert.Zero(t, f.market.Status().BidCount)
	assertDec(t, "100", f.engine.LastPrice("BTCUSD"))

	// put for the ask, finish for the maker, finish for the taker
	require.Len(t, f.sink.events, 3)
	assert.Equal(t, matching.EventPut, f.sink.events[0].Kind)
	assert.Equal(t, matching.EventFinish, f.sink.events[1].Kind)
	assert.Equal(t, ask.ID, f.sink.events[1].Order.ID)
	assertDec(t, "0", f.sink.events[1].Order.Freeze)
	assert.Equal(t, matching.EventFinish, f.sink.events[2].Kind)
	assert.Len(t, f.sink.orders, 2)
	// sub, add, fee for each side
	assert.Len(t, f.sink.balances, 6)
}

func TestBidRestsWithFreeze(t *testing.T) {
	f := newFixture(t, "USD")
	f.fund(t, 1, "USD", "100")

	o := f.limit(t, matching.Live, 1, orderbook.Bid, "0.5", "100")
	assert.True(t, o.Resting())
	assertDec(t, "0.5", o.Left)
	assertDec(t, "50", o.Freeze)

	resting, ok := f.market.Order(o.ID)
	require.True(t, ok)
	assertDec(t, "100", resting.Price)
	assertDec(t, "50", f.balance(1, ledger.Frozen, "USD"))
	assertDec(t, "50", f.balance(1, ledger.Available, "USD"))
	assert.Empty(t, f.sink.orders)
}

func TestPreconditionsLeaveStateUntouched(t *testing.T) {
	f := newFixture(t, "USD")
	f.fund(t, 1, "BTC", "10")
	f.fund(t, 1, "USD", "10")

	_, err := f.engine.PlaceMarket(matching.Live, f.market, matching.MarketRequest{
		UserID: 1, Side: orderbook.Ask, Amount: d("2"), TakerFee: d("0.001"),
	})
	assert.ErrorIs(t, err, matching.ErrNoCounterparty)

	_, err = f.engine.PlaceLimit(matching.Live, f.market, matching.LimitRequest{
		UserID: 1, Side: orderbook.Ask, Amount: d("11"), Price: d("1"),
	})
	assert.ErrorIs(t, err, matching.ErrInsufficientBalance)

	_, err = f.engine.PlaceLimit(matching.Live, f.market, matching.LimitRequest{
		UserID: 1, Side: orderbook.Bid, Amount: d("1"), Price: d("10.01"),
	})
	assert.ErrorIs(t, err, matching.ErrInsufficientBalance)

	_, err = f.engine.PlaceLimit(matching.Live, f.market, matching.LimitRequest{
		UserID: 1, Side: orderbook.Ask, Amount: d("0.0001"), Price: d("1"),
	})
	assert.ErrorIs(t, err, matching.ErrAmountTooSmall)

	// the rate check runs before the balance check
	_, err = f.engine.PlaceLimit(matching.Live, f.market, matching.LimitRequest{
		UserID: 1, Side: orderbook.Ask, Amount: d("100"), Price: d("1"),
		Discount: orderbook.Discount{Token: "TOK", Discount: d("0.5"), TokenRate: d("0"), AssetRate: d("1")},
	})
	assert.ErrorIs(t, err, matching.ErrRateZero)

	orderID, dealID := f.engine.Counters()
	assert.Zero(t, orderID)
	assert.Zero(t, dealID)
	assert.True(t, f.sink.empty())
	assertDec(t, "10", f.balance(1, ledger.Available, "BTC"))
	assertDec(t, "10", f.balance(1, ledger.Available, "USD"))
}

func TestPriceTimePriority(t *testing.T) {
	f := newFixture(t, "USD")
	f.fund(t, 1, "BTC", "2")
	f.fund(t, 2, "USD", "150")

	first := f.limit(t, matching.Live, 1, orderbook.Ask, "1", "100")
	second := f.limit(t, matching.Live, 1, orderbook.Ask, "1", "100")
	require.Less(t, first.ID, second.ID)
	f.sink.events = nil

	bid := f.limit(t, matching.Live, 2, orderbook.Bid, "1.5", "100")
	assert.False(t, bid.Resting())

	require.Len(t, f.sink.deals, 2)
	assert.Equal(t, first.ID, f.sink.deals[0].AskOrderID)
	assertDec(t, "1", f.sink.deals[0].Amount)
	assert.Equal(t, second.ID, f.sink.deals[1].AskOrderID)
	assertDec(t, "0.5", f.sink.deals[1].Amount)
	assert.Less(t, f.sink.deals[0].ID, f.sink.deals[1].ID)

	require.Len(t, f.sink.events, 3)
	assert.Equal(t, matching.EventFinish, f.sink.events[0].Kind)
	assert.Equal(t, first.ID, f.sink.events[0].Order.ID)
	assert.Equal(t, matching.EventUpdate, f.sink.events[1].Kind)
	assert.Equal(t, second.ID, f.sink.events[1].Order.ID)

	rest, ok := f.market.Order(second.ID)
	require.True(t, ok)
	assertDec(t, "0.5", rest.Left)
	assertDec(t, "0.5", rest.Freeze)
	assertDec(t, "0.5", rest.DealStock)
	assertDec(t, "1", rest.DealStock.Add(rest.Left))
}

func TestLimitStopsAtPrice(t *testing.T) {
	f := newFixture(t, "USD")
	f.fund(t, 1, "BTC", "2")
	f.fund(t, 2, "USD", "1000")

	f.limit(t, matching.Live, 1, orderbook.Ask, "1", "100")
	f.limit(t, matching.Live, 1, orderbook.Ask, "1", "105")

	bid := f.limit(t, matching.Live, 2, orderbook.Bid, "2", "101")
	assert.True(t, bid.Resting())
	assertDec(t, "1", bid.Left)
	assertDec(t, "101", bid.Freeze)
	// price improvement: paid the maker's 100, not 101
	assertDec(t, "100", bid.DealMoney)
	assertDec(t, "799", f.balance(2, ledger.Available, "USD"))

	st := f.market.Status()
	assert.Equal(t, 1, st.AskCount)
	assert.Equal(t, 1, st.BidCount)
}

func TestCancelReturnsFreeze(t *testing.T) {
	f := newFixture(t, "USD")
	f.fund(t, 1, "USD", "100")

	o := f.limit(t, matching.Live, 1, orderbook.Bid, "0.3", "99.99")
	before := f.balance(1, ledger.Available, "USD")

	_, err := f.engine.CancelByID(matching.Live, f.market, 2, o.ID)
	assert.ErrorIs(t, err, matching.ErrUserMismatch)
	_, err = f.engine.CancelByID(matching.Live, f.market, 1, o.ID+1)
	assert.ErrorIs(t, err, matching.ErrOrderNotFound)

	out, err := f.engine.CancelByID(matching.Live, f.market, 1, o.ID)
	require.NoError(t, err)
	assertDec(t, "29.997", out.Freeze)

	after := f.balance(1, ledger.Available, "USD")
	assertDec(t, before.Add(out.Freeze).String(), after)
	assertDec(t, "100", after)
	_, ok := f.market.Order(o.ID)
	assert.False(t, ok)
	assert.Equal(t, matching.EventFinish, f.sink.events[len(f.sink.events)-1].Kind)
	// nothing filled, so no order history
	assert.Empty(t, f.sink.orders)
}

func TestMarketAskSweepsBids(t *testing.T) {
	f := newFixture(t, "USD")
	f.fund(t, 1, "USD", "1000")
	f.fund(t, 2, "BTC", "5")

	f.limit(t, matching.Live, 1, orderbook.Bid, "1", "100")
	f.limit(t, matching.Live, 1, orderbook.Bid, "1", "99")

	o, err := f.engine.PlaceMarket(matching.Live, f.market, matching.MarketRequest{
		UserID: 2, Side: orderbook.Ask, Amount: d("3"), TakerFee: d("0"),
	})
	require.NoError(t, err)
	assertDec(t, "2", o.DealStock)
	assertDec(t, "199", o.DealMoney)
	assertDec(t, "1", o.Left)
	assertDec(t, "3", o.DealStock.Add(o.Left))

	// remainder is dropped, nothing rests
	assert.Zero(t, f.market.Status().AskCount)
	assertDec(t, "3", f.balance(2, ledger.Available, "BTC"))
	assertDec(t, "199", f.balance(2, ledger.Available, "USD"))
	assertDec(t, "0", f.balance(1, ledger.Frozen, "USD"))
}

func TestMarketBidBudgetSearch(t *testing.T) {
	f := newFixture(t, "USD")
	f.fund(t, 1, "BTC", "10")
	f.fund(t, 2, "USD", "10")

	f.limit(t, matching.Live, 1, orderbook.Ask, "10", "3")

	o, err := f.engine.PlaceMarket(matching.Live, f.market, matching.MarketRequest{
		UserID: 2, Side: orderbook.Bid, Amount: d("10"), TakerFee: d("0"),
	})
	require.NoError(t, err)
	// 10/3 rescaled to 4 places is 3.3333, cost 9.9999
	assertDec(t, "3.3333", o.DealStock)
	assertDec(t, "9.9999", o.DealMoney)
	assertDec(t, "0.0001", o.Left)
	assertDec(t, "10", o.DealMoney.Add(o.Left))

	assertDec(t, "0.0001", f.balance(2, ledger.Available, "USD"))
	assertDec(t, "3.3333", f.balance(2, ledger.Available, "BTC"))
	rest, ok := f.market.Best(orderbook.Ask)
	require.True(t, ok)
	assertDec(t, "6.6667", rest.Left)
	assertDec(t, "6.6667", rest.Freeze)
}

func TestMarketBidRoundingStepsDown(t *testing.T) {
	f := newFixture(t, "USD")
	f.fund(t, 1, "BTC", "10")
	f.fund(t, 2, "USD", "10")

	f.limit(t, matching.Live, 1, orderbook.Ask, "10", "1.5")

	o, err := f.engine.PlaceMarket(matching.Live, f.market, matching.MarketRequest{
		UserID: 2, Side: orderbook.Bid, Amount: d("0.00025"), TakerFee: d("0"),
	})
	assert.ErrorIs(t, err, matching.ErrAmountTooSmall)

	// 2/1.5 = 1.33333.. rounds to 1.3333, cost 1.99995
	o, err = f.engine.PlaceMarket(matching.Live, f.market, matching.MarketRequest{
		UserID: 2, Side: orderbook.Bid, Amount: d("2"), TakerFee: d("0"),
	})
	require.NoError(t, err)
	assertDec(t, "1.3333", o.DealStock)
	assert.True(t, o.DealMoney.LessThanOrEqual(d("2")))
}

func TestMarketBidMinimumUsesBestAsk(t *testing.T) {
	f := newFixture(t, "USD")
	f.fund(t, 1, "BTC", "1")
	f.fund(t, 2, "USD", "1")

	_, err := f.engine.PlaceMarket(matching.Live, f.market, matching.MarketRequest{
		UserID: 2, Side: orderbook.Bid, Amount: d("1"),
	})
	assert.ErrorIs(t, err, matching.ErrNoCounterparty)

	f.limit(t, matching.Live, 1, orderbook.Ask, "1", "2000")
	_, err = f.engine.PlaceMarket(matching.Live, f.market, matching.MarketRequest{
		UserID: 2, Side: orderbook.Bid, Amount: d("1"),
	})
	assert.ErrorIs(t, err, matching.ErrAmountTooSmall)
}

func TestFreezeReachesZeroOnPartialFills(t *testing.T) {
	f := newFixture(t, "USD")
	f.fund(t, 1, "USD", "1000")
	f.fund(t, 2, "BTC", "10")

	bid := f.limit(t, matching.Live, 1, orderbook.Bid, "3", "33.33")
	for _, amt := range []string{"1", "0.7", "1.3"} {
		f.limit(t, matching.Live, 2, orderbook.Ask, amt, "33.33")
	}

	_, ok := f.market.Order(bid.ID)
	assert.False(t, ok)
	last := f.sink.events
	var finished *orderbook.Order
	for i := range last {
		if last[i].Order.ID == bid.ID && last[i].Kind == matching.EventFinish {
			finished = &last[i].Order
		}
	}
	require.NotNil(t, finished)
	assert.True(t, finished.Freeze.IsZero())
	assertDec(t, "3", finished.DealStock)
	assertDec(t, "0", f.balance(1, ledger.Frozen, "USD"))
}
