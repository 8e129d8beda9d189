package snapshot

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnuser/red-envelope-server/domain/envelope"
	"github.com/gnuser/red-envelope-server/domain/matching"
	"github.com/gnuser/red-envelope-server/domain/num"
	"github.com/gnuser/red-envelope-server/domain/orderbook"
	"github.com/gnuser/red-envelope-server/infra/balance"
	"github.com/gnuser/red-envelope-server/infra/logging"
)

var d = num.MustDecimal

type state struct {
	engine    *matching.Engine
	envelopes *envelope.Store
	market    *orderbook.Market
}

func newState(t *testing.T) *state {
	t.Helper()
	l := balance.NewMemory(map[string]int{"BTC": 8, "CNY": 8})
	m, err := orderbook.NewMarket(orderbook.MarketConfig{
		Name: "BTCCNY", Stock: "BTC", Money: "CNY",
		StockPrec: 4, MoneyPrec: 2, FeePrec: 4, MinAmount: d("0.001"),
	}, l)
	require.NoError(t, err)

	log := logging.NewTestLogger()
	e := matching.New(log, l)
	e.AddMarket(m)
	return &state{engine: e, envelopes: envelope.NewStore(log, l, nil), market: m}
}

func (s *state) limit(t *testing.T, user uint32, side orderbook.Side, amount, price string) orderbook.Order {
	t.Helper()
	o, err := s.engine.PlaceLimit(matching.Replay, s.market, matching.LimitRequest{
		UserID: user, Side: side, Amount: d(amount), Price: d(price), Time: 1000,
	})
	require.NoError(t, err)
	return o
}

func TestWriteLoadRestore(t *testing.T) {
	src := newState(t)
	src.limit(t, 1, orderbook.Ask, "1", "100")
	src.limit(t, 2, orderbook.Ask, "2", "101")
	src.limit(t, 3, orderbook.Bid, "1.5", "99")
	src.limit(t, 4, orderbook.Bid, "0.5", "100") // fills against the first ask
	_, err := src.envelopes.Put(matching.Replay, envelope.PutRequest{
		UserID: 7, Asset: "CNY", Supply: d("10"), Share: 3, Type: envelope.Random, ExpireHours: 24, Time: 1000,
	})
	require.NoError(t, err)
	src.engine.SetLastPrice("BTCCNY", d("100"))

	snap := Capture(42, src.engine, src.envelopes)
	require.Len(t, snap.Orders, 3)

	w := &Writer{Dir: t.TempDir()}
	require.NoError(t, w.Write(snap))

	loaded, err := Load(w.Path())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), loaded.Seq)

	dst := newState(t)
	require.NoError(t, loaded.Restore(dst.engine, dst.envelopes))

	assert.Equal(t, src.market.Status().AskCount, dst.market.Status().AskCount)
	assert.True(t, src.market.Status().AskAmount.Equal(dst.market.Status().AskAmount))
	assert.True(t, src.market.Status().BidAmount.Equal(dst.market.Status().BidAmount))

	best, ok := dst.market.Best(orderbook.Ask)
	require.True(t, ok)
	assert.Equal(t, "0.5", best.Left.String())
	assert.Equal(t, uint32(1), best.UserID)

	srcOrder, srcDeal := src.engine.Counters()
	dstOrder, dstDeal := dst.engine.Counters()
	assert.Equal(t, srcOrder, dstOrder)
	assert.Equal(t, srcDeal, dstDeal)
	assert.Equal(t, "100", dst.engine.LastPrice("BTCCNY").String())

	env, ok := dst.envelopes.Get(1)
	require.True(t, ok)
	srcEnv, _ := src.envelopes.Get(1)
	require.Len(t, env.Shares, 3)
	for i := range env.Shares {
		assert.True(t, srcEnv.Shares[i].Equal(env.Shares[i]))
	}
	assert.Equal(t, uint64(1), dst.envelopes.LastID())

	// new ids continue after the restored counters
	o := dst.limit(t, 5, orderbook.Ask, "1", "200")
	assert.Equal(t, srcOrder+1, o.ID)
}

func TestLoadMissingIsEmpty(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "none.bin"))
	require.NoError(t, err)
	assert.True(t, s.Empty())
}

func TestRestoreUnknownMarketFails(t *testing.T) {
	snap := &Snapshot{Orders: []orderbook.Order{{ID: 1, Market: "ETHCNY", Type: orderbook.LimitOrder, Side: orderbook.Ask}}}
	dst := newState(t)
	assert.ErrorIs(t, snap.Restore(dst.engine, dst.envelopes), matching.ErrMarketNotFound)
}
