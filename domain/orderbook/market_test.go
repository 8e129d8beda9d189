package orderbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnuser/red-envelope-server/domain/num"
)

type assets map[string]int

func (a assets) AssetPrec(name string) (int, bool) {
	p, ok := a[name]
	return p, ok
}

var testAssets = assets{"BTC": 8, "USD": 8}

func testMarket(t *testing.T) *Market {
	t.Helper()
	m, err := NewMarket(MarketConfig{
		Name:      "BTCUSD",
		Stock:     "BTC",
		Money:     "USD",
		StockPrec: 4,
		MoneyPrec: 2,
		FeePrec:   4,
		MinAmount: num.MustDecimal("0.001"),
	}, testAssets)
	require.NoError(t, err)
	return m
}

func TestNewMarketValidatesPrecision(t *testing.T) {
	cases := []MarketConfig{
		{Name: "X", Stock: "BTC", Money: "USD", StockPrec: 6, MoneyPrec: 4, FeePrec: 0},
		{Name: "X", Stock: "BTC", Money: "USD", StockPrec: 4, MoneyPrec: 2, FeePrec: 5},
		{Name: "X", Stock: "BTC", Money: "USD", StockPrec: 2, MoneyPrec: 5, FeePrec: 4},
	}
	for _, cfg := range cases {
		_, err := NewMarket(cfg, testAssets)
		assert.ErrorIs(t, err, ErrInvalidMarket)
	}

	_, err := NewMarket(MarketConfig{Name: "X", Stock: "ETH", Money: "USD"}, testAssets)
	assert.ErrorIs(t, err, ErrUnknownAsset)
}

func TestMarketPutAndRemoveKeepIndicesInSync(t *testing.T) {
	m := testMarket(t)
	o := limit(1, Ask, "100")
	o.UserID = 9
	require.NoError(t, m.Put(o))
	assert.ErrorIs(t, m.Put(o), ErrDuplicateOrder)

	got, ok := m.Order(1)
	require.True(t, ok)
	assert.Same(t, o, got)

	list, total := m.UserOrders(9, 0, 10)
	assert.Equal(t, 1, total)
	assert.Len(t, list, 1)

	assert.True(t, m.Remove(o))
	assert.False(t, m.Remove(o))
	_, ok = m.Order(1)
	assert.False(t, ok)
	_, total = m.UserOrders(9, 0, 10)
	assert.Zero(t, total)
	assert.Zero(t, m.Status().AskCount)
}

func TestMarketRejectsRestingMarketOrder(t *testing.T) {
	m := testMarket(t)
	o := limit(1, Bid, "0")
	o.Type = MarketOrder
	require.Error(t, m.Put(o))
	assert.Zero(t, m.Status().BidCount)
}

func TestMarketStatusAndPaging(t *testing.T) {
	m := testMarket(t)
	for i, p := range []string{"100", "101", "102"} {
		o := limit(uint64(i+1), Bid, p)
		o.UserID = 1
		require.NoError(t, m.Put(o))
	}

	st := m.Status()
	assert.Equal(t, 3, st.BidCount)
	assert.True(t, st.BidAmount.Equal(num.DecimalFromInt(3)))

	page, total := m.Book(Bid, 1, 5)
	assert.Equal(t, 3, total)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(2), page[0].ID)
	assert.Equal(t, uint64(1), page[1].ID)

	mine, _ := m.UserOrders(1, 0, 2)
	require.Len(t, mine, 2)
	assert.Equal(t, uint64(3), mine[0].ID)
}

func TestDepthAggregatesLevels(t *testing.T) {
	m := testMarket(t)
	require.NoError(t, m.Put(limit(1, Ask, "100.10")))
	require.NoError(t, m.Put(limit(2, Ask, "100.10")))
	require.NoError(t, m.Put(limit(3, Ask, "100.40")))
	require.NoError(t, m.Put(limit(4, Bid, "99.95")))
	require.NoError(t, m.Put(limit(5, Bid, "99.10")))

	d := m.Depth(10)
	require.Len(t, d.Asks, 2)
	assert.True(t, d.Asks[0].Amount.Equal(num.DecimalFromInt(2)))
	assert.Equal(t, 2, d.Asks[0].OrderCount)
	require.Len(t, d.Bids, 2)
	assert.True(t, d.Bids[0].Price.Equal(num.MustDecimal("99.95")))

	d = m.Depth(1)
	assert.Len(t, d.Asks, 1)
	assert.Len(t, d.Bids, 1)
}

func TestMergedDepthRoundsAwayFromSpread(t *testing.T) {
	m := testMarket(t)
	require.NoError(t, m.Put(limit(1, Ask, "100.10")))
	require.NoError(t, m.Put(limit(2, Ask, "100.40")))
	require.NoError(t, m.Put(limit(3, Bid, "99.95")))
	require.NoError(t, m.Put(limit(4, Bid, "99.10")))

	d := m.MergedDepth(10, num.One)
	require.Len(t, d.Asks, 1)
	assert.True(t, d.Asks[0].Price.Equal(num.DecimalFromInt(101)))
	assert.True(t, d.Asks[0].Amount.Equal(num.DecimalFromInt(2)))
	require.Len(t, d.Bids, 1)
	assert.True(t, d.Bids[0].Price.Equal(num.DecimalFromInt(99)))
}
