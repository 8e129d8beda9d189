package matching_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gnuser/red-envelope-server/domain/ledger"
	"github.com/gnuser/red-envelope-server/domain/matching"
	"github.com/gnuser/red-envelope-server/domain/orderbook"
)

func tokenDiscount(assetRate string) orderbook.Discount {
	return orderbook.Discount{
		Token:     "TOK",
		Discount:  d("0.5"),
		TokenRate: d("2"),
		AssetRate: d(assetRate),
	}
}

func placeDiscounted(t *testing.T, f *fixture, user uint32, side orderbook.Side, price, assetRate string) orderbook.Order {
	t.Helper()
	o, err := f.engine.PlaceLimit(matching.Live, f.market, matching.LimitRequest{
		UserID:   user,
		Side:     side,
		Amount:   d("1"),
		Price:    d(price),
		TakerFee: d("0.002"),
		MakerFee: d("0.001"),
		Discount: tokenDiscount(assetRate),
	})
	require.NoError(t, err)
	return o
}

func TestTokenCoversWholeFee(t *testing.T) {
	f := newFixture(t, "CNY")
	f.fund(t, 1, "BTC", "1")
	f.fund(t, 1, "TOK", "0.05")
	f.fund(t, 2, "CNY", "100")
	f.fund(t, 2, "TOK", "10")

	// the bid maker's asset rate is ignored: its stock fee is priced at
	// the trade price because the market quotes CNY
	placeDiscounted(t, f, 2, orderbook.Bid, "100", "7")
	taker := placeDiscounted(t, f, 1, orderbook.Ask, "100", "1")

	require.Len(t, f.sink.deals, 1)
	deal := f.sink.deals[0]
	assertDec(t, "0", deal.AskFee)
	assertDec(t, "0.05", deal.AskToken)
	assertDec(t, "0", deal.BidFee)
	assertDec(t, "0.025", deal.BidToken)
	assertDec(t, "0.05", taker.DealToken)

	assertDec(t, "0", f.balance(1, ledger.Available, "TOK"))
	assertDec(t, "100", f.balance(1, ledger.Available, "CNY"))
	assertDec(t, "9.975", f.balance(2, ledger.Available, "TOK"))
	assertDec(t, "1", f.balance(2, ledger.Available, "BTC"))
}

func TestTokenShortfallLeavesResidualFee(t *testing.T) {
	f := newFixture(t, "CNY")
	f.fund(t, 1, "BTC", "1")
	f.fund(t, 1, "TOK", "0.01")
	f.fund(t, 2, "CNY", "100")

	placeDiscounted(t, f, 2, orderbook.Bid, "100", "7")
	placeDiscounted(t, f, 1, orderbook.Ask, "100", "1")

	require.Len(t, f.sink.deals, 1)
	deal := f.sink.deals[0]
	// full token 0.05, covered 0.01, residual (0.04*2/0.5)/1
	assertDec(t, "0.01", deal.AskToken)
	assertDec(t, "0.16", deal.AskFee)
	assertDec(t, "0", f.balance(1, ledger.Available, "TOK"))
	assertDec(t, "99.84", f.balance(1, ledger.Available, "CNY"))

	// maker has no token balance row, so the fee stays in stock
	assertDec(t, "0", deal.BidToken)
	assertDec(t, "0.001", deal.BidFee)
	assertDec(t, "0.999", f.balance(2, ledger.Available, "BTC"))
}

func TestTokenUsesAssetRateOutsideCNY(t *testing.T) {
	f := newFixture(t, "USD")
	f.fund(t, 1, "USD", "100")
	f.fund(t, 1, "TOK", "100")
	f.fund(t, 2, "BTC", "1")

	placeDiscounted(t, f, 2, orderbook.Ask, "100", "1")
	placeDiscounted(t, f, 1, orderbook.Bid, "100", "7")

	require.Len(t, f.sink.deals, 1)
	deal := f.sink.deals[0]
	// taker bid fee 0.002 BTC, token = 0.002*7*0.5/2
	assertDec(t, "0.0035", deal.BidToken)
	assertDec(t, "0", deal.BidFee)
	assertDec(t, "1", f.balance(1, ledger.Available, "BTC"))
	assertDec(t, "99.9965", f.balance(1, ledger.Available, "TOK"))
}

func TestResidualFeeRoundsOnce(t *testing.T) {
	f := newFixture(t, "USD")
	f.fund(t, 1, "USD", "100")
	f.fund(t, 1, "TOK", "0.001")
	f.fund(t, 2, "BTC", "1")

	placeDiscounted(t, f, 2, orderbook.Ask, "100", "1")
	placeDiscounted(t, f, 1, orderbook.Bid, "100", "3")

	require.Len(t, f.sink.deals, 1)
	deal := f.sink.deals[0]
	// token 0.002*3*0.5/2 = 0.0015, covered 0.001,
	// residual 0.0005*2/(0.5*3) = 0.000666...
	assertDec(t, "0.001", deal.BidToken)
	assertDec(t, "0.00066667", deal.BidFee)
	assertDec(t, "0.99933333", f.balance(1, ledger.Available, "BTC"))
	assertDec(t, "0", f.balance(1, ledger.Available, "TOK"))
}
