package matching

import (
	"github.com/gnuser/red-envelope-server/domain/ledger"
	"github.com/gnuser/red-envelope-server/domain/num"
	"github.com/gnuser/red-envelope-server/domain/orderbook"
)

// fill is one match between the taker and a maker.
type fill struct {
	price  num.Decimal
	amount num.Decimal
	deal   num.Decimal

	askFee, bidFee     num.Decimal
	askToken, bidToken num.Decimal
}

// execute runs the matching loop for taker against the opposite side.
// Makers always set the price.
func (e *Engine) execute(mode Mode, m *orderbook.Market, taker *orderbook.Order) {
	opposite := taker.Side.Opposite()
	marketBid := taker.Type == orderbook.MarketOrder && taker.Side == orderbook.Bid

	for taker.Left.IsPositive() {
		maker, ok := m.Best(opposite)
		if !ok {
			return
		}
		if taker.Type == orderbook.LimitOrder {
			if taker.Side == orderbook.Ask && taker.Price.GreaterThan(maker.Price) {
				return
			}
			if taker.Side == orderbook.Bid && taker.Price.LessThan(maker.Price) {
				return
			}
		}

		f := fill{price: maker.Price}
		if marketBid {
			f.amount = affordable(taker.Left, maker, m.StockPrec)
			if f.amount.IsZero() {
				return
			}
		} else {
			f.amount = num.Min(taker.Left, maker.Left)
		}
		f.deal = f.price.Mul(f.amount)

		ask, bid := taker, maker
		if taker.Side == orderbook.Bid {
			ask, bid = maker, taker
		}
		// Fees are charged in what each side receives: money for the ask,
		// stock for the bid.
		f.askFee = f.deal.Mul(feeRate(ask, taker))
		f.bidFee = f.amount.Mul(feeRate(bid, taker))
		f.askFee, f.askToken = e.settleToken(m, ask, f.askFee, f.price)
		f.bidFee, f.bidToken = e.settleToken(m, bid, f.bidFee, f.price)

		now := e.clock()
		taker.UpdateTime, maker.UpdateTime = now, now
		dealID := e.dealIDs.Next()
		e.last[m.Name] = f.price
		if mode.live() {
			e.recordDeal(m, dealID, now, taker, ask, bid, f)
		}

		e.applyTaker(mode, m, taker, f)
		e.applyMaker(mode, m, maker, f)

		if maker.Resting() {
			if mode.live() {
				e.emitOrder(EventUpdate, m, maker)
			}
			continue
		}
		if mode.live() {
			e.emitOrder(EventFinish, m, maker)
		}
		e.finish(mode, m, maker)
	}
}

// affordable finds the largest stock amount at the maker's price whose
// cost fits in budget. The division is rounded to stock precision, which
// can overshoot, so it steps down one unit at a time until the cost fits.
// The result is capped at the maker's remaining amount.
func affordable(budget num.Decimal, maker *orderbook.Order, stockPrec int) num.Decimal {
	price := maker.Price
	amount := num.Rescale(num.Div(budget, price, stockPrec), stockPrec)
	unit := num.Unit(stockPrec)
	for amount.IsPositive() && amount.Mul(price).GreaterThan(budget) {
		amount = amount.Sub(unit)
	}
	if amount.GreaterThan(maker.Left) {
		amount = maker.Left
	}
	if amount.IsNegative() {
		return num.Zero
	}
	return amount
}

func feeRate(o, taker *orderbook.Order) num.Decimal {
	if o == taker {
		return o.TakerFee
	}
	return o.MakerFee
}

// settleToken converts fee into the participant's discount token. When the
// token balance cannot cover it the token pays what it can and the
// residual fee stays in the original currency.
//
// The cross rate is the order's asset rate, except for a stock fee (the
// bid side) in a CNY quoted market where the trade price stands in.
func (e *Engine) settleToken(m *orderbook.Market, o *orderbook.Order, fee, price num.Decimal) (num.Decimal, num.Decimal) {
	if !o.Discount.Enabled() {
		return fee, num.Zero
	}
	balance, ok := e.ledger.Get(o.UserID, ledger.Available, o.Token)
	if !ok {
		return fee, num.Zero
	}

	rate := o.AssetRate
	if o.Side == orderbook.Bid && m.Money == QuoteCNY {
		rate = price
	}

	token := num.Rescale(num.Div(fee.Mul(rate).Mul(o.Discount.Discount), o.TokenRate, tokenPrec), tokenPrec)
	if balance.LessThan(token) {
		owed := token.Sub(balance).Mul(o.TokenRate)
		residual := num.Rescale(num.Div(owed, o.Discount.Discount.Mul(rate), divPrec), tokenPrec)
		return residual, balance
	}
	return num.Zero, token
}

func (e *Engine) recordDeal(m *orderbook.Market, id uint64, now float64, taker, ask, bid *orderbook.Order, f fill) {
	d := Deal{
		ID:         id,
		Time:       now,
		Market:     m.Name,
		Stock:      m.Stock,
		Money:      m.Money,
		TakerSide:  taker.Side,
		Price:      f.price,
		Amount:     f.amount,
		Deal:       f.deal,
		AskFee:     f.askFee,
		BidFee:     f.bidFee,
		AskToken:   f.askToken,
		BidToken:   f.bidToken,
		AskOrderID: ask.ID,
		AskUserID:  ask.UserID,
		AskRole:    roleOf(ask, taker),
		BidOrderID: bid.ID,
		BidUserID:  bid.UserID,
		BidRole:    roleOf(bid, taker),
	}
	if err := e.sink.DealHistory(d); err != nil {
		e.fatal("append deal history", taker, err)
	}
	if err := e.sink.DealEvent(d); err != nil {
		e.fatal("deal event", taker, err)
	}
}

func roleOf(o, taker *orderbook.Order) Role {
	if o == taker {
		return RoleTaker
	}
	return RoleMaker
}

// applyTaker updates the taker's fill state and, in Live mode, moves its
// balances. The outgoing leg comes from available balance.
func (e *Engine) applyTaker(mode Mode, m *orderbook.Market, taker *orderbook.Order, f fill) {
	fee, token := f.askFee, f.askToken
	out, outAmt, in, inAmt := m.Stock, f.amount, m.Money, f.deal
	if taker.Side == orderbook.Bid {
		fee, token = f.bidFee, f.bidToken
		out, outAmt, in, inAmt = m.Money, f.deal, m.Stock, f.amount
	}

	if taker.Type == orderbook.MarketOrder && taker.Side == orderbook.Bid {
		taker.Left = taker.Left.Sub(f.deal)
	} else {
		taker.Left = taker.Left.Sub(f.amount)
	}
	taker.DealStock = taker.DealStock.Add(f.amount)
	taker.DealMoney = taker.DealMoney.Add(f.deal)
	taker.DealFee = taker.DealFee.Add(fee)
	taker.DealToken = taker.DealToken.Add(token)

	if !mode.live() {
		return
	}
	e.tradeSub(m, taker, ledger.Available, out, outAmt, f, nil)
	e.tradeAdd(m, taker, in, inAmt, f)
	e.tradeFees(m, taker, in, fee, token, taker.TakerFee, f)
}

// applyMaker mirrors applyTaker. The outgoing leg comes from frozen
// balance and shrinks the maker's freeze.
func (e *Engine) applyMaker(mode Mode, m *orderbook.Market, maker *orderbook.Order, f fill) {
	fee, token := f.askFee, f.askToken
	out, outAmt, in, inAmt := m.Stock, f.amount, m.Money, f.deal
	if maker.Side == orderbook.Bid {
		fee, token = f.bidFee, f.bidToken
		out, outAmt, in, inAmt = m.Money, f.deal, m.Stock, f.amount
	}

	maker.Left = maker.Left.Sub(f.amount)
	maker.Freeze = maker.Freeze.Sub(outAmt)
	maker.DealStock = maker.DealStock.Add(f.amount)
	maker.DealMoney = maker.DealMoney.Add(f.deal)
	maker.DealFee = maker.DealFee.Add(fee)
	maker.DealToken = maker.DealToken.Add(token)

	if !mode.live() {
		return
	}
	e.tradeSub(m, maker, ledger.Frozen, out, outAmt, f, nil)
	e.tradeAdd(m, maker, in, inAmt, f)
	e.tradeFees(m, maker, in, fee, token, maker.MakerFee, f)
}

func (e *Engine) tradeFees(m *orderbook.Market, o *orderbook.Order, feeAsset string, fee, token, rate num.Decimal, f fill) {
	if token.IsPositive() {
		e.tradeSub(m, o, ledger.Available, o.Token, token, f, &rate)
	}
	if fee.IsPositive() {
		e.tradeSub(m, o, ledger.Available, feeAsset, fee, f, &rate)
	}
}

func (e *Engine) tradeSub(m *orderbook.Market, o *orderbook.Order, kind ledger.Kind, asset string, amount num.Decimal, f fill, rate *num.Decimal) {
	balance, err := e.ledger.Sub(o.UserID, kind, asset, amount)
	if err != nil {
		e.fatal("balance sub "+asset, o, err)
		return
	}
	e.balanceHistory(m, o, asset, amount.Neg(), balance, f, rate)
}

func (e *Engine) tradeAdd(m *orderbook.Market, o *orderbook.Order, asset string, amount num.Decimal, f fill) {
	balance, err := e.ledger.Add(o.UserID, ledger.Available, asset, amount)
	if err != nil {
		e.fatal("balance add "+asset, o, err)
		return
	}
	e.balanceHistory(m, o, asset, amount, balance, f, nil)
}

func (e *Engine) balanceHistory(m *orderbook.Market, o *orderbook.Order, asset string, change, balance num.Decimal, f fill, rate *num.Decimal) {
	row := BalanceRow{
		Time:     o.UpdateTime,
		UserID:   o.UserID,
		Asset:    asset,
		Business: "trade",
		Change:   change,
		Balance:  balance,
		Detail: BalanceDetail{
			Market:  m.Name,
			OrderID: o.ID,
			Price:   f.price,
			Amount:  f.amount,
			FeeRate: rate,
		},
	}
	if err := e.sink.BalanceHistory(row); err != nil {
		e.fatal("append balance history", o, err)
	}
}
