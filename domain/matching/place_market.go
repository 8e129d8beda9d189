package matching

import (
	"github.com/gnuser/red-envelope-server/domain/num"
	"github.com/gnuser/red-envelope-server/domain/orderbook"
)

// MarketRequest places a market order. For an ask Amount is stock to
// sell. For a bid Amount is the money budget to spend.
type MarketRequest struct {
	UserID   uint32
	Side     orderbook.Side
	Amount   num.Decimal
	TakerFee num.Decimal
	Source   string
	orderbook.Discount
	Time float64
}

// PlaceMarket fills what the opposite side allows and drops the rest.
// Market orders never rest.
func (e *Engine) PlaceMarket(mode Mode, m *orderbook.Market, req MarketRequest) (orderbook.Order, error) {
	if err := e.checkRates(req.Discount); err != nil {
		return orderbook.Order{}, err
	}
	if req.Side == orderbook.Ask {
		if !e.hasAvailable(mode, req.UserID, m.Stock, req.Amount) {
			return orderbook.Order{}, ErrInsufficientBalance
		}
		if _, ok := m.Best(orderbook.Bid); !ok {
			return orderbook.Order{}, ErrNoCounterparty
		}
		if req.Amount.LessThan(m.MinAmount) {
			return orderbook.Order{}, ErrAmountTooSmall
		}
	} else {
		if !e.hasAvailable(mode, req.UserID, m.Money, req.Amount) {
			return orderbook.Order{}, ErrInsufficientBalance
		}
		best, ok := m.Best(orderbook.Ask)
		if !ok {
			return orderbook.Order{}, ErrNoCounterparty
		}
		if req.Amount.LessThan(best.Price.Mul(m.MinAmount)) {
			return orderbook.Order{}, ErrAmountTooSmall
		}
	}

	now := e.now(req.Time)
	o := e.newOrder()
	o.Market = m.Name
	o.Side = req.Side
	o.Type = orderbook.MarketOrder
	o.UserID = req.UserID
	o.CreateTime = now
	o.UpdateTime = now
	o.Price = num.Zero
	o.Amount = req.Amount
	o.Left = req.Amount
	o.Freeze = num.Zero
	o.TakerFee = req.TakerFee
	o.MakerFee = num.Zero
	o.Source = req.Source
	o.Discount = req.Discount

	e.execute(mode, m, o)

	out := o.Clone()
	if mode.live() {
		e.orderHistory(o)
		e.emitOrder(EventFinish, m, o)
	}
	e.release(o)
	return out, nil
}
