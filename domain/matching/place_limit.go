package matching

import (
	"github.com/pkg/errors"

	"github.com/gnuser/red-envelope-server/domain/num"
	"github.com/gnuser/red-envelope-server/domain/orderbook"
)

type LimitRequest struct {
	UserID   uint32
	Side     orderbook.Side
	Amount   num.Decimal
	Price    num.Decimal
	TakerFee num.Decimal
	MakerFee num.Decimal
	Source   string
	orderbook.Discount
	// Time pins create_time during replay. Zero means now.
	Time float64
	// Dropped replays an order whose remainder failed to rest when it
	// ran live. The remainder is discarded instead of resting.
	Dropped bool
}

// PlaceLimit matches a limit order and rests whatever is left.
// Preconditions are checked before anything changes, in this order:
// rates, balance, minimum amount.
func (e *Engine) PlaceLimit(mode Mode, m *orderbook.Market, req LimitRequest) (orderbook.Order, error) {
	if err := e.checkRates(req.Discount); err != nil {
		return orderbook.Order{}, err
	}
	if req.Side == orderbook.Ask {
		if !e.hasAvailable(mode, req.UserID, m.Stock, req.Amount) {
			return orderbook.Order{}, ErrInsufficientBalance
		}
	} else {
		if !e.hasAvailable(mode, req.UserID, m.Money, req.Amount.Mul(req.Price)) {
			return orderbook.Order{}, ErrInsufficientBalance
		}
	}
	if req.Amount.LessThan(m.MinAmount) {
		return orderbook.Order{}, ErrAmountTooSmall
	}

	now := e.now(req.Time)
	o := e.newOrder()
	o.Market = m.Name
	o.Side = req.Side
	o.Type = orderbook.LimitOrder
	o.UserID = req.UserID
	o.CreateTime = now
	o.UpdateTime = now
	o.Price = req.Price
	o.Amount = req.Amount
	o.Left = req.Amount
	o.Freeze = num.Zero
	o.TakerFee = req.TakerFee
	o.MakerFee = req.MakerFee
	o.Source = req.Source
	o.Discount = req.Discount

	e.execute(mode, m, o)

	if !o.Resting() {
		out := o.Clone()
		if mode.live() {
			e.emitOrder(EventFinish, m, o)
		}
		e.finish(mode, m, o)
		return out, nil
	}

	if !mode.live() && req.Dropped {
		out := o.Clone()
		e.release(o)
		return out, errors.Wrap(ErrInternal, "remainder dropped")
	}

	if err := e.rest(mode, m, o); err != nil {
		out := o.Clone()
		e.fatal("rest order", o, err)
		e.release(o)
		return out, errors.Wrap(ErrInternal, err.Error())
	}
	if mode.live() {
		e.emitOrder(EventPut, m, o)
	}
	return o.Clone(), nil
}

// rest freezes the remainder and inserts o into every index.
func (e *Engine) rest(mode Mode, m *orderbook.Market, o *orderbook.Order) error {
	asset := m.Stock
	o.Freeze = o.Left
	if o.Side == orderbook.Bid {
		asset = m.Money
		o.Freeze = o.Price.Mul(o.Left)
	}
	if mode.live() {
		if err := e.ledger.Freeze(o.UserID, asset, o.Freeze); err != nil {
			return errors.Wrap(err, "freeze")
		}
	}
	if err := m.Put(o); err != nil {
		if mode.live() {
			if uerr := e.ledger.Unfreeze(o.UserID, asset, o.Freeze); uerr != nil {
				e.fatal("unfreeze after failed put", o, uerr)
			}
		}
		return errors.Wrap(err, "put")
	}
	return nil
}

func (e *Engine) emitOrder(kind EventKind, m *orderbook.Market, o *orderbook.Order) {
	ev := OrderEvent{Kind: kind, Stock: m.Stock, Money: m.Money, Order: o.Clone()}
	if err := e.sink.OrderEvent(ev); err != nil {
		e.fatal("order event", o, err)
	}
}

func (e *Engine) orderHistory(o *orderbook.Order) {
	if err := e.sink.OrderHistory(o.Clone()); err != nil {
		e.fatal("append order history", o, err)
	}
}

// finish takes o out of every index, returns its remaining freeze and
// recycles it. o must not be used afterwards.
func (e *Engine) finish(mode Mode, m *orderbook.Market, o *orderbook.Order) {
	if m.Remove(o) && mode.live() && o.Freeze.IsPositive() {
		asset := m.Stock
		if o.Side == orderbook.Bid {
			asset = m.Money
		}
		if err := e.ledger.Unfreeze(o.UserID, asset, o.Freeze); err != nil {
			e.fatal("unfreeze on finish", o, err)
		}
	}
	if mode.live() && o.DealStock.IsPositive() {
		e.orderHistory(o)
	}
	e.release(o)
}
