package matching

import (
	"github.com/gnuser/red-envelope-server/domain/orderbook"
)

// Cancel finalizes a resting order and releases its whole freeze.
// Looking the order up, and checking who owns it, is the caller's job.
func (e *Engine) Cancel(mode Mode, m *orderbook.Market, o *orderbook.Order) orderbook.Order {
	out := o.Clone()
	if mode.live() {
		e.emitOrder(EventFinish, m, o)
	}
	e.finish(mode, m, o)
	return out
}

// CancelByID looks the order up and checks ownership before cancelling.
func (e *Engine) CancelByID(mode Mode, m *orderbook.Market, user uint32, id uint64) (orderbook.Order, error) {
	o, ok := m.Order(id)
	if !ok {
		return orderbook.Order{}, ErrOrderNotFound
	}
	if o.UserID != user {
		return orderbook.Order{}, ErrUserMismatch
	}
	return e.Cancel(mode, m, o), nil
}
