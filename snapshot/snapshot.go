package snapshot

import (
	"time"

	"github.com/pkg/errors"

	"github.com/gnuser/red-envelope-server/domain/envelope"
	"github.com/gnuser/red-envelope-server/domain/matching"
	"github.com/gnuser/red-envelope-server/domain/num"
	"github.com/gnuser/red-envelope-server/domain/orderbook"
)

type Snapshot struct {
	Seq     uint64
	Created time.Time

	OrderID    uint64
	DealID     uint64
	EnvelopeID uint64

	Orders     []orderbook.Order
	Envelopes  []envelope.Envelope
	LastPrices map[string]num.Decimal
}

// Empty reports whether s carries no state, as after a first start.
func (s *Snapshot) Empty() bool {
	return s.Seq == 0 && len(s.Orders) == 0 && len(s.Envelopes) == 0
}

// Capture copies the state of e and env. The caller must hold off
// writers while it runs.
func Capture(seq uint64, e *matching.Engine, env *envelope.Store) *Snapshot {
	orderID, dealID := e.Counters()
	s := &Snapshot{
		Seq:        seq,
		Created:    time.Now(),
		OrderID:    orderID,
		DealID:     dealID,
		EnvelopeID: env.LastID(),
		Orders:     make([]orderbook.Order, 0, 1024),
		Envelopes:  env.All(),
		LastPrices: make(map[string]num.Decimal),
	}

	for _, m := range e.Markets() {
		m.Orders(func(o *orderbook.Order) bool {
			s.Orders = append(s.Orders, o.Clone())
			return true
		})
		if last := e.LastPrice(m.Name); !last.IsZero() {
			s.LastPrices[m.Name] = last
		}
	}
	return s
}

// Restore loads s into an empty engine and store. Orders go straight
// into their books without matching.
func (s *Snapshot) Restore(e *matching.Engine, env *envelope.Store) error {
	for _, src := range s.Orders {
		m, ok := e.Market(src.Market)
		if !ok {
			return errors.Wrapf(matching.ErrMarketNotFound, "order %d: %s", src.ID, src.Market)
		}
		if err := m.Put(e.NewRestingOrder(src)); err != nil {
			return errors.Wrapf(err, "restore order %d", src.ID)
		}
	}
	for _, ev := range s.Envelopes {
		env.Restore(ev)
	}
	for market, price := range s.LastPrices {
		e.SetLastPrice(market, price)
	}
	e.RestoreCounters(s.OrderID, s.DealID)
	env.RestoreLastID(s.EnvelopeID)
	return nil
}
