package service

import (
	"github.com/pkg/errors"

	"github.com/gnuser/red-envelope-server/domain/envelope"
	"github.com/gnuser/red-envelope-server/domain/matching"
	"github.com/gnuser/red-envelope-server/domain/num"
	"github.com/gnuser/red-envelope-server/domain/orderbook"
)

// MarketInfo describes one configured market.
type MarketInfo struct {
	Name      string      `json:"name"`
	Stock     string      `json:"stock"`
	Money     string      `json:"money"`
	StockPrec int         `json:"stock_prec"`
	MoneyPrec int         `json:"money_prec"`
	FeePrec   int         `json:"fee_prec"`
	MinAmount num.Decimal `json:"min_amount"`
}

// BestPrice is the top of one market's book. Missing sides stay zero.
type BestPrice struct {
	Market string      `json:"market"`
	Ask    num.Decimal `json:"ask"`
	Bid    num.Decimal `json:"bid"`
	Last   num.Decimal `json:"last"`
}

func clones(orders []*orderbook.Order) []orderbook.Order {
	out := make([]orderbook.Order, len(orders))
	for i, o := range orders {
		out[i] = o.Clone()
	}
	return out
}

func (s *OrderService) Order(market string, id uint64) (orderbook.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.market(market)
	if err != nil {
		return orderbook.Order{}, err
	}
	o, ok := m.Order(id)
	if !ok {
		return orderbook.Order{}, errors.Wrapf(matching.ErrOrderNotFound, "id %d", id)
	}
	return o.Clone(), nil
}

// UserOrders pages a user's resting orders, newest first, and returns
// the total count.
func (s *OrderService) UserOrders(market string, user uint32, offset, limit int) ([]orderbook.Order, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.market(market)
	if err != nil {
		return nil, 0, err
	}
	orders, total := m.UserOrders(user, offset, limit)
	return clones(orders), total, nil
}

// Book pages one side in priority order.
func (s *OrderService) Book(market string, side orderbook.Side, offset, limit int) ([]orderbook.Order, int, error) {
	if err := checkSide(side); err != nil {
		return nil, 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.market(market)
	if err != nil {
		return nil, 0, err
	}
	orders, total := m.Book(side, offset, limit)
	return clones(orders), total, nil
}

func (s *OrderService) Depth(market string, limit int) (orderbook.Depth, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.market(market)
	if err != nil {
		return orderbook.Depth{}, err
	}
	return m.Depth(limit), nil
}

// MergedDepth buckets levels by interval, for example "0.1" or "10".
func (s *OrderService) MergedDepth(market string, limit int, interval string) (orderbook.Depth, error) {
	step, err := num.DecimalFromString(interval)
	if err != nil || !step.IsPositive() {
		return orderbook.Depth{}, invalid("interval %q", interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.market(market)
	if err != nil {
		return orderbook.Depth{}, err
	}
	return m.MergedDepth(limit, step), nil
}

func (s *OrderService) MarketList() []MarketInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	markets := s.engine.Markets()
	out := make([]MarketInfo, 0, len(markets))
	for _, m := range markets {
		out = append(out, MarketInfo{
			Name:      m.Name,
			Stock:     m.Stock,
			Money:     m.Money,
			StockPrec: m.StockPrec,
			MoneyPrec: m.MoneyPrec,
			FeePrec:   m.FeePrec,
			MinAmount: m.MinAmount,
		})
	}
	return out
}

// MarketSummary reports book totals for the named markets, or for all
// markets when none are named.
func (s *OrderService) MarketSummary(names ...string) ([]orderbook.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var markets []*orderbook.Market
	if len(names) == 0 {
		markets = s.engine.Markets()
	} else {
		for _, name := range names {
			m, err := s.market(name)
			if err != nil {
				return nil, err
			}
			markets = append(markets, m)
		}
	}

	out := make([]orderbook.Status, 0, len(markets))
	for _, m := range markets {
		out = append(out, m.Status())
	}
	return out, nil
}

// MarketDepth returns the best ask, best bid and last price of every
// market.
func (s *OrderService) MarketDepth() []BestPrice {
	s.mu.Lock()
	defer s.mu.Unlock()

	markets := s.engine.Markets()
	out := make([]BestPrice, 0, len(markets))
	for _, m := range markets {
		bp := BestPrice{Market: m.Name, Last: s.engine.LastPrice(m.Name)}
		if o, ok := m.Best(orderbook.Ask); ok {
			bp.Ask = o.Price
		}
		if o, ok := m.Best(orderbook.Bid); ok {
			bp.Bid = o.Price
		}
		out = append(out, bp)
	}
	return out
}

func (s *OrderService) LastPrice(market string) (num.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.market(market); err != nil {
		return num.Zero, err
	}
	return s.engine.LastPrice(market), nil
}

func (s *OrderService) Envelope(id uint64) (envelope.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.envelopes.Get(id)
	if !ok {
		return envelope.Envelope{}, errors.Wrapf(envelope.ErrNotFound, "id %d", id)
	}
	return e, nil
}

func (s *OrderService) UserEnvelopes(user uint32) []envelope.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.envelopes.UserEnvelopes(user)
}
