package orderbook

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/gnuser/red-envelope-server/domain/num"
)

var (
	ErrInvalidMarket = errors.New("orderbook: invalid market config")
	ErrUnknownAsset  = errors.New("orderbook: unknown asset")
)

// OrderBookMaxLen caps a single Book page.
const OrderBookMaxLen = 101

// AssetBook reports the storage precision of known assets.
type AssetBook interface {
	AssetPrec(name string) (int, bool)
}

type MarketConfig struct {
	Name      string
	Stock     string
	Money     string
	StockPrec int
	MoneyPrec int
	FeePrec   int
	MinAmount num.Decimal
}

// Market owns one book and the id and user indices over it.
// A market is not safe for concurrent use.
type Market struct {
	Name      string
	Stock     string
	Money     string
	StockPrec int
	MoneyPrec int
	FeePrec   int
	MinAmount num.Decimal

	asks   *Index
	bids   *Index
	orders map[OrderKey]*Order
	users  map[uint32]*Index
}

// NewMarket validates cfg and returns a ready market.
func NewMarket(cfg MarketConfig, assets AssetBook) (*Market, error) {
	stockPrec, ok := assets.AssetPrec(cfg.Stock)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownAsset, "stock %q", cfg.Stock)
	}
	moneyPrec, ok := assets.AssetPrec(cfg.Money)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownAsset, "money %q", cfg.Money)
	}
	if cfg.StockPrec+cfg.MoneyPrec > moneyPrec {
		return nil, errors.Wrapf(ErrInvalidMarket, "%s: stock_prec + money_prec > %d", cfg.Name, moneyPrec)
	}
	if cfg.StockPrec+cfg.FeePrec > stockPrec {
		return nil, errors.Wrapf(ErrInvalidMarket, "%s: stock_prec + fee_prec > %d", cfg.Name, stockPrec)
	}
	if cfg.MoneyPrec+cfg.FeePrec > moneyPrec {
		return nil, errors.Wrapf(ErrInvalidMarket, "%s: money_prec + fee_prec > %d", cfg.Name, moneyPrec)
	}
	if cfg.Name == "" || cfg.MinAmount.IsNegative() {
		return nil, errors.Wrap(ErrInvalidMarket, "empty name or negative min amount")
	}

	return &Market{
		Name:      cfg.Name,
		Stock:     cfg.Stock,
		Money:     cfg.Money,
		StockPrec: cfg.StockPrec,
		MoneyPrec: cfg.MoneyPrec,
		FeePrec:   cfg.FeePrec,
		MinAmount: cfg.MinAmount,
		asks:      NewIndex(AskOrdering{}),
		bids:      NewIndex(BidOrdering{}),
		orders:    make(map[OrderKey]*Order),
		users:     make(map[uint32]*Index),
	}, nil
}

func (m *Market) side(s Side) *Index {
	if s == Ask {
		return m.asks
	}
	return m.bids
}

// Put inserts a resting limit order into the side book, the id map and
// the owner's list. Either all three succeed or none is changed.
func (m *Market) Put(o *Order) error {
	if o.Type != LimitOrder {
		return fmt.Errorf("orderbook: only limit orders rest, got %s", o.Type)
	}
	if _, ok := m.orders[o.Key()]; ok {
		return ErrDuplicateOrder
	}
	book := m.side(o.Side)
	if err := book.Insert(o); err != nil {
		return err
	}
	list, ok := m.users[o.UserID]
	if !ok {
		list = NewIndex(UserListOrdering{})
		m.users[o.UserID] = list
	}
	if err := list.Insert(o); err != nil {
		book.Delete(o)
		return err
	}
	m.orders[o.Key()] = o
	return nil
}

// Remove drops o from every index. It reports false when o was not
// resting in this market.
func (m *Market) Remove(o *Order) bool {
	if _, ok := m.orders[o.Key()]; !ok {
		return false
	}
	delete(m.orders, o.Key())
	m.side(o.Side).Delete(o)
	if list, ok := m.users[o.UserID]; ok {
		list.Delete(o)
		if list.Len() == 0 {
			delete(m.users, o.UserID)
		}
	}
	return true
}

// Order returns the resting order with id.
func (m *Market) Order(id uint64) (*Order, bool) {
	o, ok := m.orders[OrderKey{ID: id}]
	return o, ok
}

// UserOrders returns a page of the user's resting orders, newest first,
// and the total count.
func (m *Market) UserOrders(user uint32, offset, limit int) ([]*Order, int) {
	list, ok := m.users[user]
	if !ok {
		return nil, 0
	}
	if limit > OrderBookMaxLen {
		limit = OrderBookMaxLen
	}
	return page(list, offset, limit), list.Len()
}

// Book returns a page of one side in matching priority order and the
// side's size.
func (m *Market) Book(side Side, offset, limit int) ([]*Order, int) {
	if limit > OrderBookMaxLen {
		limit = OrderBookMaxLen
	}
	idx := m.side(side)
	return page(idx, offset, limit), idx.Len()
}

// Best returns the best resting order on side.
func (m *Market) Best(side Side) (*Order, bool) {
	return m.side(side).Best()
}

// Ascend walks one side from the best order.
func (m *Market) Ascend(side Side, fn func(*Order) bool) {
	m.side(side).Ascend(fn)
}

// Orders walks every resting order, asks first.
func (m *Market) Orders(fn func(*Order) bool) {
	cont := true
	m.asks.Ascend(func(o *Order) bool {
		cont = fn(o)
		return cont
	})
	if !cont {
		return
	}
	m.bids.Ascend(fn)
}

type Status struct {
	Name      string
	AskCount  int
	AskAmount num.Decimal
	BidCount  int
	BidAmount num.Decimal
}

func (m *Market) Status() Status {
	return Status{
		Name:      m.Name,
		AskCount:  m.asks.Len(),
		AskAmount: m.asks.TotalLeft(),
		BidCount:  m.bids.Len(),
		BidAmount: m.bids.TotalLeft(),
	}
}

func page(idx *Index, offset, limit int) []*Order {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		return nil
	}
	out := make([]*Order, 0, limit)
	i := 0
	idx.Ascend(func(o *Order) bool {
		if i >= offset {
			out = append(out, o)
		}
		i++
		return len(out) < limit
	})
	return out
}
