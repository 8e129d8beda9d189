package orderbook

import (
	"github.com/gnuser/red-envelope-server/domain/num"
)

type Side int
type OrderType int

const (
	Ask Side = iota + 1
	Bid
)

const (
	LimitOrder OrderType = iota + 1
	MarketOrder
)

func (s Side) String() string {
	switch s {
	case Ask:
		return "ask"
	case Bid:
		return "bid"
	default:
		return "unknown"
	}
}

func (s Side) Opposite() Side {
	if s == Ask {
		return Bid
	}
	return Ask
}

func (t OrderType) String() string {
	switch t {
	case LimitOrder:
		return "limit"
	case MarketOrder:
		return "market"
	default:
		return "unknown"
	}
}

// Discount is the optional fee token block. An empty Token disables it.
type Discount struct {
	Token     string
	Discount  num.Decimal
	TokenRate num.Decimal
	AssetRate num.Decimal
}

func (d Discount) Enabled() bool {
	return d.Token != ""
}

// Order is a resting or in-flight trade intent.
// Market orders never rest in a book.
type Order struct {
	ID         uint64
	Market     string
	Side       Side
	Type       OrderType
	UserID     uint32
	CreateTime float64
	UpdateTime float64

	Price    num.Decimal
	Amount   num.Decimal
	Left     num.Decimal
	Freeze   num.Decimal
	TakerFee num.Decimal
	MakerFee num.Decimal

	DealStock num.Decimal
	DealMoney num.Decimal
	DealFee   num.Decimal
	DealToken num.Decimal

	Source string
	Discount
}

// OrderKey is the by-value key of the id index.
type OrderKey struct {
	ID uint64
}

func (o *Order) Key() OrderKey {
	return OrderKey{ID: o.ID}
}

// Resting reports whether the order still has quantity to fill.
func (o *Order) Resting() bool {
	return o.Left.IsPositive()
}

// Clone returns a detached copy safe to hand to readers and sinks.
func (o *Order) Clone() Order {
	return *o
}

// Reset zeroes the order so a pooled value never leaks old state.
func (o *Order) Reset() {
	*o = Order{}
}
