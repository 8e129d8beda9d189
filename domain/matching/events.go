package matching

import (
	"github.com/gnuser/red-envelope-server/domain/num"
	"github.com/gnuser/red-envelope-server/domain/orderbook"
)

type EventKind int

const (
	EventPut EventKind = iota + 1
	EventUpdate
	EventFinish
)

func (k EventKind) String() string {
	switch k {
	case EventPut:
		return "put"
	case EventUpdate:
		return "update"
	case EventFinish:
		return "finish"
	default:
		return "unknown"
	}
}

type Role int

const (
	RoleMaker Role = iota + 1
	RoleTaker
)

func (r Role) String() string {
	if r == RoleMaker {
		return "maker"
	}
	return "taker"
}

// OrderEvent carries a detached copy of the order after the transition.
type OrderEvent struct {
	Kind  EventKind
	Stock string
	Money string
	Order orderbook.Order
}

// Deal is the canonical trade record, shared by both legs.
type Deal struct {
	ID        uint64
	Time      float64
	Market    string
	Stock     string
	Money     string
	TakerSide orderbook.Side

	Price    num.Decimal
	Amount   num.Decimal
	Deal     num.Decimal
	AskFee   num.Decimal
	BidFee   num.Decimal
	AskToken num.Decimal
	BidToken num.Decimal

	AskOrderID uint64
	AskUserID  uint32
	AskRole    Role
	BidOrderID uint64
	BidUserID  uint32
	BidRole    Role
}

// BalanceDetail is the audit detail of one trade leg.
type BalanceDetail struct {
	Market  string       `json:"m"`
	OrderID uint64       `json:"i"`
	Price   num.Decimal  `json:"p"`
	Amount  num.Decimal  `json:"a"`
	FeeRate *num.Decimal `json:"f,omitempty"`
}

// BalanceRow is one balance affecting leg of a trade. Change is signed.
type BalanceRow struct {
	Time     float64
	UserID   uint32
	Asset    string
	Business string
	Change   num.Decimal
	Balance  num.Decimal
	Detail   BalanceDetail
}

// Sink receives events and audit rows. It is only called in Live mode.
// A failed write is logged and never rolls back the balance change it
// describes; the operation log replay reconciles after a restart.
type Sink interface {
	OrderEvent(OrderEvent) error
	DealEvent(Deal) error
	OrderHistory(orderbook.Order) error
	DealHistory(Deal) error
	BalanceHistory(BalanceRow) error
}

type nopSink struct{}

func (nopSink) OrderEvent(OrderEvent) error        { return nil }
func (nopSink) DealEvent(Deal) error               { return nil }
func (nopSink) OrderHistory(orderbook.Order) error { return nil }
func (nopSink) DealHistory(Deal) error             { return nil }
func (nopSink) BalanceHistory(BalanceRow) error    { return nil }
