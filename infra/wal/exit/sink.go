package exit

import (
	"strconv"

	"github.com/gnuser/red-envelope-server/domain/envelope"
	"github.com/gnuser/red-envelope-server/domain/matching"
	"github.com/gnuser/red-envelope-server/domain/num"
	"github.com/gnuser/red-envelope-server/domain/orderbook"
)

type Kind string

const (
	KindOrder           Kind = "orders"
	KindDeal            Kind = "deals"
	KindOrderHistory    Kind = "order_history"
	KindDealHistory     Kind = "deal_history"
	KindBalanceHistory  Kind = "balance_history"
	KindEnvelope        Kind = "envelopes"
	KindEnvelopeHistory Kind = "envelope_history"
)

// Kinds lists every message kind, in the order publishers declare them.
var Kinds = []Kind{
	KindOrder, KindDeal, KindOrderHistory, KindDealHistory,
	KindBalanceHistory, KindEnvelope, KindEnvelopeHistory,
}

// Sink turns engine and envelope callbacks into outbox messages.
type Sink struct {
	out *Outbox
}

var (
	_ matching.Sink = (*Sink)(nil)
	_ envelope.Sink = (*Sink)(nil)
)

func NewSink(out *Outbox) *Sink {
	return &Sink{out: out}
}

type orderJSON struct {
	ID        uint64      `json:"id"`
	Market    string      `json:"market"`
	Source    string      `json:"source"`
	Type      uint32      `json:"type"`
	Side      uint32      `json:"side"`
	User      uint32      `json:"user"`
	CTime     float64     `json:"ctime"`
	MTime     float64     `json:"mtime"`
	Price     num.Decimal `json:"price"`
	Amount    num.Decimal `json:"amount"`
	TakerFee  num.Decimal `json:"taker_fee"`
	MakerFee  num.Decimal `json:"maker_fee"`
	Left      num.Decimal `json:"left"`
	Freeze    num.Decimal `json:"freeze"`
	DealStock num.Decimal `json:"deal_stock"`
	DealMoney num.Decimal `json:"deal_money"`
	DealFee   num.Decimal `json:"deal_fee"`
	DealToken num.Decimal `json:"deal_token"`
	Token     string      `json:"token,omitempty"`
	Discount  num.Decimal `json:"discount"`
}

func toOrderJSON(o orderbook.Order) orderJSON {
	return orderJSON{
		ID:        o.ID,
		Market:    o.Market,
		Source:    o.Source,
		Type:      uint32(o.Type),
		Side:      uint32(o.Side),
		User:      o.UserID,
		CTime:     o.CreateTime,
		MTime:     o.UpdateTime,
		Price:     o.Price,
		Amount:    o.Amount,
		TakerFee:  o.TakerFee,
		MakerFee:  o.MakerFee,
		Left:      o.Left,
		Freeze:    o.Freeze,
		DealStock: o.DealStock,
		DealMoney: o.DealMoney,
		DealFee:   o.DealFee,
		DealToken: o.DealToken,
		Token:     o.Token,
		Discount:  o.Discount.Discount,
	}
}

type orderEventJSON struct {
	Event string    `json:"event"`
	Stock string    `json:"stock"`
	Money string    `json:"money"`
	Order orderJSON `json:"order"`
}

type dealJSON struct {
	ID       uint64      `json:"id"`
	Time     float64     `json:"time"`
	Market   string      `json:"market"`
	Stock    string      `json:"stock"`
	Money    string      `json:"money"`
	Side     uint32      `json:"side"`
	Price    num.Decimal `json:"price"`
	Amount   num.Decimal `json:"amount"`
	Deal     num.Decimal `json:"deal"`
	AskFee   num.Decimal `json:"ask_fee"`
	BidFee   num.Decimal `json:"bid_fee"`
	AskToken num.Decimal `json:"ask_token"`
	BidToken num.Decimal `json:"bid_token"`
	AskID    uint64      `json:"ask_id"`
	AskUser  uint32      `json:"ask_user_id"`
	AskRole  string      `json:"ask_role"`
	BidID    uint64      `json:"bid_id"`
	BidUser  uint32      `json:"bid_user_id"`
	BidRole  string      `json:"bid_role"`
}

func toDealJSON(d matching.Deal) dealJSON {
	return dealJSON{
		ID:       d.ID,
		Time:     d.Time,
		Market:   d.Market,
		Stock:    d.Stock,
		Money:    d.Money,
		Side:     uint32(d.TakerSide),
		Price:    d.Price,
		Amount:   d.Amount,
		Deal:     d.Deal,
		AskFee:   d.AskFee,
		BidFee:   d.BidFee,
		AskToken: d.AskToken,
		BidToken: d.BidToken,
		AskID:    d.AskOrderID,
		AskUser:  d.AskUserID,
		AskRole:  d.AskRole.String(),
		BidID:    d.BidOrderID,
		BidUser:  d.BidUserID,
		BidRole:  d.BidRole.String(),
	}
}

type balanceJSON struct {
	Time     float64                `json:"time"`
	User     uint32                 `json:"user_id"`
	Asset    string                 `json:"asset"`
	Business string                 `json:"business"`
	Change   num.Decimal            `json:"change"`
	Balance  num.Decimal            `json:"balance"`
	Detail   matching.BalanceDetail `json:"detail"`
}

type envelopeJSON struct {
	Event       string      `json:"event,omitempty"`
	ID          uint64      `json:"id"`
	User        uint32      `json:"user_id"`
	Asset       string      `json:"asset"`
	Type        uint32      `json:"type"`
	Supply      num.Decimal `json:"supply"`
	Leave       num.Decimal `json:"leave"`
	Share       int         `json:"share"`
	Count       int         `json:"count"`
	ExpireHours uint32      `json:"expire_hours"`
	CTime       float64     `json:"ctime"`
}

type envelopeRowJSON struct {
	Time       float64     `json:"time"`
	User       uint32      `json:"user_id"`
	Asset      string      `json:"asset"`
	EnvelopeID uint64      `json:"envelope_id"`
	Role       string      `json:"role"`
	Amount     num.Decimal `json:"amount"`
}

func userKey(id uint32) string {
	return strconv.FormatUint(uint64(id), 10)
}

func (s *Sink) OrderEvent(e matching.OrderEvent) error {
	_, err := s.out.PutNew(KindOrder, e.Order.Market, orderEventJSON{
		Event: e.Kind.String(),
		Stock: e.Stock,
		Money: e.Money,
		Order: toOrderJSON(e.Order),
	})
	return err
}

func (s *Sink) DealEvent(d matching.Deal) error {
	_, err := s.out.PutNew(KindDeal, d.Market, toDealJSON(d))
	return err
}

func (s *Sink) OrderHistory(o orderbook.Order) error {
	_, err := s.out.PutNew(KindOrderHistory, userKey(o.UserID), toOrderJSON(o))
	return err
}

func (s *Sink) DealHistory(d matching.Deal) error {
	_, err := s.out.PutNew(KindDealHistory, d.Market, toDealJSON(d))
	return err
}

func (s *Sink) BalanceHistory(r matching.BalanceRow) error {
	_, err := s.out.PutNew(KindBalanceHistory, userKey(r.UserID), balanceJSON{
		Time:     r.Time,
		User:     r.UserID,
		Asset:    r.Asset,
		Business: r.Business,
		Change:   r.Change,
		Balance:  r.Balance,
		Detail:   r.Detail,
	})
	return err
}

func (s *Sink) EnvelopeHistory(r envelope.Row) error {
	_, err := s.out.PutNew(KindEnvelopeHistory, userKey(r.UserID), envelopeRowJSON{
		Time:       r.Time,
		User:       r.UserID,
		Asset:      r.Asset,
		EnvelopeID: r.EnvelopeID,
		Role:       r.Role.String(),
		Amount:     r.Amount,
	})
	return err
}

func (s *Sink) EnvelopeEvent(kind envelope.EventKind, e envelope.Envelope) error {
	_, err := s.out.PutNew(KindEnvelope, userKey(e.UserID), envelopeJSON{
		Event:       kind.String(),
		ID:          e.ID,
		User:        e.UserID,
		Asset:       e.Asset,
		Type:        uint32(e.Type),
		Supply:      e.Supply,
		Leave:       e.Leave,
		Share:       e.Share,
		Count:       e.Count(),
		ExpireHours: e.ExpireHours,
		CTime:       e.CreateTime,
	})
	return err
}
