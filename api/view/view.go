// Package view holds the JSON shapes the command and query APIs return.
package view

import (
	"github.com/gnuser/red-envelope-server/domain/envelope"
	"github.com/gnuser/red-envelope-server/domain/num"
	"github.com/gnuser/red-envelope-server/domain/orderbook"
)

type Order struct {
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

func FromOrder(o orderbook.Order) Order {
	return Order{
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

func FromOrders(orders []orderbook.Order) []Order {
	out := make([]Order, len(orders))
	for i, o := range orders {
		out[i] = FromOrder(o)
	}
	return out
}

// OrderPage is one page of a paged order query.
type OrderPage struct {
	Offset  int     `json:"offset"`
	Limit   int     `json:"limit"`
	Total   int     `json:"total"`
	Records []Order `json:"records"`
}

type Opening struct {
	User   uint32      `json:"user_id"`
	Amount num.Decimal `json:"amount"`
	Time   float64     `json:"time"`
}

type Envelope struct {
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
	Openings    []Opening   `json:"openings"`
}

func FromEnvelope(e envelope.Envelope) Envelope {
	out := Envelope{
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
		Openings:    make([]Opening, len(e.Openings)),
	}
	for i, o := range e.Openings {
		out.Openings[i] = Opening{User: o.UserID, Amount: o.Amount, Time: o.Time}
	}
	return out
}

func FromEnvelopes(envs []envelope.Envelope) []Envelope {
	out := make([]Envelope, len(envs))
	for i, e := range envs {
		out[i] = FromEnvelope(e)
	}
	return out
}

// Level is one depth row as [price, amount].
type Level [2]num.Decimal

type Depth struct {
	Asks []Level `json:"asks"`
	Bids []Level `json:"bids"`
}

func FromDepth(d orderbook.Depth) Depth {
	return Depth{Asks: levels(d.Asks), Bids: levels(d.Bids)}
}

func levels(in []orderbook.PriceLevel) []Level {
	out := make([]Level, len(in))
	for i, l := range in {
		out[i] = Level{l.Price, l.Amount}
	}
	return out
}

type Status struct {
	Name      string      `json:"name"`
	AskCount  int         `json:"ask_count"`
	AskAmount num.Decimal `json:"ask_amount"`
	BidCount  int         `json:"bid_count"`
	BidAmount num.Decimal `json:"bid_amount"`
}

func FromStatus(s orderbook.Status) Status {
	return Status{
		Name:      s.Name,
		AskCount:  s.AskCount,
		AskAmount: s.AskAmount,
		BidCount:  s.BidCount,
		BidAmount: s.BidAmount,
	}
}
