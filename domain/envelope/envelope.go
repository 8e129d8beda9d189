// Package envelope implements red envelopes: a supply frozen by its owner,
// split once into shares that other users open, one share per user.
//
// Unlike a market there is no price and no second side, so envelopes live
// in a plain id index. A Store is single-writer like the engine.
package envelope

import (
	"errors"

	"github.com/gnuser/red-envelope-server/domain/num"
)

// AmountPrec is the scale of every share.
const AmountPrec = 8

// Bounds on the number of shares one envelope splits into.
const (
	MinShare = 1
	MaxShare = 1000
)

var (
	ErrNotFound            = errors.New("envelope not found")
	ErrInvalid             = errors.New("invalid envelope")
	ErrInsufficientBalance = errors.New("balance not enough")
	ErrFinished            = errors.New("envelope fully opened")
)

type Type int

const (
	Average Type = iota + 1
	Random
)

func (t Type) String() string {
	switch t {
	case Average:
		return "average"
	case Random:
		return "random"
	default:
		return "unknown"
	}
}

type Role int

const (
	RoleMaker Role = iota + 1
	RoleTaker
	RoleExpire
)

func (r Role) String() string {
	switch r {
	case RoleMaker:
		return "maker"
	case RoleTaker:
		return "taker"
	case RoleExpire:
		return "expire"
	default:
		return "unknown"
	}
}

// Opening records who opened which share and when.
type Opening struct {
	UserID uint32
	Amount num.Decimal
	Time   float64
}

type Envelope struct {
	ID          uint64
	UserID      uint32
	Asset       string
	Type        Type
	Supply      num.Decimal
	Leave       num.Decimal
	Share       int
	ExpireHours uint32
	CreateTime  float64

	// Shares is fixed at creation. Openings[i] took Shares[i].
	Shares   []num.Decimal
	Openings []Opening
}

func (e *Envelope) Count() int {
	return len(e.Openings)
}

// Done reports whether every share has been opened.
func (e *Envelope) Done() bool {
	return e.Count() == e.Share
}

// Expired reports whether the envelope outlived its expiry at now.
func (e *Envelope) Expired(now float64) bool {
	return e.CreateTime+float64(e.ExpireHours)*3600 <= now
}

func (e *Envelope) openingOf(user uint32) (int, bool) {
	for i, o := range e.Openings {
		if o.UserID == user {
			return i, true
		}
	}
	return 0, false
}

// Clone deep copies e for readers.
func (e *Envelope) Clone() Envelope {
	out := *e
	out.Shares = append([]num.Decimal(nil), e.Shares...)
	out.Openings = append([]Opening(nil), e.Openings...)
	return out
}

// Row is one envelope history entry.
type Row struct {
	Time       float64
	UserID     uint32
	Asset      string
	EnvelopeID uint64
	Role       Role
	Amount     num.Decimal
}

type EventKind int

const (
	EventPut EventKind = iota + 1
	EventOpen
	EventFinish
)

func (k EventKind) String() string {
	switch k {
	case EventPut:
		return "put"
	case EventOpen:
		return "open"
	case EventFinish:
		return "finish"
	default:
		return "unknown"
	}
}

// Sink receives envelope history and events in Live mode.
type Sink interface {
	EnvelopeHistory(Row) error
	EnvelopeEvent(EventKind, Envelope) error
}
