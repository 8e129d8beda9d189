// Package ledger is the balance contract the engine and the envelope
// store mutate. Implementations live in infra/balance.
package ledger

import (
	"errors"

	"github.com/gnuser/red-envelope-server/domain/num"
)

var (
	ErrNotEnough    = errors.New("ledger: balance not enough")
	ErrInvalidValue = errors.New("ledger: amount must be positive")
)

type Kind int

const (
	Available Kind = iota + 1
	Frozen
)

func (k Kind) String() string {
	switch k {
	case Available:
		return "available"
	case Frozen:
		return "frozen"
	default:
		return "unknown"
	}
}

// Ledger holds available and frozen balances per user and asset.
// Every call must be atomic and visible to the next call. Sub must
// return ErrNotEnough instead of going negative.
type Ledger interface {
	Get(user uint32, kind Kind, asset string) (num.Decimal, bool)
	Add(user uint32, kind Kind, asset string, amount num.Decimal) (num.Decimal, error)
	Sub(user uint32, kind Kind, asset string, amount num.Decimal) (num.Decimal, error)
	Freeze(user uint32, asset string, amount num.Decimal) error
	Unfreeze(user uint32, asset string, amount num.Decimal) error
}
