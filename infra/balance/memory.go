// Package balance implements the ledger the engine debits and credits.
package balance

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/gnuser/red-envelope-server/domain/ledger"
	"github.com/gnuser/red-envelope-server/domain/num"
)

var ErrUnknownAsset = errors.New("balance: unknown asset")

type key struct {
	user  uint32
	kind  ledger.Kind
	asset string
}

// Entry is one non-zero balance, used for dumps and restores.
type Entry struct {
	UserID uint32
	Kind   ledger.Kind
	Asset  string
	Value  num.Decimal
}

// Memory is an in-process ledger. Every value is kept at the asset's
// storage precision. It is safe for concurrent use.
type Memory struct {
	mu       sync.RWMutex
	assets   map[string]int
	balances map[key]num.Decimal
	// onChange observes every committed value; Store uses it to persist.
	onChange func(key, num.Decimal) error
}

func NewMemory(assets map[string]int) *Memory {
	cp := make(map[string]int, len(assets))
	for k, v := range assets {
		cp[k] = v
	}
	return &Memory{
		assets:   cp,
		balances: make(map[key]num.Decimal),
	}
}

// AssetPrec reports the storage precision of asset.
func (l *Memory) AssetPrec(asset string) (int, bool) {
	p, ok := l.assets[asset]
	return p, ok
}

func (l *Memory) Get(user uint32, kind ledger.Kind, asset string) (num.Decimal, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	v, ok := l.balances[key{user, kind, asset}]
	return v, ok
}

func (l *Memory) Add(user uint32, kind ledger.Kind, asset string, amount num.Decimal) (num.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.add(key{user, kind, asset}, amount)
}

func (l *Memory) Sub(user uint32, kind ledger.Kind, asset string, amount num.Decimal) (num.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sub(key{user, kind, asset}, amount)
}

// Freeze moves amount from available to frozen.
func (l *Memory) Freeze(user uint32, asset string, amount num.Decimal) error {
	return l.move(key{user, ledger.Available, asset}, key{user, ledger.Frozen, asset}, amount)
}

// Unfreeze moves amount from frozen back to available.
func (l *Memory) Unfreeze(user uint32, asset string, amount num.Decimal) error {
	return l.move(key{user, ledger.Frozen, asset}, key{user, ledger.Available, asset}, amount)
}

// Entries returns every stored balance.
func (l *Memory) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, 0, len(l.balances))
	for k, v := range l.balances {
		out = append(out, Entry{UserID: k.user, Kind: k.kind, Asset: k.asset, Value: v})
	}
	return out
}

func (l *Memory) move(from, to key, amount num.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.sub(from, amount); err != nil {
		return err
	}
	if _, err := l.add(to, amount); err != nil {
		// add only fails on an unknown asset, which sub already rejected
		return errors.Wrap(err, "move")
	}
	return nil
}

func (l *Memory) normalize(asset string, amount num.Decimal) (num.Decimal, error) {
	prec, ok := l.assets[asset]
	if !ok {
		return num.Zero, errors.Wrap(ErrUnknownAsset, asset)
	}
	if amount.IsNegative() {
		return num.Zero, ledger.ErrInvalidValue
	}
	return num.Rescale(amount, prec), nil
}

func (l *Memory) add(k key, amount num.Decimal) (num.Decimal, error) {
	amount, err := l.normalize(k.asset, amount)
	if err != nil {
		return num.Zero, err
	}
	next := l.balances[k].Add(amount)
	return next, l.set(k, next)
}

func (l *Memory) sub(k key, amount num.Decimal) (num.Decimal, error) {
	amount, err := l.normalize(k.asset, amount)
	if err != nil {
		return num.Zero, err
	}
	cur, ok := l.balances[k]
	if !ok || cur.LessThan(amount) {
		return cur, errors.Wrapf(ledger.ErrNotEnough, "user %d %s %s", k.user, k.kind, k.asset)
	}
	next := cur.Sub(amount)
	return next, l.set(k, next)
}

func (l *Memory) set(k key, v num.Decimal) error {
	if l.onChange != nil {
		if err := l.onChange(k, v); err != nil {
			return err
		}
	}
	if v.IsZero() && k.kind == ledger.Frozen {
		delete(l.balances, k)
		return nil
	}
	l.balances[k] = v
	return nil
}

// Restore sets a balance directly. It is meant for loading, not trading.
func (l *Memory) Restore(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[key{e.UserID, e.Kind, e.Asset}] = e.Value
}

var _ ledger.Ledger = (*Memory)(nil)
