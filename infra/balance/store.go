package balance

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"github.com/gnuser/red-envelope-server/domain/ledger"
	"github.com/gnuser/red-envelope-server/domain/num"
)

const keyPrefix = "balance/"

// Store is a Memory ledger whose every change is written through to
// pebble, so balances survive a restart independently of the operation
// log. Replay never moves balances, it relies on this store instead.
type Store struct {
	*Memory
	db *pebble.DB
}

// OpenStore opens (or creates) the store in dir and loads every balance.
func OpenStore(dir string, assets map[string]int) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "open balance store")
	}
	s := &Store{Memory: NewMemory(assets), db: db}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.Memory.onChange = s.persist
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) load() error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		k, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		v, err := num.DecimalFromString(string(iter.Value()))
		if err != nil {
			return errors.Wrapf(err, "balance %s", iter.Key())
		}
		s.Memory.balances[k] = v
	}
	return iter.Error()
}

func (s *Store) persist(k key, v num.Decimal) error {
	if v.IsZero() && k.kind == ledger.Frozen {
		return s.db.Delete(encodeKey(k), pebble.Sync)
	}
	return s.db.Set(encodeKey(k), []byte(v.String()), pebble.Sync)
}

// balance/<user>/<kind>/<asset>
func encodeKey(k key) []byte {
	return []byte(fmt.Sprintf("%s%010d/%d/%s", keyPrefix, k.user, k.kind, k.asset))
}

func parseKey(b []byte) (key, error) {
	parts := strings.SplitN(strings.TrimPrefix(string(b), keyPrefix), "/", 3)
	if len(parts) != 3 {
		return key{}, fmt.Errorf("invalid balance key %q", b)
	}
	user, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return key{}, err
	}
	kind, err := strconv.Atoi(parts[1])
	if err != nil {
		return key{}, err
	}
	return key{user: uint32(user), kind: ledger.Kind(kind), asset: parts[2]}, nil
}
