package orderbook

import (
	"errors"

	"github.com/google/btree"

	"github.com/gnuser/red-envelope-server/domain/num"
)

var ErrDuplicateOrder = errors.New("orderbook: duplicate order")

const btreeDegree = 32

// Index is an ordered set of orders. It is not safe for concurrent use.
type Index struct {
	tree *btree.BTreeG[*Order]
	ids  map[OrderKey]*Order
}

func NewIndex(ord Ordering) *Index {
	return &Index{
		tree: btree.NewG(btreeDegree, func(a, b *Order) bool {
			return ord.Compare(a, b) < 0
		}),
		ids: make(map[OrderKey]*Order),
	}
}

// Insert adds o. Inserting an id twice is an error and leaves the index
// unchanged.
func (x *Index) Insert(o *Order) error {
	if _, ok := x.ids[o.Key()]; ok {
		return ErrDuplicateOrder
	}
	x.tree.ReplaceOrInsert(o)
	x.ids[o.Key()] = o
	return nil
}

// Delete removes o by identity. Price and type must not have changed
// since Insert because they locate the node.
func (x *Index) Delete(o *Order) bool {
	if _, ok := x.ids[o.Key()]; !ok {
		return false
	}
	x.tree.Delete(o)
	delete(x.ids, o.Key())
	return true
}

func (x *Index) Find(id uint64) (*Order, bool) {
	o, ok := x.ids[OrderKey{ID: id}]
	return o, ok
}

// Best returns the first order in priority order.
func (x *Index) Best() (*Order, bool) {
	return x.tree.Min()
}

// Ascend walks from the best order until fn returns false.
// fn must not mutate the index.
func (x *Index) Ascend(fn func(*Order) bool) {
	x.tree.Ascend(btree.ItemIteratorG[*Order](fn))
}

func (x *Index) Len() int {
	return x.tree.Len()
}

// TotalLeft sums Left over every order in the index.
func (x *Index) TotalLeft() num.Decimal {
	total := num.Zero
	x.tree.Ascend(func(o *Order) bool {
		total = total.Add(o.Left)
		return true
	})
	return total
}
