package orderbook

// Ordering decides the iteration order of an Index.
// Compare returns -1, 0 or 1. Zero means the same order id.
type Ordering interface {
	Compare(a, b *Order) int
}

// AskOrdering puts the lowest price first, then the earliest id.
type AskOrdering struct{}

// BidOrdering puts the highest price first, then the earliest id.
type BidOrdering struct{}

// UserListOrdering lists a user's orders newest first.
type UserListOrdering struct{}

func (AskOrdering) Compare(a, b *Order) int {
	if a.ID == b.ID {
		return 0
	}
	if a.Type != b.Type {
		return 1
	}
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c
	}
	return compareID(a.ID, b.ID)
}

func (BidOrdering) Compare(a, b *Order) int {
	if a.ID == b.ID {
		return 0
	}
	if a.Type != b.Type {
		return 1
	}
	if c := b.Price.Cmp(a.Price); c != 0 {
		return c
	}
	return compareID(a.ID, b.ID)
}

func (UserListOrdering) Compare(a, b *Order) int {
	if a.ID == b.ID {
		return 0
	}
	return -compareID(a.ID, b.ID)
}

// OrderingFor returns the book ordering of a side.
func OrderingFor(side Side) Ordering {
	if side == Ask {
		return AskOrdering{}
	}
	return BidOrdering{}
}

func compareID(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
