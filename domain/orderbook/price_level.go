package orderbook

import (
	"github.com/gnuser/red-envelope-server/domain/num"
)

// PriceLevel is one aggregated row of a depth view.
type PriceLevel struct {
	Price      num.Decimal
	Amount     num.Decimal
	OrderCount int
}

type Depth struct {
	Asks []PriceLevel
	Bids []PriceLevel
}

// Depth aggregates equal prices into at most limit levels per side,
// capped at OrderBookMaxLen.
func (m *Market) Depth(limit int) Depth {
	return Depth{
		Asks: levels(m.asks, limit, func(p num.Decimal) num.Decimal { return p }),
		Bids: levels(m.bids, limit, func(p num.Decimal) num.Decimal { return p }),
	}
}

// MergedDepth buckets prices by interval. Asks round up and bids round
// down so a bucket never advertises a better price than exists.
func (m *Market) MergedDepth(limit int, interval num.Decimal) Depth {
	if !interval.IsPositive() {
		return m.Depth(limit)
	}
	return Depth{
		Asks: levels(m.asks, limit, func(p num.Decimal) num.Decimal {
			return p.Div(interval).Ceil().Mul(interval)
		}),
		Bids: levels(m.bids, limit, func(p num.Decimal) num.Decimal {
			return p.Div(interval).Floor().Mul(interval)
		}),
	}
}

func levels(idx *Index, limit int, bucket func(num.Decimal) num.Decimal) []PriceLevel {
	if limit <= 0 {
		return nil
	}
	if limit > OrderBookMaxLen {
		limit = OrderBookMaxLen
	}
	out := make([]PriceLevel, 0, limit)
	idx.Ascend(func(o *Order) bool {
		price := bucket(o.Price)
		if n := len(out); n > 0 && out[n-1].Price.Equal(price) {
			out[n-1].Amount = out[n-1].Amount.Add(o.Left)
			out[n-1].OrderCount++
			return true
		}
		if len(out) == limit {
			return false
		}
		out = append(out, PriceLevel{Price: price, Amount: o.Left, OrderCount: 1})
		return true
	})
	return out
}
