package envelope

import (
	"math/rand/v2"

	"github.com/shopspring/decimal"

	"github.com/gnuser/red-envelope-server/domain/num"
)

// splitAverage gives every share supply/share at AmountPrec. The first
// share absorbs the rounding remainder so the shares sum to supply.
func splitAverage(supply num.Decimal, share int) []num.Decimal {
	each := supply.DivRound(num.DecimalFromInt(int64(share)), AmountPrec+8).Truncate(AmountPrec)
	first := supply.Sub(each.Mul(num.DecimalFromInt(int64(share - 1))))

	out := make([]num.Decimal, share)
	out[0] = num.Rescale(first, AmountPrec)
	for i := 1; i < share; i++ {
		out[i] = each
	}
	return out
}

// splitRandom repeatedly takes remainder/deno for a deno drawn from
// [1, share+1). The last share takes whatever is left. The generator is
// seeded from the envelope so a replay draws the same shares.
func splitRandom(supply num.Decimal, share int, seed1, seed2 uint64) []num.Decimal {
	r := rand.New(rand.NewPCG(seed1, seed2))
	left := num.Rescale(supply, AmountPrec)

	out := make([]num.Decimal, 0, share)
	for i := share; i > 1; i-- {
		deno := decimal.NewFromFloat(r.Float64()*float64(share) + 1).Truncate(AmountPrec)
		piece := num.Rescale(num.Div(left, deno, AmountPrec), AmountPrec)
		left = left.Sub(piece)
		out = append(out, piece)
	}
	return append(out, left)
}
