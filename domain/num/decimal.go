// Package num holds the exact decimal type used for every price, amount,
// fee and balance in the engine. Floating point never touches money.
package num

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type Decimal = decimal.Decimal

var (
	Zero = decimal.Zero
	One  = decimal.NewFromInt(1)
)

// DecimalFromString parses s without any precision check.
func DecimalFromString(s string) (Decimal, error) {
	return decimal.NewFromString(s)
}

func MustDecimal(s string) Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func DecimalFromInt(v int64) Decimal {
	return decimal.NewFromInt(v)
}

// Parse reads s and rejects it when it carries more than prec fractional
// digits. The result is rescaled to exactly prec digits.
func Parse(s string, prec int) (Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, err
	}
	if !d.Equal(d.Truncate(int32(prec))) {
		return Zero, fmt.Errorf("%s exceeds precision %d", s, prec)
	}
	return Rescale(d, prec), nil
}

// Rescale rounds d to prec fractional digits with half-even rounding.
func Rescale(d Decimal, prec int) Decimal {
	return d.RoundBank(int32(prec))
}

// Unit returns the smallest step at prec, 10^-prec.
func Unit(prec int) Decimal {
	return decimal.New(1, int32(-prec))
}

// Div divides with enough scale to survive a later Rescale to prec.
func Div(a, b Decimal, prec int) Decimal {
	return a.DivRound(b, int32(prec+8))
}

func Min(a, b Decimal) Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
