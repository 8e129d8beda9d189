package num

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRejectsExcessPrecision(t *testing.T) {
	_, err := Parse("1.123", 2)
	require.Error(t, err)

	d, err := Parse("1.12", 4)
	require.NoError(t, err)
	assert.Equal(t, "1.1200", d.StringFixed(4))
	assert.True(t, d.Equal(MustDecimal("1.12")))
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("abc", 8)
	require.Error(t, err)
}

func TestRescaleIsHalfEven(t *testing.T) {
	assert.True(t, Rescale(MustDecimal("0.125"), 2).Equal(MustDecimal("0.12")))
	assert.True(t, Rescale(MustDecimal("0.135"), 2).Equal(MustDecimal("0.14")))
}

func TestUnit(t *testing.T) {
	assert.True(t, Unit(3).Equal(MustDecimal("0.001")))
	assert.True(t, Unit(0).Equal(One))
}

func TestMin(t *testing.T) {
	a, b := MustDecimal("1.5"), MustDecimal("2")
	assert.True(t, Min(a, b).Equal(a))
	assert.True(t, Min(b, a).Equal(a))
}
