package sequence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextIsMonotonic(t *testing.T) {
	s := New(10)
	assert.Equal(t, uint64(11), s.Next())
	assert.Equal(t, uint64(12), s.Next())
	assert.Equal(t, uint64(12), s.Current())
}

func TestRestoreNeverGoesBack(t *testing.T) {
	s := New(0)
	s.Restore(40)
	assert.Equal(t, uint64(41), s.Next())
	s.Restore(5)
	assert.Equal(t, uint64(41), s.Current())
}
