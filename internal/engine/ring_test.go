package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRing(t *testing.T) {
	r := NewRing[int](3)
	assert.Empty(t, r.Items())

	r.Push(1)
	r.Push(2)
	assert.Equal(t, []int{1, 2}, r.Items())
	assert.Equal(t, 2, r.Len())

	r.Push(3)
	r.Push(4)
	r.Push(5)
	assert.Equal(t, []int{3, 4, 5}, r.Items())
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []int{4, 5}, r.Last(2))
	assert.Equal(t, []int{3, 4, 5}, r.Last(10))
}
