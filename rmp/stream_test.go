package rmp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGreaterThanWraps(t *testing.T) {
	assert.True(t, GreaterThan(10, 5))
	assert.False(t, GreaterThan(5, 10))
	assert.False(t, GreaterThan(5, 5))

	// a has wrapped past math.MaxUint64 while b has not: a is still "later"
	// in stream order even though its raw integer value is small.
	a := Position(5)
	b := Position(math.MaxUint64 - 2)
	assert.True(t, GreaterThan(a, b))
}

func TestGreaterOrEqual(t *testing.T) {
	assert.True(t, GreaterOrEqual(10, 10))
	assert.True(t, GreaterOrEqual(11, 10))
	assert.False(t, GreaterOrEqual(9, 10))
}

func TestExpired(t *testing.T) {
	const ringSize = Position(1024)
	assert.False(t, Expired(0, 0, ringSize))
	assert.False(t, Expired(0, ringSize-1, ringSize))
	assert.True(t, Expired(0, ringSize, ringSize))
	assert.True(t, Expired(0, ringSize+1, ringSize))
}

func TestIndexMaskRequiresPowerOfTwo(t *testing.T) {
	assert.Equal(t, Position(1023), IndexMask(1024))
	assert.Panics(t, func() { IndexMask(1000) })
	assert.Panics(t, func() { IndexMask(0) })
}

func TestBufIndex(t *testing.T) {
	mask := IndexMask(1024)
	require.Equal(t, Position(0), BufIndex(mask, 1024))
	require.Equal(t, Position(5), BufIndex(mask, 1029))
}
