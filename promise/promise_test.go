package promise_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/polis-dev/polis/promise"
)

func TestCompare(t *testing.T) {
	assert.Equal(t, 0, promise.Compare(promise.New(1, 2), promise.New(1, 2)))
	assert.Equal(t, -1, promise.Compare(promise.New(1, 2), promise.New(1, 3)))
	assert.Equal(t, 1, promise.Compare(promise.New(2, 0), promise.New(1, 99)))
	assert.Equal(t, -1, promise.Compare(promise.New(0, 99), promise.New(1, 0)))
}

func TestIncrementMajor(t *testing.T) {
	assert.Equal(t, promise.New(2, 0), promise.IncrementMajor(promise.New(1, 5)))
}

func TestIncrementMinor(t *testing.T) {
	assert.Equal(t, promise.New(1, 6), promise.IncrementMinor(promise.New(1, 5)))
}

func TestIsGovernmentBoundary(t *testing.T) {
	assert.True(t, promise.New(3, 0).IsGovernmentBoundary())
	assert.False(t, promise.New(3, 1).IsGovernmentBoundary())
}

func TestZeroIsLessThanAnyRealPromise(t *testing.T) {
	assert.True(t, promise.Less(promise.Zero, promise.New(1, 0)))
	assert.True(t, promise.Zero.IsZero())
}

func TestNextGovernment(t *testing.T) {
	assert.Equal(t, promise.New(4, 0), promise.NextGovernment(promise.New(3, 7)))
}

func TestMaxMin(t *testing.T) {
	a := promise.New(1, 5)
	b := promise.New(2, 0)
	assert.Equal(t, b, promise.Max(a, b))
	assert.Equal(t, a, promise.Min(a, b))
}
