package order_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/boonlang/boon-core/internal/order"
)

func TestTickSeqLessOrdersByPrimaryThenSecondary(t *testing.T) {
	assert.True(t, order.TickSeqLess(1, 2, 0, 0))
	assert.False(t, order.TickSeqLess(2, 1, 0, 0))
	assert.True(t, order.TickSeqLess[uint64](5, 5, 1, 2))
	assert.False(t, order.TickSeqLess[uint64](5, 5, 2, 1))
	assert.False(t, order.TickSeqLess[uint64](5, 5, 3, 3))
}
