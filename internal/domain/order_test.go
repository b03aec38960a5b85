package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewOrderIDPrefixes(t *testing.T) {
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, "MEM17880840000007", NewOrderID(7, "membership:2", now))
	assert.Equal(t, "CLASS178808400000042", NewOrderID(42, "class:9", now))
	assert.Equal(t, "ORD17880840000007", NewOrderID(7, "giftcard", now))
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, OrderSucceeded.IsTerminal())
	assert.True(t, OrderFailed.IsTerminal())
	assert.False(t, OrderPending.IsTerminal())
	assert.False(t, OrderScheduled.IsTerminal())
}
