package server

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccountAdjust(t *testing.T) {
	var a Account

	assert.True(t, a.Adjust(100))
	assert.Equal(t, uint32(100), a.Balance())

	assert.True(t, a.Adjust(-40))
	assert.Equal(t, uint32(60), a.Balance())

	// Underflow is rejected whole: no partial clamp to zero.
	assert.False(t, a.Adjust(-100))
	assert.Equal(t, uint32(60), a.Balance())

	// Overflow likewise leaves the balance untouched.
	assert.True(t, a.Adjust(math.MaxUint32-60))
	assert.Equal(t, uint32(math.MaxUint32), a.Balance())
	assert.False(t, a.Adjust(1))
	assert.Equal(t, uint32(math.MaxUint32), a.Balance())
}

func TestAccountCreditDebit(t *testing.T) {
	var a Account

	assert.True(t, a.Credit(500))
	assert.True(t, a.Debit(200))
	assert.Equal(t, uint32(300), a.Balance())

	assert.False(t, a.Debit(301))
	assert.Equal(t, uint32(300), a.Balance())
}
