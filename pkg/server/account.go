package server

import (
	"math"
	"sync"
)

// Account holds one player's balance. Accounts are created on first
// successful authentication and live for the server process lifetime; there
// is no persistence.
type Account struct {
	mu      sync.Mutex
	balance uint32
}

// Balance returns the current balance.
func (a *Account) Balance() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance
}

// Adjust applies delta to the balance. Adjustments that would leave the
// unsigned 32-bit range are rejected whole: the balance is unchanged and
// Adjust reports false. A clamping step is never partial.
func (a *Account) Adjust(delta int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	next := int64(a.balance) + delta
	if next < 0 || next > math.MaxUint32 {
		return false
	}
	a.balance = uint32(next)
	return true
}

// Credit adds amount to the balance, rejecting overflow.
func (a *Account) Credit(amount uint32) bool {
	return a.Adjust(int64(amount))
}

// Debit removes amount from the balance, rejecting underflow.
func (a *Account) Debit(amount uint32) bool {
	return a.Adjust(-int64(amount))
}
