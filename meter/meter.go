// Package meter tracks compute units consumed by one invocation.
package meter

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrComputeBudgetExceeded = errors.New("compute budget exceeded")
	ErrInvalidRefund         = errors.New("invalid compute unit refund")
)

// Meter is a compute unit budget. The zero value has no budget.
type Meter struct {
	mu    sync.RWMutex
	limit uint64
	left  uint64
	used  uint64
}

// New returns a meter with limit units available.
func New(limit uint64) *Meter {
	return &Meter{limit: limit, left: limit}
}

// Remaining returns the units still available
func (m *Meter) Remaining() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.left
}

// Used returns the units consumed so far
func (m *Meter) Used() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.used
}

// Limit returns the budget the meter was created or reset with
func (m *Meter) Limit() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.limit
}

// Consume charges amount units. When the budget cannot cover it the
// remaining budget is drained and ErrComputeBudgetExceeded returned.
func (m *Meter) Consume(amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.left < amount {
		left := m.left
		m.used += left
		m.left = 0
		return fmt.Errorf("%w: need %d, have %d of %d", ErrComputeBudgetExceeded, amount, left, m.limit)
	}
	m.left -= amount
	m.used += amount
	return nil
}

// Refund returns previously consumed units
func (m *Meter) Refund(amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.used < amount {
		return fmt.Errorf("%w: used=%d, refund=%d", ErrInvalidRefund, m.used, amount)
	}
	m.left += amount
	m.used -= amount
	return nil
}

// Reset starts a fresh budget of limit units
func (m *Meter) Reset(limit uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limit = limit
	m.left = limit
	m.used = 0
}
