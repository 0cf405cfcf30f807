package domain

import (
	"fmt"
	"sort"
)

// Debit removes cash from the balance. Fails without mutating if the
// balance would go negative.
func (u *User) Debit(amount Money) error {
	if u.Balance.LessThan(amount) {
		return fmt.Errorf("%w: need %s, have %s", ErrInsufficientBalance, amount, u.Balance)
	}
	u.Balance = u.Balance.Sub(amount)
	return nil
}

// Credit adds cash to the balance.
func (u *User) Credit(amount Money) {
	u.Balance = u.Balance.Add(amount)
}

// Total returns available + locked.
func (p *InventoryPosition) Total() Money {
	return p.Available.Add(p.Locked)
}

// Lock moves amount from Available to Locked for a new SELL order.
func (p *InventoryPosition) Lock(amount Money) error {
	if p.Available.LessThan(amount) {
		return fmt.Errorf("%w: %s need %s, available %s",
			ErrInsufficientInventory, p.Symbol, amount, p.Available)
	}
	p.Available = p.Available.Sub(amount)
	p.Locked = p.Locked.Add(amount)
	return nil
}

// Unlock moves amount back from Locked to Available on cancellation.
func (p *InventoryPosition) Unlock(amount Money) error {
	if p.Locked.LessThan(amount) {
		return fmt.Errorf("%w: %s release %s, locked %s",
			ErrLockedUnderflow, p.Symbol, amount, p.Locked)
	}
	p.Locked = p.Locked.Sub(amount)
	p.Available = p.Available.Add(amount)
	return nil
}

// ConsumeLocked removes amount from Locked when a SELL is settled.
// Available is never touched by a sale.
func (p *InventoryPosition) ConsumeLocked(amount Money) error {
	if p.Locked.LessThan(amount) {
		return fmt.Errorf("%w: %s consume %s, locked %s",
			ErrLockedUnderflow, p.Symbol, amount, p.Locked)
	}
	p.Locked = p.Locked.Sub(amount)
	return nil
}

// Receive credits amount to Available on the buying side of a trade.
func (p *InventoryPosition) Receive(amount Money) {
	p.Available = p.Available.Add(amount)
}

// VerifyInvariant checks that neither bucket is negative.
func (p *InventoryPosition) VerifyInvariant() error {
	if p.Available.IsNegative() {
		return fmt.Errorf("position %d/%s: negative available %s", p.UserID, p.Symbol, p.Available)
	}
	if p.Locked.IsNegative() {
		return fmt.Errorf("position %d/%s: negative locked %s", p.UserID, p.Symbol, p.Locked)
	}
	return nil
}

// LockOrder returns the distinct user ids in ascending order.
// Account rows must always be locked in this order so that two settlements
// touching the same users can never wait on each other in a cycle.
func LockOrder(ids ...uint64) []uint64 {
	out := make([]uint64, 0, len(ids))
	seen := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
