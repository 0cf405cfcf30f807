package domain

import (
	"errors"
	"reflect"
	"testing"
)

func TestUser_DebitCredit(t *testing.T) {
	u := &User{ID: 1, Balance: MoneyFromInt(60000)}

	if err := u.Debit(MoneyFromInt(50000)); err != nil {
		t.Fatalf("Debit failed: %v", err)
	}
	if !u.Balance.Equal(MoneyFromInt(10000)) {
		t.Errorf("Expected 10000, got %s", u.Balance)
	}

	err := u.Debit(MoneyFromInt(10001))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("Expected ErrInsufficientBalance, got %v", err)
	}
	if !u.Balance.Equal(MoneyFromInt(10000)) {
		t.Error("failed debit must not mutate the balance")
	}

	u.Credit(MoneyFromInt(50000))
	if !u.Balance.Equal(MoneyFromInt(60000)) {
		t.Errorf("Expected 60000, got %s", u.Balance)
	}
}

func TestInventoryPosition_LockLifecycle(t *testing.T) {
	p := &InventoryPosition{UserID: 2, Symbol: "BTC", Available: MustMoney("2.0")}
	total := p.Total()

	t.Run("lock moves available to locked", func(t *testing.T) {
		if err := p.Lock(MustMoney("1.0")); err != nil {
			t.Fatalf("Lock failed: %v", err)
		}
		if !p.Available.Equal(MustMoney("1.0")) || !p.Locked.Equal(MustMoney("1.0")) {
			t.Errorf("unexpected position %s/%s", p.Available, p.Locked)
		}
		if !p.Total().Equal(total) {
			t.Error("Lock must conserve the total")
		}
	})

	t.Run("lock beyond available fails", func(t *testing.T) {
		if err := p.Lock(MustMoney("1.5")); !errors.Is(err, ErrInsufficientInventory) {
			t.Errorf("Expected ErrInsufficientInventory, got %v", err)
		}
	})

	t.Run("unlock restores", func(t *testing.T) {
		if err := p.Unlock(MustMoney("1.0")); err != nil {
			t.Fatalf("Unlock failed: %v", err)
		}
		if !p.Available.Equal(MustMoney("2.0")) || !p.Locked.IsZero() {
			t.Errorf("unexpected position %s/%s", p.Available, p.Locked)
		}
	})

	t.Run("consume locked never touches available", func(t *testing.T) {
		_ = p.Lock(MustMoney("0.5"))
		if err := p.ConsumeLocked(MustMoney("0.5")); err != nil {
			t.Fatalf("ConsumeLocked failed: %v", err)
		}
		if !p.Available.Equal(MustMoney("1.5")) || !p.Locked.IsZero() {
			t.Errorf("unexpected position %s/%s", p.Available, p.Locked)
		}
		if err := p.ConsumeLocked(MustMoney("0.1")); !errors.Is(err, ErrLockedUnderflow) {
			t.Errorf("Expected ErrLockedUnderflow, got %v", err)
		}
		if err := p.VerifyInvariant(); err != nil {
			t.Errorf("invariant broken: %v", err)
		}
	})
}

func TestLockOrder(t *testing.T) {
	cases := []struct {
		in   []uint64
		want []uint64
	}{
		{[]uint64{9, 3}, []uint64{3, 9}},
		{[]uint64{3, 9}, []uint64{3, 9}},
		{[]uint64{5, 5}, []uint64{5}},
		{[]uint64{}, []uint64{}},
	}
	for _, tc := range cases {
		if got := LockOrder(tc.in...); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("LockOrder(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
