package service

import (
	"context"
	"errors"
	"testing"

	"exchange_core/internal/domain"
	"exchange_core/internal/infra/storage"
)

func TestProfile(t *testing.T) {
	env := setupTestDB(t)
	u := env.user(t, "alice", "500")
	env.deposit(t, u.ID, "ETH", "3")
	env.deposit(t, u.ID, "BTC", "1")
	env.place(t, u.ID, "ETH", domain.SideSell, "3000", "1")

	p, err := env.ex.Profile(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("Profile failed: %v", err)
	}
	assertMoney(t, "balance", p.User.Balance, "500")
	if len(p.Positions) != 2 || p.Positions[0].Symbol != "BTC" || p.Positions[1].Symbol != "ETH" {
		t.Fatalf("unexpected positions %+v", p.Positions)
	}
	assertMoney(t, "eth locked", p.Positions[1].Locked, "1")

	if _, err := env.ex.Profile(context.Background(), 999); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}
}

func TestListOrders(t *testing.T) {
	env := setupTestDB(t)
	a := env.user(t, "a", "100000")
	b := env.user(t, "b", "0")
	env.deposit(t, b.ID, "BTC", "5")

	env.place(t, a.ID, "BTC", domain.SideBuy, "20", "1")
	env.place(t, a.ID, "BTC", domain.SideBuy, "10", "1")
	env.place(t, b.ID, "BTC", domain.SideSell, "30", "1")

	t.Run("by symbol sorted by price", func(t *testing.T) {
		orders, err := env.ex.ListOrders(context.Background(), storage.OrderFilter{Symbol: "BTC", Status: domain.OrderStatusOpen})
		if err != nil {
			t.Fatal(err)
		}
		if len(orders) != 3 {
			t.Fatalf("Expected 3 orders, got %d", len(orders))
		}
		for i, want := range []string{"10", "20", "30"} {
			assertMoney(t, "price", orders[i].Price, want)
		}
	})

	t.Run("by user and side", func(t *testing.T) {
		orders, err := env.ex.ListOrders(context.Background(), storage.OrderFilter{UserID: b.ID, Side: domain.SideSell})
		if err != nil {
			t.Fatal(err)
		}
		if len(orders) != 1 || orders[0].UserID != b.ID {
			t.Errorf("unexpected orders %+v", orders)
		}
	})
}

func TestRequeue(t *testing.T) {
	env := setupTestDB(t)
	u := env.user(t, "u", "1000")
	keep := env.place(t, u.ID, "BTC", domain.SideBuy, "10", "1")
	gone := env.place(t, u.ID, "BTC", domain.SideBuy, "10", "1")
	if err := env.ex.CancelOrder(context.Background(), u.ID, gone.ID); err != nil {
		t.Fatal(err)
	}

	env.dispatcher.ids = nil
	n, err := env.ex.Requeue(context.Background())
	if err != nil {
		t.Fatalf("Requeue failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 requeued order, got %d", n)
	}
	if got := env.dispatcher.dispatched(); len(got) != 1 || got[0] != keep.ID {
		t.Errorf("Expected only order %d, got %v", keep.ID, got)
	}

	env.dispatcher.err = errors.New("queue down")
	if _, err := env.ex.Requeue(context.Background()); err == nil {
		t.Error("Expected dispatch error to surface")
	}
}
