package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"exchange_core/internal/domain"
	"exchange_core/internal/infra"
	"exchange_core/internal/service"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf(`
storage:
  driver: "sqlite"
  dsn: %q
market:
  symbols: ["BTC"]
  fee_rate: "0.01"
dispatch:
  driver: "memory"
  workers: 2
  buffer_size: 16
seed:
  users:
    - name: "alice"
      balance: "1000"
      inventory:
        BTC: "2"
    - name: "bob"
      balance: "5000"
logging:
  level: "warn"
  dir: %q
`, filepath.Join(dir, "exchange.db"), filepath.Join(dir, "logs"))

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBootstrap(t *testing.T) {
	b := NewBootstrap()
	b.Metrics = &infra.Metrics{}
	if err := b.Initialize(writeConfig(t)); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(b.Close)

	ctx := context.Background()

	t.Run("seeds an empty ledger once", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			if err := b.SeedAccounts(ctx); err != nil {
				t.Fatalf("SeedAccounts failed: %v", err)
			}
		}
		n, err := b.Storage.CountUsers(ctx)
		if err != nil || n != 2 {
			t.Fatalf("Expected 2 users, got %d (%v)", n, err)
		}
		p, err := b.Exchange.Profile(ctx, 1)
		if err != nil {
			t.Fatal(err)
		}
		if p.User.Name != "alice" || len(p.Positions) != 1 || !p.Positions[0].Available.Equal(domain.MoneyFromInt(2)) {
			t.Errorf("unexpected profile %+v", p)
		}
	})

	t.Run("fee rate comes from config", func(t *testing.T) {
		if !b.Exchange.FeeRate().Equal(domain.MustMoney("0.01")) {
			t.Errorf("Expected fee 0.01, got %s", b.Exchange.FeeRate())
		}
	})

	t.Run("run matches and requeues", func(t *testing.T) {
		// An OPEN order from a previous process: committed but never dispatched.
		sell, err := b.Exchange.PlaceOrder(ctx, service.PlaceOrderRequest{
			UserID: 1, Symbol: "BTC", Side: domain.SideSell,
			Price: domain.MoneyFromInt(100), Amount: domain.MoneyFromInt(1),
		})
		if err != nil {
			t.Fatal(err)
		}

		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			b.Run(runCtx)
			close(done)
		}()

		if _, err := b.Exchange.PlaceOrder(ctx, service.PlaceOrderRequest{
			UserID: 2, Symbol: "BTC", Side: domain.SideBuy,
			Price: domain.MoneyFromInt(100), Amount: domain.MoneyFromInt(1),
		}); err != nil {
			t.Fatal(err)
		}

		deadline := time.Now().Add(5 * time.Second)
		for {
			o, err := b.Storage.GetOrder(ctx, sell.ID)
			if err != nil {
				t.Fatal(err)
			}
			if o.Status == domain.OrderStatusFilled {
				break
			}
			if time.Now().After(deadline) {
				t.Fatal("order was never matched")
			}
			time.Sleep(10 * time.Millisecond)
		}

		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("Run did not return")
		}
	})
}
