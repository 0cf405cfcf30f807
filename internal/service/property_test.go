package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"exchange_core/internal/domain"
	"exchange_core/internal/engine"
	"exchange_core/internal/infra/queue"
	"exchange_core/internal/infra/storage"

	"pgregory.net/rapid"
)

// TestPriceTimePriorityProperty places random resting asks and one bid and
// checks that the bid fills against the cheapest crossing ask, oldest first.
func TestPriceTimePriorityProperty(t *testing.T) {
	dir := t.TempDir()
	var run atomic.Int64

	rapid.Check(t, func(rt *rapid.T) {
		askPrices := rapid.SliceOfN(rapid.IntRange(1, 20), 1, 8).Draw(rt, "askPrices")
		bid := rapid.IntRange(1, 20).Draw(rt, "bid")

		s := openStore(rt, filepath.Join(dir, fmt.Sprintf("prop-%d.db", run.Add(1))))
		defer s.Close()
		env := newEnv(s)

		seller := env.user(rt, "seller", "0")
		buyer := env.user(rt, "buyer", "1000")
		env.deposit(rt, seller.ID, "BTC", strconv.Itoa(len(askPrices)))

		asks := make([]*domain.Order, len(askPrices))
		for i, p := range askPrices {
			asks[i] = env.place(rt, seller.ID, "BTC", domain.SideSell, strconv.Itoa(p), "1")
		}
		buy := env.place(rt, buyer.ID, "BTC", domain.SideBuy, strconv.Itoa(bid), "1")

		env.ex.AttemptMatch(context.Background(), buy.ID)

		want := -1
		for i, p := range askPrices {
			if p <= bid && (want == -1 || p < askPrices[want]) {
				want = i
			}
		}

		if want == -1 {
			if env.status(rt, buy.ID) != domain.OrderStatusOpen {
				rt.Fatalf("bid %d filled with no crossing ask in %v", bid, askPrices)
			}
			return
		}

		if env.status(rt, buy.ID) != domain.OrderStatusFilled {
			rt.Fatalf("bid %d did not fill against %v", bid, askPrices)
		}
		for i, ask := range asks {
			got := env.status(rt, ask.ID)
			if i == want && got != domain.OrderStatusFilled {
				rt.Fatalf("ask #%d (%d) should have filled, asks %v bid %d", i, askPrices[i], askPrices, bid)
			}
			if i != want && got != domain.OrderStatusOpen {
				rt.Fatalf("ask #%d (%d) should be open, asks %v bid %d", i, askPrices[i], askPrices, bid)
			}
		}

		value := domain.MoneyFromInt(int64(askPrices[want]))
		assertMoney(rt, "seller balance", env.balance(rt, seller.ID), value.String())
	})
}

// TestConcurrentMatching places crossing orders from many goroutines over a
// small pool of users and lets the dispatcher match them. Every attempt
// must finish and the ledger must balance afterwards.
func TestConcurrentMatching(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "exchange.db"))
	t.Cleanup(func() { s.Close() })

	const (
		users      = 6
		goroutines = 8
		perWorker  = 25
		cash       = 1000000
		coins      = 50
	)

	env := newEnv(s)
	q := queue.NewMemory(goroutines * perWorker)
	dispatcher := engine.NewDispatcher(q, 4, env.metrics)
	env.ex = NewExchange(s, dispatcher, env.notifier, WithMetrics(env.metrics))

	ids := make([]uint64, users)
	for i := range ids {
		u := env.user(t, fmt.Sprintf("user-%d", i), strconv.Itoa(cash))
		env.deposit(t, u.ID, "BTC", strconv.Itoa(coins))
		ids[i] = u.ID
	}

	var pending sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		dispatcher.Run(ctx, func(ctx context.Context, orderID uint64) {
			defer pending.Done()
			env.ex.AttemptMatch(ctx, orderID)
		})
		close(stopped)
	}()

	var placeErrors atomic.Int32
	var placers sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		placers.Add(1)
		go func(g int) {
			defer placers.Done()
			for i := 0; i < perWorker; i++ {
				side := domain.SideBuy
				if (g+i)%2 == 1 {
					side = domain.SideSell
				}
				pending.Add(1)
				_, err := env.ex.PlaceOrder(context.Background(), PlaceOrderRequest{
					UserID: ids[(g*perWorker+i)%users],
					Symbol: "BTC",
					Side:   side,
					Price:  domain.MoneyFromInt(100),
					Amount: domain.MoneyFromInt(1),
				})
				if err != nil {
					pending.Done()
					placeErrors.Add(1)
				}
			}
		}(g)
	}

	placers.Wait()
	waitGroup(t, &pending, 30*time.Second)
	cancel()
	<-stopped

	if n := placeErrors.Load(); n != 0 {
		t.Fatalf("%d placements failed", n)
	}
	if n := env.metrics.Snapshot().MatchFailures; n != 0 {
		t.Fatalf("%d match attempts failed", n)
	}

	orders, err := s.ListOrders(context.Background(), storage.OrderFilter{})
	if err != nil {
		t.Fatal(err)
	}

	var openBuys, filledBuys, filledSells int64
	var openBuyUsers, openSellUsers []uint64
	for _, o := range orders {
		switch {
		case o.Side == domain.SideBuy && o.Status == domain.OrderStatusOpen:
			openBuys++
			openBuyUsers = append(openBuyUsers, o.UserID)
		case o.Side == domain.SideBuy && o.Status == domain.OrderStatusFilled:
			filledBuys++
		case o.Side == domain.SideSell && o.Status == domain.OrderStatusFilled:
			filledSells++
		case o.Side == domain.SideSell && o.Status == domain.OrderStatusOpen:
			openSellUsers = append(openSellUsers, o.UserID)
		}
	}
	if filledBuys != filledSells {
		t.Errorf("filled buys %d != filled sells %d", filledBuys, filledSells)
	}
	if filledBuys == 0 {
		t.Error("Expected some matches")
	}
	for _, buyer := range openBuyUsers {
		for _, seller := range openSellUsers {
			if buyer != seller {
				t.Errorf("crossing orders of users %d and %d left unmatched", buyer, seller)
			}
		}
	}

	// Cash: balances + open buy reservations + fees charged = initial.
	total := domain.ZeroMoney
	coinTotal := domain.ZeroMoney
	for _, id := range ids {
		total = total.Add(env.balance(t, id))
		pos := env.position(t, id, "BTC")
		if err := pos.VerifyInvariant(); err != nil {
			t.Error(err)
		}
		coinTotal = coinTotal.Add(pos.Total())
	}
	notional := domain.MoneyFromInt(100)
	fee := notional.Mul(DefaultFeeRate)
	total = total.
		Add(notional.Mul(domain.MoneyFromInt(openBuys))).
		Add(fee.Mul(domain.MoneyFromInt(filledBuys)))

	assertMoney(t, "cash total", total, strconv.Itoa(users*cash))
	assertMoney(t, "coin total", coinTotal, strconv.Itoa(users*coins))

	if got := env.notifier.count(); int64(got) != 2*filledBuys {
		t.Errorf("Expected %d notifications, got %d", 2*filledBuys, got)
	}
}
