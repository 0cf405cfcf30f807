package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"exchange_core/internal/domain"
	"exchange_core/internal/infra"
	"exchange_core/internal/infra/storage"
)

type recordingDispatcher struct {
	mu  sync.Mutex
	ids []uint64
	err error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, orderID uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.ids = append(d.ids, orderID)
	return nil
}

func (d *recordingDispatcher) dispatched() []uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uint64(nil), d.ids...)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.OrderStateChanged
}

func (n *recordingNotifier) OrderStateChanged(_ context.Context, ev domain.OrderStateChanged) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

// tester is satisfied by both *testing.T and *rapid.T.
type tester interface {
	Helper()
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)
}

type testEnv struct {
	ex         *Exchange
	store      *storage.Storage
	dispatcher *recordingDispatcher
	notifier   *recordingNotifier
	metrics    *infra.Metrics
}

func openStore(t tester, path string) *storage.Storage {
	t.Helper()
	s, err := storage.NewStorage(storage.Options{
		Driver: storage.DriverSQLite,
		DSN:    path,
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	return s
}

func setupTestDB(t *testing.T) *testEnv {
	t.Helper()
	s := openStore(t, filepath.Join(t.TempDir(), "exchange.db"))
	t.Cleanup(func() { s.Close() })
	return newEnv(s)
}

func newEnv(s *storage.Storage) *testEnv {
	env := &testEnv{
		store:      s,
		dispatcher: &recordingDispatcher{},
		notifier:   &recordingNotifier{},
		metrics:    &infra.Metrics{},
	}
	env.ex = NewExchange(s, env.dispatcher, env.notifier, WithMetrics(env.metrics))
	return env
}

func (env *testEnv) user(t tester, name, balance string) *domain.User {
	t.Helper()
	u, err := env.store.CreateUser(context.Background(), name, domain.MustMoney(balance))
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	return u
}

func (env *testEnv) deposit(t tester, userID uint64, symbol, amount string) {
	t.Helper()
	if _, err := env.store.Deposit(context.Background(), userID, symbol, domain.MustMoney(amount)); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}
}

func (env *testEnv) place(t tester, userID uint64, symbol string, side domain.Side, price, amount string) *domain.Order {
	t.Helper()
	o, err := env.ex.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID: userID,
		Symbol: symbol,
		Side:   side,
		Price:  domain.MustMoney(price),
		Amount: domain.MustMoney(amount),
	})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}
	return o
}

func (env *testEnv) balance(t tester, userID uint64) domain.Money {
	t.Helper()
	u, err := env.store.GetUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	return u.Balance
}

func (env *testEnv) position(t tester, userID uint64, symbol string) *domain.InventoryPosition {
	t.Helper()
	p, err := env.store.GetPosition(context.Background(), userID, symbol)
	if err != nil {
		t.Fatalf("GetPosition failed: %v", err)
	}
	return p
}

func (env *testEnv) status(t tester, orderID uint64) domain.OrderStatus {
	t.Helper()
	o, err := env.store.GetOrder(context.Background(), orderID)
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	return o.Status
}

func assertMoney(t tester, what string, got domain.Money, want string) {
	t.Helper()
	if !got.Equal(domain.MustMoney(want)) {
		t.Errorf("%s: expected %s, got %s", what, want, got)
	}
}

func assertKind(t tester, err error, kind domain.Kind, sentinel error) {
	t.Helper()
	var f *domain.Failure
	if !errors.As(err, &f) {
		t.Fatalf("Expected *domain.Failure, got %T (%v)", err, err)
	}
	if f.Kind != kind {
		t.Errorf("Expected kind %s, got %s (%v)", kind, f.Kind, err)
	}
	if sentinel != nil && !errors.Is(err, sentinel) {
		t.Errorf("Expected %v in chain, got %v", sentinel, err)
	}
}

func waitGroup(t *testing.T, wg *sync.WaitGroup, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatalf("timed out after %s", timeout)
	}
}
