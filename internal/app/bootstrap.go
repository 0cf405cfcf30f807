package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"exchange_core/internal/api"
	"exchange_core/internal/engine"
	"exchange_core/internal/infra"
	"exchange_core/internal/infra/notify"
	"exchange_core/internal/infra/queue"
	"exchange_core/internal/infra/storage"
	"exchange_core/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config     *infra.Config
	Metrics    *infra.Metrics
	Storage    *storage.Storage
	Queue      queue.Queue
	Dispatcher *engine.Dispatcher
	Hub        *notify.Hub
	Exchange   *service.Exchange
	API        *api.Server
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{Metrics: infra.GlobalMetrics}
}

// Initialize loads the configuration and wires every component.
func (b *Bootstrap) Initialize(configPath string) error {
	slog.Info("🚀 Bootstrapping exchange core...")

	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Initialize Storage (DB)
	store, err := storage.NewStorage(storage.Options{
		Driver: cfg.Storage.Driver,
		DSN:    cfg.Storage.DSN,
	})
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("✅ Database initialized", slog.String("driver", store.Driver()))

	// 4. Match queue and dispatcher
	switch cfg.Dispatch.Driver {
	case "kafka":
		k := cfg.Dispatch.Kafka
		b.Queue = queue.NewKafka(k.Brokers, k.Topic, k.GroupID)
	default:
		b.Queue = queue.NewMemory(cfg.Dispatch.BufferSize)
	}
	b.Dispatcher = engine.NewDispatcher(b.Queue, cfg.Dispatch.Workers, b.Metrics)
	slog.Info("✅ Dispatcher ready",
		slog.String("queue", cfg.Dispatch.Driver),
		slog.Int("workers", cfg.Dispatch.Workers))

	// 5. Notifications
	b.Hub = notify.NewHub(b.Metrics)
	notifier := notify.Fanout{notify.NewLogNotifier(), b.Hub}

	// 6. Exchange core
	b.Exchange = service.NewExchange(store, b.Dispatcher, notifier,
		service.WithFeeRate(cfg.Market.FeeRate),
		service.WithMetrics(b.Metrics))

	// 7. HTTP surface
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		infra.NewMetricsCollector(b.Metrics),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	b.API = api.NewServer(b.Exchange, cfg.Market, b.Hub, metricsHandler)

	return nil
}

// SeedAccounts creates the configured accounts on an empty ledger.
// A ledger that already has users is left untouched.
func (b *Bootstrap) SeedAccounts(ctx context.Context) error {
	n, err := b.Storage.CountUsers(ctx)
	if err != nil {
		return err
	}
	if n > 0 || len(b.Config.Seed.Users) == 0 {
		return nil
	}

	slog.Info("🔄 Seeding accounts...", slog.Int("users", len(b.Config.Seed.Users)))
	for _, seed := range b.Config.Seed.Users {
		user, err := b.Storage.CreateUser(ctx, seed.Name, seed.Balance)
		if err != nil {
			return err
		}

		symbols := make([]string, 0, len(seed.Inventory))
		for sym := range seed.Inventory {
			symbols = append(symbols, sym)
		}
		sort.Strings(symbols)

		for _, sym := range symbols {
			if _, err := b.Storage.Deposit(ctx, user.ID, sym, seed.Inventory[sym]); err != nil {
				return fmt.Errorf("seed %s/%s: %w", seed.Name, sym, err)
			}
		}
		slog.Info("Seeded account",
			slog.Uint64("user_id", user.ID),
			slog.String("name", seed.Name),
			slog.String("balance", seed.Balance.String()))
	}
	return nil
}

// Run consumes match requests until ctx is cancelled. OPEN orders left
// from a previous run are requeued once the workers are up.
func (b *Bootstrap) Run(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Dispatcher.Run(ctx, b.Exchange.AttemptMatch)
	}()

	if n, err := b.Exchange.Requeue(ctx); err != nil {
		slog.Error("Requeue failed", slog.Int("requeued", n), slog.Any("error", err))
	}

	<-done
}

// Close releases every resource opened by Initialize.
func (b *Bootstrap) Close() {
	if b.Hub != nil {
		b.Hub.Close()
	}
	if b.Queue != nil {
		if err := b.Queue.Close(); err != nil {
			slog.Warn("Queue close failed", slog.Any("error", err))
		}
	}
	if b.Storage != nil {
		if err := b.Storage.Close(); err != nil {
			slog.Warn("Storage close failed", slog.Any("error", err))
		}
	}
}
