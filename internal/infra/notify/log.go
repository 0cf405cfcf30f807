// Package notify delivers order state changes to interested parties.
package notify

import (
	"context"
	"log/slog"

	"exchange_core/internal/domain"
)

// LogNotifier writes one log line per event.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: slog.Default().With("module", "notify")}
}

func (n *LogNotifier) OrderStateChanged(ctx context.Context, ev domain.OrderStateChanged) {
	n.logger.InfoContext(ctx, "Order state changed",
		slog.String("channel", ev.Channel()),
		slog.Uint64("order_id", ev.Order.ID),
		slog.String("status", string(ev.Order.Status)),
		slog.String("side", string(ev.Order.Side)),
		slog.String("symbol", ev.Order.Symbol),
	)
}

// Fanout forwards every event to each notifier in order.
type Fanout []domain.Notifier

func (f Fanout) OrderStateChanged(ctx context.Context, ev domain.OrderStateChanged) {
	for _, n := range f {
		if n != nil {
			n.OrderStateChanged(ctx, ev)
		}
	}
}
