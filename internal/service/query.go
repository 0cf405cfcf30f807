package service

import (
	"context"
	"fmt"
	"log/slog"

	"exchange_core/internal/domain"
	"exchange_core/internal/infra/storage"
)

// ListOrders returns orders matching filter, by price then age.
func (e *Exchange) ListOrders(ctx context.Context, filter storage.OrderFilter) ([]domain.Order, error) {
	return e.store.ListOrders(ctx, filter)
}

// Profile returns a user's cash balance and inventory positions.
func (e *Exchange) Profile(ctx context.Context, userID uint64) (*domain.Profile, error) {
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	positions, err := e.store.ListPositions(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &domain.Profile{User: *user, Positions: positions}, nil
}

// Requeue dispatches a match attempt for every OPEN order. Orders whose
// dispatch was lost get another chance; the rest are no-ops.
func (e *Exchange) Requeue(ctx context.Context) (int, error) {
	ids, err := e.store.OpenOrderIDs(ctx)
	if err != nil {
		return 0, err
	}

	for i, id := range ids {
		if err := e.dispatcher.Dispatch(ctx, id); err != nil {
			e.metrics.RecordDispatchFailure()
			return i, fmt.Errorf("requeue order %d: %w", id, err)
		}
	}

	if len(ids) > 0 {
		e.logger.Info("Requeued open orders", slog.Int("count", len(ids)))
	}
	return len(ids), nil
}
