package service

import (
	"context"
	"errors"
	"log/slog"

	"exchange_core/internal/domain"
	"exchange_core/internal/infra/storage"
)

// CancelOrder cancels an OPEN order owned by userID and releases its
// reservation. Every error returned is a *domain.Failure.
func (e *Exchange) CancelOrder(ctx context.Context, userID, orderID uint64) error {
	var cancelled *domain.Order

	err := e.store.InTx(ctx, func(tx *storage.Tx) error {
		order, err := tx.LockOpenOrder(orderID, userID)
		if err != nil {
			return err
		}
		if order == nil {
			return domain.ErrOrderNotCancellable
		}

		if err := release(tx, order); err != nil {
			return err
		}
		if err := tx.SetStatus(order, domain.OrderStatusCancelled); err != nil {
			return err
		}
		cancelled = order
		return nil
	})
	if err != nil {
		e.metrics.RecordCancelRejected()
		f := e.failure(ReasonCancelFailed, err)
		log := e.logger.Warn
		if f.Kind == domain.KindIntegrity {
			log = e.logger.Error
		}
		log("Order cancellation failed",
			slog.Uint64("order_id", orderID),
			slog.Uint64("user_id", userID),
			slog.String("kind", f.Kind.String()),
			slog.Any("error", err))
		return f
	}

	e.metrics.RecordOrderCancelled()
	e.logger.Info("Order cancelled",
		slog.Uint64("order_id", cancelled.ID),
		slog.Uint64("user_id", cancelled.UserID),
		slog.String("side", string(cancelled.Side)))
	return nil
}

// release reverses the placement-time reservation exactly.
func release(tx *storage.Tx, order *domain.Order) error {
	if order.Side == domain.SideBuy {
		user, err := tx.LockUser(order.UserID)
		if errors.Is(err, domain.ErrUserNotFound) {
			return integrity(err)
		}
		if err != nil {
			return err
		}
		user.Credit(order.Notional())
		return tx.SaveBalance(user)
	}

	pos, err := tx.LockPosition(order.UserID, order.Symbol)
	if errors.Is(err, domain.ErrPositionNotFound) {
		// An OPEN sell always has a locked position behind it.
		return integrity(err)
	}
	if err != nil {
		return err
	}
	if err := pos.Unlock(order.Amount); err != nil {
		return err
	}
	return tx.SavePosition(pos)
}
