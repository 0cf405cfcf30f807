package service

import (
	"context"
	"log/slog"

	"exchange_core/internal/domain"
	"exchange_core/internal/infra/storage"
)

// PlaceOrderRequest is an already validated placement from the caller layer.
type PlaceOrderRequest struct {
	UserID uint64
	Symbol string
	Side   domain.Side
	Price  domain.Money
	Amount domain.Money
}

// PlaceOrder creates an OPEN order and reserves its resource in one
// transaction: price × amount of cash for a BUY, amount of inventory for a
// SELL. One match attempt is dispatched after the commit.
// Every error returned is a *domain.Failure.
func (e *Exchange) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*domain.Order, error) {
	reason := ReasonBuyFailed
	if req.Side == domain.SideSell {
		reason = ReasonSellFailed
	}

	order, err := domain.NewOrder(req.UserID, req.Symbol, req.Side, req.Price, req.Amount)
	if err != nil {
		e.metrics.RecordOrderRejected()
		return nil, e.failure(ReasonInvalidOrder, err)
	}

	if reason, err := e.precheck(ctx, order); err != nil {
		e.metrics.RecordOrderRejected()
		return nil, e.failure(reason, err)
	}

	err = e.store.InTx(ctx, func(tx *storage.Tx) error {
		if err := reserve(tx, order); err != nil {
			return err
		}
		return tx.CreateOrder(order)
	})
	if err != nil {
		e.metrics.RecordOrderRejected()
		f := e.failure(reason, err)
		e.logger.Warn("Order placement failed",
			slog.Uint64("user_id", req.UserID),
			slog.String("side", string(req.Side)),
			slog.String("kind", f.Kind.String()),
			slog.Any("error", err))
		return nil, f
	}

	e.metrics.RecordOrderPlaced()
	e.logger.Info("Order placed",
		slog.Uint64("order_id", order.ID),
		slog.Uint64("user_id", order.UserID),
		slog.String("symbol", order.Symbol),
		slog.String("side", string(order.Side)),
		slog.String("price", order.Price.String()),
		slog.String("amount", order.Amount.String()))

	// The order is durable and OPEN. A lost dispatch is picked up by Requeue.
	if err := e.dispatcher.Dispatch(context.WithoutCancel(ctx), order.ID); err != nil {
		e.metrics.RecordDispatchFailure()
		e.logger.Error("Match dispatch failed", slog.Uint64("order_id", order.ID), slog.Any("error", err))
	}

	return order, nil
}

// reserve debits cash or locks inventory under row lock.
func reserve(tx *storage.Tx, order *domain.Order) error {
	if order.Side == domain.SideBuy {
		user, err := tx.LockUser(order.UserID)
		if err != nil {
			return err
		}
		if err := user.Debit(order.Notional()); err != nil {
			return err
		}
		return tx.SaveBalance(user)
	}

	pos, err := tx.LockPosition(order.UserID, order.Symbol)
	if err != nil {
		return err
	}
	if err := pos.Lock(order.Amount); err != nil {
		return err
	}
	return tx.SavePosition(pos)
}

// precheck is a fast, unlocked read that rejects obvious failures before
// opening a transaction. The locked check in reserve is authoritative.
func (e *Exchange) precheck(ctx context.Context, order *domain.Order) (string, error) {
	if order.Side == domain.SideBuy {
		user, err := e.store.GetUser(ctx, order.UserID)
		if err != nil {
			return ReasonBuyFailed, err
		}
		if user.Balance.LessThan(order.Notional()) {
			return ReasonInsufficientCash, domain.ErrInsufficientBalance
		}
		return "", nil
	}

	pos, err := e.store.GetPosition(ctx, order.UserID, order.Symbol)
	if err != nil {
		return ReasonSellFailed, err
	}
	if pos == nil {
		return ReasonAssetNotAvailable, domain.ErrPositionNotFound
	}
	if pos.Available.LessThan(order.Amount) {
		return ReasonInsufficientAssets, domain.ErrInsufficientInventory
	}
	return "", nil
}
