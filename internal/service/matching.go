package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"exchange_core/internal/domain"
	"exchange_core/internal/infra"
	"exchange_core/internal/infra/storage"
)

// Trade is the settlement of one match.
type Trade struct {
	Buy    *domain.Order
	Sell   *domain.Order
	Amount domain.Money
	Price  domain.Money
	Value  domain.Money
	Fee    domain.Money
}

// AttemptMatch tries to match orderID against exactly one resting order.
// It is safe to call repeatedly: an order that is no longer OPEN is left
// alone. Outcomes and failures are only logged and recorded in metrics.
func (e *Exchange) AttemptMatch(ctx context.Context, orderID uint64) {
	start := time.Now()
	result, trade, err := e.match(ctx, orderID)
	e.metrics.RecordMatch(result, time.Since(start))

	switch result {
	case infra.MatchNotOpen:
		e.logger.Debug("Match skipped, order not open", slog.Uint64("order_id", orderID))

	case infra.MatchNoCounter:
		e.logger.Info("No matching order found", slog.Uint64("order_id", orderID))

	case infra.MatchFailed:
		kind := classify(err)
		if kind == domain.KindIntegrity {
			e.metrics.RecordIntegrityFailure()
			e.logger.Error("Match aborted, ledger integrity violated",
				slog.Uint64("order_id", orderID), slog.Any("error", err))
			return
		}
		e.logger.Warn("Match aborted",
			slog.Uint64("order_id", orderID),
			slog.String("kind", kind.String()),
			slog.Any("error", err))

	case infra.MatchFilled:
		e.logger.Info("Orders matched",
			slog.Uint64("buy_order_id", trade.Buy.ID),
			slog.Uint64("sell_order_id", trade.Sell.ID),
			slog.String("amount", trade.Amount.String()),
			slog.String("price", trade.Price.String()),
			slog.String("fee", trade.Fee.String()))

		now := time.Now()
		for _, o := range []*domain.Order{trade.Buy, trade.Sell} {
			e.notifier.OrderStateChanged(ctx, domain.OrderStateChanged{Order: *o, OccurredAt: now})
		}
	}
}

// match runs the whole attempt in one transaction. The returned trade is
// only set for MatchFilled, after the commit succeeded.
func (e *Exchange) match(ctx context.Context, orderID uint64) (infra.MatchResult, *Trade, error) {
	result := infra.MatchFailed
	var trade *Trade

	err := e.store.InTx(ctx, func(tx *storage.Tx) error {
		order, err := tx.LockOrder(orderID)
		if errors.Is(err, domain.ErrOrderNotFound) {
			result = infra.MatchNotOpen
			return nil
		}
		if err != nil {
			return err
		}
		if !order.IsOpen() {
			result = infra.MatchNotOpen
			return nil
		}

		counter, err := tx.LockCounterOrder(order)
		if err != nil {
			return err
		}
		if counter == nil {
			result = infra.MatchNoCounter
			return nil
		}
		if !order.Crosses(counter) {
			return integrity(fmt.Errorf("counter %d at %s does not cross order %d at %s",
				counter.ID, counter.Price, order.ID, order.Price))
		}

		trade, err = e.settle(tx, order, counter)
		if err != nil {
			return err
		}
		result = infra.MatchFilled
		return nil
	})
	if err != nil {
		return infra.MatchFailed, nil, err
	}
	if result != infra.MatchFilled {
		trade = nil
	}
	return result, trade, nil
}

// settle transfers inventory and cash for trigger against counter at the
// counter's price and the trigger's amount, then fills both orders.
func (e *Exchange) settle(tx *storage.Tx, trigger, counter *domain.Order) (*Trade, error) {
	t := &Trade{
		Buy:    trigger,
		Sell:   counter,
		Amount: trigger.Amount,
		Price:  counter.Price,
	}
	if trigger.Side == domain.SideSell {
		t.Buy, t.Sell = counter, trigger
	}
	t.Value = t.Amount.Mul(t.Price)
	t.Fee = t.Value.Mul(e.feeRate)

	users, err := tx.LockUsers(t.Buy.UserID, t.Sell.UserID)
	if err != nil {
		return nil, err
	}
	buyer, ok := users[t.Buy.UserID]
	if !ok {
		return nil, integrity(fmt.Errorf("buyer %d: %w", t.Buy.UserID, domain.ErrUserNotFound))
	}
	seller, ok := users[t.Sell.UserID]
	if !ok {
		return nil, integrity(fmt.Errorf("seller %d: %w", t.Sell.UserID, domain.ErrUserNotFound))
	}

	sellerPos, err := tx.LockPosition(seller.ID, t.Sell.Symbol)
	if errors.Is(err, domain.ErrPositionNotFound) {
		return nil, integrity(fmt.Errorf("seller %d: %w", seller.ID, err))
	}
	if err != nil {
		return nil, err
	}
	if err := sellerPos.ConsumeLocked(t.Amount); err != nil {
		return nil, err
	}
	if err := tx.SavePosition(sellerPos); err != nil {
		return nil, err
	}

	buyerPos, err := tx.LockOrCreatePosition(buyer.ID, t.Buy.Symbol)
	if err != nil {
		return nil, err
	}
	buyerPos.Receive(t.Amount)
	if err := tx.SavePosition(buyerPos); err != nil {
		return nil, err
	}

	if err := buyer.Debit(t.Fee); err != nil {
		return nil, fmt.Errorf("buyer fee: %w", err)
	}
	seller.Credit(t.Value)
	for _, u := range []*domain.User{buyer, seller} {
		if err := tx.SaveBalance(u); err != nil {
			return nil, err
		}
	}

	if err := tx.SetStatus(t.Buy, domain.OrderStatusFilled); err != nil {
		return nil, err
	}
	if err := tx.SetStatus(t.Sell, domain.OrderStatusFilled); err != nil {
		return nil, err
	}
	return t, nil
}
