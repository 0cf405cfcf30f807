package domain

import (
	"context"
	"strconv"
	"time"
)

// OrderStateChanged is published once per order that reached a new
// terminal state through matching, strictly after the commit.
type OrderStateChanged struct {
	Order      Order     `json:"order"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Channel is the per-user private channel the event belongs to.
func (e OrderStateChanged) Channel() string {
	return "user." + strconv.FormatUint(e.Order.UserID, 10)
}

// Notifier receives order state changes. Delivery mechanics are up to the
// implementation; it must not block the caller for long.
type Notifier interface {
	OrderStateChanged(ctx context.Context, ev OrderStateChanged)
}

// Dispatcher schedules one asynchronous match attempt for an order.
// Implementations deliver at least once; the matcher tolerates redelivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, orderID uint64) error
}
