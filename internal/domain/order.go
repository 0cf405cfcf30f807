package domain

import (
	"fmt"
	"time"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Opposite returns the side a counter-order must have.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderStatus is the lifecycle state of an order.
// OPEN -> FILLED and OPEN -> CANCELLED are the only transitions.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "OPEN"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Order is a limit order. Price and Amount never change after creation.
type Order struct {
	ID         uint64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     uint64      `gorm:"not null;index" json:"user_id"`
	Symbol     string      `gorm:"size:16;not null;index:idx_orders_book,priority:1" json:"symbol"`
	Side       Side        `gorm:"size:4;not null;index:idx_orders_book,priority:2" json:"side"`
	Status     OrderStatus `gorm:"size:16;not null;index:idx_orders_book,priority:3" json:"status"`
	PriceTicks int64       `gorm:"not null;index:idx_orders_book,priority:4" json:"-"` // Price scaled by 10^8, for SQL ordering
	Price      Money       `gorm:"type:varchar(40);not null" json:"price"`
	Amount     Money       `gorm:"type:varchar(40);not null" json:"amount"`
	CreatedAt  time.Time   `gorm:"index" json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// NewOrder builds an OPEN order after checking the immutable fields.
func NewOrder(userID uint64, symbol string, side Side, price, amount Money) (*Order, error) {
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", ErrInvalidOrder)
	}
	if !side.Valid() {
		return nil, fmt.Errorf("%w: unknown side %q", ErrInvalidOrder, side)
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalidOrder)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidOrder)
	}
	ticks, err := price.Ticks()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}

	return &Order{
		UserID:     userID,
		Symbol:     symbol,
		Side:       side,
		Status:     OrderStatusOpen,
		PriceTicks: ticks,
		Price:      price,
		Amount:     amount,
	}, nil
}

// IsOpen checks if the order can still be matched or cancelled.
func (o *Order) IsOpen() bool {
	return o.Status == OrderStatusOpen
}

// Notional is price × amount, the cash a BUY reserves at placement.
func (o *Order) Notional() Money {
	return o.Amount.Mul(o.Price)
}

// Crosses reports whether counter is priced acceptably for o.
func (o *Order) Crosses(counter *Order) bool {
	if o.Side == SideBuy {
		return !counter.Price.GreaterThan(o.Price)
	}
	return !counter.Price.LessThan(o.Price)
}
