package storage

import (
	"errors"
	"fmt"

	"exchange_core/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Tx is an open ledger transaction. Every Lock* method takes an exclusive
// row lock (SELECT ... FOR UPDATE) held until commit or rollback.
type Tx struct {
	db       *gorm.DB
	rowLocks bool
}

// forUpdate adds FOR UPDATE where the backend has row locks.
func (tx *Tx) forUpdate() *gorm.DB {
	if !tx.rowLocks {
		return tx.db
	}
	return tx.db.Clauses(clause.Locking{Strength: "UPDATE"})
}

// ======================================================================================
// Users
// ======================================================================================

// LockUser locks one user row.
func (tx *Tx) LockUser(id uint64) (*domain.User, error) {
	var user domain.User
	err := tx.forUpdate().First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock user %d: %w", id, err)
	}
	return &user, nil
}

// LockUsers locks several user rows in ascending id order and returns them
// keyed by id. Missing ids are simply absent from the map.
func (tx *Tx) LockUsers(ids ...uint64) (map[uint64]*domain.User, error) {
	ordered := domain.LockOrder(ids...)

	var users []domain.User
	err := tx.forUpdate().Where("id IN ?", ordered).Order("id ASC").Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("lock users %v: %w", ordered, err)
	}

	result := make(map[uint64]*domain.User, len(users))
	for i := range users {
		result[users[i].ID] = &users[i]
	}
	return result, nil
}

// SaveBalance writes back a locked user's balance.
func (tx *Tx) SaveBalance(user *domain.User) error {
	err := tx.db.Model(user).Update("balance", user.Balance).Error
	if err != nil {
		return fmt.Errorf("save balance of %d: %w", user.ID, err)
	}
	return nil
}

// ======================================================================================
// Inventory positions
// ======================================================================================

// LockPosition locks a user's position in symbol.
// Returns domain.ErrPositionNotFound if the user never held the symbol.
func (tx *Tx) LockPosition(userID uint64, symbol string) (*domain.InventoryPosition, error) {
	var pos domain.InventoryPosition
	err := tx.forUpdate().First(&pos, "user_id = ? AND symbol = ?", userID, symbol).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPositionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock position %d/%s: %w", userID, symbol, err)
	}
	return &pos, nil
}

// LockOrCreatePosition locks the position, inserting an empty one first if
// the user has never held the symbol.
func (tx *Tx) LockOrCreatePosition(userID uint64, symbol string) (*domain.InventoryPosition, error) {
	pos, err := tx.LockPosition(userID, symbol)
	if !errors.Is(err, domain.ErrPositionNotFound) {
		return pos, err
	}

	pos = &domain.InventoryPosition{
		UserID:    userID,
		Symbol:    symbol,
		Available: domain.ZeroMoney,
		Locked:    domain.ZeroMoney,
	}
	if err := tx.db.Create(pos).Error; err != nil {
		return nil, fmt.Errorf("create position %d/%s: %w", userID, symbol, err)
	}
	return pos, nil
}

// SavePosition writes back a locked position.
func (tx *Tx) SavePosition(pos *domain.InventoryPosition) error {
	if err := pos.VerifyInvariant(); err != nil {
		return err
	}
	err := tx.db.Model(pos).Updates(map[string]interface{}{
		"available": pos.Available,
		"locked":    pos.Locked,
	}).Error
	if err != nil {
		return fmt.Errorf("save position %d/%s: %w", pos.UserID, pos.Symbol, err)
	}
	return nil
}

// ======================================================================================
// Orders
// ======================================================================================

// CreateOrder inserts a new order and fills in its id and timestamps.
func (tx *Tx) CreateOrder(order *domain.Order) error {
	if err := tx.db.Create(order).Error; err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

// LockOrder locks an order row regardless of its status.
func (tx *Tx) LockOrder(id uint64) (*domain.Order, error) {
	var order domain.Order
	err := tx.forUpdate().First(&order, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock order %d: %w", id, err)
	}
	return &order, nil
}

// LockOpenOrder locks an order only if it is OPEN and owned by userID.
// Returns nil, nil when no such row exists.
func (tx *Tx) LockOpenOrder(id, userID uint64) (*domain.Order, error) {
	var orders []domain.Order
	err := tx.forUpdate().
		Where("id = ? AND user_id = ? AND status = ?", id, userID, domain.OrderStatusOpen).
		Limit(1).
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("lock open order %d: %w", id, err)
	}
	if len(orders) == 0 {
		return nil, nil
	}
	return &orders[0], nil
}

// LockCounterOrder selects and locks the single best counter-order for
// trigger: OPEN, same symbol, opposite side, crossing price, another owner.
// Best price first, then oldest. Returns nil, nil when nothing crosses.
func (tx *Tx) LockCounterOrder(trigger *domain.Order) (*domain.Order, error) {
	counter, err := tx.lockCounter(trigger)
	if counter != nil || err != nil || !tx.rowLocks {
		return counter, err
	}
	// Under READ COMMITTED a candidate filled by another matcher while we
	// waited on its lock drops out of the result instead of yielding the
	// next one. A second query sees the committed book.
	return tx.lockCounter(trigger)
}

func (tx *Tx) lockCounter(trigger *domain.Order) (*domain.Order, error) {
	q := tx.forUpdate().
		Where("status = ? AND symbol = ? AND side = ? AND user_id <> ?",
			domain.OrderStatusOpen, trigger.Symbol, trigger.Side.Opposite(), trigger.UserID)

	if trigger.Side == domain.SideBuy {
		q = q.Where("price_ticks <= ?", trigger.PriceTicks).Order("price_ticks ASC")
	} else {
		q = q.Where("price_ticks >= ?", trigger.PriceTicks).Order("price_ticks DESC")
	}

	var orders []domain.Order
	err := q.Order("created_at ASC").Order("id ASC").Limit(1).Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("lock counter order for %d: %w", trigger.ID, err)
	}
	if len(orders) == 0 {
		return nil, nil
	}
	return &orders[0], nil
}

// SetStatus transitions a locked order.
func (tx *Tx) SetStatus(order *domain.Order, status domain.OrderStatus) error {
	if err := tx.db.Model(order).Update("status", status).Error; err != nil {
		return fmt.Errorf("set order %d to %s: %w", order.ID, status, err)
	}
	order.Status = status
	return nil
}
