package domain

import (
	"time"
)

// User owns a single cash balance. Cash reserved by OPEN buy orders has
// already been debited from Balance.
type User struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"size:64;not null" json:"name"`
	Balance   Money     `gorm:"type:varchar(40);not null" json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InventoryPosition is a user's holding of one symbol.
// Available + Locked is the total quantity owned.
type InventoryPosition struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	UserID    uint64    `gorm:"not null;uniqueIndex:idx_position_owner,priority:1" json:"user_id"`
	Symbol    string    `gorm:"size:16;not null;uniqueIndex:idx_position_owner,priority:2" json:"symbol"`
	Available Money     `gorm:"type:varchar(40);not null" json:"available"`
	Locked    Money     `gorm:"type:varchar(40);not null" json:"locked"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (InventoryPosition) TableName() string {
	return "inventory_positions"
}

// Profile is a user's balance together with all positions.
type Profile struct {
	User      User                `json:"user"`
	Positions []InventoryPosition `json:"positions"`
}
