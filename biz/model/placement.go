package model

import (
	"gorm.io/gorm"
)

// Placement is the audit row written for every accepted order placement.
type Placement struct {
	OrderID   uint64         `gorm:"primaryKey;column:order_id" json:"order_id"`
	ClientID  uint64         `gorm:"column:client_id;index" json:"client_id"`
	Side      string         `gorm:"column:side" json:"side"`
	Price     string         `gorm:"column:price" json:"price"`
	Quantity  uint64         `gorm:"column:quantity" json:"quantity"`
	CreatedAt int64          `gorm:"column:created_at" json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Placement) TableName() string {
	return "placements"
}
