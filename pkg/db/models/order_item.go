package models

import "time"

// OrderItem is a line on an order. CreatorID may differ from the order's
// creator when another agent topped the order up.
type OrderItem struct {
	ID              int64     `gorm:"column:id;primaryKey;autoIncrement"`
	ParentOrderID   string    `gorm:"column:parent_order_id;not null;index"`
	CreatorID       *int64    `gorm:"column:creator_id"`
	BasketKeyAtSale *string   `gorm:"column:basket_key_at_sale"`
	SKU             string    `gorm:"column:sku;not null"`
	Quantity        int       `gorm:"column:quantity;not null"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
}
