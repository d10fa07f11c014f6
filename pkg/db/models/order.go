package models

import (
	"time"

	"github.com/salesops/basket-engine/pkg/enums"
)

// Order is the slice of an order the routing engine reads. RoutingOwnerID is
// the round-robin hint stamped while the order is still pending.
type Order struct {
	ID             string            `gorm:"column:id;primaryKey"`
	CustomerID     int64             `gorm:"column:customer_id;not null;index"`
	Status         enums.OrderStatus `gorm:"column:status;not null"`
	CreatorID      int64             `gorm:"column:creator_id;not null"`
	OrderDate      time.Time         `gorm:"column:order_date;not null"`
	RoutingOwnerID *int64            `gorm:"column:routing_owner_id"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
