package models

import (
	"time"

	dbtypes "github.com/salesops/basket-engine/pkg/db/types"
)

// Customer is the routed lead. Basket and ownership columns are written only
// by the transition executor and the release policy.
type Customer struct {
	ID                 int64             `gorm:"column:id;primaryKey;autoIncrement"`
	Name               string            `gorm:"column:name;not null"`
	CurrentBasketKey   string            `gorm:"column:current_basket_key;not null;index"`
	AssignedTo         *int64            `gorm:"column:assigned_to;index"`
	PreviousAssignedTo dbtypes.Int64List `gorm:"column:previous_assigned_to;type:jsonb;not null"`
	BasketEnteredDate  *time.Time        `gorm:"column:basket_entered_date"`
	HoldUntilDate      *time.Time        `gorm:"column:hold_until_date"`
	DistributionCount  int               `gorm:"column:distribution_count;not null"`
	OrderCount         int               `gorm:"column:order_count;not null"`
	FirstOrderDate     *time.Time        `gorm:"column:first_order_date"`
	LastOrderDate      *time.Time        `gorm:"column:last_order_date"`
	DateRegistered     time.Time         `gorm:"column:date_registered;not null"`
	CreatedAt          time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
