package models

import (
	"time"

	"github.com/salesops/basket-engine/pkg/enums"
)

// BasketTransitionLog is an append-only audit row. Rows are never updated.
type BasketTransitionLog struct {
	ID             int64                `gorm:"column:id;primaryKey;autoIncrement"`
	CustomerID     int64                `gorm:"column:customer_id;not null;index"`
	FromBasketKey  *string              `gorm:"column:from_basket_key"`
	ToBasketKey    string               `gorm:"column:to_basket_key;not null"`
	AssignedToOld  *int64               `gorm:"column:assigned_to_old"`
	AssignedToNew  *int64               `gorm:"column:assigned_to_new"`
	TransitionType enums.TransitionType `gorm:"column:transition_type;not null"`
	TriggeredBy    *int64               `gorm:"column:triggered_by"`
	OrderID        *string              `gorm:"column:order_id"`
	Notes          *string              `gorm:"column:notes"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
}

func (BasketTransitionLog) TableName() string {
	return "basket_transition_log"
}
