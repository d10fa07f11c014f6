package models

import (
	"time"

	"github.com/salesops/basket-engine/pkg/enums"
)

// BasketConfig holds the policy of one basket. Rows are owned by the admin
// configuration surface; the engine only reads them.
type BasketConfig struct {
	BasketKey       string            `gorm:"column:basket_key;primaryKey"`
	Name            string            `gorm:"column:name;not null"`
	Role            *enums.BasketRole `gorm:"column:role"`
	LinkedBasketKey *string           `gorm:"column:linked_basket_key"`

	HoldDaysBeforeRedistribute int     `gorm:"column:hold_days_before_redistribute;not null"`
	MaxDistributionCount       int     `gorm:"column:max_distribution_count;not null"`
	OnMaxDistBasketKey         *string `gorm:"column:on_max_dist_basket_key"`
	OnFailBasketKey            *string `gorm:"column:on_fail_basket_key"`
	OnFailReevaluate           bool    `gorm:"column:on_fail_reevaluate;not null"`
	FailAfterDays              *int    `gorm:"column:fail_after_days"`

	MinOrderCount            *int `gorm:"column:min_order_count"`
	MaxOrderCount            *int `gorm:"column:max_order_count"`
	MinDaysSinceLastOrder    *int `gorm:"column:min_days_since_last_order"`
	MaxDaysSinceLastOrder    *int `gorm:"column:max_days_since_last_order"`
	MinDaysSinceFirstOrder   *int `gorm:"column:min_days_since_first_order"`
	MinDaysSinceRegistration *int `gorm:"column:min_days_since_registration"`

	IsActive     bool      `gorm:"column:is_active;not null"`
	DisplayOrder int       `gorm:"column:display_order;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
