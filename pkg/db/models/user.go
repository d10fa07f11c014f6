package models

import (
	"time"

	"github.com/salesops/basket-engine/pkg/enums"
)

// User is a staff member. Only role and activity matter to routing.
type User struct {
	ID             int64          `gorm:"column:id;primaryKey;autoIncrement"`
	Name           string         `gorm:"column:name;not null"`
	Role           enums.UserRole `gorm:"column:role;not null"`
	IsActive       bool           `gorm:"column:is_active;not null"`
	LastAssignedAt *time.Time     `gorm:"column:last_assigned_at"`
	CreatedAt      time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
