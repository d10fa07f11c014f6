package models

import "time"

// RoundRobinPointer remembers the last agent handed a lead in one scope.
type RoundRobinPointer struct {
	Scope          string    `gorm:"column:scope;primaryKey"`
	LastAssignedID *int64    `gorm:"column:last_assigned_id"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
