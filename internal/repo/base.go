package repo

import (
	"context"

	"gorm.io/gorm"
)

// Base is embedded by the routing and round-robin repositories so both bind
// to either the pooled connection or a caller's transaction the same way.
type Base struct {
	db *gorm.DB
}

// NewBase wraps db.
func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// Bind returns a Base that runs on tx. A nil tx keeps the current handle.
func (b Base) Bind(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx}
}

// DB returns the handle scoped to ctx. A nil ctx yields the raw handle.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}
