package roundrobin

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/salesops/basket-engine/internal/repo"
	"github.com/salesops/basket-engine/pkg/db/models"
	"github.com/salesops/basket-engine/pkg/enums"
)

// Repository persists rotation pointers and order routing stamps.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	LockPointer(ctx context.Context, scope string) (*models.RoundRobinPointer, error)
	SavePointer(ctx context.Context, scope string, agentID int64) error
	ListCandidates(ctx context.Context, roles []enums.UserRole) ([]int64, error)
	TouchAgent(ctx context.Context, agentID int64, at time.Time) error

	FindOrder(ctx context.Context, orderID string) (*models.Order, error)
	SetRoutingOwner(ctx context.Context, orderID string, agentID *int64) (bool, error)
}

type repository struct {
	repo.Base
}

// NewRepository builds a round-robin repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Bind(tx)}
}

// LockPointer returns the scope's pointer row locked for update, creating an
// empty one first when the scope has never assigned.
func (r *repository) LockPointer(ctx context.Context, scope string) (*models.RoundRobinPointer, error) {
	seed := models.RoundRobinPointer{Scope: scope, UpdatedAt: time.Now().UTC()}
	if err := r.DB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return nil, err
	}
	var pointer models.RoundRobinPointer
	err := r.DB(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("scope = ?", scope).
		First(&pointer).Error
	if err != nil {
		return nil, err
	}
	return &pointer, nil
}

func (r *repository) SavePointer(ctx context.Context, scope string, agentID int64) error {
	return r.DB(ctx).Model(&models.RoundRobinPointer{}).
		Where("scope = ?", scope).
		Updates(map[string]any{
			"last_assigned_id": agentID,
			"updated_at":       time.Now().UTC(),
		}).Error
}

// ListCandidates returns active users holding one of roles, ordered by id.
func (r *repository) ListCandidates(ctx context.Context, roles []enums.UserRole) ([]int64, error) {
	var ids []int64
	err := r.DB(ctx).Model(&models.User{}).
		Where("is_active = ?", true).
		Where("role IN ?", roles).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

func (r *repository) TouchAgent(ctx context.Context, agentID int64, at time.Time) error {
	return r.DB(ctx).Model(&models.User{}).
		Where("id = ?", agentID).
		Update("last_assigned_at", at).Error
}

func (r *repository) FindOrder(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	if err := r.DB(ctx).Where("id = ?", orderID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// SetRoutingOwner stamps or clears the order's routing owner and reports
// whether a row changed.
func (r *repository) SetRoutingOwner(ctx context.Context, orderID string, agentID *int64) (bool, error) {
	var value any
	if agentID != nil {
		value = *agentID
	}
	res := r.DB(ctx).Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("routing_owner_id", value)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
