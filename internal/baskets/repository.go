package baskets

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/salesops/basket-engine/internal/repo"
	"github.com/salesops/basket-engine/pkg/db/models"
	"github.com/salesops/basket-engine/pkg/enums"
)

// Repository is the persistence surface of the routing engine.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	ListBasketConfigs(ctx context.Context) ([]models.BasketConfig, error)

	FindOrder(ctx context.Context, orderID string) (*models.Order, error)
	FindCustomer(ctx context.Context, customerID int64) (*models.Customer, error)
	LockCustomer(ctx context.Context, customerID int64) (*models.Customer, error)
	UpdateCustomer(ctx context.Context, customerID int64, updates map[string]any) error
	FindUserRole(ctx context.Context, userID int64) (enums.UserRole, error)

	HasNewerAdvancedOrder(ctx context.Context, customerID int64, orderID string, orderDate time.Time) (bool, error)
	CountTelesaleOrders(ctx context.Context, customerID int64, roles []enums.UserRole, since time.Time) (int64, error)
	CountTelesaleItems(ctx context.Context, customerID int64, roles []enums.UserRole, since time.Time) (int64, error)

	InsertTransitionLog(ctx context.Context, entry *models.BasketTransitionLog) error
	LastEntryInto(ctx context.Context, customerID int64, basketKey string) (*models.BasketTransitionLog, error)
	ListTransitionLog(ctx context.Context, customerID int64) ([]models.BasketTransitionLog, error)

	ListAgingCustomers(ctx context.Context, basketKey string, enteredBefore time.Time, after *AgingCursor, limit int) ([]models.Customer, error)
	ListDistributable(ctx context.Context, basketKey string, now time.Time, limit int) ([]models.Customer, error)
	ListOwnedInBasket(ctx context.Context, agentID int64, basketKey string, limit int) ([]models.Customer, error)
}

type repository struct {
	repo.Base
}

// NewRepository builds a routing repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Bind(tx)}
}

func (r *repository) ListBasketConfigs(ctx context.Context) ([]models.BasketConfig, error) {
	var configs []models.BasketConfig
	err := r.DB(ctx).
		Order("display_order ASC").
		Order("basket_key ASC").
		Find(&configs).Error
	if err != nil {
		return nil, err
	}
	return configs, nil
}

func (r *repository) FindOrder(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	if err := r.DB(ctx).Where("id = ?", orderID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindCustomer(ctx context.Context, customerID int64) (*models.Customer, error) {
	var customer models.Customer
	if err := r.DB(ctx).Where("id = ?", customerID).First(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

// LockCustomer reads the customer row with SELECT ... FOR UPDATE. It must be
// called on a transaction-bound repository.
func (r *repository) LockCustomer(ctx context.Context, customerID int64) (*models.Customer, error) {
	var customer models.Customer
	err := r.DB(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", customerID).
		First(&customer).Error
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *repository) UpdateCustomer(ctx context.Context, customerID int64, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	res := r.DB(ctx).
		Model(&models.Customer{}).
		Where("id = ?", customerID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) FindUserRole(ctx context.Context, userID int64) (enums.UserRole, error) {
	var user models.User
	err := r.DB(ctx).
		Select("id", "role").
		Where("id = ?", userID).
		First(&user).Error
	if err != nil {
		return "", err
	}
	return user.Role, nil
}

func (r *repository) HasNewerAdvancedOrder(ctx context.Context, customerID int64, orderID string, orderDate time.Time) (bool, error) {
	var count int64
	err := r.DB(ctx).
		Model(&models.Order{}).
		Where("customer_id = ?", customerID).
		Where("id <> ?", orderID).
		Where("order_date > ?", orderDate.UTC()).
		Where("status IN ?", enums.AdvancedOrderStatuses).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) CountTelesaleOrders(ctx context.Context, customerID int64, roles []enums.UserRole, since time.Time) (int64, error) {
	var count int64
	err := r.DB(ctx).
		Table("orders AS o").
		Joins("JOIN users u ON u.id = o.creator_id").
		Where("o.customer_id = ?", customerID).
		Where("o.status IN ?", enums.OpenOrderStatuses).
		Where("o.order_date >= ?", since.UTC()).
		Where("u.role IN ?", roles).
		Count(&count).Error
	return count, err
}

func (r *repository) CountTelesaleItems(ctx context.Context, customerID int64, roles []enums.UserRole, since time.Time) (int64, error) {
	var count int64
	err := r.DB(ctx).
		Table("order_items AS oi").
		Joins("JOIN orders o ON o.id = oi.parent_order_id").
		Joins("JOIN users u ON u.id = oi.creator_id").
		Where("o.customer_id = ?", customerID).
		Where("o.status IN ?", enums.OpenOrderStatuses).
		Where("o.order_date >= ?", since.UTC()).
		Where("u.role IN ?", roles).
		Count(&count).Error
	return count, err
}

func (r *repository) InsertTransitionLog(ctx context.Context, entry *models.BasketTransitionLog) error {
	return r.DB(ctx).Create(entry).Error
}

// LastEntryInto returns the most recent log row that moved the customer into
// basketKey, or nil when there is none.
func (r *repository) LastEntryInto(ctx context.Context, customerID int64, basketKey string) (*models.BasketTransitionLog, error) {
	var entry models.BasketTransitionLog
	err := r.DB(ctx).
		Where("customer_id = ? AND to_basket_key = ?", customerID, basketKey).
		Order("id DESC").
		Limit(1).
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) ListTransitionLog(ctx context.Context, customerID int64) ([]models.BasketTransitionLog, error) {
	var entries []models.BasketTransitionLog
	err := r.DB(ctx).
		Where("customer_id = ?", customerID).
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) ListAgingCustomers(ctx context.Context, basketKey string, enteredBefore time.Time, after *AgingCursor, limit int) ([]models.Customer, error) {
	var customers []models.Customer
	q := r.DB(ctx).
		Where("current_basket_key = ?", basketKey).
		Where("basket_entered_date IS NOT NULL").
		Where("basket_entered_date < ?", enteredBefore.UTC())
	if after != nil {
		entered := after.EnteredAt.UTC()
		q = q.Where("(basket_entered_date > ? OR (basket_entered_date = ? AND id > ?))", entered, entered, after.ID)
	}
	q = q.Order("basket_entered_date ASC").Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&customers).Error; err != nil {
		return nil, err
	}
	return customers, nil
}

// ListDistributable returns unowned customers in basketKey whose hold has
// lapsed.
func (r *repository) ListDistributable(ctx context.Context, basketKey string, now time.Time, limit int) ([]models.Customer, error) {
	var customers []models.Customer
	q := r.DB(ctx).
		Where("current_basket_key = ?", basketKey).
		Where("assigned_to IS NULL").
		Where("hold_until_date IS NULL OR hold_until_date <= ?", now.UTC()).
		Order("basket_entered_date ASC").
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&customers).Error; err != nil {
		return nil, err
	}
	return customers, nil
}

func (r *repository) ListOwnedInBasket(ctx context.Context, agentID int64, basketKey string, limit int) ([]models.Customer, error) {
	var customers []models.Customer
	q := r.DB(ctx).
		Where("assigned_to = ?", agentID).
		Where("current_basket_key = ?", basketKey).
		Order("basket_entered_date ASC").
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&customers).Error; err != nil {
		return nil, err
	}
	return customers, nil
}
