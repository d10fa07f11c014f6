package baskets

import (
	"context"
	"fmt"
	"time"

	"github.com/salesops/basket-engine/pkg/enums"
)

type involvementCounter interface {
	CountTelesaleOrders(ctx context.Context, customerID int64, roles []enums.UserRole, since time.Time) (int64, error)
	CountTelesaleItems(ctx context.Context, customerID int64, roles []enums.UserRole, since time.Time) (int64, error)
}

// InvolvementProber answers whether a telesale agent sold to a customer
// recently, either by creating an open order or by adding an item to one.
type InvolvementProber struct {
	repo     involvementCounter
	lookback time.Duration
	roles    []enums.UserRole
	now      func() time.Time
}

// NewInvolvementProber builds a prober. roles lists the user roles that
// count as telesale.
func NewInvolvementProber(repo involvementCounter, lookback time.Duration, roles []enums.UserRole) (*InvolvementProber, error) {
	if repo == nil {
		return nil, fmt.Errorf("involvement repository required")
	}
	if lookback <= 0 {
		return nil, fmt.Errorf("involvement lookback must be positive")
	}
	if len(roles) == 0 {
		return nil, fmt.Errorf("at least one telesale role required")
	}
	return &InvolvementProber{
		repo:     repo,
		lookback: lookback,
		roles:    roles,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// IsTelesale reports whether role counts as telesale.
func (p *InvolvementProber) IsTelesale(role enums.UserRole) bool {
	for _, r := range p.roles {
		if r == role {
			return true
		}
	}
	return false
}

// Involved checks every recent open order of the customer, not only the one
// that triggered the event.
func (p *InvolvementProber) Involved(ctx context.Context, customerID int64) (bool, error) {
	since := p.now().Add(-p.lookback)

	orders, err := p.repo.CountTelesaleOrders(ctx, customerID, p.roles, since)
	if err != nil {
		return false, fmt.Errorf("count telesale orders: %w", err)
	}
	if orders > 0 {
		return true, nil
	}

	items, err := p.repo.CountTelesaleItems(ctx, customerID, p.roles, since)
	if err != nil {
		return false, fmt.Errorf("count telesale items: %w", err)
	}
	return items > 0, nil
}
