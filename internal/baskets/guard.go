package baskets

import (
	"context"
	"fmt"
	"time"

	"github.com/salesops/basket-engine/pkg/db/models"
)

type newerOrderFinder interface {
	HasNewerAdvancedOrder(ctx context.Context, customerID int64, orderID string, orderDate time.Time) (bool, error)
}

// RaceGuard suppresses events for an order when a strictly newer order of
// the same customer has already left the pending stage.
type RaceGuard struct {
	repo newerOrderFinder
}

// NewRaceGuard builds a guard over repo.
func NewRaceGuard(repo newerOrderFinder) (*RaceGuard, error) {
	if repo == nil {
		return nil, fmt.Errorf("race guard repository required")
	}
	return &RaceGuard{repo: repo}, nil
}

// IsStale reports whether order has been overtaken.
func (g *RaceGuard) IsStale(ctx context.Context, order models.Order) (bool, error) {
	return g.repo.HasNewerAdvancedOrder(ctx, order.CustomerID, order.ID, order.OrderDate)
}
