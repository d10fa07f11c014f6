package baskets

import (
	"time"

	"github.com/salesops/basket-engine/pkg/db/models"
	"github.com/salesops/basket-engine/pkg/enums"
)

// Day thresholds for re-evaluating a customer by order recency.
const (
	midTierFromDays     = 180
	longTierFromDays    = 366
	ancientTierFromDays = 1096
)

// Snapshot is the slice of a customer the matcher looks at.
type Snapshot struct {
	OrderCount     int
	FirstOrderDate *time.Time
	LastOrderDate  *time.Time
	DateRegistered time.Time
}

// SnapshotOf extracts the matcher inputs from a customer row.
func SnapshotOf(c models.Customer) Snapshot {
	return Snapshot{
		OrderCount:     c.OrderCount,
		FirstOrderDate: c.FirstOrderDate,
		LastOrderDate:  c.LastOrderDate,
		DateRegistered: c.DateRegistered,
	}
}

// DaysSinceLastOrder counts calendar days since the last order, falling back
// to the registration date for customers who never ordered.
func (s Snapshot) DaysSinceLastOrder(now time.Time) int {
	ref := s.DateRegistered
	if s.LastOrderDate != nil {
		ref = *s.LastOrderDate
	}
	return daysBetween(ref, now)
}

// MatchAging buckets a customer by order recency. ok is false when the
// customer is recent enough to stay where they are.
func MatchAging(daysSinceLastOrder int) (role enums.BasketRole, ok bool) {
	switch {
	case daysSinceLastOrder < midTierFromDays:
		return "", false
	case daysSinceLastOrder < longTierFromDays:
		return enums.BasketRoleMidTier, true
	case daysSinceLastOrder < ancientTierFromDays:
		return enums.BasketRoleLongTier, true
	default:
		return enums.BasketRoleAncientTier, true
	}
}

// Reevaluate resolves the basket a customer belongs in. Active baskets that
// declare matcher predicates are tried in display order; when none match,
// the recency buckets decide. It returns "" when the customer should stay.
func Reevaluate(catalog *Catalog, s Snapshot, now time.Time) string {
	for _, cfg := range catalog.Active() {
		if hasPredicates(cfg) && Matches(cfg, s, now) {
			return cfg.BasketKey
		}
	}
	role, ok := MatchAging(s.DaysSinceLastOrder(now))
	if !ok {
		return ""
	}
	return catalog.Key(role)
}

// Matches reports whether the snapshot satisfies every predicate set on cfg.
// Unset predicates always pass.
func Matches(cfg models.BasketConfig, s Snapshot, now time.Time) bool {
	if cfg.MinOrderCount != nil && s.OrderCount < *cfg.MinOrderCount {
		return false
	}
	if cfg.MaxOrderCount != nil && s.OrderCount > *cfg.MaxOrderCount {
		return false
	}

	sinceLast := s.DaysSinceLastOrder(now)
	if cfg.MinDaysSinceLastOrder != nil && sinceLast < *cfg.MinDaysSinceLastOrder {
		return false
	}
	if cfg.MaxDaysSinceLastOrder != nil && sinceLast > *cfg.MaxDaysSinceLastOrder {
		return false
	}

	if cfg.MinDaysSinceFirstOrder != nil {
		if s.FirstOrderDate == nil || daysBetween(*s.FirstOrderDate, now) < *cfg.MinDaysSinceFirstOrder {
			return false
		}
	}
	if cfg.MinDaysSinceRegistration != nil && daysBetween(s.DateRegistered, now) < *cfg.MinDaysSinceRegistration {
		return false
	}
	return true
}

func hasPredicates(cfg models.BasketConfig) bool {
	return cfg.MinOrderCount != nil ||
		cfg.MaxOrderCount != nil ||
		cfg.MinDaysSinceLastOrder != nil ||
		cfg.MaxDaysSinceLastOrder != nil ||
		cfg.MinDaysSinceFirstOrder != nil ||
		cfg.MinDaysSinceRegistration != nil
}

// daysBetween counts UTC calendar-day boundaries between from and to.
func daysBetween(from, to time.Time) int {
	f := startOfDay(from)
	t := startOfDay(to)
	return int(t.Sub(f).Hours() / 24)
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
