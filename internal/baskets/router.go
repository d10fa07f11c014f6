package baskets

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/salesops/basket-engine/pkg/enums"
	pkgerrors "github.com/salesops/basket-engine/pkg/errors"
	"github.com/salesops/basket-engine/pkg/logger"
	"github.com/salesops/basket-engine/pkg/metrics"
)

// RoutingResult reports what an order event did to its customer. A nil
// result with a nil error means no rule applied.
type RoutingResult struct {
	Success        bool
	Skipped        bool
	Reason         string
	Rule           string
	CustomerID     int64
	FromBasket     string
	ToBasket       string
	TransitionType enums.TransitionType
	AssignedToOld  *int64
	AssignedToNew  *int64
	OrderID        string
	Notes          string
}

// Router turns order status changes into basket transitions.
type Router struct {
	repo    Repository
	catalog catalogProvider
	guard   *RaceGuard
	prober  *InvolvementProber
	exec    *Executor
	metrics *metrics.RoutingMetrics
	logg    *logger.Logger
}

// NewRouter wires the event path. metrics and logg may be nil.
func NewRouter(repo Repository, catalog catalogProvider, guard *RaceGuard, prober *InvolvementProber, exec *Executor, m *metrics.RoutingMetrics, logg *logger.Logger) (*Router, error) {
	if repo == nil {
		return nil, fmt.Errorf("baskets repository required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("basket catalog required")
	}
	if guard == nil {
		return nil, fmt.Errorf("race guard required")
	}
	if prober == nil {
		return nil, fmt.Errorf("involvement prober required")
	}
	if exec == nil {
		return nil, fmt.Errorf("transition executor required")
	}
	return &Router{
		repo:    repo,
		catalog: catalog,
		guard:   guard,
		prober:  prober,
		exec:    exec,
		metrics: m,
		logg:    logg,
	}, nil
}

// HandleOrderStatusChange routes the customer of orderID after the order
// entered newStatus. Only pending, picking and shipping are acted on.
// Unknown orders or customers return a CodeNotFound error and write nothing.
func (r *Router) HandleOrderStatusChange(ctx context.Context, orderID string, newStatus enums.OrderStatus, triggeredBy int64) (*RoutingResult, error) {
	if !newStatus.Routable() {
		return nil, nil
	}
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	order, err := r.repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	customer, err := r.repo.FindCustomer(ctx, order.CustomerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
	}
	catalog, err := r.catalog.Current(ctx)
	if err != nil {
		return nil, err
	}

	if r.logg != nil {
		ctx = r.logg.WithOrderID(ctx, order.ID)
		ctx = r.logg.WithCustomerID(ctx, customer.ID)
	}

	creatorRole, err := r.repo.FindUserRole(ctx, order.CreatorID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load creator role")
	}

	facts := Facts{
		Status:            newStatus,
		CreatorID:         order.CreatorID,
		CreatorIsTelesale: r.prober.IsTelesale(creatorRole),
		Owner:             customer.AssignedTo,
	}
	facts.CurrentRole, _ = catalog.Role(customer.CurrentBasketKey)

	if newStatus != enums.OrderStatusPending {
		stale, err := r.guard.IsStale(ctx, *order)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check newer orders")
		}
		facts.NewerOrderAdvanced = stale

		if !stale && facts.CurrentRole == enums.BasketRoleUpsellReview {
			involved, err := r.prober.Involved(ctx, customer.ID)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "probe telesale involvement")
			}
			facts.TelesaleInvolved = involved
			if !involved {
				entry, err := r.repo.LastEntryInto(ctx, customer.ID, customer.CurrentBasketKey)
				if err != nil {
					return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load upsell entry")
				}
				facts.CameFromPersonalRecent = entry != nil && entry.FromBasketKey != nil &&
					catalog.Is(*entry.FromBasketKey, enums.BasketRolePersonalRecent)
			}
		}
	}

	decision := Evaluate(facts)
	switch decision.Action {
	case ActionSkip:
		r.metrics.IncSkipped(decision.Reason)
		r.info(ctx, "routing skipped: "+decision.Reason)
		return &RoutingResult{
			Skipped:    true,
			Reason:     decision.Reason,
			Rule:       decision.Rule,
			CustomerID: customer.ID,
			FromBasket: customer.CurrentBasketKey,
			OrderID:    order.ID,
		}, nil

	case ActionRefresh:
		if err := r.exec.RefreshEnteredDate(ctx, customer.ID); err != nil {
			return nil, err
		}
		return nil, nil

	case ActionMove:
		target := catalog.Key(decision.Target)
		if target == "" {
			r.metrics.IncSkipped("no_target")
			r.warn(ctx, "no basket bound to role "+string(decision.Target))
			return nil, nil
		}
		req := TransitionRequest{
			CustomerID:          customer.ID,
			TargetBasket:        target,
			Type:                decision.Type,
			OrderID:             &order.ID,
			Notes:               fmt.Sprintf("order %s %s (%s)", order.ID, newStatus, decision.Rule),
			PreserveEnteredDate: decision.PreserveEnteredDate,
		}
		if triggeredBy > 0 {
			actor := triggeredBy
			req.TriggeredBy = &actor
		}
		if decision.AssignOwner {
			owner := order.CreatorID
			req.NewOwner = &owner
		}

		res, err := r.exec.TransitionTo(ctx, req)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeConfiguration) {
				r.metrics.IncSkipped("configuration")
				r.warn(ctx, "transition target unresolved: "+err.Error())
				return nil, nil
			}
			return nil, err
		}
		return &RoutingResult{
			Success:        true,
			Rule:           decision.Rule,
			CustomerID:     res.CustomerID,
			FromBasket:     res.FromBasket,
			ToBasket:       res.ToBasket,
			TransitionType: res.TransitionType,
			AssignedToOld:  res.AssignedToOld,
			AssignedToNew:  res.AssignedToNew,
			OrderID:        order.ID,
			Notes:          res.Notes,
		}, nil

	default:
		if r.logg != nil {
			r.logg.Debug(ctx, "no routing rule applied: "+decision.Reason)
		}
		return nil, nil
	}
}

func (r *Router) info(ctx context.Context, msg string) {
	if r.logg != nil {
		r.logg.Info(ctx, msg)
	}
}

func (r *Router) warn(ctx context.Context, msg string) {
	if r.logg != nil {
		r.logg.Warn(ctx, msg)
	}
}
