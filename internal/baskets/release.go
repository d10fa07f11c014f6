package baskets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/salesops/basket-engine/pkg/db/models"
	"github.com/salesops/basket-engine/pkg/enums"
	pkgerrors "github.com/salesops/basket-engine/pkg/errors"
	"github.com/salesops/basket-engine/pkg/logger"
)

// ReleaseRequest unassigns a customer from their owner.
type ReleaseRequest struct {
	CustomerID  int64
	TriggeredBy *int64
	Notes       string
}

// DistributeRequest hands unowned customers of one basket to agents.
type DistributeRequest struct {
	BasketKey   string
	AgentIDs    []int64
	Limit       int
	TriggeredBy *int64
}

// BatchReport summarizes a bulk distribute or reclaim.
type BatchReport struct {
	Moved   int
	Skipped int
	Results []TransitionResult
	Errors  []error
}

// Err combines the per-customer failures, or nil.
func (r BatchReport) Err() error {
	return multierr.Combine(r.Errors...)
}

// ReleasePolicy owns unassignment, hold periods and the distribution cap.
type ReleasePolicy struct {
	repo    Repository
	tx      txRunner
	catalog catalogProvider
	exec    *Executor
	logg    *logger.Logger
}

// NewReleasePolicy wires the policy over the shared executor.
func NewReleasePolicy(repo Repository, tx txRunner, catalog catalogProvider, exec *Executor, logg *logger.Logger) (*ReleasePolicy, error) {
	if repo == nil {
		return nil, fmt.Errorf("baskets repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("basket catalog required")
	}
	if exec == nil {
		return nil, fmt.Errorf("transition executor required")
	}
	return &ReleasePolicy{repo: repo, tx: tx, catalog: catalog, exec: exec, logg: logg}, nil
}

// Release returns the customer to the unowned pool of their basket. The
// prior owner joins the history, a hold starts, and the distribution count
// goes up. Hitting the basket's cap moves the customer on with the count
// reset. A customer still owned in upsell review goes back to the owner's
// personal-recent basket instead.
func (p *ReleasePolicy) Release(ctx context.Context, in ReleaseRequest) (*TransitionResult, error) {
	var result *TransitionResult
	err := p.tx.WithTx(ctx, func(tx *gorm.DB) error {
		customer, err := p.repo.WithTx(tx).LockCustomer(ctx, in.CustomerID)
		if err != nil {
			return classify(err, "lock customer")
		}
		catalog, err := p.catalog.Current(ctx)
		if err != nil {
			return err
		}
		current := customer.CurrentBasketKey
		cfg, ok := catalog.Lookup(current)
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConfiguration, "current basket unknown: "+current)
		}

		if catalog.Is(current, enums.BasketRoleUpsellReview) && customer.AssignedTo != nil {
			result, err = p.exec.ApplyLocked(ctx, tx, customer, TransitionRequest{
				CustomerID:   customer.ID,
				TargetBasket: catalog.Key(enums.BasketRolePersonalRecent),
				Type:         enums.TransitionUpsellReturnOwner,
				TriggeredBy:  in.TriggeredBy,
				Notes:        notesOr(in.Notes, "owner returned from upsell review"),
			})
			return err
		}

		if customer.AssignedTo == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "customer has no owner to release")
		}

		now := p.exec.now()
		count := customer.DistributionCount + 1
		var hold any
		if cfg.HoldDaysBeforeRedistribute > 0 {
			hold = now.AddDate(0, 0, cfg.HoldDaysBeforeRedistribute)
		}

		req := TransitionRequest{
			CustomerID:          customer.ID,
			TargetBasket:        current,
			Type:                enums.TransitionRelease,
			TriggeredBy:         in.TriggeredBy,
			Notes:               notesOr(in.Notes, fmt.Sprintf("released, distribution %d", count)),
			PreserveEnteredDate: true,
			ClearOwner:          true,
			RecordPreviousOwner: true,
			Extra: map[string]any{
				"distribution_count": count,
				"hold_until_date":    hold,
			},
		}

		if cfg.MaxDistributionCount > 0 && count >= cfg.MaxDistributionCount {
			target := capTarget(catalog, cfg, SnapshotOf(*customer), now)
			if target != "" && target != current {
				req.TargetBasket = target
				req.Type = enums.TransitionFail
				req.PreserveEnteredDate = false
				req.ResetDistribution = true
				req.Notes = notesOr(in.Notes, fmt.Sprintf("distribution cap %d reached", cfg.MaxDistributionCount))
			} else if p.logg != nil {
				p.logg.Warn(p.logg.WithCustomerID(ctx, customer.ID), "distribution cap reached without target in "+current)
			}
		}

		result, err = p.exec.ApplyLocked(ctx, tx, customer, req)
		return err
	})
	if err != nil {
		return nil, classify(err, "release customer")
	}
	p.exec.record(ctx, result)
	return result, nil
}

// Distribute assigns unowned, non-holding customers of a basket to agents in
// rotation. An agent who already owned a customer is never handed them
// again; customers with no eligible agent are skipped. Customers move to the
// basket's linked basket when one is configured.
func (p *ReleasePolicy) Distribute(ctx context.Context, in DistributeRequest) (BatchReport, error) {
	var report BatchReport
	if len(in.AgentIDs) == 0 {
		return report, pkgerrors.New(pkgerrors.CodeValidation, "at least one agent required")
	}
	catalog, err := p.catalog.Current(ctx)
	if err != nil {
		return report, err
	}
	cfg, ok := catalog.Lookup(in.BasketKey)
	if !ok || !cfg.IsActive {
		return report, pkgerrors.New(pkgerrors.CodeConfiguration, "basket not active: "+in.BasketKey)
	}
	target := linkedOrSelf(cfg)

	customers, err := p.repo.ListDistributable(ctx, in.BasketKey, p.exec.now(), in.Limit)
	if err != nil {
		return report, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list distributable customers")
	}

	cursor := 0
	for _, customer := range customers {
		agent, next, ok := nextEligibleAgent(in.AgentIDs, cursor, customer.PreviousAssignedTo.Contains)
		if !ok {
			report.Skipped++
			continue
		}
		cursor = next

		owner := agent
		res, err := p.exec.TransitionTo(ctx, TransitionRequest{
			CustomerID:   customer.ID,
			TargetBasket: target,
			Type:         enums.TransitionRedistribute,
			TriggeredBy:  in.TriggeredBy,
			NewOwner:     &owner,
			Notes:        fmt.Sprintf("distributed from %s", in.BasketKey),
			Expect: func(c models.Customer) bool {
				return c.AssignedTo == nil && c.CurrentBasketKey == in.BasketKey
			},
		})
		p.collect(&report, customer.ID, res, err)
	}
	return report, nil
}

// Reclaim pulls up to limit customers back from an agent into the basket's
// linked distribution basket, unassigning them.
func (p *ReleasePolicy) Reclaim(ctx context.Context, agentID int64, basketKey string, limit int) (BatchReport, error) {
	var report BatchReport
	catalog, err := p.catalog.Current(ctx)
	if err != nil {
		return report, err
	}
	cfg, ok := catalog.Lookup(basketKey)
	if !ok || !cfg.IsActive {
		return report, pkgerrors.New(pkgerrors.CodeConfiguration, "basket not active: "+basketKey)
	}
	target := linkedOrSelf(cfg)

	customers, err := p.repo.ListOwnedInBasket(ctx, agentID, basketKey, limit)
	if err != nil {
		return report, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list owned customers")
	}

	for _, customer := range customers {
		res, err := p.exec.TransitionTo(ctx, TransitionRequest{
			CustomerID:          customer.ID,
			TargetBasket:        target,
			Type:                enums.TransitionReclaim,
			ClearOwner:          true,
			RecordPreviousOwner: true,
			Notes:               fmt.Sprintf("reclaimed from agent %d", agentID),
			Expect: func(c models.Customer) bool {
				return c.AssignedTo != nil && *c.AssignedTo == agentID && c.CurrentBasketKey == basketKey
			},
		})
		p.collect(&report, customer.ID, res, err)
	}
	return report, nil
}

func (p *ReleasePolicy) collect(report *BatchReport, customerID int64, res *TransitionResult, err error) {
	switch {
	case err == nil:
		report.Moved++
		report.Results = append(report.Results, *res)
	case errors.Is(err, ErrPreconditionFailed):
		report.Skipped++
	default:
		report.Errors = append(report.Errors, fmt.Errorf("customer %d: %w", customerID, err))
	}
}

// nextEligibleAgent walks agents from cursor and returns the first one that
// is not excluded, plus the cursor for the following customer.
func nextEligibleAgent(agents []int64, cursor int, excluded func(int64) bool) (int64, int, bool) {
	for i := 0; i < len(agents); i++ {
		idx := (cursor + i) % len(agents)
		if !excluded(agents[idx]) {
			return agents[idx], (idx + 1) % len(agents), true
		}
	}
	return 0, cursor, false
}

// capTarget resolves where a customer goes once cfg's distribution cap is
// hit. With re-evaluation enabled the matcher alone decides, and "stay"
// keeps the customer in place.
func capTarget(catalog *Catalog, cfg models.BasketConfig, s Snapshot, now time.Time) string {
	if cfg.OnFailReevaluate {
		return Reevaluate(catalog, s, now)
	}
	if cfg.OnMaxDistBasketKey != nil {
		return *cfg.OnMaxDistBasketKey
	}
	return ""
}

func linkedOrSelf(cfg models.BasketConfig) string {
	if cfg.LinkedBasketKey != nil && *cfg.LinkedBasketKey != "" {
		return *cfg.LinkedBasketKey
	}
	return cfg.BasketKey
}

func notesOr(notes, fallback string) string {
	if notes != "" {
		return notes
	}
	return fallback
}
