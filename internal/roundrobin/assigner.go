package roundrobin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/salesops/basket-engine/pkg/db"
	"github.com/salesops/basket-engine/pkg/enums"
	pkgerrors "github.com/salesops/basket-engine/pkg/errors"
	"github.com/salesops/basket-engine/pkg/logger"
)

// DefaultScope is the rotation used for new-order upsell hand-off.
const DefaultScope = "upsell"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Assignment is the outcome of handing an order to an agent.
type Assignment struct {
	OrderID string
	AgentID int64
}

// Assigner rotates work fairly across active telesale agents. The rotation
// pointer lives in one row per scope and is only moved inside a transaction
// that holds its lock, so concurrent callers serialize.
type Assigner struct {
	repo  Repository
	tx    txRunner
	roles []enums.UserRole
	scope string
	logg  *logger.Logger
	now   func() time.Time
}

// NewAssigner builds an assigner over agents holding one of roles. An empty
// role list means plain telesale agents.
func NewAssigner(repo Repository, tx txRunner, roles []enums.UserRole, logg *logger.Logger) (*Assigner, error) {
	if repo == nil {
		return nil, fmt.Errorf("round robin repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if len(roles) == 0 {
		roles = []enums.UserRole{enums.UserRoleTelesale}
	}
	return &Assigner{
		repo:  repo,
		tx:    tx,
		roles: roles,
		scope: DefaultScope,
		logg:  logg,
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithScope returns a copy that stamps orders from the given rotation.
func (a *Assigner) WithScope(scope string) *Assigner {
	clone := *a
	if scope != "" {
		clone.scope = scope
	}
	return &clone
}

// GetNextAgent advances the scope's pointer and returns the chosen agent.
// ok is false when no agent is eligible.
func (a *Assigner) GetNextAgent(ctx context.Context, scope string) (agentID int64, ok bool, err error) {
	err = a.tx.WithTx(ctx, func(tx *gorm.DB) error {
		agentID, ok, err = a.next(ctx, a.repo.WithTx(tx), scope)
		return err
	})
	if err != nil {
		return 0, false, wrap(err, "rotate agent")
	}
	return agentID, ok, nil
}

// AssignOrder stamps the order's routing owner with the next agent of the
// assigner's scope. A nil result means nobody was eligible.
func (a *Assigner) AssignOrder(ctx context.Context, orderID string) (*Assignment, error) {
	var out *Assignment
	err := a.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := a.repo.WithTx(tx)
		if _, err := repo.FindOrder(ctx, orderID); err != nil {
			return err
		}
		agent, ok, err := a.next(ctx, repo, a.scope)
		if err != nil || !ok {
			return err
		}
		if _, err := repo.SetRoutingOwner(ctx, orderID, &agent); err != nil {
			return err
		}
		out = &Assignment{OrderID: orderID, AgentID: agent}
		return nil
	})
	if err != nil {
		return nil, wrap(err, "assign order")
	}
	if out != nil && a.logg != nil {
		ctx = a.logg.WithOrderID(ctx, orderID)
		a.logg.Info(a.logg.WithFields(ctx, map[string]any{"agent_id": out.AgentID}), "order routed to agent")
	}
	return out, nil
}

// ClearOnAdvance drops the routing stamp once the order has left pending.
// It reports whether a stamp was removed. No basket changes here.
func (a *Assigner) ClearOnAdvance(ctx context.Context, orderID string) (bool, error) {
	order, err := a.repo.FindOrder(ctx, orderID)
	if err != nil {
		return false, wrap(err, "load order")
	}
	if order.Status == enums.OrderStatusPending || order.RoutingOwnerID == nil {
		return false, nil
	}
	cleared, err := a.repo.SetRoutingOwner(ctx, orderID, nil)
	if err != nil {
		return false, wrap(err, "clear routing owner")
	}
	return cleared, nil
}

func (a *Assigner) next(ctx context.Context, repo Repository, scope string) (int64, bool, error) {
	pointer, err := repo.LockPointer(ctx, scope)
	if err != nil {
		return 0, false, err
	}
	candidates, err := repo.ListCandidates(ctx, a.roles)
	if err != nil {
		return 0, false, err
	}
	agent, ok := pick(candidates, pointer.LastAssignedID)
	if !ok {
		return 0, false, nil
	}
	if err := repo.SavePointer(ctx, scope, agent); err != nil {
		return 0, false, err
	}
	if err := repo.TouchAgent(ctx, agent, a.now()); err != nil {
		return 0, false, err
	}
	return agent, true, nil
}

// pick returns the candidate after last, wrapping to the first when last is
// unset, no longer a candidate, or at the end.
func pick(candidates []int64, last *int64) (int64, bool) {
	if len(candidates) == 0 {
		return 0, false
	}
	if last == nil {
		return candidates[0], true
	}
	for i, id := range candidates {
		if id == *last && i+1 < len(candidates) {
			return candidates[i+1], true
		}
	}
	return candidates[0], true
}

func wrap(err error, op string) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, op)
	case db.IsLockFailure(err):
		return pkgerrors.Wrap(pkgerrors.CodeConcurrency, err, op)
	default:
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, op)
	}
}
