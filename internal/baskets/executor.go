package baskets

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/salesops/basket-engine/pkg/db"
	"github.com/salesops/basket-engine/pkg/db/models"
	"github.com/salesops/basket-engine/pkg/enums"
	pkgerrors "github.com/salesops/basket-engine/pkg/errors"
	"github.com/salesops/basket-engine/pkg/logger"
	"github.com/salesops/basket-engine/pkg/metrics"
	"github.com/salesops/basket-engine/pkg/outbox"
	"github.com/salesops/basket-engine/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type catalogProvider interface {
	Current(ctx context.Context) (*Catalog, error)
}

// TransitionRequest describes one basket move.
type TransitionRequest struct {
	CustomerID   int64
	TargetBasket string
	Type         enums.TransitionType
	OrderID      *string
	TriggeredBy  *int64
	Notes        string

	// PreserveEnteredDate keeps the dwell clock running across the move.
	PreserveEnteredDate bool
	// NewOwner assigns an owner; ClearOwner unassigns. NewOwner wins.
	NewOwner   *int64
	ClearOwner bool
	// RecordPreviousOwner appends the owner being replaced or cleared to
	// the customer's assignment history.
	RecordPreviousOwner bool
	// ResetDistribution zeroes the distribution counter.
	ResetDistribution bool
	// Extra column updates written in the same statement, applied before
	// the resets above.
	Extra map[string]any
	// Expect, when set, is checked against the locked row. A false result
	// aborts with ErrPreconditionFailed.
	Expect func(models.Customer) bool
}

// ErrPreconditionFailed means the customer changed between selection and lock.
var ErrPreconditionFailed = errors.New("customer state changed before lock")

// TransitionResult is what was committed.
type TransitionResult struct {
	CustomerID     int64
	LogID          int64
	FromBasket     string
	ToBasket       string
	TransitionType enums.TransitionType
	AssignedToOld  *int64
	AssignedToNew  *int64
	OrderID        *string
	Notes          string
	At             time.Time
}

// Executor is the only writer of customer basket state. Each call locks the
// customer row, writes the new state and one audit row, and queues one
// outbox event, all in one transaction.
type Executor struct {
	repo    Repository
	tx      txRunner
	outbox  outboxEmitter
	catalog catalogProvider
	metrics *metrics.RoutingMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// NewExecutor wires an executor. metrics and logg may be nil.
func NewExecutor(repo Repository, tx txRunner, emitter outboxEmitter, catalog catalogProvider, m *metrics.RoutingMetrics, logg *logger.Logger) (*Executor, error) {
	if repo == nil {
		return nil, fmt.Errorf("baskets repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("basket catalog required")
	}
	return &Executor{
		repo:    repo,
		tx:      tx,
		outbox:  emitter,
		catalog: catalog,
		metrics: m,
		logg:    logg,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// TransitionTo moves the customer to req.TargetBasket. Nothing is retried:
// a lock timeout surfaces as CodeConcurrency and any other write failure as
// CodePersistence, with the transaction fully rolled back.
func (e *Executor) TransitionTo(ctx context.Context, req TransitionRequest) (*TransitionResult, error) {
	var result *TransitionResult
	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		customer, err := e.repo.WithTx(tx).LockCustomer(ctx, req.CustomerID)
		if err != nil {
			return classify(err, "lock customer")
		}
		result, err = e.ApplyLocked(ctx, tx, customer, req)
		return err
	})
	if err != nil {
		return nil, classify(err, "transition customer")
	}
	e.record(ctx, result)
	return result, nil
}

// ApplyLocked performs the transition for a customer the caller already
// locked inside tx. The caller owns commit and rollback.
func (e *Executor) ApplyLocked(ctx context.Context, tx *gorm.DB, customer *models.Customer, req TransitionRequest) (*TransitionResult, error) {
	if customer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer required")
	}
	if req.Expect != nil && !req.Expect(*customer) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, ErrPreconditionFailed, "transition precondition")
	}
	if !req.Type.IsValid() || req.Type == enums.TransitionDateRefresh {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid transition type "+string(req.Type))
	}
	catalog, err := e.catalog.Current(ctx)
	if err != nil {
		return nil, err
	}
	target, ok := catalog.Lookup(req.TargetBasket)
	if !ok || !target.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeConfiguration, "target basket not active: "+req.TargetBasket)
	}

	now := e.now()
	repo := e.repo.WithTx(tx)

	updates := map[string]any{"current_basket_key": req.TargetBasket}
	for col, val := range req.Extra {
		updates[col] = val
	}
	if !req.PreserveEnteredDate {
		updates["basket_entered_date"] = now
	}
	newOwner := customer.AssignedTo
	switch {
	case req.NewOwner != nil:
		owner := *req.NewOwner
		newOwner = &owner
		updates["assigned_to"] = owner
	case req.ClearOwner:
		newOwner = nil
		updates["assigned_to"] = nil
	}
	if req.RecordPreviousOwner && customer.AssignedTo != nil && !sameOwner(customer.AssignedTo, newOwner) {
		updates["previous_assigned_to"] = customer.PreviousAssignedTo.AppendUnique(*customer.AssignedTo)
	}
	if req.Type.IsSale() {
		updates["distribution_count"] = 0
		updates["hold_until_date"] = nil
	}
	if req.ResetDistribution {
		updates["distribution_count"] = 0
	}

	if err := repo.UpdateCustomer(ctx, customer.ID, updates); err != nil {
		return nil, classify(err, "update customer")
	}

	from := customer.CurrentBasketKey
	entry := &models.BasketTransitionLog{
		CustomerID:     customer.ID,
		FromBasketKey:  &from,
		ToBasketKey:    req.TargetBasket,
		AssignedToOld:  customer.AssignedTo,
		AssignedToNew:  newOwner,
		TransitionType: req.Type,
		TriggeredBy:    req.TriggeredBy,
		OrderID:        req.OrderID,
		CreatedAt:      now,
	}
	if req.Notes != "" {
		notes := req.Notes
		entry.Notes = &notes
	}
	if err := repo.InsertTransitionLog(ctx, entry); err != nil {
		return nil, classify(err, "insert transition log")
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventCustomerBasketTransitioned,
		AggregateType: enums.AggregateCustomer,
		AggregateID:   strconv.FormatInt(customer.ID, 10),
		Actor:         buildActor(req.TriggeredBy),
		OccurredAt:    now,
		Data: payloads.BasketTransitionedEvent{
			CustomerID:     customer.ID,
			LogID:          entry.ID,
			FromBasketKey:  entry.FromBasketKey,
			ToBasketKey:    entry.ToBasketKey,
			AssignedToOld:  entry.AssignedToOld,
			AssignedToNew:  entry.AssignedToNew,
			TransitionType: entry.TransitionType,
			OrderID:        entry.OrderID,
			TriggeredBy:    entry.TriggeredBy,
			TransitionedAt: now,
		},
	}
	if err := e.outbox.Emit(ctx, tx, event); err != nil {
		return nil, classify(err, "emit transition event")
	}

	return &TransitionResult{
		CustomerID:     customer.ID,
		LogID:          entry.ID,
		FromBasket:     from,
		ToBasket:       req.TargetBasket,
		TransitionType: req.Type,
		AssignedToOld:  customer.AssignedTo,
		AssignedToNew:  newOwner,
		OrderID:        req.OrderID,
		Notes:          req.Notes,
		At:             now,
	}, nil
}

// RefreshEnteredDate restarts the dwell clock without changing the basket.
// No audit row is written since the basket does not change.
func (e *Executor) RefreshEnteredDate(ctx context.Context, customerID int64) error {
	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.repo.WithTx(tx)
		if _, err := repo.LockCustomer(ctx, customerID); err != nil {
			return classify(err, "lock customer")
		}
		return repo.UpdateCustomer(ctx, customerID, map[string]any{"basket_entered_date": e.now()})
	})
	if err != nil {
		return classify(err, "refresh basket entered date")
	}
	return nil
}

func (e *Executor) record(ctx context.Context, res *TransitionResult) {
	if res == nil {
		return
	}
	e.metrics.IncTransition(string(res.TransitionType))
	if e.logg == nil {
		return
	}
	ctx = e.logg.WithCustomerID(ctx, res.CustomerID)
	ctx = e.logg.WithTransition(ctx, res.FromBasket, res.ToBasket, string(res.TransitionType))
	if res.OrderID != nil {
		ctx = e.logg.WithOrderID(ctx, *res.OrderID)
	}
	e.logg.Info(ctx, "basket transition committed")
}

func sameOwner(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func buildActor(userID *int64) *outbox.ActorRef {
	if userID == nil {
		return nil
	}
	return &outbox.ActorRef{UserID: *userID}
}

// classify maps storage errors onto the routing error codes. Errors that
// already carry a code pass through unchanged.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, op)
	case db.IsLockFailure(err):
		return pkgerrors.Wrap(pkgerrors.CodeConcurrency, err, op)
	default:
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, op)
	}
}
