package baskets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/salesops/basket-engine/pkg/db/models"
	"github.com/salesops/basket-engine/pkg/enums"
	pkgerrors "github.com/salesops/basket-engine/pkg/errors"
	"github.com/salesops/basket-engine/pkg/logger"
	"github.com/salesops/basket-engine/pkg/metrics"
)

const defaultAgingBatchSize = 500

// AgingDetail describes one customer the sweep moved, would move, or failed on.
type AgingDetail struct {
	CustomerID int64  `json:"customer_id"`
	From       string `json:"from"`
	To         string `json:"to"`
	DwellDays  int    `json:"dwell_days"`
	DryRun     bool   `json:"dry_run"`
	Error      string `json:"error,omitempty"`
}

// AgingReport summarizes one sweep.
type AgingReport struct {
	Processed int           `json:"processed"`
	Moved     int           `json:"moved"`
	Skipped   int           `json:"skipped"`
	Errors    []string      `json:"errors"`
	Details   []AgingDetail `json:"details"`

	errs error
}

// Err combines the per-customer failures, or nil.
func (r AgingReport) Err() error {
	return r.errs
}

// AgingCursor is the last customer of a sweep page, ordered by
// (basket_entered_date, id).
type AgingCursor struct {
	EnteredAt time.Time
	ID        int64
}

// Sweeper forces customers out of baskets they have sat in too long.
type Sweeper struct {
	repo      Repository
	catalog   catalogProvider
	exec      *Executor
	batchSize int
	metrics   *metrics.RoutingMetrics
	logg      *logger.Logger
	now       func() time.Time
}

// NewSweeper wires the sweep. batchSize is the page size used to walk each
// basket; zero or less uses the default.
func NewSweeper(repo Repository, catalog catalogProvider, exec *Executor, batchSize int, m *metrics.RoutingMetrics, logg *logger.Logger) (*Sweeper, error) {
	if repo == nil {
		return nil, fmt.Errorf("baskets repository required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("basket catalog required")
	}
	if exec == nil {
		return nil, fmt.Errorf("transition executor required")
	}
	if batchSize <= 0 {
		batchSize = defaultAgingBatchSize
	}
	return &Sweeper{
		repo:      repo,
		catalog:   catalog,
		exec:      exec,
		batchSize: batchSize,
		metrics:   m,
		logg:      logg,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// ProcessAgingCustomers scans every active basket with a fail-after timeout.
// In dry-run mode it reports the moves it would make without writing.
// A failure on one customer is recorded and the sweep continues; the
// returned error is reserved for failures that stop the whole sweep.
func (s *Sweeper) ProcessAgingCustomers(ctx context.Context, dryRun bool) (AgingReport, error) {
	report := AgingReport{Errors: []string{}, Details: []AgingDetail{}}

	catalog, err := s.catalog.Current(ctx)
	if err != nil {
		return report, err
	}
	now := s.now()

	for _, cfg := range catalog.Aging() {
		if err := s.sweepBasket(ctx, catalog, cfg, now, dryRun, &report); err != nil {
			return report, err
		}
	}

	if s.logg != nil {
		fields := map[string]any{
			"processed": report.Processed,
			"moved":     report.Moved,
			"skipped":   report.Skipped,
			"errors":    len(report.Errors),
			"dry_run":   dryRun,
		}
		s.logg.Info(s.logg.WithFields(ctx, fields), "aging sweep finished")
	}
	return report, nil
}

// sweepBasket walks every overdue customer of cfg page by page. Customers
// that stay put keep their entered date, so paging by cursor rather than by
// offset keeps them from hiding the rest of the basket.
func (s *Sweeper) sweepBasket(ctx context.Context, catalog *Catalog, cfg models.BasketConfig, now time.Time, dryRun bool, report *AgingReport) error {
	days := *cfg.FailAfterDays
	cutoff := startOfDay(now).AddDate(0, 0, -(days - 1))
	mode := "live"
	if dryRun {
		mode = "dry_run"
	}

	var after *AgingCursor
	for {
		customers, err := s.repo.ListAgingCustomers(ctx, cfg.BasketKey, cutoff, after, s.batchSize)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list aging customers in "+cfg.BasketKey)
		}
		for _, customer := range customers {
			report.Processed++
			s.age(ctx, catalog, cfg, customer, cutoff, now, dryRun, mode, report)
		}
		if len(customers) < s.batchSize {
			return nil
		}
		last := customers[len(customers)-1]
		after = &AgingCursor{EnteredAt: *last.BasketEnteredDate, ID: last.ID}
	}
}

func (s *Sweeper) age(ctx context.Context, catalog *Catalog, cfg models.BasketConfig, customer models.Customer, cutoff, now time.Time, dryRun bool, mode string, report *AgingReport) {
	target := failTarget(catalog, cfg, SnapshotOf(customer), now, cfg.OnFailBasketKey)
	if target == "" || target == cfg.BasketKey {
		report.Skipped++
		return
	}

	detail := AgingDetail{
		CustomerID: customer.ID,
		From:       cfg.BasketKey,
		To:         target,
		DwellDays:  dwellDays(customer, now),
		DryRun:     dryRun,
	}

	if dryRun {
		report.Moved++
		report.Details = append(report.Details, detail)
		s.metrics.IncAgingMoved(mode)
		return
	}

	_, err := s.exec.TransitionTo(ctx, TransitionRequest{
		CustomerID:   customer.ID,
		TargetBasket: target,
		Type:         enums.TransitionAgingTimeout,
		Notes:        fmt.Sprintf("dwell exceeded %d days in %s", *cfg.FailAfterDays, cfg.BasketKey),
		Expect: func(c models.Customer) bool {
			return c.CurrentBasketKey == cfg.BasketKey &&
				c.BasketEnteredDate != nil &&
				c.BasketEnteredDate.Before(cutoff)
		},
	})
	switch {
	case err == nil:
		report.Moved++
		report.Details = append(report.Details, detail)
		s.metrics.IncAgingMoved(mode)
	case errors.Is(err, ErrPreconditionFailed):
		report.Skipped++
	case pkgerrors.IsCode(err, pkgerrors.CodeConfiguration):
		report.Skipped++
		s.warn(ctx, customer.ID, "aging target unresolved: "+err.Error())
	default:
		wrapped := fmt.Errorf("customer %d: %w", customer.ID, err)
		report.errs = multierr.Append(report.errs, wrapped)
		report.Errors = append(report.Errors, wrapped.Error())
		detail.Error = err.Error()
		report.Details = append(report.Details, detail)
	}
}

func (s *Sweeper) warn(ctx context.Context, customerID int64, msg string) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithCustomerID(ctx, customerID), msg)
}

// failTarget resolves where a customer goes when cfg gives up on them.
// Re-evaluation wins when it produces a bucket; otherwise fallback is used.
func failTarget(catalog *Catalog, cfg models.BasketConfig, s Snapshot, now time.Time, fallback *string) string {
	if cfg.OnFailReevaluate {
		if key := Reevaluate(catalog, s, now); key != "" {
			return key
		}
	}
	if fallback != nil {
		return *fallback
	}
	return ""
}

func dwellDays(c models.Customer, now time.Time) int {
	if c.BasketEnteredDate == nil {
		return 0
	}
	return daysBetween(*c.BasketEnteredDate, now)
}
