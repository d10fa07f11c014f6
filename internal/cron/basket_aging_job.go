package cron

import (
	"context"
	"fmt"

	"github.com/salesops/basket-engine/internal/baskets"
	"github.com/salesops/basket-engine/pkg/logger"
)

type agingSweeper interface {
	ProcessAgingCustomers(ctx context.Context, dryRun bool) (baskets.AgingReport, error)
}

// BasketAgingJobParams configure the aging job.
type BasketAgingJobParams struct {
	Logger  *logger.Logger
	Sweeper agingSweeper
	DryRun  bool
}

// NewBasketAgingJob wraps the sweeper as a scheduled job.
func NewBasketAgingJob(params BasketAgingJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("aging sweeper required")
	}
	return &basketAgingJob{
		logg:    params.Logger,
		sweeper: params.Sweeper,
		dryRun:  params.DryRun,
	}, nil
}

type basketAgingJob struct {
	logg    *logger.Logger
	sweeper agingSweeper
	dryRun  bool
}

func (j *basketAgingJob) Name() string { return "basket-aging" }

// Run sweeps once. Per-customer failures fail the job only after the whole
// batch has been attempted.
func (j *basketAgingJob) Run(ctx context.Context) error {
	report, err := j.sweeper.ProcessAgingCustomers(ctx, j.dryRun)
	if err != nil {
		return fmt.Errorf("basket aging: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"processed": report.Processed,
		"moved":     report.Moved,
		"failed":    len(report.Errors),
		"dry_run":   j.dryRun,
	})
	if err := report.Err(); err != nil {
		j.logg.Warn(logCtx, "basket aging finished with failures")
		return fmt.Errorf("basket aging: %d customers failed: %w", len(report.Errors), err)
	}
	j.logg.Info(logCtx, "basket aging complete")
	return nil
}
