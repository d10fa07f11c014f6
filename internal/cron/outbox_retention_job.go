package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/salesops/basket-engine/pkg/logger"
)

const (
	outboxRetentionDays       = 14
	outboxParkedRetentionDays = 90
	outboxRetentionInterval   = 24 * time.Hour
	outboxPruneBatch          = 500
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPruner interface {
	DeletePublishedBefore(tx *gorm.DB, cutoff time.Time, limit int) (int64, error)
	DeleteParkedBefore(tx *gorm.DB, cutoff time.Time, limit int) (int64, error)
}

// OutboxRetentionJobParams configure pruning of delivered and dead-lettered
// transition events. Zero values take the defaults.
type OutboxRetentionJobParams struct {
	Logger          *logger.Logger
	DB              txRunner
	Repository      outboxPruner
	Retention       int
	ParkedRetention int
	BatchSize       int
	Interval        time.Duration
}

// NewOutboxRetentionJob builds the daily prune. Deletes run in short batches,
// one transaction each, so the relay's row locks are never held up.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:      params.Logger,
		db:        params.DB,
		repo:      params.Repository,
		published: orDefault(params.Retention, outboxRetentionDays),
		parked:    orDefault(params.ParkedRetention, outboxParkedRetentionDays),
		batch:     orDefault(params.BatchSize, outboxPruneBatch),
		every:     params.Interval,
		now:       time.Now,
	}
	if job.every <= 0 {
		job.every = outboxRetentionInterval
	}
	return job, nil
}

type outboxRetentionJob struct {
	logg      *logger.Logger
	db        txRunner
	repo      outboxPruner
	published int
	parked    int
	batch     int
	every     time.Duration
	now       func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Interval() time.Duration { return j.every }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	publishedCutoff := now.AddDate(0, 0, -j.published)
	parkedCutoff := now.AddDate(0, 0, -j.parked)

	published, err := j.prune(ctx, publishedCutoff, j.repo.DeletePublishedBefore)
	if err != nil {
		return fmt.Errorf("prune published outbox events: %w", err)
	}
	parked, err := j.prune(ctx, parkedCutoff, j.repo.DeleteParkedBefore)
	if err != nil {
		return fmt.Errorf("prune parked outbox events: %w", err)
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"published_cutoff": publishedCutoff,
		"parked_cutoff":    parkedCutoff,
		"published_pruned": published,
		"parked_pruned":    parked,
	}), "outbox retention complete")
	return nil
}

func (j *outboxRetentionJob) prune(ctx context.Context, cutoff time.Time, del func(*gorm.DB, time.Time, int) (int64, error)) (int64, error) {
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		var n int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			n, err = del(tx, cutoff, j.batch)
			return err
		})
		if err != nil {
			return total, err
		}
		total += n
		if n < int64(j.batch) {
			return total, nil
		}
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
