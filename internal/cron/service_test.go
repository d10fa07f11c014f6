package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/salesops/basket-engine/pkg/logger"
	"github.com/salesops/basket-engine/pkg/metrics"
)

type fakeLock struct {
	heldElsewhere bool
	released      int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) { return !f.heldElsewhere, nil }

func (f *fakeLock) Release(context.Context) error {
	f.released++
	return nil
}

type countingJob struct {
	name  string
	err   error
	every time.Duration
	runs  int
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(context.Context) error {
	j.runs++
	return j.err
}

type dailyJob struct{ countingJob }

func (j *dailyJob) Interval() time.Duration { return j.every }

func newTestService(t *testing.T, lock Lock, reg prometheus.Registerer, jobs ...Job) *Service {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	require.NoError(t, err)
	return svc
}

func TestRunCycleRunsEveryJobDespiteFailures(t *testing.T) {
	lock := &fakeLock{}
	aging := &countingJob{name: "basket-aging", err: errors.New("boom")}
	retention := &countingJob{name: "outbox-retention"}
	svc := newTestService(t, lock, nil, aging, retention)

	err := svc.runCycle(context.Background())
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 1)
	assert.Contains(t, err.Error(), "basket-aging")
	assert.Equal(t, 1, aging.runs)
	assert.Equal(t, 1, retention.runs)
	assert.Equal(t, 1, lock.released)
}

func TestRunCycleSkipsWithoutLock(t *testing.T) {
	reg := prometheus.NewRegistry()
	job := &countingJob{name: "basket-aging"}
	svc := newTestService(t, &fakeLock{heldElsewhere: true}, reg, job)

	require.NoError(t, svc.runCycle(context.Background()))
	assert.Zero(t, job.runs)

	families, err := reg.Gather()
	require.NoError(t, err)
	var skipped float64
	for _, mf := range families {
		if mf.GetName() == "basket_cron_cycles_skipped_total" {
			skipped = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(1), skipped)
}

func TestCadencedJobWaitsForItsInterval(t *testing.T) {
	clock := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	retention := &dailyJob{countingJob{name: "outbox-retention", every: 24 * time.Hour}}
	aging := &countingJob{name: "basket-aging"}
	svc := newTestService(t, &fakeLock{}, nil, aging, retention)
	svc.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.runCycle(context.Background()))
		clock = clock.Add(time.Hour)
	}
	assert.Equal(t, 3, aging.runs)
	assert.Equal(t, 1, retention.runs)

	clock = clock.Add(24 * time.Hour)
	require.NoError(t, svc.runCycle(context.Background()))
	assert.Equal(t, 2, retention.runs)
}

func TestFailedCadencedJobRetriesNextCycle(t *testing.T) {
	retention := &dailyJob{countingJob{name: "outbox-retention", every: 24 * time.Hour, err: errors.New("db down")}}
	svc := newTestService(t, &fakeLock{}, nil, retention)

	_ = svc.runCycle(context.Background())
	retention.err = nil
	require.NoError(t, svc.runCycle(context.Background()))
	assert.Equal(t, 2, retention.runs)
}

type leasedLock struct {
	fakeLock
	extendErr error
	extends   int
}

func (l *leasedLock) Extend(context.Context) error {
	l.extends++
	return l.extendErr
}

func TestRunCycleStopsWhenLeaseIsLost(t *testing.T) {
	lock := &leasedLock{extendErr: ErrLockLost}
	first := &countingJob{name: "basket-aging"}
	second := &countingJob{name: "outbox-retention"}
	svc := newTestService(t, lock, nil, first, second)

	err := svc.runCycle(context.Background())
	require.ErrorIs(t, err, ErrLockLost)
	assert.Equal(t, 1, first.runs)
	assert.Zero(t, second.runs)
	assert.Equal(t, 1, lock.extends)
}

func TestRunCycleRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	svc := newTestService(t, &fakeLock{}, reg,
		&countingJob{name: "ok"},
		&countingJob{name: "bad", err: errors.New("boom")},
	)
	_ = svc.runCycle(context.Background())

	families, err := reg.Gather()
	require.NoError(t, err)
	outcomes := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "basket_cron_job_runs_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			outcomes[labels["job"]+"/"+labels["outcome"]] = m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, map[string]float64{"ok/success": 1, "bad/failure": 1}, outcomes)
}
