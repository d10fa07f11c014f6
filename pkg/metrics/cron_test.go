package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	finished := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	m.ObserveRun("basket-aging", 250*time.Millisecond, nil, finished)
	m.ObserveRun("basket-aging", time.Second, errors.New("boom"), finished.Add(time.Hour))
	m.ObserveRun("", time.Millisecond, nil, finished)
	m.IncLockSkip()
	m.IncLockSkip()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	runs := "basket_cron_job_runs_total"
	if got := mustValue(t, mfs, runs, map[string]string{"job": "basket-aging", "outcome": OutcomeSuccess}); got != 1 {
		t.Fatalf("expected one success, got %f", got)
	}
	if got := mustValue(t, mfs, runs, map[string]string{"job": "basket-aging", "outcome": OutcomeFailure}); got != 1 {
		t.Fatalf("expected one failure, got %f", got)
	}
	if got := mustValue(t, mfs, runs, map[string]string{"job": "unknown", "outcome": OutcomeSuccess}); got != 1 {
		t.Fatalf("expected unnamed job under unknown, got %f", got)
	}
	if got := mustValue(t, mfs, "basket_cron_job_last_success_timestamp_seconds", map[string]string{"job": "basket-aging"}); got != float64(finished.Unix()) {
		t.Fatalf("failure must not move last success, got %f", got)
	}
	if got := mustValue(t, mfs, "basket_cron_cycles_skipped_total", nil); got != 2 {
		t.Fatalf("expected two lock skips, got %f", got)
	}
	if got := mustValue(t, mfs, "basket_cron_job_duration_seconds", map[string]string{"job": "basket-aging"}); got != 1.25 {
		t.Fatalf("expected duration sum 1.25s, got %f", got)
	}
}

func TestNilCronMetricsAreNoops(t *testing.T) {
	var m *CronJobMetrics
	m.ObserveRun("x", time.Second, nil, time.Now())
	m.IncLockSkip()
	NewCronJobMetrics(nil).ObserveRun("x", time.Second, nil, time.Now())
}

func mustValue(t *testing.T, mfs []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	v, err := metricValue(mfs, name, labels)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

// metricValue returns the counter, gauge or histogram-sum value of the series
// carrying all of labels.
func metricValue(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if !hasLabels(metric.GetLabel(), labels) {
				continue
			}
			switch {
			case metric.GetCounter() != nil:
				return metric.GetCounter().GetValue(), nil
			case metric.GetGauge() != nil:
				return metric.GetGauge().GetValue(), nil
			case metric.GetHistogram() != nil:
				return metric.GetHistogram().GetSampleSum(), nil
			}
		}
		return 0, fmt.Errorf("metric %q has no series with %v", name, labels)
	}
	return 0, fmt.Errorf("metric %q not found", name)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	return metricValue(mfs, name, map[string]string{label: value})
}

func hasLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	found := 0
	for _, pair := range pairs {
		if v, ok := want[pair.GetName()]; ok && v == pair.GetValue() {
			found++
		}
	}
	return found == len(want)
}
