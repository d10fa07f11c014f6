package relay

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/salesops/basket-engine/pkg/config"
	"github.com/salesops/basket-engine/pkg/db/models"
	"github.com/salesops/basket-engine/pkg/enums"
	"github.com/salesops/basket-engine/pkg/logger"
	"github.com/salesops/basket-engine/pkg/metrics"
	"github.com/salesops/basket-engine/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultMaxAttempts    = 10
	defaultPublishTimeout = 15 * time.Second
	maxBackoff            = 10 * time.Second
)

type store interface {
	Claim(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(tx *gorm.DB, id uuid.UUID) error
	MarkFailed(tx *gorm.DB, id uuid.UUID, cause error) error
	Park(tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, exhausted int) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type resolver interface {
	Resolve(event models.OutboxEvent) (*registry.Resolved, error)
}

type Params struct {
	Config   config.OutboxConfig
	Store    store
	DB       txRunner
	Registry resolver
	Sink     Sink
	Metrics  *metrics.OutboxMetrics
	Logger   *logger.Logger
}

// Relay drains outbox_events to the broker. Each batch runs in one
// transaction: rows are claimed, every message is handed to the sink, and
// only then are the acknowledgements awaited and recorded.
type Relay struct {
	store          store
	db             txRunner
	registry       resolver
	sink           Sink
	metrics        *metrics.OutboxMetrics
	logg           *logger.Logger
	batchSize      int
	maxAttempts    int
	pollInterval   time.Duration
	publishTimeout time.Duration
	now            func() time.Time
	sleep          func(ctx context.Context, d time.Duration) error
}

func New(p Params) (*Relay, error) {
	switch {
	case p.Store == nil:
		return nil, errors.New("outbox store is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.Registry == nil:
		return nil, errors.New("event registry is required")
	case p.Sink == nil:
		return nil, errors.New("sink is required")
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	}
	r := &Relay{
		store:          p.Store,
		db:             p.DB,
		registry:       p.Registry,
		sink:           p.Sink,
		metrics:        p.Metrics,
		logg:           p.Logger,
		batchSize:      p.Config.BatchSize,
		maxAttempts:    p.Config.MaxAttempts,
		pollInterval:   time.Duration(p.Config.PollIntervalMS) * time.Millisecond,
		publishTimeout: defaultPublishTimeout,
		now:            time.Now,
		sleep:          sleepCtx,
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	if r.pollInterval <= 0 {
		r.pollInterval = defaultPollInterval
	}
	return r, nil
}

// Run publishes until ctx is canceled. Full batches are followed immediately
// by the next one; an empty poll waits pollInterval and a failed batch waits
// an exponentially growing, jittered delay.
func (r *Relay) Run(ctx context.Context) error {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = r.pollInterval
	retry.MaxInterval = maxBackoff
	retry.MaxElapsedTime = 0
	retry.Reset()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		claimed, err := r.Drain(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			wait := retry.NextBackOff()
			r.logg.Error(r.logg.WithField(ctx, "retry_in", wait.String()), "outbox batch failed", err)
			if err := r.sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}
		retry.Reset()
		if claimed >= r.batchSize {
			continue
		}
		if err := r.sleep(ctx, r.pollInterval); err != nil {
			return err
		}
	}
}

type pending struct {
	event    models.OutboxEvent
	resolved *registry.Resolved
	result   Result
}

// Drain processes one batch and reports how many rows it claimed.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	start := r.now()
	claimed := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := r.store.Claim(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox batch: %w", err)
		}
		claimed = len(events)
		if claimed == 0 {
			return nil
		}

		publishCtx, cancel := context.WithTimeout(ctx, r.publishTimeout)
		defer cancel()

		inflight := make([]pending, 0, len(events))
		for _, event := range events {
			resolved, err := r.registry.Resolve(event)
			if err != nil {
				if err := r.park(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err); err != nil {
					return err
				}
				continue
			}
			result := r.sink.Publish(publishCtx, resolved.Descriptor.Topic, message(event, resolved))
			if result == nil {
				cause := fmt.Errorf("no publisher for topic %s", resolved.Descriptor.Topic)
				if err := r.park(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, cause); err != nil {
					return err
				}
				continue
			}
			inflight = append(inflight, pending{event: event, resolved: resolved, result: result})
		}

		for _, p := range inflight {
			if err := r.settle(publishCtx, ctx, tx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if claimed > 0 {
		r.metrics.ObserveBatch(r.now().Sub(start))
	}
	return claimed, err
}

func (r *Relay) settle(publishCtx, ctx context.Context, tx *gorm.DB, p pending) error {
	fields := eventFields(p.event, p.resolved)
	if _, err := p.result.Get(publishCtx); err != nil {
		fields["attempt_count"] = p.event.AttemptCount + 1
		if p.event.NextAttemptExhausts(r.maxAttempts) {
			return r.park(ctx, tx, p.event, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", err))
		}
		r.metrics.IncFailed(string(p.event.EventType))
		r.logg.Warn(r.logg.WithFields(ctx, fields), "outbox publish failed: "+err.Error())
		if err := r.store.MarkFailed(tx, p.event.ID, err); err != nil {
			return fmt.Errorf("mark failure %s: %w", p.event.ID, err)
		}
		return nil
	}
	if err := r.store.MarkPublished(tx, p.event.ID); err != nil {
		return fmt.Errorf("mark published %s: %w", p.event.ID, err)
	}
	r.metrics.IncPublished(string(p.event.EventType))
	r.logg.Info(r.logg.WithFields(ctx, fields), "outbox event published")
	return nil
}

func (r *Relay) park(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	fields := eventFields(event, nil)
	fields["error_reason"] = string(reason)
	r.logg.Error(r.logg.WithFields(ctx, fields), "outbox event parked", cause)
	if err := r.store.Park(tx, event, reason, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("park %s: %w", event.ID, err)
	}
	r.metrics.IncParked(string(reason))
	return nil
}

// message carries the stored envelope unchanged. Routing attributes from the
// registry sit alongside the fixed ones.
func message(event models.OutboxEvent, resolved *registry.Resolved) *pubsub.Message {
	attrs := make(map[string]string, len(resolved.Attributes)+6)
	for k, v := range resolved.Attributes {
		attrs[k] = v
	}
	attrs["event_id"] = resolved.Envelope.EventID
	attrs["event_type"] = string(event.EventType)
	attrs["aggregate_type"] = string(event.AggregateType)
	attrs["aggregate_id"] = event.AggregateID
	attrs["created_at"] = event.CreatedAt.UTC().Format(time.RFC3339Nano)
	if resolved.Envelope.Version > 0 {
		attrs["schema_version"] = strconv.Itoa(resolved.Envelope.Version)
	}
	return &pubsub.Message{Data: event.Payload, Attributes: attrs}
}

func eventFields(event models.OutboxEvent, resolved *registry.Resolved) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID,
		"attempt_count":  event.AttemptCount,
	}
	if resolved != nil {
		fields["event_id"] = resolved.Envelope.EventID
		fields["topic"] = resolved.Descriptor.Topic
	}
	return fields
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
