package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/salesops/basket-engine/internal/ops"
	"github.com/salesops/basket-engine/pkg/logger"
)

const defaultStartupWait = 30 * time.Second

type runner interface {
	Run(ctx context.Context) error
}

// ServiceParams wire the worker. Checks are the same dependency probes the
// ops endpoint reports on.
type ServiceParams struct {
	Logger      *logger.Logger
	Checks      map[string]ops.Check
	Consumer    runner
	StartupWait time.Duration
}

// Service waits for its dependencies and then runs the order events consumer
// until the context ends.
type Service struct {
	logg        *logger.Logger
	checks      map[string]ops.Check
	consumer    runner
	startupWait time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Consumer == nil {
		return nil, errors.New("order events consumer is required")
	}
	for name, check := range params.Checks {
		if check == nil {
			return nil, fmt.Errorf("dependency check %q is nil", name)
		}
	}
	wait := params.StartupWait
	if wait <= 0 {
		wait = defaultStartupWait
	}
	return &Service{
		logg:        params.Logger,
		checks:      params.Checks,
		consumer:    params.Consumer,
		startupWait: wait,
	}, nil
}

// awaitDependencies retries the checks until all pass or the startup window
// closes. Pods often start before Redis or the emulator accept connections.
func (s *Service) awaitDependencies(ctx context.Context) error {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = s.startupWait
	policy.Reset()

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		for _, name := range names {
			if err := s.checks[name](ctx); err != nil {
				s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
					"dependency": name,
					"attempt":    attempt,
					"error":      err.Error(),
				}), "worker dependency not ready")
				return fmt.Errorf("%s not ready: %w", name, err)
			}
		}
		return nil
	}, backoff.WithContext(policy, ctx))
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.awaitDependencies(ctx); err != nil {
		s.logg.Error(ctx, "worker dependencies unavailable", err)
		return err
	}
	s.logg.Info(ctx, "all worker dependencies are ready")

	err := s.consumer.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logg.Error(ctx, "consumer stopped unexpectedly", err)
		return err
	}
	s.logg.Info(ctx, "worker context canceled")
	return ctx.Err()
}
