package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/eventrentph/eventrent-backend/pkg/logger"
	"github.com/eventrentph/eventrent-backend/pkg/metrics"
)

// Job is one scheduled unit of work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Service runs the registered jobs on a fixed interval, one runner per job
// cluster-wide via redis leases.
type Service struct {
	jobs     []Job
	interval time.Duration
	locker   *locker
	metrics  *metrics.CronJobMetrics
	logg     *logger.Logger
}

// NewService builds the cron runner.
func NewService(
	jobs []Job,
	interval time.Duration,
	store leaseStore,
	jobMetrics *metrics.CronJobMetrics,
	logg *logger.Logger,
) (*Service, error) {
	if len(jobs) == 0 {
		return nil, fmt.Errorf("at least one job required")
	}
	if store == nil {
		return nil, fmt.Errorf("lease store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Service{
		jobs:     jobs,
		interval: interval,
		locker:   newLocker(store, interval),
		metrics:  jobMetrics,
		logg:     logg,
	}, nil
}

// Run ticks until the context is cancelled. The first pass fires immediately.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	var errs error
	for _, job := range s.jobs {
		if err := s.runOne(ctx, job); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", job.Name(), err))
		}
	}
	if errs != nil {
		s.logg.Error(ctx, "cron tick finished with failures", errs)
	}
}

func (s *Service) runOne(ctx context.Context, job Job) error {
	release, err := s.locker.acquire(ctx, job.Name())
	if err != nil {
		return fmt.Errorf("acquiring lease: %w", err)
	}
	if release == nil {
		s.logg.Debug(s.logg.WithField(ctx, "job", job.Name()), "lease held elsewhere, skipping")
		return nil
	}
	defer release()

	logCtx := s.logg.WithField(ctx, "job", job.Name())
	started := time.Now()
	runErr := job.Run(logCtx)
	s.metrics.ObserveDuration(job.Name(), time.Since(started))

	if runErr != nil {
		s.metrics.IncFailure(job.Name())
		return runErr
	}
	s.metrics.IncSuccess(job.Name())
	s.logg.Info(logCtx, "job finished")
	return nil
}
