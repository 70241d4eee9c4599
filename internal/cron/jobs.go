package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/eventrentph/eventrent-backend/internal/bookings"
	"github.com/eventrentph/eventrent-backend/internal/notifications"
	"github.com/eventrentph/eventrent-backend/internal/payments"
	"github.com/eventrentph/eventrent-backend/internal/reservations"
	"github.com/eventrentph/eventrent-backend/pkg/logger"
	"github.com/eventrentph/eventrent-backend/pkg/outbox"
)

const sweepBatchSize = 100

// HoldExpiryJob releases overdue held reservations and cancels their pending
// bookings.
type HoldExpiryJob struct {
	Reservations reservations.Service
	Bookings     bookings.Service
	Logg         *logger.Logger
}

// Name implements Job.
func (j *HoldExpiryJob) Name() string { return "hold_expiry" }

// Run implements Job.
func (j *HoldExpiryJob) Run(ctx context.Context) error {
	expired, err := j.Reservations.ListExpiredHeld(ctx, time.Now().UTC(), sweepBatchSize)
	if err != nil {
		return fmt.Errorf("listing expired holds: %w", err)
	}

	var errs error
	for _, res := range expired {
		if err := j.Bookings.ExpireHold(ctx, res); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expiring hold %s: %w", res.ID, err))
		}
	}
	if len(expired) > 0 {
		j.Logg.Info(j.Logg.WithField(ctx, "count", len(expired)), "expired holds swept")
	}
	return errs
}

// BookingCompletionJob completes confirmed bookings whose rental window
// closed.
type BookingCompletionJob struct {
	Bookings bookings.Service
	Logg     *logger.Logger
}

// Name implements Job.
func (j *BookingCompletionJob) Name() string { return "booking_completion" }

// Run implements Job.
func (j *BookingCompletionJob) Run(ctx context.Context) error {
	completed, err := j.Bookings.CompleteDue(ctx, time.Now().UTC(), sweepBatchSize)
	if completed > 0 {
		j.Logg.Info(j.Logg.WithField(ctx, "count", completed), "bookings completed")
	}
	return err
}

// VerificationRecoveryJob hands payments stuck in verifying back to the
// customer. A verification interrupted between the status flip and the
// settlement would otherwise never leave that state.
type VerificationRecoveryJob struct {
	Payments payments.Service
	Timeout  time.Duration
	Logg     *logger.Logger
}

// Name implements Job.
func (j *VerificationRecoveryJob) Name() string { return "verification_recovery" }

// Run implements Job.
func (j *VerificationRecoveryJob) Run(ctx context.Context) error {
	requeued, err := j.Payments.RequeueStaleVerifying(ctx, j.Timeout, sweepBatchSize)
	if requeued > 0 {
		j.Logg.Info(j.Logg.WithField(ctx, "count", requeued), "stale verifications requeued")
	}
	return err
}

// NotificationCleanupJob trims notification rows past the retention window.
type NotificationCleanupJob struct {
	Notifications notifications.Service
	RetentionDays int
	Logg          *logger.Logger
}

// Name implements Job.
func (j *NotificationCleanupJob) Name() string { return "notification_cleanup" }

// Run implements Job.
func (j *NotificationCleanupJob) Run(ctx context.Context) error {
	retention := j.RetentionDays
	if retention <= 0 {
		retention = 90
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retention)
	deleted, err := j.Notifications.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}
	if deleted > 0 {
		j.Logg.Info(j.Logg.WithField(ctx, "count", deleted), "old notifications deleted")
	}
	return nil
}

// OutboxRetentionJob drops published outbox rows older than the retention
// window.
type OutboxRetentionJob struct {
	Outbox        *outbox.Repository
	RetentionDays int
	Logg          *logger.Logger
}

// Name implements Job.
func (j *OutboxRetentionJob) Name() string { return "outbox_retention" }

// Run implements Job.
func (j *OutboxRetentionJob) Run(ctx context.Context) error {
	retention := j.RetentionDays
	if retention <= 0 {
		retention = 14
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retention)
	deleted, err := j.Outbox.DeletePublishedBefore(cutoff)
	if err != nil {
		return err
	}
	if deleted > 0 {
		j.Logg.Info(j.Logg.WithField(ctx, "count", deleted), "published outbox rows pruned")
	}
	return nil
}
