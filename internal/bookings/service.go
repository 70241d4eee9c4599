package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/eventrentph/eventrent-backend/internal/inventory"
	"github.com/eventrentph/eventrent-backend/internal/reservations"
	"github.com/eventrentph/eventrent-backend/pkg/db/models"
	"github.com/eventrentph/eventrent-backend/pkg/enums"
	pkgerrors "github.com/eventrentph/eventrent-backend/pkg/errors"
	"github.com/eventrentph/eventrent-backend/pkg/logger"
	"github.com/eventrentph/eventrent-backend/pkg/outbox"
	"github.com/eventrentph/eventrent-backend/pkg/outbox/payloads"
	"github.com/eventrentph/eventrent-backend/pkg/pagination"
	"github.com/eventrentph/eventrent-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Actor identifies the authenticated caller on booking operations.
type Actor struct {
	UserID uuid.UUID
	Role   enums.MemberRole
}

func (a Actor) ref() *outbox.ActorRef {
	if a.UserID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: a.UserID, Role: a.Role.String()}
}

func (a Actor) admin() bool {
	return a.Role == enums.MemberRoleAdmin
}

// CreateInput is a new booking request.
type CreateInput struct {
	ItemID        uuid.UUID
	Range         types.DateRange
	Qty           int
	EventLocation *string
	Notes         *string
}

// TransitionInput is an explicit admin override of the booking lifecycle.
type TransitionInput struct {
	Status        *enums.BookingStatus
	PaymentStatus *enums.BookingPaymentStatus
	Reason        string
}

// Service owns the booking lifecycle. Status changes go through the
// transition tables in transitions.go; inventory movement is delegated to the
// reservation engine inside the same transaction.
type Service interface {
	Create(ctx context.Context, actor Actor, input CreateInput) (*models.Booking, error)
	Get(ctx context.Context, actor Actor, id uuid.UUID) (*models.Booking, error)
	List(ctx context.Context, actor Actor, filter ListFilter, params pagination.Params) ([]models.Booking, error)
	Cancel(ctx context.Context, actor Actor, id uuid.UUID, reason string) (*models.Booking, error)
	// AdminTransition moves the booking status and/or payment sub-state on an
	// administrator's say-so, validated against the same transition tables as
	// the automated paths.
	AdminTransition(ctx context.Context, admin Actor, id uuid.UUID, input TransitionInput) (*models.Booking, error)

	// ApplyVerifiedPaymentTx credits a verified payment against the booking
	// inside the caller's transaction. A pending booking with any amount paid
	// confirms, which also confirms its reservation.
	ApplyVerifiedPaymentTx(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID, amountCentavos int64, actor Actor) (*models.Booking, error)
	// SetPaymentStateTx moves only the payment sub-state, validated against
	// the payment transition table.
	SetPaymentStateTx(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID, to enums.BookingPaymentStatus) error

	// ExpireHold expires one overdue reservation hold and cancels its pending
	// booking in the same transaction.
	ExpireHold(ctx context.Context, res models.Reservation) error
	// CompleteDue closes out confirmed bookings whose rental window ended
	// before the cutoff. Returns the number completed.
	CompleteDue(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

type service struct {
	tx           txRunner
	repo         Repository
	inventory    inventory.Repository
	reservations reservations.Service
	outbox       outboxPublisher
	logg         *logger.Logger
}

// NewService builds the booking service.
func NewService(
	tx txRunner,
	repo Repository,
	inventoryRepo inventory.Repository,
	reservationSvc reservations.Service,
	publisher outboxPublisher,
	logg *logger.Logger,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("booking repository required")
	}
	if inventoryRepo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if reservationSvc == nil {
		return nil, fmt.Errorf("reservation service required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		tx:           tx,
		repo:         repo,
		inventory:    inventoryRepo,
		reservations: reservationSvc,
		outbox:       publisher,
		logg:         logg,
	}, nil
}

func (s *service) Create(ctx context.Context, actor Actor, input CreateInput) (*models.Booking, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "customer identity required")
	}
	if input.ItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id required")
	}
	if input.Qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	if input.Range.Start.Before(today) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "start date is in the past")
	}

	item, err := s.inventory.FindItemByID(ctx, input.ItemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading inventory item")
	}
	if !item.Active {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item is not available for booking")
	}

	total := item.UnitPriceCentavos * int64(input.Qty) * int64(input.Range.Days())

	unlock := s.reservations.LockItem(input.ItemID)
	defer unlock()

	var booking *models.Booking
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		b := models.Booking{
			CustomerID:    actor.UserID,
			ItemID:        input.ItemID,
			Qty:           input.Qty,
			StartDate:     input.Range.Start,
			EndDate:       input.Range.End,
			EventLocation: input.EventLocation,
			Status:        enums.BookingStatusPending,
			PaymentStatus: enums.BookingPaymentStatusUnpaid,
			TotalCentavos: total,
			Notes:         input.Notes,
		}
		if err := s.repo.WithTx(tx).Create(ctx, &b); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating booking")
		}

		res, err := s.reservations.ReserveTx(ctx, tx, reservations.ReserveRequest{
			BookingID: b.ID,
			ItemID:    input.ItemID,
			Range:     input.Range,
			Qty:       input.Qty,
		})
		if err != nil {
			return err
		}
		b.Reservations = []models.Reservation{*res}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventBookingCreated,
			AggregateType: enums.OutboxAggregateBooking,
			AggregateID:   b.ID,
			Actor:         actor.ref(),
			Version:       1,
			Data: payloads.BookingCreatedEvent{
				BookingID:     b.ID,
				CustomerID:    b.CustomerID,
				ItemID:        b.ItemID,
				Qty:           b.Qty,
				StartDate:     b.StartDate,
				EndDate:       b.EndDate,
				TotalCentavos: b.TotalCentavos,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queueing booking event")
		}

		booking = &b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

func (s *service) Get(ctx context.Context, actor Actor, id uuid.UUID) (*models.Booking, error) {
	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading booking")
	}
	if !actor.admin() && booking.CustomerID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
	}
	return booking, nil
}

func (s *service) List(ctx context.Context, actor Actor, filter ListFilter, params pagination.Params) ([]models.Booking, error) {
	if !actor.admin() {
		id := actor.UserID
		filter.CustomerID = &id
	}
	bookings, err := s.repo.List(ctx, filter, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing bookings")
	}
	return bookings, nil
}

func (s *service) Cancel(ctx context.Context, actor Actor, id uuid.UUID, reason string) (*models.Booking, error) {
	booking, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if booking.Status == enums.BookingStatusCancelled {
		return booking, nil
	}
	if err := TransitionStatus(booking.Status, enums.BookingStatusCancelled); err != nil {
		return nil, err
	}

	unlock := s.reservations.LockItem(booking.ItemID)
	defer unlock()

	now := time.Now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		res, err := s.reservations.FindActiveByBooking(ctx, booking.ID)
		if err != nil {
			return err
		}
		if res != nil {
			if err := s.reservations.ReleaseTx(ctx, tx, res.ID); err != nil {
				return err
			}
		}
		if err := s.repo.WithTx(tx).UpdateStatus(ctx, booking.ID, enums.BookingStatusCancelled, map[string]any{
			"cancelled_at": now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancelling booking")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventBookingCancelled,
			AggregateType: enums.OutboxAggregateBooking,
			AggregateID:   booking.ID,
			Actor:         actor.ref(),
			Version:       1,
			Data: payloads.BookingCancelledEvent{
				BookingID:   booking.ID,
				CustomerID:  booking.CustomerID,
				CancelledAt: now,
				Reason:      reason,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	booking.Status = enums.BookingStatusCancelled
	booking.CancelledAt = &now
	return booking, nil
}

func (s *service) AdminTransition(ctx context.Context, admin Actor, id uuid.UUID, input TransitionInput) (*models.Booking, error) {
	if !admin.admin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	if input.Status == nil && input.PaymentStatus == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a status or payment status is required")
	}
	if input.Status != nil && !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown booking status")
	}
	if input.PaymentStatus != nil && !input.PaymentStatus.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment status")
	}

	// Cancellation has its own path so the hold is released.
	if input.Status != nil && *input.Status == enums.BookingStatusCancelled {
		booking, err := s.Cancel(ctx, admin, id, input.Reason)
		if err != nil {
			return nil, err
		}
		if input.PaymentStatus != nil {
			if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
				return s.SetPaymentStateTx(ctx, tx, id, *input.PaymentStatus)
			}); err != nil {
				return nil, err
			}
			booking.PaymentStatus = *input.PaymentStatus
		}
		return booking, nil
	}

	booking, err := s.Get(ctx, admin, id)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if input.Status != nil && *input.Status != booking.Status {
			if err := TransitionStatus(booking.Status, *input.Status); err != nil {
				return err
			}
			now := time.Now().UTC()
			switch *input.Status {
			case enums.BookingStatusConfirmed:
				if err := repo.UpdateStatus(ctx, booking.ID, enums.BookingStatusConfirmed, nil); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "confirming booking")
				}
				res, err := s.reservations.FindActiveByBooking(ctx, booking.ID)
				if err != nil {
					return err
				}
				if res != nil {
					if err := s.reservations.ConfirmTx(ctx, tx, res.ID); err != nil {
						return err
					}
				}
				if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
					EventType:     enums.OutboxEventBookingConfirmed,
					AggregateType: enums.OutboxAggregateBooking,
					AggregateID:   booking.ID,
					Actor:         admin.ref(),
					Version:       1,
					Data: payloads.BookingConfirmedEvent{
						BookingID:          booking.ID,
						CustomerID:         booking.CustomerID,
						AmountPaidCentavos: booking.AmountPaidCentavos,
						RemainingCentavos:  booking.RemainingCentavos(),
					},
				}); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queueing confirmation event")
				}
			case enums.BookingStatusCompleted:
				if err := repo.UpdateStatus(ctx, booking.ID, enums.BookingStatusCompleted, map[string]any{
					"completed_at": now,
				}); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "completing booking")
				}
				booking.CompletedAt = &now
				if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
					EventType:     enums.OutboxEventBookingCompleted,
					AggregateType: enums.OutboxAggregateBooking,
					AggregateID:   booking.ID,
					Actor:         admin.ref(),
					Version:       1,
					Data: payloads.BookingCompletedEvent{
						BookingID:   booking.ID,
						CustomerID:  booking.CustomerID,
						CompletedAt: now,
					},
				}); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queueing completion event")
				}
			}
			booking.Status = *input.Status
		}

		if input.PaymentStatus != nil {
			if err := s.SetPaymentStateTx(ctx, tx, booking.ID, *input.PaymentStatus); err != nil {
				return err
			}
			booking.PaymentStatus = *input.PaymentStatus
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

// ApplyVerifiedPaymentTx is the single path that credits money to a booking.
// The first verified payment confirms a pending booking even when a balance
// remains, which is how down payments lock in dates.
func (s *service) ApplyVerifiedPaymentTx(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID, amountCentavos int64, actor Actor) (*models.Booking, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	if amountCentavos <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}

	repo := s.repo.WithTx(tx)
	booking, err := repo.FindByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading booking")
	}
	if booking.Status == enums.BookingStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "booking is cancelled")
	}
	if err := TransitionPayment(booking.PaymentStatus, enums.BookingPaymentStatusPaid); err != nil {
		return nil, err
	}

	booking.AmountPaidCentavos += amountCentavos
	booking.PaymentStatus = enums.BookingPaymentStatusPaid
	if err := repo.UpdatePayment(ctx, booking.ID, booking.PaymentStatus, booking.AmountPaidCentavos); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording payment")
	}

	if booking.Status == enums.BookingStatusPending {
		if err := repo.UpdateStatus(ctx, booking.ID, enums.BookingStatusConfirmed, nil); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "confirming booking")
		}
		booking.Status = enums.BookingStatusConfirmed

		res, err := s.reservations.FindActiveByBooking(ctx, booking.ID)
		if err != nil {
			return nil, err
		}
		if res != nil {
			if err := s.reservations.ConfirmTx(ctx, tx, res.ID); err != nil {
				return nil, err
			}
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventBookingConfirmed,
			AggregateType: enums.OutboxAggregateBooking,
			AggregateID:   booking.ID,
			Actor:         actor.ref(),
			Version:       1,
			Data: payloads.BookingConfirmedEvent{
				BookingID:          booking.ID,
				CustomerID:         booking.CustomerID,
				AmountPaidCentavos: booking.AmountPaidCentavos,
				RemainingCentavos:  booking.RemainingCentavos(),
			},
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queueing confirmation event")
		}
	}

	return booking, nil
}

func (s *service) SetPaymentStateTx(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID, to enums.BookingPaymentStatus) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	repo := s.repo.WithTx(tx)
	booking, err := repo.FindByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading booking")
	}
	if err := TransitionPayment(booking.PaymentStatus, to); err != nil {
		return err
	}
	if booking.PaymentStatus == to {
		return nil
	}
	return repo.UpdatePayment(ctx, booking.ID, to, booking.AmountPaidCentavos)
}

func (s *service) ExpireHold(ctx context.Context, res models.Reservation) error {
	unlock := s.reservations.LockItem(res.ItemID)
	defer unlock()

	now := time.Now().UTC()
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.reservations.ExpireTx(ctx, tx, res.ID); err != nil {
			return err
		}

		repo := s.repo.WithTx(tx)
		booking, err := repo.FindByID(ctx, res.BookingID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				s.logg.Warn(s.logg.WithField(ctx, "booking_id", res.BookingID.String()),
					"expired hold references missing booking")
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading booking")
		}
		if booking.Status != enums.BookingStatusPending {
			return nil
		}

		if err := repo.UpdateStatus(ctx, booking.ID, enums.BookingStatusCancelled, map[string]any{
			"cancelled_at": now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancelling expired booking")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventBookingCancelled,
			AggregateType: enums.OutboxAggregateBooking,
			AggregateID:   booking.ID,
			Version:       1,
			Data: payloads.BookingCancelledEvent{
				BookingID:   booking.ID,
				CustomerID:  booking.CustomerID,
				CancelledAt: now,
				Reason:      "payment hold expired",
			},
		})
	})
}

func (s *service) CompleteDue(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	due, err := s.repo.ListConfirmedEndedBefore(ctx, cutoff, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing bookings due for completion")
	}

	var completed int
	var errs error
	for _, booking := range due {
		now := time.Now().UTC()
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			if err := repo.UpdateStatus(ctx, booking.ID, enums.BookingStatusCompleted, map[string]any{
				"completed_at": now,
			}); err != nil {
				return err
			}
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.OutboxEventBookingCompleted,
				AggregateType: enums.OutboxAggregateBooking,
				AggregateID:   booking.ID,
				Version:       1,
				Data: payloads.BookingCompletedEvent{
					BookingID:   booking.ID,
					CustomerID:  booking.CustomerID,
					CompletedAt: now,
				},
			})
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("completing booking %s: %w", booking.ID, err))
			continue
		}
		completed++
	}
	return completed, errs
}
