package reservations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/eventrentph/eventrent-backend/internal/availability"
	"github.com/eventrentph/eventrent-backend/internal/inventory"
	"github.com/eventrentph/eventrent-backend/pkg/db/models"
	"github.com/eventrentph/eventrent-backend/pkg/enums"
	pkgerrors "github.com/eventrentph/eventrent-backend/pkg/errors"
	"github.com/eventrentph/eventrent-backend/pkg/logger"
	"github.com/eventrentph/eventrent-backend/pkg/outbox"
	"github.com/eventrentph/eventrent-backend/pkg/outbox/payloads"
	"github.com/eventrentph/eventrent-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ReserveRequest describes one hold to place.
type ReserveRequest struct {
	BookingID uuid.UUID
	ItemID    uuid.UUID
	Range     types.DateRange
	Qty       int
}

// Service is the only component that commits stock to dates. Batch
// quantities stay physical; a reservation's allocations record which batch
// units its window occupies, and release/expire frees those exact units by
// retiring the reservation.
type Service interface {
	// LockItem serializes callers touching one item. Orchestrators that run
	// reserve inside their own transaction take the lock first and release
	// it after commit.
	LockItem(itemID uuid.UUID) func()

	Reserve(ctx context.Context, req ReserveRequest) (*models.Reservation, error)
	// ReserveTx places the hold inside the caller's transaction. The caller
	// must hold the item lock from LockItem.
	ReserveTx(ctx context.Context, tx *gorm.DB, req ReserveRequest) (*models.Reservation, error)

	Release(ctx context.Context, reservationID uuid.UUID) error
	ReleaseTx(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID) error
	// Expire releases an overdue hold and marks it expired instead of
	// released, emitting the expiry event.
	Expire(ctx context.Context, reservationID uuid.UUID) error
	ExpireTx(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID) error

	Confirm(ctx context.Context, reservationID uuid.UUID) error
	ConfirmTx(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID) error

	ListExpiredHeld(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error)
	FindActiveByBooking(ctx context.Context, bookingID uuid.UUID) (*models.Reservation, error)
}

type service struct {
	tx         txRunner
	repo       Repository
	inventory  inventory.Repository
	checker    availability.Checker
	outbox     outboxPublisher
	logg       *logger.Logger
	locks      *itemLocks
	holdWindow time.Duration
}

// NewService builds the reservation engine.
func NewService(
	tx txRunner,
	repo Repository,
	inventoryRepo inventory.Repository,
	checker availability.Checker,
	publisher outboxPublisher,
	logg *logger.Logger,
	holdWindow time.Duration,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("reservation repository required")
	}
	if inventoryRepo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if checker == nil {
		return nil, fmt.Errorf("availability checker required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if holdWindow <= 0 {
		holdWindow = 30 * time.Minute
	}
	return &service{
		tx:         tx,
		repo:       repo,
		inventory:  inventoryRepo,
		checker:    checker,
		outbox:     publisher,
		logg:       logg,
		locks:      newItemLocks(),
		holdWindow: holdWindow,
	}, nil
}

func (s *service) LockItem(itemID uuid.UUID) func() {
	return s.locks.Lock(itemID)
}

func (s *service) Reserve(ctx context.Context, req ReserveRequest) (*models.Reservation, error) {
	unlock := s.locks.Lock(req.ItemID)
	defer unlock()

	var res *models.Reservation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		created, err := s.ReserveTx(ctx, tx, req)
		if err != nil {
			return err
		}
		res = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ReserveTx re-checks availability under the item row lock and commits the
// quantity to batches FEFO, recording one allocation row per batch drawn.
// Any failure aborts the whole transaction, so a partial allocation never
// survives.
func (s *service) ReserveTx(ctx context.Context, tx *gorm.DB, req ReserveRequest) (*models.Reservation, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	if req.BookingID == uuid.Nil || req.ItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking and item ids required")
	}
	if req.Qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	invRepo := s.inventory.WithTx(tx)
	item, err := invRepo.LockItemByID(ctx, req.ItemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "locking inventory item")
	}

	result, err := s.checker.WithTx(tx).Check(ctx, item, req.Range, req.Qty)
	if err != nil {
		return nil, err
	}
	if !result.Available {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, "not enough stock for the requested dates").
			WithDetails(map[string]any{"shortfall": result.Shortfall})
	}

	holdExpiry := time.Now().Add(s.holdWindow)
	res := models.Reservation{
		BookingID:     req.BookingID,
		ItemID:        req.ItemID,
		Qty:           req.Qty,
		StartDate:     req.Range.Start,
		EndDate:       req.Range.End,
		Status:        enums.ReservationStatusHeld,
		HoldExpiresAt: &holdExpiry,
	}

	repo := s.repo.WithTx(tx)
	if err := repo.Create(ctx, &res); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating reservation")
	}

	if item.ServiceType.Stocked() {
		allocations, err := s.allocateFEFO(ctx, tx, res.ID, req.ItemID, req.Range, req.Qty)
		if err != nil {
			return nil, err
		}
		if err := repo.InsertAllocations(ctx, allocations); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording batch allocations")
		}
		res.Allocations = allocations
	}

	return &res, nil
}

// allocateFEFO assigns the quantity to batches in expiry order. A batch's
// free quantity for the window is its physical stock minus the units other
// held or confirmed reservations with intersecting dates already occupy, so
// the same units serve any number of disjoint windows.
func (s *service) allocateFEFO(ctx context.Context, tx *gorm.DB, reservationID, itemID uuid.UUID, rng types.DateRange, qty int) ([]models.ReservationAllocation, error) {
	batches, err := s.inventory.WithTx(tx).ListBatchesFEFO(ctx, itemID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing batches")
	}
	used, err := s.repo.WithTx(tx).SumAllocationsOverlapping(ctx, itemID, rng.Start, rng.End)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "summing committed allocations")
	}

	var allocations []models.ReservationAllocation
	remaining := qty
	for _, batch := range batches {
		if remaining == 0 {
			break
		}
		free := batch.QtyOnHand - used[batch.ID]
		if free <= 0 {
			continue
		}
		take := free
		if take > remaining {
			take = remaining
		}
		allocations = append(allocations, models.ReservationAllocation{
			ReservationID: reservationID,
			BatchID:       batch.ID,
			Qty:           take,
		})
		remaining -= take
	}
	if remaining > 0 {
		// The aggregate check passed but the per-batch ledger disagrees,
		// which means stock moved between the check and the allocation.
		// Fail the whole transaction.
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, "stock changed while reserving").
			WithDetails(map[string]any{"shortfall": remaining})
	}
	return allocations, nil
}

func (s *service) Release(ctx context.Context, reservationID uuid.UUID) error {
	return s.settle(ctx, reservationID, enums.ReservationStatusReleased)
}

func (s *service) Expire(ctx context.Context, reservationID uuid.UUID) error {
	return s.settle(ctx, reservationID, enums.ReservationStatusExpired)
}

func (s *service) settle(ctx context.Context, reservationID uuid.UUID, terminal enums.ReservationStatus) error {
	res, err := s.repo.FindByID(ctx, reservationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logg.Warn(s.logg.WithField(ctx, "reservation_id", reservationID.String()),
				"release of unknown reservation treated as already resolved")
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading reservation")
	}

	unlock := s.locks.Lock(res.ItemID)
	defer unlock()

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.settleTx(ctx, tx, reservationID, terminal)
	})
}

func (s *service) ReleaseTx(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID) error {
	return s.settleTx(ctx, tx, reservationID, enums.ReservationStatusReleased)
}

func (s *service) ExpireTx(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID) error {
	return s.settleTx(ctx, tx, reservationID, enums.ReservationStatusExpired)
}

// settleTx marks the reservation with the terminal status, which frees its
// allocated units on the exact batches they came from: allocations of a
// settled reservation no longer count against any window. Safe to call
// twice; a reservation already released or expired is left untouched.
func (s *service) settleTx(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID, terminal enums.ReservationStatus) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	repo := s.repo.WithTx(tx)
	res, err := repo.FindByID(ctx, reservationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logg.Warn(s.logg.WithField(ctx, "reservation_id", reservationID.String()),
				"release of unknown reservation treated as already resolved")
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading reservation")
	}
	if !res.Status.Active() {
		return nil
	}

	if _, err := s.inventory.WithTx(tx).LockItemByID(ctx, res.ItemID); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "locking inventory item")
	}

	if err := repo.UpdateStatus(ctx, reservationID, terminal); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating reservation status")
	}

	if terminal == enums.ReservationStatusExpired {
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventReservationExpired,
			AggregateType: enums.OutboxAggregateReservation,
			AggregateID:   res.ID,
			Version:       1,
			Data: payloads.ReservationExpiredEvent{
				ReservationID: res.ID,
				BookingID:     res.BookingID,
				ItemID:        res.ItemID,
				Qty:           res.Qty,
				ExpiredAt:     time.Now().UTC(),
			},
		})
	}
	return nil
}

func (s *service) Confirm(ctx context.Context, reservationID uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.ConfirmTx(ctx, tx, reservationID)
	})
}

// ConfirmTx flips a held reservation to confirmed so the expiry sweep can no
// longer touch it. Confirming an already-confirmed reservation is a no-op.
func (s *service) ConfirmTx(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	repo := s.repo.WithTx(tx)
	res, err := repo.FindByID(ctx, reservationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logg.Warn(s.logg.WithField(ctx, "reservation_id", reservationID.String()),
				"confirm of unknown reservation treated as already resolved")
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading reservation")
	}
	switch res.Status {
	case enums.ReservationStatusConfirmed:
		return nil
	case enums.ReservationStatusHeld:
		if err := repo.UpdateStatus(ctx, reservationID, enums.ReservationStatusConfirmed); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "confirming reservation")
		}
		return nil
	default:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "reservation is no longer active")
	}
}

func (s *service) ListExpiredHeld(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error) {
	return s.repo.ListExpiredHeld(ctx, now, limit)
}

func (s *service) FindActiveByBooking(ctx context.Context, bookingID uuid.UUID) (*models.Reservation, error) {
	res, err := s.repo.FindActiveByBooking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading booking reservation")
	}
	return res, nil
}
