package reservations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/eventrentph/eventrent-backend/pkg/db/models"
	"github.com/eventrentph/eventrent-backend/pkg/enums"
)

// Repository persists reservations and their batch allocations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, res *models.Reservation) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	FindActiveByBooking(ctx context.Context, bookingID uuid.UUID) (*models.Reservation, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.ReservationStatus) error

	InsertAllocations(ctx context.Context, allocations []models.ReservationAllocation) error
	// SumAllocationsOverlapping totals, per batch, the units committed by held
	// or confirmed reservations whose date ranges intersect [start, end].
	SumAllocationsOverlapping(ctx context.Context, itemID uuid.UUID, start, end time.Time) (map[uuid.UUID]int, error)

	// ListExpiredHeld returns held reservations whose hold window lapsed
	// before now, oldest first.
	ListExpiredHeld(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a reservation repository.
func NewRepository(db *gorm.DB) Repository {
	if db == nil {
		return nil
	}
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, res *models.Reservation) error {
	return r.db.WithContext(ctx).Create(res).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var res models.Reservation
	err := r.db.WithContext(ctx).First(&res, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *repository) FindActiveByBooking(ctx context.Context, bookingID uuid.UUID) (*models.Reservation, error) {
	var res models.Reservation
	err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Where("status IN ?", []enums.ReservationStatus{
			enums.ReservationStatusHeld,
			enums.ReservationStatusConfirmed,
		}).
		Order("created_at DESC").
		First(&res).Error
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.ReservationStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
}

func (r *repository) InsertAllocations(ctx context.Context, allocations []models.ReservationAllocation) error {
	if len(allocations) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&allocations).Error
}

func (r *repository) SumAllocationsOverlapping(ctx context.Context, itemID uuid.UUID, start, end time.Time) (map[uuid.UUID]int, error) {
	var rows []struct {
		BatchID uuid.UUID
		Total   int
	}
	err := r.db.WithContext(ctx).
		Model(&models.ReservationAllocation{}).
		Joins("JOIN reservations ON reservations.id = reservation_allocations.reservation_id").
		Where("reservations.item_id = ?", itemID).
		Where("reservations.status IN ?", []enums.ReservationStatus{
			enums.ReservationStatusHeld,
			enums.ReservationStatusConfirmed,
		}).
		Where("reservations.start_date <= ? AND reservations.end_date >= ?", end, start).
		Select("reservation_allocations.batch_id AS batch_id, COALESCE(SUM(reservation_allocations.qty), 0) AS total").
		Group("reservation_allocations.batch_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	used := make(map[uuid.UUID]int, len(rows))
	for _, row := range rows {
		used[row.BatchID] = row.Total
	}
	return used, nil
}

func (r *repository) ListExpiredHeld(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.Reservation
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.ReservationStatusHeld).
		Where("hold_expires_at IS NOT NULL AND hold_expires_at < ?", now).
		Order("hold_expires_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
