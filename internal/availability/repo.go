package availability

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/eventrentph/eventrent-backend/pkg/db/models"
	"github.com/eventrentph/eventrent-backend/pkg/enums"
)

// Repository reads the stock facts the checker needs. Read-only.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	SumOnHand(ctx context.Context, itemID uuid.UUID) (int, error)
	// SumOverlappingReserved totals held+confirmed reservation quantity whose
	// date range intersects [start, end] inclusive.
	SumOverlappingReserved(ctx context.Context, itemID uuid.UUID, start, end time.Time) (int, error)
	// ActiveReservationsOverlapping returns the held+confirmed reservations
	// intersecting [start, end], for per-day capacity accounting.
	ActiveReservationsOverlapping(ctx context.Context, itemID uuid.UUID, start, end time.Time) ([]models.Reservation, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds the availability read model.
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

func (r *repository) SumOnHand(ctx context.Context, itemID uuid.UUID) (int, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.Batch{}).
		Where("item_id = ?", itemID).
		Select("COALESCE(SUM(qty_on_hand), 0)").
		Scan(&total).Error
	return int(total), err
}

func (r *repository) SumOverlappingReserved(ctx context.Context, itemID uuid.UUID, start, end time.Time) (int, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("item_id = ?", itemID).
		Where("status IN ?", activeStatuses()).
		Where("start_date <= ? AND end_date >= ?", end, start).
		Select("COALESCE(SUM(qty), 0)").
		Scan(&total).Error
	return int(total), err
}

func (r *repository) ActiveReservationsOverlapping(ctx context.Context, itemID uuid.UUID, start, end time.Time) ([]models.Reservation, error) {
	var rows []models.Reservation
	err := r.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Where("status IN ?", activeStatuses()).
		Where("start_date <= ? AND end_date >= ?", end, start).
		Find(&rows).Error
	return rows, err
}

func activeStatuses() []enums.ReservationStatus {
	return []enums.ReservationStatus{
		enums.ReservationStatusHeld,
		enums.ReservationStatusConfirmed,
	}
}
