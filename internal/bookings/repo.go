package bookings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/eventrentph/eventrent-backend/pkg/db/models"
	"github.com/eventrentph/eventrent-backend/pkg/enums"
	"github.com/eventrentph/eventrent-backend/pkg/pagination"
)

// ListFilter narrows booking listings.
type ListFilter struct {
	CustomerID *uuid.UUID
	Status     *enums.BookingStatus
}

// Repository persists bookings.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, booking *models.Booking) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	List(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.Booking, error)

	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.BookingStatus, stamp map[string]any) error
	UpdatePayment(ctx context.Context, id uuid.UUID, paymentStatus enums.BookingPaymentStatus, amountPaidCentavos int64) error

	// ListConfirmedEndedBefore returns confirmed bookings whose rental window
	// closed before the cutoff, for the completion sweep.
	ListConfirmedEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a booking repository.
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

func (r *repository) Create(ctx context.Context, booking *models.Booking) error {
	return r.db.WithContext(ctx).Create(booking).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.WithContext(ctx).
		Preload("Reservations").
		First(&booking, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.Booking, error) {
	query := r.db.WithContext(ctx).Model(&models.Booking{})
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var bookings []models.Booking
	err = query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&bookings).Error
	return bookings, err
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.BookingStatus, stamp map[string]any) error {
	updates := map[string]any{
		"status":     status,
		"updated_at": time.Now(),
	}
	for k, v := range stamp {
		updates[k] = v
	}
	return r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) UpdatePayment(ctx context.Context, id uuid.UUID, paymentStatus enums.BookingPaymentStatus, amountPaidCentavos int64) error {
	return r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"payment_status":       paymentStatus,
			"amount_paid_centavos": amountPaidCentavos,
			"updated_at":           time.Now(),
		}).Error
}

func (r *repository) ListConfirmedEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error) {
	if limit <= 0 {
		limit = 100
	}
	var bookings []models.Booking
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.BookingStatusConfirmed).
		Where("end_date < ?", cutoff).
		Order("end_date ASC").
		Limit(limit).
		Find(&bookings).Error
	return bookings, err
}
