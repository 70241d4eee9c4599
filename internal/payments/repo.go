package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/eventrentph/eventrent-backend/pkg/db/models"
	"github.com/eventrentph/eventrent-backend/pkg/enums"
	"github.com/eventrentph/eventrent-backend/pkg/pagination"
)

// Repository persists payments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindByReference(ctx context.Context, reference string) (*models.Payment, error)
	// FindLiveByBooking returns the newest unsettled payment on the booking,
	// or gorm.ErrRecordNotFound.
	FindLiveByBooking(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error)
	ListReviewQueue(ctx context.Context, params pagination.Params) ([]models.Payment, error)
	// ListStaleVerifying returns payments sitting in verifying since before
	// the cutoff, oldest first.
	ListStaleVerifying(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error)

	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.PaymentStatus) error
	// Save flushes the verification fields after the pipeline runs.
	Save(ctx context.Context, payment *models.Payment) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payment repository.
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

func (r *repository) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).First(&payment, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindByReference(ctx context.Context, reference string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).First(&payment, "reference_number = ?", reference).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindLiveByBooking(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Where("status IN ?", []enums.PaymentStatus{
			enums.PaymentStatusProcessing,
			enums.PaymentStatusVerifying,
			enums.PaymentStatusPendingReview,
		}).
		Order("created_at DESC").
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) ListReviewQueue(ctx context.Context, params pagination.Params) ([]models.Payment, error) {
	query := r.db.WithContext(ctx).
		Where("flagged_for_review = ?", true).
		Where("status = ?", enums.PaymentStatusPendingReview)

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

	var payments []models.Payment
	err = query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&payments).Error
	return payments, err
}

func (r *repository) ListStaleVerifying(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	var payments []models.Payment
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.PaymentStatusVerifying).
		Where("updated_at < ?", cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&payments).Error
	return payments, err
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.PaymentStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
}

func (r *repository) Save(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Save(payment).Error
}
