package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/eventrentph/eventrent-backend/pkg/db/models"
	"github.com/eventrentph/eventrent-backend/pkg/enums"
	"github.com/eventrentph/eventrent-backend/pkg/pagination"
)

// ItemFilter narrows catalog listings.
type ItemFilter struct {
	Category    string
	ServiceType *enums.ServiceType
	ActiveOnly  bool
}

// Repository exposes inventory item and batch persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateItem(ctx context.Context, item *models.InventoryItem) error
	FindItemByID(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error)
	ListItems(ctx context.Context, filter ItemFilter, params pagination.Params) ([]models.InventoryItem, error)
	UpdateItem(ctx context.Context, item *models.InventoryItem) error

	// LockItemByID takes a row lock on the item for the duration of the
	// surrounding transaction. On dialects without FOR UPDATE it degrades to
	// a plain read.
	LockItemByID(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error)

	CreateBatch(ctx context.Context, batch *models.Batch) error
	FindBatchByID(ctx context.Context, id uuid.UUID) (*models.Batch, error)
	// ListBatchesFEFO returns the item's batches in consumption order:
	// soonest expiry first, never-expiring last, ties broken by creation time.
	ListBatchesFEFO(ctx context.Context, itemID uuid.UUID) ([]models.Batch, error)
	AdjustBatchQty(ctx context.Context, batchID uuid.UUID, delta int) error
	SumOnHand(ctx context.Context, itemID uuid.UUID) (int, error)

	InsertAdjustment(ctx context.Context, adj *models.StockAdjustment) error
	ListAdjustments(ctx context.Context, itemID uuid.UUID, limit int) ([]models.StockAdjustment, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an inventory repository backed by the provided DB handle.
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

func (r *repository) CreateItem(ctx context.Context, item *models.InventoryItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *repository) FindItemByID(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error) {
	var item models.InventoryItem
	err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) ListItems(ctx context.Context, filter ItemFilter, params pagination.Params) ([]models.InventoryItem, error) {
	query := r.db.WithContext(ctx).Model(&models.InventoryItem{})
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.ServiceType != nil {
		query = query.Where("service_type = ?", *filter.ServiceType)
	}
	if filter.ActiveOnly {
		query = query.Where("active = ?", true)
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

	var items []models.InventoryItem
	err = query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&items).Error
	return items, err
}

func (r *repository) UpdateItem(ctx context.Context, item *models.InventoryItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}

func (r *repository) LockItemByID(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error) {
	query := r.db.WithContext(ctx)
	if query.Dialector.Name() == "postgres" {
		query = query.Clauses(lockForUpdate())
	}
	var item models.InventoryItem
	if err := query.First(&item, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) CreateBatch(ctx context.Context, batch *models.Batch) error {
	return r.db.WithContext(ctx).Create(batch).Error
}

func (r *repository) FindBatchByID(ctx context.Context, id uuid.UUID) (*models.Batch, error) {
	var batch models.Batch
	err := r.db.WithContext(ctx).First(&batch, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *repository) ListBatchesFEFO(ctx context.Context, itemID uuid.UUID) ([]models.Batch, error) {
	var batches []models.Batch
	err := r.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order(fefoOrder).
		Order("created_at ASC").
		Order("id ASC").
		Find(&batches).Error
	return batches, err
}

func (r *repository) AdjustBatchQty(ctx context.Context, batchID uuid.UUID, delta int) error {
	res := r.db.WithContext(ctx).
		Model(&models.Batch{}).
		Where("id = ?", batchID).
		Where("qty_on_hand + ? >= 0", delta).
		Updates(map[string]any{
			"qty_on_hand": gorm.Expr("qty_on_hand + ?", delta),
			"updated_at":  time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrBatchQtyConflict
	}
	return nil
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

func (r *repository) InsertAdjustment(ctx context.Context, adj *models.StockAdjustment) error {
	return r.db.WithContext(ctx).Create(adj).Error
}

func (r *repository) ListAdjustments(ctx context.Context, itemID uuid.UUID, limit int) ([]models.StockAdjustment, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.StockAdjustment
	err := r.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ErrBatchQtyConflict signals a decrement would drive a batch negative.
var ErrBatchQtyConflict = errors.New("batch quantity conflict")
