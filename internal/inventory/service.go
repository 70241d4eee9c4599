package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/eventrentph/eventrent-backend/pkg/db/models"
	"github.com/eventrentph/eventrent-backend/pkg/enums"
	pkgerrors "github.com/eventrentph/eventrent-backend/pkg/errors"
	"github.com/eventrentph/eventrent-backend/pkg/logger"
	"github.com/eventrentph/eventrent-backend/pkg/outbox"
	"github.com/eventrentph/eventrent-backend/pkg/outbox/payloads"
	"github.com/eventrentph/eventrent-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ItemWithStock pairs a catalog item with its derived on-hand total.
type ItemWithStock struct {
	Item        models.InventoryItem
	TotalOnHand int
}

// NewItemInput carries admin input for catalog creation.
type NewItemInput struct {
	Name              string
	Category          string
	ServiceType       enums.ServiceType
	UnitPriceCentavos int64
	Location          enums.ItemLocation
	CapacityPerDay    *int
	Description       *string
}

// AdjustInput carries an admin quantity correction.
type AdjustInput struct {
	BatchID *uuid.UUID
	Delta   int
	Reason  string
	ActorID uuid.UUID
}

// Service exposes catalog and batch-ledger operations.
type Service interface {
	CreateItem(ctx context.Context, input NewItemInput) (*models.InventoryItem, error)
	GetItem(ctx context.Context, id uuid.UUID) (*ItemWithStock, error)
	ListItems(ctx context.Context, filter ItemFilter, params pagination.Params) ([]ItemWithStock, error)
	AddBatch(ctx context.Context, itemID uuid.UUID, batch models.Batch) (*models.Batch, error)
	ListBatches(ctx context.Context, itemID uuid.UUID) ([]models.Batch, error)
	AdjustQuantity(ctx context.Context, itemID uuid.UUID, input AdjustInput) error
}

type service struct {
	tx     txRunner
	repo   Repository
	outbox outboxPublisher
	logg   *logger.Logger
}

// NewService builds the inventory service.
func NewService(tx txRunner, repo Repository, publisher outboxPublisher, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{tx: tx, repo: repo, outbox: publisher, logg: logg}, nil
}

func (s *service) CreateItem(ctx context.Context, input NewItemInput) (*models.InventoryItem, error) {
	if !input.ServiceType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid service type")
	}
	if input.Location != "" && !input.Location.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid item location")
	}
	if input.UnitPriceCentavos < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unit price must not be negative")
	}
	if !input.ServiceType.Stocked() && (input.CapacityPerDay == nil || *input.CapacityPerDay <= 0) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "capacity per day is required for service items")
	}

	item := models.InventoryItem{
		Name:              input.Name,
		Category:          input.Category,
		ServiceType:       input.ServiceType,
		UnitPriceCentavos: input.UnitPriceCentavos,
		Location:          input.Location,
		CapacityPerDay:    input.CapacityPerDay,
		Description:       input.Description,
		Active:            true,
	}
	if item.Location == "" {
		item.Location = enums.ItemLocationBoth
	}
	if err := s.repo.CreateItem(ctx, &item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating inventory item")
	}
	return &item, nil
}

func (s *service) GetItem(ctx context.Context, id uuid.UUID) (*ItemWithStock, error) {
	item, err := s.repo.FindItemByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading inventory item")
	}
	total, err := s.repo.SumOnHand(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "summing item stock")
	}
	return &ItemWithStock{Item: *item, TotalOnHand: total}, nil
}

func (s *service) ListItems(ctx context.Context, filter ItemFilter, params pagination.Params) ([]ItemWithStock, error) {
	items, err := s.repo.ListItems(ctx, filter, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing inventory items")
	}
	out := make([]ItemWithStock, 0, len(items))
	for _, item := range items {
		total, err := s.repo.SumOnHand(ctx, item.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "summing item stock")
		}
		out = append(out, ItemWithStock{Item: item, TotalOnHand: total})
	}
	return out, nil
}

func (s *service) AddBatch(ctx context.Context, itemID uuid.UUID, batch models.Batch) (*models.Batch, error) {
	if batch.QtyReceived <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "batch quantity must be positive")
	}
	if batch.BatchLabel == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "batch label is required")
	}

	item, err := s.repo.FindItemByID(ctx, itemID)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading inventory item")
	}
	if !item.ServiceType.Stocked() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "capacity-based items do not carry batches")
	}

	batch.ItemID = item.ID
	batch.QtyOnHand = batch.QtyReceived
	if err := s.repo.CreateBatch(ctx, &batch); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating batch")
	}
	return &batch, nil
}

func (s *service) ListBatches(ctx context.Context, itemID uuid.UUID) ([]models.Batch, error) {
	batches, err := s.repo.ListBatchesFEFO(ctx, itemID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing batches")
	}
	return batches, nil
}

// AdjustQuantity applies an admin stock correction. Positive deltas add to the
// targeted batch (or the newest batch when none is named); negative deltas
// drain in FEFO order. The adjustment row and the outbox event commit with the
// batch updates or not at all.
func (s *service) AdjustQuantity(ctx context.Context, itemID uuid.UUID, input AdjustInput) error {
	if input.Delta == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "delta must not be zero")
	}
	if input.Reason == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}
	if input.ActorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "actor id required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		item, err := repo.LockItemByID(ctx, itemID)
		if err != nil {
			if isNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "inventory item not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "locking inventory item")
		}
		if !item.ServiceType.Stocked() {
			return pkgerrors.New(pkgerrors.CodeValidation, "capacity-based items have no stock to adjust")
		}

		if input.BatchID != nil {
			if err := repo.AdjustBatchQty(ctx, *input.BatchID, input.Delta); err != nil {
				return adjustError(err)
			}
		} else if input.Delta > 0 {
			if err := s.addToNewestBatch(ctx, repo, item.ID, input.Delta); err != nil {
				return err
			}
		} else {
			if err := s.drainFEFO(ctx, repo, item.ID, -input.Delta); err != nil {
				return err
			}
		}

		adj := models.StockAdjustment{
			ItemID:  item.ID,
			BatchID: input.BatchID,
			Delta:   input.Delta,
			Reason:  input.Reason,
			ActorID: input.ActorID,
		}
		if err := repo.InsertAdjustment(ctx, &adj); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording stock adjustment")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventStockAdjusted,
			AggregateType: enums.OutboxAggregateInventoryItem,
			AggregateID:   item.ID,
			Version:       1,
			Data: payloads.StockAdjustedEvent{
				ItemID:  item.ID,
				BatchID: input.BatchID,
				Delta:   input.Delta,
				Reason:  input.Reason,
				ActorID: input.ActorID,
			},
		})
	})
}

func (s *service) addToNewestBatch(ctx context.Context, repo Repository, itemID uuid.UUID, qty int) error {
	batches, err := repo.ListBatchesFEFO(ctx, itemID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing batches")
	}
	if len(batches) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "item has no batches to adjust; record a batch intake instead")
	}
	target := batches[len(batches)-1]
	if err := repo.AdjustBatchQty(ctx, target.ID, qty); err != nil {
		return adjustError(err)
	}
	return nil
}

func (s *service) drainFEFO(ctx context.Context, repo Repository, itemID uuid.UUID, qty int) error {
	batches, err := repo.ListBatchesFEFO(ctx, itemID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing batches")
	}
	remaining := qty
	for _, batch := range batches {
		if remaining == 0 {
			break
		}
		take := batch.QtyOnHand
		if take > remaining {
			take = remaining
		}
		if take == 0 {
			continue
		}
		if err := repo.AdjustBatchQty(ctx, batch.ID, -take); err != nil {
			return adjustError(err)
		}
		remaining -= take
	}
	if remaining > 0 {
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, "not enough on-hand stock to remove").
			WithDetails(map[string]any{"shortfall": remaining})
	}
	return nil
}

func adjustError(err error) error {
	if errors.Is(err, ErrBatchQtyConflict) {
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, "batch does not hold enough units")
	}
	if isNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "batch not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "adjusting batch quantity")
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
