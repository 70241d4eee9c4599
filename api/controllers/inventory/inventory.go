package inventory

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/eventrentph/eventrent-backend/api/middleware"
	"github.com/eventrentph/eventrent-backend/api/responses"
	"github.com/eventrentph/eventrent-backend/api/validators"
	"github.com/eventrentph/eventrent-backend/internal/availability"
	internalinventory "github.com/eventrentph/eventrent-backend/internal/inventory"
	"github.com/eventrentph/eventrent-backend/pkg/db/models"
	"github.com/eventrentph/eventrent-backend/pkg/enums"
	pkgerrors "github.com/eventrentph/eventrent-backend/pkg/errors"
	"github.com/eventrentph/eventrent-backend/pkg/logger"
	"github.com/eventrentph/eventrent-backend/pkg/types"
)

type createItemRequest struct {
	Name              string  `json:"name" validate:"required,max=200"`
	Category          string  `json:"category" validate:"required,max=100"`
	ServiceType       string  `json:"serviceType" validate:"required"`
	UnitPriceCentavos int64   `json:"unitPriceCentavos" validate:"required,gt=0"`
	Location          string  `json:"location,omitempty"`
	CapacityPerDay    *int    `json:"capacityPerDay,omitempty" validate:"omitempty,gt=0"`
	Description       *string `json:"description,omitempty" validate:"omitempty,max=2000"`
}

type addBatchRequest struct {
	BatchLabel  string  `json:"batchLabel" validate:"required,max=100"`
	QtyReceived int     `json:"qtyReceived" validate:"required,gt=0"`
	ExpiresAt   *string `json:"expiresAt,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

type adjustRequest struct {
	BatchID *string `json:"batchId,omitempty" validate:"omitempty,uuid"`
	Delta   int     `json:"delta" validate:"required"`
	Reason  string  `json:"reason" validate:"required,max=500"`
}

// CreateItem adds a catalog entry.
func CreateItem(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createItemRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		serviceType, err := enums.ParseServiceType(req.ServiceType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid service type"))
			return
		}
		location := enums.ItemLocation(req.Location)

		item, err := svc.CreateItem(r.Context(), internalinventory.NewItemInput{
			Name:              req.Name,
			Category:          req.Category,
			ServiceType:       serviceType,
			UnitPriceCentavos: req.UnitPriceCentavos,
			Location:          location,
			CapacityPerDay:    req.CapacityPerDay,
			Description:       req.Description,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, item)
	}
}

// ListItems returns the catalog with derived stock totals.
func ListItems(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filter := internalinventory.ItemFilter{
			Category: strings.TrimSpace(r.URL.Query().Get("category")),
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("serviceType")); raw != "" {
			serviceType, err := enums.ParseServiceType(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid service type filter"))
				return
			}
			filter.ServiceType = &serviceType
		}
		activeOnly, err := validators.ParseQueryBool(r, "activeOnly", true)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter.ActiveOnly = activeOnly

		items, err := svc.ListItems(r.Context(), filter, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}

// DetailItem returns one catalog item with its stock total.
func DetailItem(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := parseItemID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.GetItem(r.Context(), itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

// CheckAvailability answers whether a quantity fits a date range.
func CheckAvailability(svc internalinventory.Service, checker availability.Checker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := parseItemID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rng, err := types.ParseDateRange(
			strings.TrimSpace(r.URL.Query().Get("start")),
			strings.TrimSpace(r.URL.Query().Get("end")),
		)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid date range"))
			return
		}
		qty, err := validators.ParseQueryInt(r, "qty", 1, 1, 10000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.GetItem(r.Context(), itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := checker.Check(r.Context(), &item.Item, rng, qty)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"available": result.Available,
			"shortfall": result.Shortfall,
			"remaining": result.Remaining,
		})
	}
}

// AddBatch records a stock intake for a countable item.
func AddBatch(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := parseItemID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req addBatchRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		batch := models.Batch{
			BatchLabel:  req.BatchLabel,
			QtyReceived: req.QtyReceived,
		}
		if req.ExpiresAt != nil {
			expiry, err := time.Parse("2006-01-02", *req.ExpiresAt)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid expiry date"))
				return
			}
			batch.ExpiresAt = &expiry
		}

		created, err := svc.AddBatch(r.Context(), itemID, batch)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

// ListBatches returns an item's batches in consumption order.
func ListBatches(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := parseItemID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		batches, err := svc.ListBatches(r.Context(), itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, batches)
	}
}

// Adjust applies an admin stock correction.
func Adjust(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := parseItemID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req adjustRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := internalinventory.AdjustInput{
			Delta:   req.Delta,
			Reason:  req.Reason,
			ActorID: middleware.ActorFromContext(r.Context()).UserID,
		}
		if req.BatchID != nil {
			batchID, err := uuid.Parse(*req.BatchID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid batch id"))
				return
			}
			input.BatchID = &batchID
		}

		if err := svc.AdjustQuantity(r.Context(), itemID, input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusNoContent, nil)
	}
}

func parseItemID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "itemID"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item id")
	}
	return id, nil
}
