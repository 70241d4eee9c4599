package bookings

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/eventrentph/eventrent-backend/api/middleware"
	"github.com/eventrentph/eventrent-backend/api/responses"
	"github.com/eventrentph/eventrent-backend/api/validators"
	internalbookings "github.com/eventrentph/eventrent-backend/internal/bookings"
	"github.com/eventrentph/eventrent-backend/pkg/enums"
	pkgerrors "github.com/eventrentph/eventrent-backend/pkg/errors"
	"github.com/eventrentph/eventrent-backend/pkg/logger"
	"github.com/eventrentph/eventrent-backend/pkg/types"
)

type createRequest struct {
	ItemID        string  `json:"itemId" validate:"required,uuid"`
	StartDate     string  `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate       string  `json:"endDate" validate:"required,datetime=2006-01-02"`
	Qty           int     `json:"qty" validate:"required,gt=0"`
	EventLocation *string `json:"eventLocation,omitempty" validate:"omitempty,max=500"`
	Notes         *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

type cancelRequest struct {
	Reason string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

type transitionRequest struct {
	Status        *string `json:"status,omitempty" validate:"omitempty,oneof=pending confirmed completed cancelled"`
	PaymentStatus *string `json:"paymentStatus,omitempty" validate:"omitempty,oneof=unpaid processing paid failed pending_review"`
	Reason        string  `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// Create places a booking and its inventory hold.
func Create(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		itemID, err := uuid.Parse(req.ItemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item id"))
			return
		}
		rng, err := types.ParseDateRange(req.StartDate, req.EndDate)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid date range"))
			return
		}

		booking, err := svc.Create(r.Context(), middleware.ActorFromContext(r.Context()), internalbookings.CreateInput{
			ItemID:        itemID,
			Range:         rng,
			Qty:           req.Qty,
			EventLocation: req.EventLocation,
			Notes:         req.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, booking)
	}
}

// List returns the caller's bookings; admins see everyone's.
func List(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filter := internalbookings.ListFilter{}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseBookingStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			filter.Status = &status
		}

		list, err := svc.List(r.Context(), middleware.ActorFromContext(r.Context()), filter, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// Detail returns a single booking after an ownership check.
func Detail(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookingID, err := parseBookingID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		booking, err := svc.Get(r.Context(), middleware.ActorFromContext(r.Context()), bookingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, booking)
	}
}

// Cancel releases the booking's hold and marks it cancelled.
func Cancel(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookingID, err := parseBookingID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req cancelRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		booking, err := svc.Cancel(r.Context(), middleware.ActorFromContext(r.Context()), bookingID, req.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, booking)
	}
}

// Transition applies an admin lifecycle override to a booking.
func Transition(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookingID, err := parseBookingID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req transitionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := internalbookings.TransitionInput{Reason: req.Reason}
		if req.Status != nil {
			status, err := enums.ParseBookingStatus(*req.Status)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			input.Status = &status
		}
		if req.PaymentStatus != nil {
			paymentStatus, err := enums.ParseBookingPaymentStatus(*req.PaymentStatus)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment status"))
				return
			}
			input.PaymentStatus = &paymentStatus
		}

		booking, err := svc.AdminTransition(r.Context(), middleware.ActorFromContext(r.Context()), bookingID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, booking)
	}
}

func parseBookingID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "bookingID"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid booking id")
	}
	return id, nil
}
