package payments

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/eventrentph/eventrent-backend/api/middleware"
	"github.com/eventrentph/eventrent-backend/api/responses"
	"github.com/eventrentph/eventrent-backend/api/validators"
	internalpayments "github.com/eventrentph/eventrent-backend/internal/payments"
	"github.com/eventrentph/eventrent-backend/internal/payments/receipts"
	"github.com/eventrentph/eventrent-backend/pkg/db/models"
	"github.com/eventrentph/eventrent-backend/pkg/enums"
	pkgerrors "github.com/eventrentph/eventrent-backend/pkg/errors"
	"github.com/eventrentph/eventrent-backend/pkg/logger"
)

// maxReceiptBytes caps receipt uploads at 10 MiB.
const maxReceiptBytes = 10 << 20

type createQRRequest struct {
	BookingID   string `json:"bookingId" validate:"required,uuid"`
	PaymentType string `json:"paymentType" validate:"required,oneof=full down_payment"`
	// AmountCentavos overrides the amount due for the payment type; it may
	// not exceed it. Omitted means pay the full amount due.
	AmountCentavos *int64 `json:"amountCentavos,omitempty" validate:"omitempty,gt=0"`
}

type reviewRequest struct {
	Approve bool    `json:"approve"`
	Notes   *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// CreateQR issues a payment QR for a booking's balance or down payment.
func CreateQR(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createQRRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		bookingID, err := uuid.Parse(req.BookingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid booking id"))
			return
		}
		paymentType, err := enums.ParsePaymentType(req.PaymentType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment type"))
			return
		}

		qrReq := internalpayments.QRRequest{
			BookingID:   bookingID,
			PaymentType: paymentType,
		}
		if req.AmountCentavos != nil {
			qrReq.AmountCentavos = *req.AmountCentavos
		}

		result, err := svc.CreateQR(r.Context(), middleware.ActorFromContext(r.Context()), qrReq)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// Detail returns one payment after an ownership check.
func Detail(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		paymentID, err := parsePaymentID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.Get(r.Context(), middleware.ActorFromContext(r.Context()), paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payment)
	}
}

// UploadReceipt accepts a multipart receipt image and runs verification. The
// path segment is either the payment id or, more commonly, the reference
// number quoted on the QR.
func UploadReceipt(svc receipts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		locator := strings.TrimSpace(chi.URLParam(r, "paymentID"))
		if locator == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "payment id or reference is required"))
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxReceiptBytes)
		if err := r.ParseMultipartForm(maxReceiptBytes); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart form"))
			return
		}

		file, _, err := r.FormFile("receipt")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "receipt file is required"))
			return
		}
		defer file.Close()

		image, err := io.ReadAll(file)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "reading receipt file"))
			return
		}

		actor := middleware.ActorFromContext(r.Context())
		var payment *models.Payment
		var uploadErr error
		if paymentID, err := uuid.Parse(locator); err == nil {
			payment, uploadErr = svc.Upload(r.Context(), actor, paymentID, image)
		} else {
			payment, uploadErr = svc.UploadByReference(r.Context(), actor, locator, image)
		}
		if uploadErr != nil {
			responses.WriteError(r.Context(), logg, w, uploadErr)
			return
		}
		responses.WriteSuccess(w, payment)
	}
}

// ReviewQueue lists payments awaiting manual review.
func ReviewQueue(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListReviewQueue(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// Review resolves a flagged payment with an admin verdict.
func Review(svc receipts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		paymentID, err := parsePaymentID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req reviewRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.Review(r.Context(), middleware.ActorFromContext(r.Context()), paymentID, receipts.ReviewInput{
			Approve: req.Approve,
			Notes:   req.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payment)
	}
}

func parsePaymentID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "paymentID"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment id")
	}
	return id, nil
}
