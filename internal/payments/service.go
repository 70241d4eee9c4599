package payments

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/eventrentph/eventrent-backend/internal/bookings"
	"github.com/eventrentph/eventrent-backend/pkg/config"
	dbpkg "github.com/eventrentph/eventrent-backend/pkg/db"
	"github.com/eventrentph/eventrent-backend/pkg/db/models"
	"github.com/eventrentph/eventrent-backend/pkg/enums"
	pkgerrors "github.com/eventrentph/eventrent-backend/pkg/errors"
	"github.com/eventrentph/eventrent-backend/pkg/logger"
	"github.com/eventrentph/eventrent-backend/pkg/pagination"
	"github.com/eventrentph/eventrent-backend/pkg/qr"
)

const (
	referencePrefix     = "EVT"
	referenceRandBytes  = 5
	referenceMaxRetries = 5
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// QRRequest asks for a payment QR against a booking. A zero AmountCentavos
// means the amount due for the payment type: the full outstanding balance,
// or the down payment set by policy.
type QRRequest struct {
	BookingID      uuid.UUID
	PaymentType    enums.PaymentType
	AmountCentavos int64
}

// QRResult is the rendered payment instruction returned to the customer.
type QRResult struct {
	PaymentID       uuid.UUID `json:"paymentId"`
	ReferenceNumber string    `json:"referenceNumber"`
	AmountCentavos  int64     `json:"amountCentavos"`
	Payload         string    `json:"payload"`
	Instructions    string    `json:"instructions"`
}

// Service issues payment QRs and exposes payment lookups. Receipt
// verification lives in the receipts subpackage.
type Service interface {
	CreateQR(ctx context.Context, actor bookings.Actor, req QRRequest) (*QRResult, error)
	Get(ctx context.Context, actor bookings.Actor, id uuid.UUID) (*models.Payment, error)
	ListReviewQueue(ctx context.Context, params pagination.Params) ([]models.Payment, error)
	// RequeueStaleVerifying returns payments stuck mid-verification to
	// processing so the receipt can be uploaded again. A crash between the
	// verifying flip and the settlement leaves no recorded outcome to keep.
	RequeueStaleVerifying(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

type service struct {
	tx       txRunner
	repo     Repository
	bookings bookings.Service
	cfg      config.PaymentsConfig
	logg     *logger.Logger
}

// NewService builds the payment service.
func NewService(
	tx txRunner,
	repo Repository,
	bookingSvc bookings.Service,
	cfg config.PaymentsConfig,
	logg *logger.Logger,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	if bookingSvc == nil {
		return nil, fmt.Errorf("booking service required")
	}
	if cfg.MerchantAccount == "" {
		return nil, fmt.Errorf("merchant account required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		tx:       tx,
		repo:     repo,
		bookings: bookingSvc,
		cfg:      cfg,
		logg:     logg,
	}, nil
}

// CreateQR computes the amount from the booking balance, supersedes any live
// payment on the booking, and renders a fresh dynamic QR with a unique
// reference. Each QR maps to exactly one payment row.
func (s *service) CreateQR(ctx context.Context, actor bookings.Actor, req QRRequest) (*QRResult, error) {
	if !req.PaymentType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment type")
	}

	booking, err := s.bookings.Get(ctx, actor, req.BookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status == enums.BookingStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "booking is cancelled")
	}
	remaining := booking.RemainingCentavos()
	if remaining == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "booking is fully paid")
	}

	due := remaining
	if req.PaymentType == enums.PaymentTypeDownPayment {
		if booking.AmountPaidCentavos > 0 {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "down payment already made, pay the remaining balance in full")
		}
		due = booking.TotalCentavos * int64(s.cfg.DownPaymentPercent) / 100
		if due <= 0 || due > remaining {
			due = remaining
		}
	}

	amount := due
	if req.AmountCentavos != 0 {
		if req.AmountCentavos < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
		}
		if req.AmountCentavos > due {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount exceeds the balance due for this payment type").
				WithDetails(map[string]any{"dueCentavos": due})
		}
		amount = req.AmountCentavos
	}

	var payment *models.Payment
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		live, err := repo.FindLiveByBooking(ctx, booking.ID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checking live payment")
		}
		if live != nil {
			if live.Status == enums.PaymentStatusVerifying {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "a receipt for this booking is being verified")
			}
			if live.Status == enums.PaymentStatusPendingReview {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "a payment for this booking is awaiting review")
			}
			if err := repo.UpdateStatus(ctx, live.ID, enums.PaymentStatusSuperseded); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "superseding previous payment")
			}
		}

		created, err := s.createWithUniqueReference(ctx, repo, models.Payment{
			BookingID:      &booking.ID,
			UserID:         actor.UserID,
			AmountCentavos: amount,
			PaymentType:    req.PaymentType,
			Status:         enums.PaymentStatusProcessing,
		})
		if err != nil {
			return err
		}
		payment = created

		if err := s.bookings.SetPaymentStateTx(ctx, tx, booking.ID, enums.BookingPaymentStatusProcessing); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	payload, err := qr.Encode(qr.Request{
		MerchantName:    s.cfg.MerchantName,
		MerchantCity:    s.cfg.MerchantCity,
		MerchantAccount: s.cfg.MerchantAccount,
		AmountCentavos:  amount,
		Reference:       payment.ReferenceNumber,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding payment QR")
	}

	return &QRResult{
		PaymentID:       payment.ID,
		ReferenceNumber: payment.ReferenceNumber,
		AmountCentavos:  amount,
		Payload:         payload,
		Instructions: fmt.Sprintf(
			"Scan the QR with your banking app, pay the exact amount, then upload your receipt. Quote reference %s.",
			payment.ReferenceNumber,
		),
	}, nil
}

func (s *service) createWithUniqueReference(ctx context.Context, repo Repository, payment models.Payment) (*models.Payment, error) {
	for attempt := 0; attempt < referenceMaxRetries; attempt++ {
		reference, err := newReference(time.Now().UTC())
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generating reference")
		}
		candidate := payment
		candidate.ReferenceNumber = reference
		if err := repo.Create(ctx, &candidate); err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				continue
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating payment")
		}
		return &candidate, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "could not allocate a unique payment reference")
}

func newReference(now time.Time) (string, error) {
	buf := make([]byte, referenceRandBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%s",
		referencePrefix,
		now.Format("20060102"),
		hex.EncodeToString(buf),
	), nil
}

func (s *service) Get(ctx context.Context, actor bookings.Actor, id uuid.UUID) (*models.Payment, error) {
	payment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading payment")
	}
	if actor.Role != enums.MemberRoleAdmin && payment.UserID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	return payment, nil
}

func (s *service) RequeueStaleVerifying(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	if olderThan <= 0 {
		olderThan = 15 * time.Minute
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	stale, err := s.repo.ListStaleVerifying(ctx, cutoff, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing stale verifications")
	}

	var requeued int
	for _, payment := range stale {
		if err := s.repo.UpdateStatus(ctx, payment.ID, enums.PaymentStatusProcessing); err != nil {
			s.logg.Error(s.logg.WithField(ctx, "payment_id", payment.ID.String()),
				"requeueing stale verification", err)
			continue
		}
		requeued++
	}
	return requeued, nil
}

func (s *service) ListReviewQueue(ctx context.Context, params pagination.Params) ([]models.Payment, error) {
	payments, err := s.repo.ListReviewQueue(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing review queue")
	}
	return payments, nil
}
