package receipts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/eventrentph/eventrent-backend/internal/bookings"
	"github.com/eventrentph/eventrent-backend/internal/payments"
	"github.com/eventrentph/eventrent-backend/internal/reservations"
	"github.com/eventrentph/eventrent-backend/pkg/config"
	"github.com/eventrentph/eventrent-backend/pkg/db/models"
	"github.com/eventrentph/eventrent-backend/pkg/enums"
	pkgerrors "github.com/eventrentph/eventrent-backend/pkg/errors"
	"github.com/eventrentph/eventrent-backend/pkg/logger"
	"github.com/eventrentph/eventrent-backend/pkg/outbox"
	"github.com/eventrentph/eventrent-backend/pkg/outbox/payloads"
)

// Verification issue codes recorded on flagged payments.
const (
	IssueAmountMismatch    = "amount_mismatch"
	IssueAmountNotFound    = "amount_not_found"
	IssueReferenceMismatch = "reference_mismatch"
	IssueReferenceNotFound = "reference_not_found"
	IssueLowConfidence     = "low_ocr_confidence"
	IssueOcrUnavailable    = "ocr_unavailable"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ReviewInput is an admin's verdict on a flagged payment.
type ReviewInput struct {
	Approve bool
	Notes   *string
}

// Service runs receipt verification. An upload either auto-approves the
// payment or lands it in the manual review queue; it never hard-fails on OCR
// trouble.
type Service interface {
	Upload(ctx context.Context, actor bookings.Actor, paymentID uuid.UUID, image []byte) (*models.Payment, error)
	// UploadByReference resolves the payment by the reference printed on the
	// QR, the identifier the customer actually has in hand.
	UploadByReference(ctx context.Context, actor bookings.Actor, reference string, image []byte) (*models.Payment, error)
	Review(ctx context.Context, admin bookings.Actor, paymentID uuid.UUID, input ReviewInput) (*models.Payment, error)
}

type service struct {
	tx           txRunner
	repo         payments.Repository
	bookings     bookings.Service
	reservations reservations.Service
	extractor    Extractor
	outbox       outboxPublisher
	paymentsCfg  config.PaymentsConfig
	holdsCfg     config.HoldsConfig
	logg         *logger.Logger
}

// NewService builds the verification pipeline.
func NewService(
	tx txRunner,
	repo payments.Repository,
	bookingSvc bookings.Service,
	reservationSvc reservations.Service,
	extractor Extractor,
	publisher outboxPublisher,
	paymentsCfg config.PaymentsConfig,
	holdsCfg config.HoldsConfig,
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
	if reservationSvc == nil {
		return nil, fmt.Errorf("reservation service required")
	}
	if extractor == nil {
		return nil, fmt.Errorf("ocr extractor required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		tx:           tx,
		repo:         repo,
		bookings:     bookingSvc,
		reservations: reservationSvc,
		extractor:    extractor,
		outbox:       publisher,
		paymentsCfg:  paymentsCfg,
		holdsCfg:     holdsCfg,
		logg:         logg,
	}, nil
}

func (s *service) UploadByReference(ctx context.Context, actor bookings.Actor, reference string, image []byte) (*models.Payment, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference required")
	}
	payment, err := s.repo.FindByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading payment")
	}
	return s.Upload(ctx, actor, payment.ID, image)
}

func (s *service) Upload(ctx context.Context, actor bookings.Actor, paymentID uuid.UUID, image []byte) (*models.Payment, error) {
	if len(image) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "receipt image required")
	}

	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading payment")
	}
	if actor.Role != enums.MemberRoleAdmin && payment.UserID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	if payment.Status != enums.PaymentStatusProcessing {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("payment is %s, a receipt can only be uploaded while processing", payment.Status))
	}

	if err := s.repo.UpdateStatus(ctx, payment.ID, enums.PaymentStatusVerifying); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marking payment verifying")
	}
	payment.Status = enums.PaymentStatusVerifying

	verdict := s.verify(ctx, payment, image)
	applyVerdict(payment, verdict)

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if verdict.approve {
			now := time.Now().UTC()
			payment.Status = enums.PaymentStatusPaid
			payment.VerifiedAt = &now
			if err := s.repo.WithTx(tx).Save(ctx, payment); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "saving payment")
			}
			return s.settle(ctx, tx, payment, actor)
		}

		payment.Status = enums.PaymentStatusPendingReview
		payment.FlaggedForReview = true
		if err := s.repo.WithTx(tx).Save(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "saving payment")
		}
		if payment.BookingID != nil {
			if err := s.bookings.SetPaymentStateTx(ctx, tx, *payment.BookingID, enums.BookingPaymentStatusPendingReview); err != nil {
				return err
			}
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventPaymentFlagged,
			AggregateType: enums.OutboxAggregatePayment,
			AggregateID:   payment.ID,
			Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role.String()},
			Version:       1,
			Data: payloads.PaymentFlaggedEvent{
				PaymentID:       payment.ID,
				BookingID:       payment.BookingID,
				UserID:          payment.UserID,
				ReferenceNumber: payment.ReferenceNumber,
				Issues:          verdict.issues,
			},
		})
	})
	if err != nil {
		// Hand the payment back for another attempt. Left in verifying it
		// would be unuploadable, unreviewable, and block a fresh QR.
		if revertErr := s.repo.UpdateStatus(ctx, payment.ID, enums.PaymentStatusProcessing); revertErr != nil {
			s.logg.Error(s.logg.WithField(ctx, "payment_id", payment.ID.String()),
				"reverting payment to processing after failed settlement", revertErr)
		}
		return nil, err
	}
	return payment, nil
}

type verdict struct {
	approve        bool
	issues         []string
	confidence     enums.OcrConfidence
	rawText        string
	extractedAmt   *int64
	extractedRef   *string
	amountMatch    bool
	referenceMatch bool
}

// verify runs OCR and reconciles the extraction against the payment. OCR
// failure is a verdict, not an error: the payment degrades to manual review.
func (s *service) verify(ctx context.Context, payment *models.Payment, image []byte) verdict {
	extraction, err := s.extractor.ExtractText(ctx, image)
	if err != nil {
		logCtx := s.logg.WithField(ctx, "payment_id", payment.ID.String())
		s.logg.Warn(logCtx, "ocr backend unavailable, flagging receipt for manual review")
		return verdict{
			confidence: enums.OcrConfidenceLow,
			issues:     []string{IssueOcrUnavailable},
		}
	}

	v := verdict{
		confidence: extraction.Confidence,
		rawText:    extraction.Text,
	}

	parsed := ParseReceipt(extraction.Text)

	if parsed.AmountCentavos == nil {
		v.issues = append(v.issues, IssueAmountNotFound)
	} else {
		v.extractedAmt = parsed.AmountCentavos
		gap := *parsed.AmountCentavos - payment.AmountCentavos
		if gap < 0 {
			gap = -gap
		}
		if gap <= int64(s.paymentsCfg.AmountToleranceCentavos) {
			v.amountMatch = true
		} else {
			v.issues = append(v.issues, IssueAmountMismatch)
		}
	}

	switch {
	case parsed.Reference != "":
		ref := parsed.Reference
		v.extractedRef = &ref
		switch {
		case strings.EqualFold(ref, payment.ReferenceNumber):
			v.referenceMatch = true
		case containsFold(extraction.Text, payment.ReferenceNumber):
			// The parser latched onto some other token, but the expected
			// reference is still on the receipt.
			v.referenceMatch = true
		default:
			v.issues = append(v.issues, IssueReferenceMismatch)
		}
	case containsFold(extraction.Text, payment.ReferenceNumber):
		v.referenceMatch = true
	default:
		v.issues = append(v.issues, IssueReferenceNotFound)
	}

	if extraction.Confidence == enums.OcrConfidenceLow {
		v.issues = append(v.issues, IssueLowConfidence)
	}

	v.approve = v.amountMatch && v.referenceMatch && extraction.Confidence != enums.OcrConfidenceLow
	return v
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func applyVerdict(payment *models.Payment, v verdict) {
	confidence := v.confidence
	payment.OcrConfidence = &confidence
	if v.rawText != "" {
		raw := v.rawText
		payment.OcrRawText = &raw
	}
	payment.ExtractedAmountCentavos = v.extractedAmt
	payment.ExtractedReference = v.extractedRef
	amountMatch := v.amountMatch
	referenceMatch := v.referenceMatch
	payment.AmountMatch = &amountMatch
	payment.ReferenceMatch = &referenceMatch
	if len(v.issues) > 0 {
		if encoded, err := json.Marshal(v.issues); err == nil {
			payment.VerificationIssues = encoded
		}
	}
}

// settle credits the verified payment to its booking and emits the verified
// event, all inside the caller's transaction.
func (s *service) settle(ctx context.Context, tx *gorm.DB, payment *models.Payment, actor bookings.Actor) error {
	if payment.BookingID != nil {
		if _, err := s.bookings.ApplyVerifiedPaymentTx(ctx, tx, *payment.BookingID, payment.AmountCentavos, actor); err != nil {
			return err
		}
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.OutboxEventPaymentVerified,
		AggregateType: enums.OutboxAggregatePayment,
		AggregateID:   payment.ID,
		Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role.String()},
		Version:       1,
		Data: payloads.PaymentVerifiedEvent{
			PaymentID:       payment.ID,
			BookingID:       payment.BookingID,
			UserID:          payment.UserID,
			ReferenceNumber: payment.ReferenceNumber,
			AmountCentavos:  payment.AmountCentavos,
			PaymentType:     payment.PaymentType,
		},
	})
}

// Review resolves a flagged payment. Rejection fails the payment but leaves
// the booking's hold in place unless ReleaseOnReject is configured.
func (s *service) Review(ctx context.Context, admin bookings.Actor, paymentID uuid.UUID, input ReviewInput) (*models.Payment, error) {
	if admin.Role != enums.MemberRoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}

	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading payment")
	}
	if payment.Status != enums.PaymentStatusPendingReview {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment is not awaiting review")
	}

	now := time.Now().UTC()
	adminID := admin.UserID
	payment.ReviewedBy = &adminID
	payment.ReviewedAt = &now
	payment.ReviewNotes = input.Notes
	payment.FlaggedForReview = false

	var unlock func()
	if !input.Approve && s.holdsCfg.ReleaseOnReject && payment.BookingID != nil {
		if booking, err := s.bookings.Get(ctx, admin, *payment.BookingID); err == nil {
			unlock = s.reservations.LockItem(booking.ItemID)
		}
	}
	if unlock != nil {
		defer unlock()
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if input.Approve {
			payment.Status = enums.PaymentStatusPaid
			payment.VerifiedAt = &now
			if err := s.repo.WithTx(tx).Save(ctx, payment); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "saving payment")
			}
			return s.settle(ctx, tx, payment, admin)
		}

		payment.Status = enums.PaymentStatusFailed
		if err := s.repo.WithTx(tx).Save(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "saving payment")
		}
		if payment.BookingID != nil {
			if err := s.bookings.SetPaymentStateTx(ctx, tx, *payment.BookingID, enums.BookingPaymentStatusFailed); err != nil {
				return err
			}
			if s.holdsCfg.ReleaseOnReject {
				res, err := s.reservations.FindActiveByBooking(ctx, *payment.BookingID)
				if err != nil {
					return err
				}
				if res != nil {
					if err := s.reservations.ReleaseTx(ctx, tx, res.ID); err != nil {
						return err
					}
				}
			}
		}

		reason := ""
		if input.Notes != nil {
			reason = *input.Notes
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventPaymentFailed,
			AggregateType: enums.OutboxAggregatePayment,
			AggregateID:   payment.ID,
			Actor:         &outbox.ActorRef{UserID: admin.UserID, Role: admin.Role.String()},
			Version:       1,
			Data: payloads.PaymentFailedEvent{
				PaymentID:       payment.ID,
				BookingID:       payment.BookingID,
				UserID:          payment.UserID,
				ReferenceNumber: payment.ReferenceNumber,
				Reason:          reason,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}
