package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/eventrentph/eventrent-backend/pkg/enums"
)

// Payment tracks one payment attempt from QR issuance through receipt
// verification. ReferenceNumber is unique across all payments.
type Payment struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BookingID       *uuid.UUID          `gorm:"column:booking_id;type:uuid"`
	UserID          uuid.UUID           `gorm:"column:user_id;type:uuid;not null"`
	AmountCentavos  int64               `gorm:"column:amount_centavos;not null"`
	ReferenceNumber string              `gorm:"column:reference_number;type:text;not null;uniqueIndex"`
	TransactionID   *string             `gorm:"column:transaction_id;type:text"`
	PaymentType     enums.PaymentType   `gorm:"column:payment_type;type:text;not null"`
	Status          enums.PaymentStatus `gorm:"column:status;type:text;not null;default:'processing'"`

	// Receipt verification fields, populated by the verification pipeline.
	ExtractedAmountCentavos *int64               `gorm:"column:extracted_amount_centavos"`
	ExtractedReference      *string              `gorm:"column:extracted_reference;type:text"`
	OcrConfidence           *enums.OcrConfidence `gorm:"column:ocr_confidence;type:text"`
	OcrRawText              *string              `gorm:"column:ocr_raw_text;type:text"`
	AmountMatch             *bool                `gorm:"column:amount_match"`
	ReferenceMatch          *bool                `gorm:"column:reference_match"`
	VerificationIssues      json.RawMessage      `gorm:"column:verification_issues;type:jsonb"`
	FlaggedForReview        bool                 `gorm:"column:flagged_for_review;not null;default:false"`
	ReviewNotes             *string              `gorm:"column:review_notes;type:text"`
	ReviewedBy              *uuid.UUID           `gorm:"column:reviewed_by;type:uuid"`
	ReviewedAt              *time.Time           `gorm:"column:reviewed_at"`

	VerifiedAt *time.Time `gorm:"column:verified_at"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns the ID client-side; not every driver can evaluate the
// column default.
func (p *Payment) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
