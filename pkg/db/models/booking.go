package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/eventrentph/eventrent-backend/pkg/enums"
)

// Booking is a customer's rental of one item over a date range.
type Booking struct {
	ID                uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID        uuid.UUID                  `gorm:"column:customer_id;type:uuid;not null"`
	ItemID            uuid.UUID                  `gorm:"column:item_id;type:uuid;not null"`
	Qty               int                        `gorm:"column:qty;not null"`
	StartDate         time.Time                  `gorm:"column:start_date;not null"`
	EndDate           time.Time                  `gorm:"column:end_date;not null"`
	EventLocation     *string                    `gorm:"column:event_location;type:text"`
	Status            enums.BookingStatus        `gorm:"column:status;type:text;not null;default:'pending'"`
	PaymentStatus     enums.BookingPaymentStatus `gorm:"column:payment_status;type:text;not null;default:'unpaid'"`
	TotalCentavos     int64                      `gorm:"column:total_centavos;not null"`
	AmountPaidCentavos int64                     `gorm:"column:amount_paid_centavos;not null;default:0"`
	Notes             *string                    `gorm:"column:notes;type:text"`
	CancelledAt       *time.Time                 `gorm:"column:cancelled_at"`
	CompletedAt       *time.Time                 `gorm:"column:completed_at"`
	Reservations      []Reservation              `gorm:"foreignKey:BookingID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns the ID client-side; not every driver can evaluate the
// column default.
func (b *Booking) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// RemainingCentavos is the outstanding balance on the booking.
func (b *Booking) RemainingCentavos() int64 {
	remaining := b.TotalCentavos - b.AmountPaidCentavos
	if remaining < 0 {
		return 0
	}
	return remaining
}
